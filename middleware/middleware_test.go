package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"washday/api/models"
	"washday/api/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/who", func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			c.String(http.StatusOK, "nobody")
			return
		}
		c.String(http.StatusOK, actor.ID)
	})
	return r
}

func get(r http.Handler, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCollectorKey(t *testing.T) {
	r := newEngine(CollectorKey())

	t.Setenv("AUTH_DEFAULT", "")
	assert.Equal(t, http.StatusOK, get(r, nil).Code)

	t.Setenv("AUTH_DEFAULT", "s3cret")
	assert.Equal(t, http.StatusUnauthorized, get(r, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, func(req *http.Request) {
		req.Header.Set("X-API-KEY", "s3cre")
	}).Code)
	assert.Equal(t, http.StatusOK, get(r, func(req *http.Request) {
		req.Header.Set("X-API-KEY", "s3cret")
	}).Code)
}

func TestOptionalActor(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "middleware-secret")
	r := newEngine(OptionalActor())

	token, err := utils.GenerateActorToken(models.Actor{ID: "cust-9", Name: "Mei"}, time.Hour)
	require.NoError(t, err)

	w := get(r, nil)
	assert.Equal(t, "nobody", w.Body.String())

	w = get(r, func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) })
	assert.Equal(t, "cust-9", w.Body.String())

	w = get(r, func(req *http.Request) { req.AddCookie(&http.Cookie{Name: "actor_token", Value: token}) })
	assert.Equal(t, "cust-9", w.Body.String())

	w = get(r, func(req *http.Request) { req.Header.Set("Authorization", "Bearer not-a-token") })
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nobody", w.Body.String())

	expired, err := utils.GenerateActorToken(models.Actor{ID: "cust-9"}, -time.Minute)
	require.NoError(t, err)
	w = get(r, func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+expired) })
	assert.Equal(t, "nobody", w.Body.String())
}

func TestCORSMiddleware(t *testing.T) {
	r := newEngine(CORSMiddleware())

	t.Setenv("FE_ORIGIN", "")
	w := get(r, nil)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-API-KEY")

	t.Setenv("FE_ORIGIN", "https://washday.example")
	w = get(r, nil)
	assert.Equal(t, "https://washday.example", w.Header().Get("Access-Control-Allow-Origin"))
}
