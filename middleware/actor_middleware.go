package middleware

import (
	"crypto/subtle"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"washday/api/models"
	"washday/api/utils"
)

const actorContextKey = "actor"

// CollectorKey rejects requests whose X-API-KEY does not match AUTH_DEFAULT.
// When AUTH_DEFAULT is unset the collector is open.
func CollectorKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := os.Getenv("AUTH_DEFAULT")
		if expected == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-API-KEY")
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			log.Printf("CollectorKey: rejected request from %s", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: invalid API key"})
			return
		}
		c.Next()
	}
}

// OptionalActor attaches the actor from a bearer token or actor_token cookie
// when one is present and valid. It never rejects a request.
func OptionalActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := c.Cookie("actor_token")
		if err != nil || tokenString == "" {
			tokenString = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if tokenString == "" {
			c.Next()
			return
		}

		actor, err := utils.ValidateActorToken(tokenString)
		if err != nil {
			log.Printf("OptionalActor: ignoring invalid actor token: %v", err)
			c.Next()
			return
		}
		c.Set(actorContextKey, actor)
		c.Next()
	}
}

// ActorFromContext returns the actor OptionalActor stored, if any.
func ActorFromContext(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(actorContextKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}
