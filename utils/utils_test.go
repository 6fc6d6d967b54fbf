package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"washday/api/models"
)

func TestIsValidInterval(t *testing.T) {
	assert.True(t, IsValidInterval("Day"))
	assert.True(t, IsValidInterval("Quarter"))
	assert.False(t, IsValidInterval("day"))
	assert.False(t, IsValidInterval("Day); DROP TABLE analytics_events"))
}

func TestNormalizePagePath(t *testing.T) {
	tests := map[string]string{
		"":                       "/",
		"/":                      "/",
		"services/wash-and-fold": "/services/wash-and-fold",
		"/pricing/":              "/pricing",
		" /pricing?utm=ad#faq ":  "/pricing",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePagePath(in), "input %q", in)
	}
}

func TestGenerateSessionIDUnique(t *testing.T) {
	a, b := GenerateSessionID(), GenerateSessionID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestActorTokenRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")

	want := models.Actor{ID: "42", Name: "Ada", Phone: "+15550100"}
	token, err := GenerateActorToken(want, time.Hour)
	require.NoError(t, err)

	got, err := ValidateActorToken(token)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestActorTokenRejected(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")

	_, err := GenerateActorToken(models.Actor{}, time.Hour)
	assert.Error(t, err)

	expired, err := GenerateActorToken(models.Actor{ID: "1"}, -time.Minute)
	require.NoError(t, err)
	_, err = ValidateActorToken(expired)
	assert.Error(t, err)

	token, err := GenerateActorToken(models.Actor{ID: "1"}, time.Hour)
	require.NoError(t, err)
	t.Setenv("JWT_SECRET_KEY", "rotated")
	_, err = ValidateActorToken(token)
	assert.Error(t, err)

	_, err = ValidateActorToken("not-a-token")
	assert.Error(t, err)
}
