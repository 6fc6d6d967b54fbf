package utils

import (
	"fmt"
	"os"
	"time"

	"washday/api/models"

	"github.com/golang-jwt/jwt/v5"
)

// ActorClaims carries the actor info the site attaches to analytics events.
// We embed jwt.RegisteredClaims to include standard JWT fields like Issuer, Subject, ExpiresAt etc.
type ActorClaims struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

const actorTokenIssuer = "washday-api"

func jwtSecret() []byte {
	return []byte(os.Getenv("JWT_SECRET_KEY"))
}

// GenerateActorToken signs a short-lived token describing the given actor.
func GenerateActorToken(actor models.Actor, ttl time.Duration) (string, error) {
	if actor.ID == "" {
		return "", fmt.Errorf("actor id cannot be empty")
	}
	now := time.Now()

	claims := &ActorClaims{
		Name:  actor.Name,
		Phone: actor.Phone,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    actorTokenIssuer,
			Subject:   actor.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(jwtSecret())
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateActorToken parses and validates an actor token string.
func ValidateActorToken(tokenString string) (models.Actor, error) {
	claims := &ActorClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret(), nil
	}, jwt.WithIssuer(actorTokenIssuer))

	if err != nil {
		return models.Actor{}, fmt.Errorf("invalid token: %w", err)
	}

	if !token.Valid {
		return models.Actor{}, fmt.Errorf("token is not valid")
	}

	return models.Actor{ID: claims.Subject, Name: claims.Name, Phone: claims.Phone}, nil
}
