package utils

import (
	"crypto/rand"
	"encoding/base64"
	"log"

	"github.com/google/uuid"
)

// GenerateSessionID creates the id that groups every event a visitor sends
// during one page session.
func GenerateSessionID() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		log.Printf("ERROR: Failed to generate random bytes for session ID: %v", err)
		return "session_" + uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
