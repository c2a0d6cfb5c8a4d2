package usecase

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tokenBytes is the entropy of generated instrument tokens and tenant API
// keys. 32 bytes yields a 43-character URL-safe string.
const tokenBytes = 32

// newOpaqueToken returns a cryptographically random, URL-safe token.
func newOpaqueToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("op=token.generate: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
