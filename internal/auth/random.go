package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// OpaqueTokenBytes is the entropy of an opaque token before hex encoding.
// 40 bytes yields an 80-character value; guessing one is not a realistic
// attack surface.
const OpaqueTokenBytes = 40

// GenerateOpaqueToken returns a fresh random token value. Uniqueness is not
// checked here: the probability of a collision is negligible and the store's
// primary key rejects one if it ever happens.
func GenerateOpaqueToken() (string, error) {
	bytes := make([]byte, OpaqueTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
