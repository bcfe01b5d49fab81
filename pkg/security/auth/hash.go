package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// KeyPrefix starts every generated key.
const KeyPrefix = "lk-"

// HashKey returns the hex SHA-256 digest of key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// GenerateKey returns a new random key.
func GenerateKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(buf), nil
}
