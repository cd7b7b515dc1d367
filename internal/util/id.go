package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random 20-byte hex document id.
func NewID() string {
	bytes := make([]byte, 20)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
