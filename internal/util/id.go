package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns prefix_<20 hex chars>, or just the hex when prefix is empty.
func NewID(prefix string) string {
	bytes := make([]byte, 10)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
