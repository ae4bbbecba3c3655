// Package sha256 names crawl artifacts by content digest.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hasher implements crawler.Hasher.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex SHA-256 digest of data.
func (*Hasher) Hash(data []byte) (string, error) {
	h := sha256.New()
	if _, err := h.Write(data); err != nil {
		return "", fmt.Errorf("hash artifact: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
