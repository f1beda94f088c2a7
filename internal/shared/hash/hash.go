// Package hash provides content fingerprinting for filesystem nodes.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Algorithm identifies the hashing algorithm in use.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
)

// Hasher computes node signatures with a fixed algorithm.
type Hasher struct {
	algorithm Algorithm
}

// New creates a hasher with the specified algorithm.
func New(algorithm Algorithm) *Hasher {
	return &Hasher{algorithm: algorithm}
}

// Default returns a hasher with the default algorithm.
func Default() *Hasher {
	return New(SHA256)
}

// Sum computes the hex-encoded digest of data.
func (h *Hasher) Sum(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// SumChildren computes a deterministic digest of a directory's child names.
// Names are sorted so insertion order never changes the signature.
func (h *Hasher) SumChildren(names []string) string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	return h.Sum([]byte(strings.Join(sorted, "\x00")))
}
