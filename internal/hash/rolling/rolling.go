// Package rolling provides a fast non-cryptographic hash for chunk dedup.
package rolling

import "fmt"

const (
	offset64 = 1469598103934665603
	prime64  = 1099511628211
)

// Hasher implements ingest.Hasher using a 64-bit FNV-1a style rolling hash.
// It identifies duplicate chunks cheaply; it is not collision resistant and
// must not be used for integrity checks.
type Hasher struct{}

// New returns a rolling hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a fixed-width hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	var sum uint64 = offset64
	for _, b := range data {
		sum ^= uint64(b)
		sum *= prime64
	}
	return fmt.Sprintf("%016x", sum), nil
}
