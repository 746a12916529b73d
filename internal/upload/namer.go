// Package upload turns an incoming file into a stored object under a fresh,
// unguessable key.
package upload

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Alphabet is the set of characters used for random segments.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultSegmentLength gives 62^6 (about 5.6e10) possible segments.
const DefaultSegmentLength = 6

// Namer generates random path segments. The segment is the only secret part
// of a share URL, so it is drawn from crypto/rand.
type Namer struct {
	length int
}

// NewNamer returns a Namer producing segments of length characters.
func NewNamer(length int) (*Namer, error) {
	if length < 1 {
		return nil, fmt.Errorf("segment length must be positive, got %d", length)
	}
	return &Namer{length: length}, nil
}

// Generate returns a new random segment.
func (n *Namer) Generate() (string, error) {
	size := big.NewInt(int64(len(Alphabet)))
	b := make([]byte, n.length)
	for i := range b {
		idx, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		b[i] = Alphabet[idx.Int64()]
	}
	return string(b), nil
}
