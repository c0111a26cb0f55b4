// Package slug generates short YouTube-style identifiers used as public IDs
// for listings (11 chars) and profiles (8 chars).
package slug

import (
	"crypto/rand"
	"math/big"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Lengths for the two slug kinds.
const (
	ListingLen = 11
	ProfileLen = 8
)

// New returns a random identifier of n characters drawn from [a-zA-Z0-9].
func New(n int) string {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken;
			// fall back to a fixed character rather than panic mid-request.
			b[i] = alphabet[0]
			continue
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b)
}
