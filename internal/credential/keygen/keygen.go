// Package keygen mints credential plaintexts. Generation draws from
// crypto/rand; callers pair it with a hash-existence check to guarantee
// store-wide uniqueness.
package keygen

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/cyvote/backend-cyvote-sub001/pkg/hashutil"
)

// Alphabet is the 36-symbol credential alphabet. Uppercase only: hashing
// canonicalizes case anyway, and uppercase reads unambiguously in mail.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ErrExhausted is returned when every generation attempt collided.
var ErrExhausted = fmt.Errorf("credential generation attempts exhausted")

// Generate returns a random plaintext of the given length.
func Generate(length int) (string, error) {
	max := big.NewInt(int64(len(Alphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate credential: %w", err)
		}
		buf[i] = Alphabet[n.Int64()]
	}
	return string(buf), nil
}

// ExistsFunc reports whether a hash is already present in storage.
type ExistsFunc func(ctx context.Context, hash string) (bool, error)

// Mint generates a plaintext whose hash does not collide with any stored
// credential, retrying up to maxAttempts times. Returns the plaintext and its
// hash; exhausting attempts returns ErrExhausted.
func Mint(ctx context.Context, length, maxAttempts int, exists ExistsFunc) (string, string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		plaintext, err := Generate(length)
		if err != nil {
			return "", "", err
		}
		hash := hashutil.CredentialHash(plaintext)

		taken, err := exists(ctx, hash)
		if err != nil {
			return "", "", err
		}
		if !taken {
			return plaintext, hash, nil
		}
	}
	return "", "", ErrExhausted
}
