package keygen

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	plaintext, err := Generate(8)
	require.NoError(t, err)
	assert.Len(t, plaintext, 8)
	for _, r := range plaintext {
		assert.True(t, strings.ContainsRune(Alphabet, r), "unexpected symbol %q", r)
	}
}

func TestMint(t *testing.T) {
	ctx := context.Background()

	t.Run("returns first non-colliding candidate", func(t *testing.T) {
		calls := 0
		plaintext, hash, err := Mint(ctx, 8, 10, func(context.Context, string) (bool, error) {
			calls++
			return calls < 3, nil // first two candidates collide
		})
		require.NoError(t, err)
		assert.Len(t, plaintext, 8)
		assert.Len(t, hash, 64)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausts attempts when everything collides", func(t *testing.T) {
		calls := 0
		_, _, err := Mint(ctx, 8, 10, func(context.Context, string) (bool, error) {
			calls++
			return true, nil
		})
		assert.ErrorIs(t, err, ErrExhausted)
		assert.Equal(t, 10, calls)
	})

	t.Run("store errors surface immediately", func(t *testing.T) {
		_, _, err := Mint(ctx, 8, 10, func(context.Context, string) (bool, error) {
			return false, assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)
	})
}
