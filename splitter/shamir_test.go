package splitter

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/keyfold/wallet-custody-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSecret(t *testing.T) []byte {
	t.Helper()
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err, "Failed to generate test secret")
	return secret
}

func TestSplitProducesThreeIndexedShares(t *testing.T) {
	secret := randomSecret(t)
	keyID := interfaces.NewKeyID()

	shares, err := Split(secret, keyID)
	require.NoError(t, err, "Split should succeed")
	require.Len(t, shares, 3, "Should produce exactly three shares")

	for i, s := range shares {
		assert.Equal(t, i+1, s.Index, "Shares should be indexed 1..3")
		assert.Equal(t, keyID, s.KeyID, "All shares carry the split's key id")
		assert.Len(t, s.Value, len(secret)+1, "GF(256) share is one byte longer than the secret")
		assert.NotEqual(t, secret, s.Value[:len(secret)], "A share must not equal the secret")
	}
}

func TestCombineAnyTwoSharesYieldsIdenticalSecret(t *testing.T) {
	secret := randomSecret(t)
	shares, err := Split(secret, interfaces.NewKeyID())
	require.NoError(t, err)

	pairs := [][2]int{{0, 1}, {0, 2}, {1, 2}}
	for _, p := range pairs {
		recovered, err := Combine([]*interfaces.Share{shares[p[0]], shares[p[1]]})
		require.NoError(t, err, "Combine should succeed for pair %v", p)
		assert.True(t, bytes.Equal(secret, recovered), "Pair %v must reconstruct the exact secret", p)

		// Order independence.
		reversed, err := Combine([]*interfaces.Share{shares[p[1]], shares[p[0]]})
		require.NoError(t, err)
		assert.Equal(t, recovered, reversed, "Reconstruction must be order-independent")
	}

	all, err := Combine(shares)
	require.NoError(t, err, "Combining all three shares should also succeed")
	assert.Equal(t, secret, all)
}

func TestCombineInsufficientShares(t *testing.T) {
	shares, err := Split(randomSecret(t), interfaces.NewKeyID())
	require.NoError(t, err)

	_, err = Combine([]*interfaces.Share{shares[0]})
	assert.ErrorIs(t, err, interfaces.ErrInsufficientShares, "One share must not reconstruct")

	_, err = Combine(nil)
	assert.ErrorIs(t, err, interfaces.ErrInsufficientShares, "No shares must not reconstruct")

	_, err = Combine([]*interfaces.Share{shares[0], nil})
	assert.ErrorIs(t, err, interfaces.ErrInsufficientShares, "Nil shares are not counted")
}

func TestCombineDuplicateIndex(t *testing.T) {
	shares, err := Split(randomSecret(t), interfaces.NewKeyID())
	require.NoError(t, err)

	dup := &interfaces.Share{
		Index: shares[0].Index,
		Value: append([]byte(nil), shares[0].Value...),
		KeyID: shares[0].KeyID,
	}
	_, err = Combine([]*interfaces.Share{shares[0], dup})
	assert.ErrorIs(t, err, interfaces.ErrDuplicateIndex, "Duplicate indices must be rejected")
}

func TestCombineKeyGenerationMismatch(t *testing.T) {
	secret := randomSecret(t)
	oldShares, err := Split(secret, interfaces.NewKeyID())
	require.NoError(t, err)
	newShares, err := Split(secret, interfaces.NewKeyID())
	require.NoError(t, err)

	_, err = Combine([]*interfaces.Share{oldShares[0], newShares[1]})
	assert.ErrorIs(t, err, interfaces.ErrKeyMismatch, "Shares from different splits must not combine")
}

func TestSplitUsesFreshPolynomialPerInvocation(t *testing.T) {
	secret := randomSecret(t)
	keyID := interfaces.NewKeyID()

	first, err := Split(secret, keyID)
	require.NoError(t, err)
	second, err := Split(secret, keyID)
	require.NoError(t, err)

	// With fresh random coefficients the share material of two splits of
	// the same secret must differ.
	same := 0
	for i := range first {
		for j := range second {
			if bytes.Equal(first[i].Value, second[j].Value) {
				same++
			}
		}
	}
	assert.Zero(t, same, "Two splits of the same secret must not repeat share material")
}

func TestSingleShareLeaksNothingPredictable(t *testing.T) {
	// Statistical sanity check: a single share's data bytes should not be
	// biased toward the secret. Split a fixed secret many times and count
	// positions where the share byte equals the secret byte; for uniform
	// shares the match rate is ~1/256.
	secret := randomSecret(t)
	keyID := interfaces.NewKeyID()

	const rounds = 200
	matches, total := 0, 0
	for r := 0; r < rounds; r++ {
		shares, err := Split(secret, keyID)
		require.NoError(t, err)
		for i := 0; i < len(secret); i++ {
			if shares[0].Value[i] == secret[i] {
				matches++
			}
			total++
		}
	}

	rate := float64(matches) / float64(total)
	assert.Less(t, rate, 0.02, "Share bytes should match secret bytes at roughly the uniform 1/256 rate, got %f", rate)
}
