package cryptoutils

import (
	"testing"

	"github.com/keyfold/wallet-custody-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	for _, version := range []interfaces.KDFVersion{interfaces.KDFPBKDF2, interfaces.KDFArgon2id} {
		params, err := NewKDFParams(version)
		require.NoError(t, err, "NewKDFParams should succeed for version %d", version)
		assert.Len(t, params.Salt, saltSize, "Salt should be generated")

		key1, err := DeriveKey([]byte("123456"), params)
		require.NoError(t, err, "DeriveKey should succeed")
		require.Len(t, key1, KeySize, "Derived key should be AES-256 sized")

		key2, err := DeriveKey([]byte("123456"), params)
		require.NoError(t, err)
		assert.Equal(t, key1, key2, "Same PIN and params must derive the same key")

		other, err := DeriveKey([]byte("654321"), params)
		require.NoError(t, err)
		assert.NotEqual(t, key1, other, "Different PINs must derive different keys")
	}
}

func TestDeriveKeySaltSeparation(t *testing.T) {
	params1, err := NewKDFParams(interfaces.KDFArgon2id)
	require.NoError(t, err)
	params2, err := NewKDFParams(interfaces.KDFArgon2id)
	require.NoError(t, err)

	key1, err := DeriveKey([]byte("123456"), params1)
	require.NoError(t, err)
	key2, err := DeriveKey([]byte("123456"), params2)
	require.NoError(t, err)

	assert.NotEqual(t, key1, key2, "Per-share salts must separate derived keys")
}

func TestDeriveKeyRejectsWeakenedParams(t *testing.T) {
	params, err := NewKDFParams(interfaces.KDFPBKDF2)
	require.NoError(t, err)
	params.Iterations = 1000

	_, err = DeriveKey([]byte("123456"), params)
	assert.Error(t, err, "Should refuse an iteration count below the floor")
}

func TestDeriveKeyRejectsMalformedInput(t *testing.T) {
	params, err := NewKDFParams(interfaces.KDFArgon2id)
	require.NoError(t, err)

	_, err = DeriveKey(nil, params)
	assert.Error(t, err, "Should reject an empty secret")

	params.Salt = nil
	_, err = DeriveKey([]byte("123456"), params)
	assert.Error(t, err, "Should reject a missing salt")

	_, err = NewKDFParams(interfaces.KDFVersion(99))
	assert.Error(t, err, "Should reject an unknown version")
}
