package sharestore

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/keyfold/wallet-custody-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRecord(walletID interfaces.WalletID) *interfaces.ShareRecord {
	return &interfaces.ShareRecord{
		WalletID:  walletID,
		KeyID:     interfaces.NewKeyID(),
		Slot:      interfaces.SlotDevice,
		CreatedAt: time.Now().UTC(),
		PIN: interfaces.EncryptedShare{
			Ciphertext: []byte{1, 2, 3, 4},
			Nonce:      make([]byte, 12),
			Tag:        make([]byte, 16),
			KDF: interfaces.KDFParams{
				Version: interfaces.KDFArgon2id,
				Salt:    []byte{5, 6, 7, 8},
				Time:    1, MemoryKiB: 64, Threads: 4,
			},
		},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), interfaces.SlotDevice, testLogger())
	require.NoError(t, err, "NewFileStore should succeed")

	ctx := context.Background()
	walletID := interfaces.NewWalletID()
	record := testRecord(walletID)

	require.NoError(t, store.Put(ctx, walletID, record), "Put should succeed")

	fetched, err := store.Get(ctx, walletID)
	require.NoError(t, err, "Get should succeed")
	assert.Equal(t, record.KeyID, fetched.KeyID, "Key generation should round-trip")
	assert.Equal(t, record.PIN.Ciphertext, fetched.PIN.Ciphertext, "Sealed share should round-trip")
	assert.Equal(t, record.PIN.KDF.Version, fetched.PIN.KDF.Version, "KDF params should round-trip")
}

func TestFileStoreMissingShare(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), interfaces.SlotDevice, testLogger())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), interfaces.NewWalletID())
	assert.ErrorIs(t, err, interfaces.ErrShareUnavailable, "Missing record must be distinguishable from corruption")
}

func TestFileStoreCorruptedShare(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, interfaces.SlotDevice, testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	walletID := interfaces.NewWalletID()
	require.NoError(t, store.Put(ctx, walletID, testRecord(walletID)))

	// Flip bytes in the stored file behind the store's back.
	path := filepath.Join(dir, "device", walletID.String()+".json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)/2] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0600))

	_, err = store.Get(ctx, walletID)
	assert.ErrorIs(t, err, interfaces.ErrShareCorrupted, "Tampered record must surface as corruption, not absence")
}

func TestFileStoreDeleteIdempotent(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), interfaces.SlotDevice, testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	walletID := interfaces.NewWalletID()
	require.NoError(t, store.Put(ctx, walletID, testRecord(walletID)))

	require.NoError(t, store.Delete(ctx, walletID), "Delete should succeed")
	require.NoError(t, store.Delete(ctx, walletID), "Deleting a missing record is not an error")

	_, err = store.Get(ctx, walletID)
	assert.ErrorIs(t, err, interfaces.ErrShareUnavailable)
}

func TestMemoryStoreBehavesLikeFileStore(t *testing.T) {
	store := NewMemoryStore(interfaces.SlotServer)
	ctx := context.Background()
	walletID := interfaces.NewWalletID()

	_, err := store.Get(ctx, walletID)
	assert.ErrorIs(t, err, interfaces.ErrShareUnavailable)

	record := testRecord(walletID)
	record.Slot = interfaces.SlotServer
	require.NoError(t, store.Put(ctx, walletID, record))

	fetched, err := store.Get(ctx, walletID)
	require.NoError(t, err)
	assert.Equal(t, record.PIN.Ciphertext, fetched.PIN.Ciphertext)

	require.True(t, store.Corrupt(walletID), "Corrupt helper should find the record")
	_, err = store.Get(ctx, walletID)
	assert.ErrorIs(t, err, interfaces.ErrShareCorrupted, "Corrupted record must be detected")

	require.NoError(t, store.Delete(ctx, walletID))
	_, err = store.Get(ctx, walletID)
	assert.ErrorIs(t, err, interfaces.ErrShareUnavailable)
}

func TestWalletStoreRoundTrip(t *testing.T) {
	fileStore, err := NewFileWalletStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	for _, store := range []interfaces.WalletStore{fileStore, NewMemoryWalletStore()} {
		ctx := context.Background()
		record := &interfaces.WalletRecord{
			WalletID:  interfaces.NewWalletID(),
			KeyID:     interfaces.NewKeyID(),
			CreatedAt: time.Now().UTC(),
		}

		_, err := store.Get(ctx, record.WalletID)
		assert.ErrorIs(t, err, interfaces.ErrWalletNotFound, "Unknown wallet should be reported as such")

		require.NoError(t, store.Put(ctx, record), "Put should succeed")

		fetched, err := store.Get(ctx, record.WalletID)
		require.NoError(t, err, "Get should succeed")
		assert.Equal(t, record.KeyID, fetched.KeyID)

		require.NoError(t, store.Delete(ctx, record.WalletID))
		_, err = store.Get(ctx, record.WalletID)
		assert.ErrorIs(t, err, interfaces.ErrWalletNotFound)
	}
}
