package custody

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/wallet-custody-backend/interfaces"
	"github.com/keyfold/wallet-custody-backend/sharestore"
)

type testFixture struct {
	manager *Manager
	device  *sharestore.MemoryStore
	server  *sharestore.MemoryStore
	wallets *sharestore.MemoryWalletStore
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()

	device := sharestore.NewMemoryStore(interfaces.SlotDevice)
	server := sharestore.NewMemoryStore(interfaces.SlotServer)
	wallets := sharestore.NewMemoryWalletStore()

	manager, err := NewManager(Config{
		DeviceStore: device,
		ServerStore: server,
		Wallets:     wallets,
		KDFVersion:  interfaces.KDFArgon2id,
		Log:         slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	})
	require.NoError(t, err)

	return &testFixture{manager: manager, device: device, server: server, wallets: wallets}
}

func liveSession() *interfaces.Session {
	now := time.Now().UTC()
	return &interfaces.Session{
		ID:        uuid.New().String(),
		UserID:    "user-1",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func expiredSession() *interfaces.Session {
	now := time.Now().UTC()
	return &interfaces.Session{
		ID:        uuid.New().String(),
		UserID:    "user-1",
		IssuedAt:  now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}
}

func hashRequest(payload string) *interfaces.SignRequest {
	return &interfaces.SignRequest{Kind: interfaces.PayloadHash, Data: ethcrypto.Keccak256([]byte(payload))}
}

func TestCreateWalletPersistsSealedShares(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	result, err := f.manager.CreateWallet(ctx, liveSession(), []byte("123456"))
	require.NoError(t, err, "CreateWallet should succeed")
	assert.NotEmpty(t, result.RecoveryCode, "A recovery code is issued exactly once")
	assert.NotZero(t, result.Address, "The wallet address is derived from the generated key")

	wallet, err := f.wallets.Get(ctx, result.WalletID)
	require.NoError(t, err)
	assert.Equal(t, result.Address, wallet.PublicAddress)
	assert.Equal(t, result.KeyID, wallet.KeyID)

	deviceRecord, err := f.device.Get(ctx, result.WalletID)
	require.NoError(t, err)
	assert.Nil(t, deviceRecord.Recovery, "Only the server share carries a recovery seal")
	assert.NotEmpty(t, deviceRecord.PIN.Ciphertext)

	serverRecord, err := f.server.Get(ctx, result.WalletID)
	require.NoError(t, err)
	require.NotNil(t, serverRecord.Recovery, "The server share is dual-sealed for the recovery path")
	assert.NotEqual(t, serverRecord.PIN.Nonce, serverRecord.Recovery.Nonce, "Each seal uses its own nonce")
}

func TestSignProducesVerifiableSignature(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	pin := []byte("123456")

	created, err := f.manager.CreateWallet(ctx, liveSession(), pin)
	require.NoError(t, err)

	req := hashRequest("transfer 1 eth")
	result, err := f.manager.Sign(ctx, liveSession(), created.WalletID, pin, req)
	require.NoError(t, err, "Signing with the correct PIN should succeed")
	assert.Equal(t, created.Address, result.Address)

	recovered, err := ethcrypto.SigToPub(result.Digest, result.Signature)
	require.NoError(t, err)
	assert.Equal(t, created.Address, ethcrypto.PubkeyToAddress(*recovered),
		"The reconstructed key must be the one generated at creation")
}

func TestSignPersonalMessage(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	pin := []byte("123456")

	created, err := f.manager.CreateWallet(ctx, liveSession(), pin)
	require.NoError(t, err)

	req := &interfaces.SignRequest{Kind: interfaces.PayloadPersonal, Data: []byte("login challenge")}
	result, err := f.manager.Sign(ctx, liveSession(), created.WalletID, pin, req)
	require.NoError(t, err)

	recovered, err := ethcrypto.SigToPub(result.Digest, result.Signature)
	require.NoError(t, err)
	assert.Equal(t, created.Address, ethcrypto.PubkeyToAddress(*recovered))
}

func TestSignRejectsWrongPin(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	created, err := f.manager.CreateWallet(ctx, liveSession(), []byte("123456"))
	require.NoError(t, err)

	_, err = f.manager.Sign(ctx, liveSession(), created.WalletID, []byte("654321"), hashRequest("x"))
	assert.ErrorIs(t, err, interfaces.ErrInvalidPin, "A wrong PIN fails AEAD authentication")
	assert.NotContains(t, err.Error(), "device", "The error must not reveal which share failed")
	assert.NotContains(t, err.Error(), "server", "The error must not reveal which share failed")
}

func TestOperationsRequireLiveSession(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	pin := []byte("123456")

	created, err := f.manager.CreateWallet(ctx, liveSession(), pin)
	require.NoError(t, err)

	_, err = f.manager.CreateWallet(ctx, nil, pin)
	assert.ErrorIs(t, err, interfaces.ErrSessionRevoked)

	_, err = f.manager.CreateWallet(ctx, expiredSession(), pin)
	assert.ErrorIs(t, err, interfaces.ErrSessionExpired)

	_, err = f.manager.Sign(ctx, expiredSession(), created.WalletID, pin, hashRequest("x"))
	assert.ErrorIs(t, err, interfaces.ErrSessionExpired)

	_, err = f.manager.Recover(ctx, expiredSession(), created.WalletID, created.RecoveryCode, pin)
	assert.ErrorIs(t, err, interfaces.ErrSessionExpired)
}

func TestSignUnknownWallet(t *testing.T) {
	f := newTestFixture(t)

	_, err := f.manager.Sign(context.Background(), liveSession(), interfaces.NewWalletID(), []byte("123456"), hashRequest("x"))
	assert.ErrorIs(t, err, interfaces.ErrWalletNotFound)
}

func TestSignMissingDeviceShare(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	pin := []byte("123456")

	created, err := f.manager.CreateWallet(ctx, liveSession(), pin)
	require.NoError(t, err)
	require.NoError(t, f.device.Delete(ctx, created.WalletID))

	_, err = f.manager.Sign(ctx, liveSession(), created.WalletID, pin, hashRequest("x"))
	assert.ErrorIs(t, err, interfaces.ErrShareUnavailable, "A lost device share routes to recovery, not a PIN error")
}

func TestSignCorruptedServerShare(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	pin := []byte("123456")

	created, err := f.manager.CreateWallet(ctx, liveSession(), pin)
	require.NoError(t, err)
	require.True(t, f.server.Corrupt(created.WalletID))

	_, err = f.manager.Sign(ctx, liveSession(), created.WalletID, pin, hashRequest("x"))
	assert.ErrorIs(t, err, interfaces.ErrShareCorrupted, "Tampering fails fast, distinct from absence")
}

func TestRecoverRotatesGeneration(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	oldPIN := []byte("123456")
	newPIN := []byte("999999")

	created, err := f.manager.CreateWallet(ctx, liveSession(), oldPIN)
	require.NoError(t, err)

	// Device lost: its share store entry is gone.
	require.NoError(t, f.device.Delete(ctx, created.WalletID))

	recovered, err := f.manager.Recover(ctx, liveSession(), created.WalletID, created.RecoveryCode, newPIN)
	require.NoError(t, err, "Recovery with a valid code should succeed")
	assert.Equal(t, created.Address, recovered.Address, "Recovery must preserve the wallet key")
	assert.NotEqual(t, created.KeyID, recovered.KeyID, "Recovery starts a new share generation")
	assert.NotEqual(t, created.RecoveryCode, recovered.RecoveryCode, "A fresh recovery code is issued")

	// The new device share signs with the new PIN.
	result, err := f.manager.Sign(ctx, liveSession(), created.WalletID, newPIN, hashRequest("post-recovery"))
	require.NoError(t, err)
	assert.Equal(t, created.Address, result.Address)

	// The old PIN no longer opens anything.
	_, err = f.manager.Sign(ctx, liveSession(), created.WalletID, oldPIN, hashRequest("x"))
	assert.ErrorIs(t, err, interfaces.ErrInvalidPin)

	// The consumed recovery code is dead.
	_, err = f.manager.Recover(ctx, liveSession(), created.WalletID, created.RecoveryCode, newPIN)
	assert.ErrorIs(t, err, interfaces.ErrInvalidRecoveryCode, "Old codes must not survive a recovery")

	// The replacement code works.
	_, err = f.manager.Recover(ctx, liveSession(), created.WalletID, recovered.RecoveryCode, []byte("111111"))
	assert.NoError(t, err, "The newly issued code must be usable")
}

func TestStaleDeviceShareDetected(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	pin := []byte("123456")

	created, err := f.manager.CreateWallet(ctx, liveSession(), pin)
	require.NoError(t, err)

	staleRecord, err := f.device.Get(ctx, created.WalletID)
	require.NoError(t, err)

	newPIN := []byte("999999")
	_, err = f.manager.Recover(ctx, liveSession(), created.WalletID, created.RecoveryCode, newPIN)
	require.NoError(t, err)

	// An out-of-date device restores its pre-recovery share.
	require.NoError(t, f.device.Put(ctx, created.WalletID, staleRecord))

	_, err = f.manager.Sign(ctx, liveSession(), created.WalletID, pin, hashRequest("x"))
	assert.ErrorIs(t, err, interfaces.ErrShareUnavailable,
		"A superseded share generation routes to recovery instead of combining garbage")
}

func TestRecoverRejectsInvalidCodes(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	pin := []byte("123456")

	created, err := f.manager.CreateWallet(ctx, liveSession(), pin)
	require.NoError(t, err)

	_, err = f.manager.Recover(ctx, liveSession(), created.WalletID, "NOT-A-CODE", pin)
	assert.ErrorIs(t, err, interfaces.ErrInvalidRecoveryCode)

	// A well-formed code for a different wallet fails its recovery seal.
	other, err := f.manager.CreateWallet(ctx, liveSession(), pin)
	require.NoError(t, err)

	_, err = f.manager.Recover(ctx, liveSession(), created.WalletID, other.RecoveryCode, pin)
	assert.ErrorIs(t, err, interfaces.ErrInvalidRecoveryCode, "Codes are bound to their wallet")
}

// flakyWalletStore fails the next Put on demand, remembering the wallet it
// refused so tests can inspect the share stores afterwards.
type flakyWalletStore struct {
	inner       interfaces.WalletStore
	failNextPut bool
	lastPutID   interfaces.WalletID
}

func (s *flakyWalletStore) Get(ctx context.Context, walletID interfaces.WalletID) (*interfaces.WalletRecord, error) {
	return s.inner.Get(ctx, walletID)
}

func (s *flakyWalletStore) Put(ctx context.Context, record *interfaces.WalletRecord) error {
	s.lastPutID = record.WalletID
	if s.failNextPut {
		s.failNextPut = false
		return errors.New("wallet store unavailable")
	}
	return s.inner.Put(ctx, record)
}

func (s *flakyWalletStore) Delete(ctx context.Context, walletID interfaces.WalletID) error {
	return s.inner.Delete(ctx, walletID)
}

type flakyFixture struct {
	manager *Manager
	device  *sharestore.MemoryStore
	server  *sharestore.MemoryStore
	wallets *flakyWalletStore
}

func newFlakyFixture(t *testing.T) *flakyFixture {
	t.Helper()

	device := sharestore.NewMemoryStore(interfaces.SlotDevice)
	server := sharestore.NewMemoryStore(interfaces.SlotServer)
	wallets := &flakyWalletStore{inner: sharestore.NewMemoryWalletStore()}

	manager, err := NewManager(Config{
		DeviceStore: device,
		ServerStore: server,
		Wallets:     wallets,
		Log:         slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	})
	require.NoError(t, err)

	return &flakyFixture{manager: manager, device: device, server: server, wallets: wallets}
}

func TestCreateWalletRollsBackOnWalletRecordFailure(t *testing.T) {
	f := newFlakyFixture(t)
	ctx := context.Background()

	f.wallets.failNextPut = true
	_, err := f.manager.CreateWallet(ctx, liveSession(), []byte("123456"))
	require.Error(t, err, "A failing wallet store must abort creation")

	walletID := f.wallets.lastPutID
	_, err = f.device.Get(ctx, walletID)
	assert.ErrorIs(t, err, interfaces.ErrShareUnavailable, "No orphaned device share may remain")
	_, err = f.server.Get(ctx, walletID)
	assert.ErrorIs(t, err, interfaces.ErrShareUnavailable, "No orphaned server share may remain")
}

func TestRecoverRollsBackOnWalletRecordFailure(t *testing.T) {
	f := newFlakyFixture(t)
	ctx := context.Background()
	oldPIN := []byte("123456")
	newPIN := []byte("999999")

	created, err := f.manager.CreateWallet(ctx, liveSession(), oldPIN)
	require.NoError(t, err)

	f.wallets.failNextPut = true
	_, err = f.manager.Recover(ctx, liveSession(), created.WalletID, created.RecoveryCode, newPIN)
	require.Error(t, err, "A failing wallet store must abort recovery")

	// Prior state must be untouched: the old PIN still signs...
	result, err := f.manager.Sign(ctx, liveSession(), created.WalletID, oldPIN, hashRequest("after failed recovery"))
	require.NoError(t, err, "The pre-recovery share generation must survive a failed recovery")
	assert.Equal(t, created.Address, result.Address)

	// ...the half-issued PIN does not...
	_, err = f.manager.Sign(ctx, liveSession(), created.WalletID, newPIN, hashRequest("x"))
	assert.ErrorIs(t, err, interfaces.ErrInvalidPin)

	// ...and the original recovery code still works.
	recovered, err := f.manager.Recover(ctx, liveSession(), created.WalletID, created.RecoveryCode, newPIN)
	require.NoError(t, err, "The original recovery code must survive a failed recovery")
	assert.Equal(t, created.Address, recovered.Address)
}

type recordingObserver struct {
	statuses []interfaces.RecoveryStatus
}

func (o *recordingObserver) Advance(_ interfaces.WalletID, status interfaces.RecoveryStatus) {
	o.statuses = append(o.statuses, status)
}

func TestRecoverReportsLifecycle(t *testing.T) {
	observer := &recordingObserver{}
	manager, err := NewManager(Config{
		DeviceStore: sharestore.NewMemoryStore(interfaces.SlotDevice),
		ServerStore: sharestore.NewMemoryStore(interfaces.SlotServer),
		Wallets:     sharestore.NewMemoryWalletStore(),
		Recovery:    observer,
		Log:         slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	})
	require.NoError(t, err)

	ctx := context.Background()
	created, err := manager.CreateWallet(ctx, liveSession(), []byte("123456"))
	require.NoError(t, err)

	_, err = manager.Recover(ctx, liveSession(), created.WalletID, created.RecoveryCode, []byte("999999"))
	require.NoError(t, err)

	assert.Equal(t,
		[]interfaces.RecoveryStatus{interfaces.RecoverySharesCombined, interfaces.RecoveryShareIssued},
		observer.statuses,
		"Recovery must report combine and share issuance in order")
}

func TestSignWipesKeyMaterial(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()
	pin := []byte("123456")

	created, err := f.manager.CreateWallet(ctx, liveSession(), pin)
	require.NoError(t, err)

	var capturedKey []byte
	var capturedShares []*interfaces.Share
	original := combineShares
	combineShares = func(shares []*interfaces.Share) ([]byte, error) {
		capturedShares = shares
		raw, err := original(shares)
		capturedKey = raw
		return raw, err
	}
	t.Cleanup(func() { combineShares = original })

	_, err = f.manager.Sign(ctx, liveSession(), created.WalletID, pin, hashRequest("x"))
	require.NoError(t, err)

	require.NotEmpty(t, capturedKey)
	assert.Equal(t, make([]byte, len(capturedKey)), capturedKey,
		"The reconstructed private key must be zeroed before Sign returns")
	for _, share := range capturedShares {
		assert.Equal(t, make([]byte, len(share.Value)), share.Value,
			"Plaintext shares must be zeroed before Sign returns")
	}
}
