package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/keyfold/wallet-custody-backend/cryptoutils"
	"github.com/keyfold/wallet-custody-backend/interfaces"
	"github.com/keyfold/wallet-custody-backend/splitter"
)

// combineShares is swappable in tests to observe reconstructed key material.
var combineShares = splitter.Combine

// Config carries the collaborators of a custody manager. Recovery is
// optional; when set it receives lifecycle updates as a recovery progresses.
type Config struct {
	DeviceStore interfaces.ShareStore
	ServerStore interfaces.ShareStore
	Wallets     interfaces.WalletStore
	Codec       interfaces.TransactionCodec
	Recovery    interfaces.RecoveryObserver
	KDFVersion  interfaces.KDFVersion
	Log         *slog.Logger
}

// Manager orchestrates wallet creation, signing, and recovery over the share
// stores. All operations require a live session and serialize per wallet, so
// a sign racing a recovery always observes a consistent share generation.
type Manager struct {
	device     interfaces.ShareStore
	server     interfaces.ShareStore
	wallets    interfaces.WalletStore
	codec      interfaces.TransactionCodec
	recovery   interfaces.RecoveryObserver
	kdfVersion interfaces.KDFVersion
	log        *slog.Logger

	mu          sync.Mutex
	walletLocks map[interfaces.WalletID]*sync.Mutex
}

// NewManager creates a custody manager. KDFVersion selects how new shares are
// sealed; existing shares decrypt with their stored parameters regardless.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.DeviceStore == nil || cfg.ServerStore == nil || cfg.Wallets == nil {
		return nil, errors.New("custody manager requires device, server, and wallet stores")
	}
	if cfg.KDFVersion == 0 {
		cfg.KDFVersion = interfaces.KDFArgon2id
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	return &Manager{
		device:      cfg.DeviceStore,
		server:      cfg.ServerStore,
		wallets:     cfg.Wallets,
		codec:       cfg.Codec,
		recovery:    cfg.Recovery,
		kdfVersion:  cfg.KDFVersion,
		log:         cfg.Log,
		walletLocks: make(map[interfaces.WalletID]*sync.Mutex),
	}, nil
}

// CreateWalletResult is returned once per wallet creation. The recovery code
// is shown to the user here and never persisted.
type CreateWalletResult struct {
	WalletID     interfaces.WalletID
	Address      common.Address
	KeyID        interfaces.KeyID
	RecoveryCode string
	CreatedAt    time.Time
}

// CreateWallet generates a fresh secp256k1 key, splits it into three shares,
// seals the device and server shares under the PIN, and hands the recovery
// share back inside a checksummed recovery code. The private key and all
// plaintext shares are wiped before returning.
func (m *Manager) CreateWallet(ctx context.Context, session *interfaces.Session, pin []byte) (*CreateWalletResult, error) {
	if err := m.requireSession(session); err != nil {
		return nil, err
	}
	if len(pin) == 0 {
		return nil, fmt.Errorf("%w: empty PIN", interfaces.ErrCrypto)
	}

	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: key generation failed: %v", interfaces.ErrCrypto, err)
	}
	rawKey := ethcrypto.FromECDSA(priv)
	priv.D.SetInt64(0)
	defer cryptoutils.Wipe(rawKey)

	address := ethcrypto.PubkeyToAddress(priv.PublicKey)
	walletID := interfaces.NewWalletID()
	keyID := interfaces.NewKeyID()

	shares, err := splitter.Split(rawKey, keyID)
	if err != nil {
		return nil, err
	}
	defer wipeShares(shares)

	recoverySecret, err := cryptoutils.RandomBytes(cryptoutils.RecoverySecretSize)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate recovery secret: %v", interfaces.ErrCrypto, err)
	}
	defer cryptoutils.Wipe(recoverySecret)

	recoveryCode, err := cryptoutils.EncodeRecoveryCode(shares[interfaces.SlotRecovery-1], recoverySecret)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode recovery code: %v", interfaces.ErrCrypto, err)
	}

	now := time.Now().UTC()
	deviceRecord, err := m.sealRecord(walletID, keyID, interfaces.SlotDevice, shares[interfaces.SlotDevice-1], pin, nil, now)
	if err != nil {
		return nil, err
	}
	serverRecord, err := m.sealRecord(walletID, keyID, interfaces.SlotServer, shares[interfaces.SlotServer-1], pin, recoverySecret, now)
	if err != nil {
		return nil, err
	}

	if err := m.server.Put(ctx, walletID, serverRecord); err != nil {
		return nil, fmt.Errorf("failed to store server share: %w", err)
	}
	if err := m.device.Put(ctx, walletID, deviceRecord); err != nil {
		// Roll back so a half-created wallet does not linger.
		if delErr := m.server.Delete(ctx, walletID); delErr != nil {
			m.log.Error("rollback of server share failed", "wallet", walletID, "err", delErr)
		}
		return nil, fmt.Errorf("failed to store device share: %w", err)
	}

	walletRecord := &interfaces.WalletRecord{
		WalletID:      walletID,
		PublicAddress: address,
		KeyID:         keyID,
		CreatedAt:     now,
	}
	if err := m.wallets.Put(ctx, walletRecord); err != nil {
		// Roll back both share records so nothing orphaned remains.
		if delErr := m.device.Delete(ctx, walletID); delErr != nil {
			m.log.Error("rollback of device share failed", "wallet", walletID, "err", delErr)
		}
		if delErr := m.server.Delete(ctx, walletID); delErr != nil {
			m.log.Error("rollback of server share failed", "wallet", walletID, "err", delErr)
		}
		return nil, fmt.Errorf("failed to store wallet record: %w", err)
	}

	m.log.Info("wallet created",
		"wallet", walletID,
		"address", address.Hex(),
		"device_store", m.device.Name(),
		"server_store", m.server.Name(),
	)

	return &CreateWalletResult{
		WalletID:     walletID,
		Address:      address,
		KeyID:        keyID,
		RecoveryCode: recoveryCode,
		CreatedAt:    now,
	}, nil
}

// SignResult carries one signature over one digest.
type SignResult struct {
	Signature []byte
	Digest    []byte
	Address   common.Address
}

// Sign reconstructs the private key from the PIN-unsealed device and server
// shares, signs the request's digest, and wipes the key. A stale device share
// left over from a pre-recovery generation surfaces as ErrShareUnavailable,
// steering the caller to the recovery flow rather than a confusing PIN error.
func (m *Manager) Sign(ctx context.Context, session *interfaces.Session, walletID interfaces.WalletID, pin []byte, req *interfaces.SignRequest) (*SignResult, error) {
	if err := m.requireSession(session); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lock := m.walletLock(walletID)
	lock.Lock()
	defer lock.Unlock()

	wallet, err := m.wallets.Get(ctx, walletID)
	if err != nil {
		return nil, err
	}

	deviceRecord, err := m.device.Get(ctx, walletID)
	if err != nil {
		return nil, err
	}
	serverRecord, err := m.server.Get(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if deviceRecord.KeyID != wallet.KeyID || serverRecord.KeyID != wallet.KeyID {
		return nil, fmt.Errorf("%w: share generation %s superseded", interfaces.ErrShareUnavailable, deviceRecord.KeyID)
	}

	deviceShare, err := m.openShare(&deviceRecord.PIN, pin, deviceRecord)
	if err != nil {
		return nil, err
	}
	defer deviceShare.Wipe()

	serverShare, err := m.openShare(&serverRecord.PIN, pin, serverRecord)
	if err != nil {
		return nil, err
	}
	defer serverShare.Wipe()

	rawKey, err := combineShares([]*interfaces.Share{deviceShare, serverShare})
	if err != nil {
		return nil, err
	}
	defer cryptoutils.Wipe(rawKey)

	digest, err := signingDigest(req, m.codec)
	if err != nil {
		return nil, err
	}

	signature, address, err := signDigest(rawKey, digest)
	if err != nil {
		return nil, err
	}
	if address != wallet.PublicAddress {
		return nil, fmt.Errorf("%w: reconstructed key does not match wallet address", interfaces.ErrShareCorrupted)
	}

	m.log.Info("payload signed", "wallet", walletID, "kind", req.Kind)

	return &SignResult{Signature: signature, Digest: digest, Address: address}, nil
}

// RecoverResult is returned after a successful new-device recovery. The old
// recovery code is now useless; the new one replaces it.
type RecoverResult struct {
	WalletID     interfaces.WalletID
	Address      common.Address
	KeyID        interfaces.KeyID
	RecoveryCode string
}

// Recover rebuilds the private key from the user's recovery code and the
// recovery-sealed server share, then re-splits it under a fresh key
// generation with a new PIN. Old shares stop combining with new ones the
// moment the wallet record's key generation advances.
func (m *Manager) Recover(ctx context.Context, session *interfaces.Session, walletID interfaces.WalletID, recoveryCode string, newPIN []byte) (*RecoverResult, error) {
	if err := m.requireSession(session); err != nil {
		return nil, err
	}
	if len(newPIN) == 0 {
		return nil, fmt.Errorf("%w: empty PIN", interfaces.ErrCrypto)
	}

	lock := m.walletLock(walletID)
	lock.Lock()
	defer lock.Unlock()

	recoveryShare, recoverySecret, err := cryptoutils.DecodeRecoveryCode(recoveryCode)
	if err != nil {
		return nil, err
	}
	defer recoveryShare.Wipe()
	defer cryptoutils.Wipe(recoverySecret)

	wallet, err := m.wallets.Get(ctx, walletID)
	if err != nil {
		return nil, err
	}

	oldServerRecord, err := m.server.Get(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if oldServerRecord.KeyID != wallet.KeyID {
		return nil, fmt.Errorf("%w: server share generation out of date", interfaces.ErrShareUnavailable)
	}
	if oldServerRecord.Recovery == nil {
		return nil, fmt.Errorf("%w: server share has no recovery seal", interfaces.ErrShareCorrupted)
	}

	serverShare, err := m.openShare(oldServerRecord.Recovery, recoverySecret, oldServerRecord)
	if err != nil {
		if errors.Is(err, interfaces.ErrInvalidPin) {
			return nil, fmt.Errorf("%w: recovery secret rejected", interfaces.ErrInvalidRecoveryCode)
		}
		return nil, err
	}
	defer serverShare.Wipe()

	// The code carries no generation metadata; it inherits the server
	// share's, and the address check below catches any cross-wallet code.
	recoveryShare.KeyID = serverShare.KeyID
	recoveryShare.CreatedAt = serverShare.CreatedAt

	rawKey, err := combineShares([]*interfaces.Share{serverShare, recoveryShare})
	if err != nil {
		if errors.Is(err, interfaces.ErrDuplicateIndex) {
			return nil, fmt.Errorf("%w: share index collision", interfaces.ErrInvalidRecoveryCode)
		}
		return nil, err
	}
	defer cryptoutils.Wipe(rawKey)
	m.noteRecovery(walletID, interfaces.RecoverySharesCombined)

	address, err := keyAddress(rawKey)
	if err != nil {
		return nil, err
	}
	if address != wallet.PublicAddress {
		return nil, fmt.Errorf("%w: code does not belong to this wallet", interfaces.ErrInvalidRecoveryCode)
	}

	newKeyID := interfaces.NewKeyID()
	shares, err := splitter.Split(rawKey, newKeyID)
	if err != nil {
		return nil, err
	}
	defer wipeShares(shares)

	newRecoverySecret, err := cryptoutils.RandomBytes(cryptoutils.RecoverySecretSize)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate recovery secret: %v", interfaces.ErrCrypto, err)
	}
	defer cryptoutils.Wipe(newRecoverySecret)

	newRecoveryCode, err := cryptoutils.EncodeRecoveryCode(shares[interfaces.SlotRecovery-1], newRecoverySecret)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode recovery code: %v", interfaces.ErrCrypto, err)
	}

	now := time.Now().UTC()
	newDeviceRecord, err := m.sealRecord(walletID, newKeyID, interfaces.SlotDevice, shares[interfaces.SlotDevice-1], newPIN, nil, now)
	if err != nil {
		return nil, err
	}
	newServerRecord, err := m.sealRecord(walletID, newKeyID, interfaces.SlotServer, shares[interfaces.SlotServer-1], newPIN, newRecoverySecret, now)
	if err != nil {
		return nil, err
	}

	// The old device record, if any, is kept so a failed replacement can be
	// rolled back. A lost or corrupted device share leaves nothing to restore.
	oldDeviceRecord, err := m.device.Get(ctx, walletID)
	if err != nil {
		oldDeviceRecord = nil
	}

	if err := m.server.Put(ctx, walletID, newServerRecord); err != nil {
		return nil, fmt.Errorf("failed to store new server share: %w", err)
	}
	if err := m.device.Put(ctx, walletID, newDeviceRecord); err != nil {
		// Restore the previous server record so the old recovery code
		// keeps working; otherwise the wallet would be unrecoverable.
		if restoreErr := m.server.Put(ctx, walletID, oldServerRecord); restoreErr != nil {
			m.log.Error("rollback of server share failed during recovery",
				"wallet", walletID, "err", restoreErr)
		}
		return nil, fmt.Errorf("failed to store new device share: %w", err)
	}
	m.noteRecovery(walletID, interfaces.RecoveryShareIssued)

	wallet.KeyID = newKeyID
	if err := m.wallets.Put(ctx, wallet); err != nil {
		// Without the wallet record update the new shares are a superseded
		// generation; restore the old records so the wallet stays usable.
		m.rollbackRecovery(ctx, walletID, oldServerRecord, oldDeviceRecord)
		return nil, fmt.Errorf("failed to update wallet record: %w", err)
	}

	m.log.Info("wallet recovered", "wallet", walletID, "address", address.Hex())

	return &RecoverResult{
		WalletID:     walletID,
		Address:      address,
		KeyID:        newKeyID,
		RecoveryCode: newRecoveryCode,
	}, nil
}

// rollbackRecovery restores the pre-recovery share records after a failed
// replacement, so the old PIN and old recovery code keep working.
func (m *Manager) rollbackRecovery(ctx context.Context, walletID interfaces.WalletID, oldServer, oldDevice *interfaces.ShareRecord) {
	if err := m.server.Put(ctx, walletID, oldServer); err != nil {
		m.log.Error("rollback of server share failed during recovery", "wallet", walletID, "err", err)
	}
	if oldDevice == nil {
		if err := m.device.Delete(ctx, walletID); err != nil {
			m.log.Error("rollback of device share failed during recovery", "wallet", walletID, "err", err)
		}
		return
	}
	if err := m.device.Put(ctx, walletID, oldDevice); err != nil {
		m.log.Error("rollback of device share failed during recovery", "wallet", walletID, "err", err)
	}
}

func (m *Manager) noteRecovery(walletID interfaces.WalletID, status interfaces.RecoveryStatus) {
	if m.recovery != nil {
		m.recovery.Advance(walletID, status)
	}
}

// Wallet returns the public record for a wallet.
func (m *Manager) Wallet(ctx context.Context, walletID interfaces.WalletID) (*interfaces.WalletRecord, error) {
	return m.wallets.Get(ctx, walletID)
}

// sealRecord seals one share into its persisted record form. When a recovery
// secret is supplied (server slot only) a second seal of the same share under
// that secret is attached.
func (m *Manager) sealRecord(walletID interfaces.WalletID, keyID interfaces.KeyID, slot interfaces.ShareSlot, share *interfaces.Share, pin, recoverySecret []byte, now time.Time) (*interfaces.ShareRecord, error) {
	pinSeal, err := m.seal(share.Value, pin)
	if err != nil {
		return nil, err
	}

	record := &interfaces.ShareRecord{
		WalletID:  walletID,
		KeyID:     keyID,
		Slot:      slot,
		CreatedAt: now,
		PIN:       *pinSeal,
	}

	if recoverySecret != nil {
		recoverySeal, err := m.seal(share.Value, recoverySecret)
		if err != nil {
			return nil, err
		}
		record.Recovery = recoverySeal
	}
	return record, nil
}

// seal encrypts share material under a key derived from a low-entropy secret.
func (m *Manager) seal(value, secret []byte) (*interfaces.EncryptedShare, error) {
	params, err := cryptoutils.NewKDFParams(m.kdfVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrCrypto, err)
	}

	key, err := cryptoutils.DeriveKey(secret, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrCrypto, err)
	}
	defer cryptoutils.Wipe(key)

	ciphertext, nonce, tag, err := cryptoutils.Encrypt(value, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrCrypto, err)
	}

	return &interfaces.EncryptedShare{
		Ciphertext: ciphertext,
		Nonce:      nonce,
		Tag:        tag,
		KDF:        params,
	}, nil
}

// openShare decrypts one sealed share with the stored derivation parameters.
// An authentication failure maps to ErrInvalidPin with no hint about which
// share or store failed.
func (m *Manager) openShare(sealed *interfaces.EncryptedShare, secret []byte, record *interfaces.ShareRecord) (*interfaces.Share, error) {
	key, err := cryptoutils.DeriveKey(secret, sealed.KDF)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrCrypto, err)
	}
	defer cryptoutils.Wipe(key)

	value, err := cryptoutils.Decrypt(sealed.Ciphertext, sealed.Nonce, sealed.Tag, key)
	if err != nil {
		if errors.Is(err, cryptoutils.ErrAuthentication) {
			return nil, interfaces.ErrInvalidPin
		}
		return nil, fmt.Errorf("%w: %v", interfaces.ErrCrypto, err)
	}

	return &interfaces.Share{
		Index:     int(record.Slot),
		Value:     value,
		KeyID:     record.KeyID,
		CreatedAt: record.CreatedAt,
	}, nil
}

func (m *Manager) requireSession(session *interfaces.Session) error {
	if session == nil {
		return interfaces.ErrSessionRevoked
	}
	if session.Expired(time.Now()) {
		return interfaces.ErrSessionExpired
	}
	return nil
}

// walletLock returns the mutex serializing operations on one wallet. Entries
// are never removed: the map holds one bare mutex per wallet this process has
// touched, and eviction would need refcounting to avoid freeing a held lock.
func (m *Manager) walletLock(walletID interfaces.WalletID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.walletLocks[walletID]
	if !ok {
		lock = &sync.Mutex{}
		m.walletLocks[walletID] = lock
	}
	return lock
}

func wipeShares(shares []*interfaces.Share) {
	for _, s := range shares {
		if s != nil {
			s.Wipe()
		}
	}
}
