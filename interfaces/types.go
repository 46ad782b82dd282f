package interfaces

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// WalletID uniquely identifies a wallet. It is a UUID string and is safe to
// log and to use as a storage key.
type WalletID string

// NewWalletID generates a fresh random wallet identifier.
func NewWalletID() WalletID {
	return WalletID(uuid.Must(uuid.NewRandom()).String())
}

// ParseWalletID validates a wallet identifier received from an external caller.
func ParseWalletID(s string) (WalletID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid wallet id %q: %w", s, err)
	}
	return WalletID(id.String()), nil
}

func (id WalletID) String() string { return string(id) }

// KeyID identifies a key generation within a wallet. Every re-split during
// recovery produces a new KeyID, so shares from different generations can
// never be combined with each other.
type KeyID string

// NewKeyID generates a fresh key generation identifier.
func NewKeyID() KeyID {
	return KeyID(uuid.Must(uuid.NewRandom()).String())
}

func (id KeyID) String() string { return string(id) }

// ShareSlot labels the three physically distinct homes of a wallet's shares.
type ShareSlot int

const (
	// SlotDevice is the share stored on the user's device, PIN-encrypted.
	SlotDevice ShareSlot = iota + 1
	// SlotServer is the share stored server-side, PIN-encrypted with an
	// additional recovery-encrypted copy.
	SlotServer
	// SlotRecovery is the user-held backup share, issued once at wallet
	// creation and never persisted by the system.
	SlotRecovery
)

// String returns the slot name used in logs and storage paths.
func (s ShareSlot) String() string {
	switch s {
	case SlotDevice:
		return "device"
	case SlotServer:
		return "server"
	case SlotRecovery:
		return "recovery"
	default:
		return "unknown"
	}
}

// Share is one fragment of a (3,2)-threshold split of a private key.
// Shares exist in plaintext only transiently inside the custody manager;
// they are wiped before the owning operation returns.
type Share struct {
	// Index is the slot-derived share index (1..3).
	Index int

	// Value is the share material. For a 32-byte secret this is 33 bytes:
	// the GF(256) share with its evaluation-point tag.
	Value []byte

	// KeyID is the key generation this share belongs to.
	KeyID KeyID

	// CreatedAt records when the split producing this share happened.
	CreatedAt time.Time
}

// Wipe overwrites the share material with zeros.
func (s *Share) Wipe() {
	for i := range s.Value {
		s.Value[i] = 0
	}
}

// KDFVersion selects the PIN key-derivation function and its parameters.
// Versioning is stored per share so parameters can be migrated without
// breaking existing shares.
type KDFVersion int

const (
	// KDFPBKDF2 is PBKDF2-SHA256 with the legacy 100k iteration count.
	KDFPBKDF2 KDFVersion = 1
	// KDFArgon2id is the default for newly created shares.
	KDFArgon2id KDFVersion = 2
)

// KDFParams carries everything needed to re-derive the encryption key for an
// EncryptedShare, except the PIN (or recovery secret) itself.
type KDFParams struct {
	Version KDFVersion `json:"version"`
	Salt    []byte     `json:"salt"`

	// Iterations applies to KDFPBKDF2.
	Iterations int `json:"iterations,omitempty"`

	// Time, MemoryKiB, and Threads apply to KDFArgon2id.
	Time      uint32 `json:"time,omitempty"`
	MemoryKiB uint32 `json:"memory_kib,omitempty"`
	Threads   uint8  `json:"threads,omitempty"`
}

// EncryptedShare is a share sealed with AES-256-GCM under a key derived from
// a user PIN (or, for the server slot's recovery copy, from the recovery
// secret). This is the only form in which device and server shares are ever
// persisted.
type EncryptedShare struct {
	Ciphertext []byte    `json:"ciphertext"`
	Nonce      []byte    `json:"nonce"`
	Tag        []byte    `json:"tag"`
	KDF        KDFParams `json:"kdf"`
}

// ShareRecord is the unit a ShareStore persists: one sealed share for one
// wallet in one slot.
type ShareRecord struct {
	WalletID  WalletID  `json:"wallet_id"`
	KeyID     KeyID     `json:"key_id"`
	Slot      ShareSlot `json:"slot"`
	CreatedAt time.Time `json:"created_at"`

	// PIN is the share sealed under the PIN-derived key.
	PIN EncryptedShare `json:"pin"`

	// Recovery is a second sealed copy of the same share under the
	// recovery-derived key. Present only for the server slot, so the
	// recovery flow can proceed without a PIN on record.
	Recovery *EncryptedShare `json:"recovery,omitempty"`
}

// WalletRecord is the only durable identity artifact for a wallet. It is
// derivable from the public key and safe to store unencrypted.
type WalletRecord struct {
	WalletID      WalletID       `json:"wallet_id"`
	PublicAddress common.Address `json:"public_address"`
	KeyID         KeyID          `json:"key_id"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Session is a time-bounded authorization for custody operations, bound to a
// single identity-provider authentication event. Sessions are passed
// explicitly into every custody call; there is no process-wide session state.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session's TTL has elapsed at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// RecoveryStatus tracks the lifecycle of a recovery request.
type RecoveryStatus string

const (
	RecoveryPending        RecoveryStatus = "pending"
	RecoverySharesCombined RecoveryStatus = "shares_combined"
	RecoveryShareIssued    RecoveryStatus = "new_device_share_issued"
	RecoveryCompleted      RecoveryStatus = "completed"
	RecoveryFailed         RecoveryStatus = "failed"
)

// RecoveryRequest records an in-flight or finished new-device recovery.
type RecoveryRequest struct {
	ID        string         `json:"id"`
	WalletID  WalletID       `json:"wallet_id"`
	Status    RecoveryStatus `json:"status"`
	StartedAt time.Time      `json:"started_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// PayloadKind selects how a signing payload is digested before ECDSA.
type PayloadKind string

const (
	// PayloadHash is a pre-computed 32-byte digest, signed as-is.
	PayloadHash PayloadKind = "hash"
	// PayloadPersonal is an arbitrary message, hashed with the EIP-191
	// personal-message prefix.
	PayloadPersonal PayloadKind = "personal"
	// PayloadTyped is chain-specific typed data; digesting is delegated to
	// the configured TransactionCodec.
	PayloadTyped PayloadKind = "typed"
)

// SignRequest is the payload of a signing operation.
type SignRequest struct {
	Kind PayloadKind `json:"kind"`
	Data []byte      `json:"data"`
}

// Validate rejects malformed sign requests before any share is fetched.
func (r *SignRequest) Validate() error {
	switch r.Kind {
	case PayloadHash:
		if len(r.Data) != 32 {
			return fmt.Errorf("%w: hash payload must be exactly 32 bytes, got %d", ErrCrypto, len(r.Data))
		}
	case PayloadPersonal, PayloadTyped:
		if len(r.Data) == 0 {
			return fmt.Errorf("%w: empty payload", ErrCrypto)
		}
	default:
		return fmt.Errorf("%w: unknown payload kind %q", ErrCrypto, r.Kind)
	}
	return nil
}

// IdentityProof is the result of a successful identity-provider verification.
type IdentityProof struct {
	UserID     string
	VerifiedAt time.Time
}

// ErrAuth is returned by identity providers for invalid or expired proofs.
var ErrAuth = errors.New("identity proof rejected")
