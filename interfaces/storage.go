package interfaces

import "context"

// ShareStore persists sealed share records for exactly one slot. The device,
// server, and (transient) recovery homes of a wallet's shares are three
// separate ShareStore instances with distinct backing technology.
//
// Implementations must never log, cache, or transmit a decrypted share; they
// only ever see EncryptedShare material.
//
// Error contract: Get returns ErrShareUnavailable when no record exists, and
// ErrShareCorrupted when a record exists but fails integrity validation. The custody manager routes the former to the recovery
// flow and fails fast on the latter.
type ShareStore interface {
	// Get retrieves the sealed share record for a wallet.
	Get(ctx context.Context, walletID WalletID) (*ShareRecord, error)

	// Put stores (or replaces) the sealed share record for a wallet.
	Put(ctx context.Context, walletID WalletID, record *ShareRecord) error

	// Delete removes the sealed share record for a wallet. Deleting a
	// missing record is not an error.
	Delete(ctx context.Context, walletID WalletID) error

	// Name returns an identifier for logging.
	Name() string
}

// WalletStore persists public wallet records. Records contain no secret
// material and may be stored unencrypted.
type WalletStore interface {
	Get(ctx context.Context, walletID WalletID) (*WalletRecord, error)
	Put(ctx context.Context, record *WalletRecord) error
	Delete(ctx context.Context, walletID WalletID) error
}

// IdentityProvider verifies authentication proofs issued by the external
// magic-link / OAuth layer. Only the verification contract is part of this
// system; token delivery is out of scope.
type IdentityProvider interface {
	// VerifyProof validates a proof token and returns the authenticated
	// user. Returns an error wrapping ErrAuth for invalid proofs.
	VerifyProof(ctx context.Context, token string) (IdentityProof, error)
}

// RecoveryObserver receives lifecycle updates while a recovery for a wallet
// is in flight, so callers can surface progress without the custody manager
// owning recovery-request bookkeeping.
type RecoveryObserver interface {
	Advance(walletID WalletID, status RecoveryStatus)
}

// TransactionCodec digests chain-specific typed payloads (for example
// EIP-712 typed data) into the 32-byte hash the custody manager signs.
// Transaction encoding and broadcast are out of scope.
type TransactionCodec interface {
	// Digest computes the signing digest for an opaque typed payload.
	Digest(payload []byte) ([32]byte, error)
}
