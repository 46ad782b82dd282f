package interfaces

import "errors"

// Error taxonomy for custody operations. Callers are expected to dispatch on
// these with errors.Is; no other error values cross package boundaries.
var (
	// ErrCrypto indicates a primitive-level cryptographic failure.
	// Non-retryable: retrying the same operation with the same inputs
	// cannot succeed.
	ErrCrypto = errors.New("cryptographic operation failed")

	// ErrInvalidPin indicates an AEAD authentication failure while
	// decrypting a share with a PIN-derived key. User-correctable; the
	// caller may retry with a different PIN. No detail about which share
	// failed is ever attached.
	ErrInvalidPin = errors.New("incorrect PIN")

	// ErrInvalidRecoveryCode indicates a recovery code that failed format
	// or checksum validation, or whose embedded secret did not decrypt the
	// server share.
	ErrInvalidRecoveryCode = errors.New("invalid recovery code")

	// ErrShareUnavailable indicates a required share is missing from its
	// store. The wallet needs the recovery flow.
	ErrShareUnavailable = errors.New("share unavailable, wallet recovery required")

	// ErrShareCorrupted indicates a share record was found but failed
	// integrity validation. Fatal for that share; tampering or bit rot.
	ErrShareCorrupted = errors.New("share corrupted")

	// ErrInsufficientShares indicates fewer than threshold shares were
	// supplied to combine. A caller bug given correct orchestration.
	ErrInsufficientShares = errors.New("insufficient shares to reconstruct secret")

	// ErrDuplicateIndex indicates two supplied shares carry the same
	// index. A caller bug given correct orchestration.
	ErrDuplicateIndex = errors.New("duplicate share index")

	// ErrSessionExpired indicates the session TTL has elapsed; the user
	// must re-authenticate.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionRevoked indicates the session was revoked (logout) or is
	// unknown to the controller.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrRecoveryConflict indicates a concurrent recovery is already in
	// flight for the wallet. Abort and retry later.
	ErrRecoveryConflict = errors.New("concurrent recovery in progress")

	// ErrWalletNotFound indicates the wallet record does not exist.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrKeyMismatch indicates shares from different key generations were
	// presented together, for example a stale device share after recovery.
	ErrKeyMismatch = errors.New("share key generation mismatch")
)
