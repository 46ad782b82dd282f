package cryptoutils

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/keyfold/wallet-custody-backend/interfaces"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize = 16

	// pbkdf2Iterations is the legacy v1 work factor.
	pbkdf2Iterations = 100_000

	// Argon2id v2 parameters, tuned to roughly 100ms on commodity hardware.
	argonTime      = 1
	argonMemoryKiB = 64 * 1024
	argonThreads   = 4
)

// NewKDFParams creates fresh derivation parameters for the given version,
// including a new random salt. Every sealed share gets its own parameters.
func NewKDFParams(version interfaces.KDFVersion) (interfaces.KDFParams, error) {
	salt, err := RandomBytes(saltSize)
	if err != nil {
		return interfaces.KDFParams{}, fmt.Errorf("failed to generate salt: %w", err)
	}

	switch version {
	case interfaces.KDFPBKDF2:
		return interfaces.KDFParams{
			Version:    interfaces.KDFPBKDF2,
			Salt:       salt,
			Iterations: pbkdf2Iterations,
		}, nil
	case interfaces.KDFArgon2id:
		return interfaces.KDFParams{
			Version:   interfaces.KDFArgon2id,
			Salt:      salt,
			Time:      argonTime,
			MemoryKiB: argonMemoryKiB,
			Threads:   argonThreads,
		}, nil
	default:
		return interfaces.KDFParams{}, fmt.Errorf("unsupported KDF version %d", version)
	}
}

// DeriveKey derives the 32-byte AES key for a sealed share from a low-entropy
// secret (PIN or recovery secret) and the share's stored parameters.
// Deterministic and intentionally slow.
func DeriveKey(secret []byte, params interfaces.KDFParams) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty derivation secret")
	}
	if len(params.Salt) == 0 {
		return nil, errors.New("missing KDF salt")
	}

	switch params.Version {
	case interfaces.KDFPBKDF2:
		if params.Iterations < pbkdf2Iterations {
			return nil, fmt.Errorf("refusing weak iteration count %d", params.Iterations)
		}
		return pbkdf2.Key(secret, params.Salt, params.Iterations, KeySize, sha256.New), nil
	case interfaces.KDFArgon2id:
		if params.Time == 0 || params.MemoryKiB == 0 || params.Threads == 0 {
			return nil, errors.New("incomplete argon2id parameters")
		}
		return argon2.IDKey(secret, params.Salt, params.Time, params.MemoryKiB, params.Threads, KeySize), nil
	default:
		return nil, fmt.Errorf("unsupported KDF version %d", params.Version)
	}
}
