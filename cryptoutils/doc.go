// Package cryptoutils provides the cryptographic primitives for the custody
// system: AES-256-GCM authenticated encryption, versioned PIN key derivation
// (PBKDF2 and Argon2id), CSPRNG helpers, buffer wiping, and the
// human-manageable recovery code format.
//
// All functions are deterministic given their inputs except where fresh
// randomness is explicitly part of the contract (nonces, salts, random
// bytes). Failures are non-retryable: retrying a decrypt with the same wrong
// key cannot succeed.
package cryptoutils
