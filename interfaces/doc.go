// Package interfaces defines the shared types, contracts, and error taxonomy
// used across the custody system.
//
// The package contains no implementation logic. It exists so that the custody
// manager, the session controller, the share stores, and the HTTP layer can
// depend on a common vocabulary without depending on each other:
//
//   - Core data model: Share, EncryptedShare, ShareRecord, WalletRecord,
//     Session, RecoveryRequest.
//   - Storage contracts: ShareStore (one instance per share slot) and
//     WalletStore.
//   - Collaborator contracts: IdentityProvider (magic-link / OAuth proof
//     verification) and TransactionCodec (chain-specific payload digesting).
//   - Sentinel errors enumerating every failure kind a caller must handle.
//
// A reconstructed private key never appears in any type defined here; raw key
// material is confined to the custody package for the duration of a single
// operation.
package interfaces
