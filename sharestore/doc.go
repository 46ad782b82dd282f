// Package sharestore provides the physically distinct storage backends for
// sealed share records: a device-local file store, server-side Vault and S3
// stores, and an in-memory store for tests and development.
//
// Every backend persists only EncryptedShare material inside ShareRecord
// envelopes; plaintext shares never reach this package. Records carry an
// integrity digest so a missing record (wallet needs recovery) is
// distinguishable from a tampered or rotted one (fail fast).
//
// Backends are selected from location URIs by the Factory:
//
//	file:///var/lib/custody/shares
//	vault://vault.example.com:8200/secret/custody?token=...
//	s3://bucket/prefix?region=us-east-1
//	mem://
package sharestore
