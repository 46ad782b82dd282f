package sharestore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/keyfold/wallet-custody-backend/interfaces"
)

// envelope wraps a serialized share record with an integrity digest. The
// digest is not a security boundary (GCM tags are); it exists so storage
// corruption surfaces as ErrShareCorrupted instead of a missing share, which
// would wrongly route the user into recovery.
type envelope struct {
	Record json.RawMessage `json:"record"`
	Digest string          `json:"digest"`
}

func encodeRecord(record *interfaces.ShareRecord) ([]byte, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal share record: %w", err)
	}
	sum := sha256.Sum256(raw)
	return json.Marshal(envelope{Record: raw, Digest: hex.EncodeToString(sum[:])})
}

func decodeRecord(data []byte) (*interfaces.ShareRecord, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope", interfaces.ErrShareCorrupted)
	}

	sum := sha256.Sum256(env.Record)
	if env.Digest != hex.EncodeToString(sum[:]) {
		return nil, fmt.Errorf("%w: digest mismatch", interfaces.ErrShareCorrupted)
	}

	var record interfaces.ShareRecord
	if err := json.Unmarshal(env.Record, &record); err != nil {
		return nil, fmt.Errorf("%w: malformed record", interfaces.ErrShareCorrupted)
	}
	return &record, nil
}
