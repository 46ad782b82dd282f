package cryptoutils

import (
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/keyfold/wallet-custody-backend/interfaces"
)

// RecoverySecretSize is the length of the random secret embedded in a
// recovery code. It keys the recovery-path seal of the server share.
const RecoverySecretSize = 16

const recoveryChecksumSize = 4

// codeEncoding is unpadded base32; the alphabet avoids ambiguity issues of
// base64 when users transcribe codes by hand.
var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeRecoveryCode packs the recovery share and the recovery secret into
// the code presented to the user once at wallet creation. Layout before
// encoding: index byte, share length byte, share value, recovery secret,
// 4-byte SHA-256 checksum over everything preceding. The encoded string is
// grouped with dashes for readability.
func EncodeRecoveryCode(share *interfaces.Share, secret []byte) (string, error) {
	if share == nil || len(share.Value) == 0 {
		return "", fmt.Errorf("missing recovery share")
	}
	if share.Index < 1 || share.Index > 255 {
		return "", fmt.Errorf("invalid share index %d", share.Index)
	}
	if len(share.Value) > 255 {
		return "", fmt.Errorf("share too long for recovery code: %d bytes", len(share.Value))
	}
	if len(secret) != RecoverySecretSize {
		return "", fmt.Errorf("recovery secret must be %d bytes, got %d", RecoverySecretSize, len(secret))
	}

	payload := make([]byte, 0, 2+len(share.Value)+RecoverySecretSize+recoveryChecksumSize)
	payload = append(payload, byte(share.Index), byte(len(share.Value)))
	payload = append(payload, share.Value...)
	payload = append(payload, secret...)

	sum := sha256.Sum256(payload)
	payload = append(payload, sum[:recoveryChecksumSize]...)

	return groupCode(codeEncoding.EncodeToString(payload)), nil
}

// DecodeRecoveryCode validates and unpacks a user-supplied recovery code.
// Transcription errors are caught by the checksum before any store
// round-trip. Returns the recovery share (without key generation metadata,
// which the caller restores from the server record) and the recovery secret.
func DecodeRecoveryCode(code string) (*interfaces.Share, []byte, error) {
	compact := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
	raw, err := codeEncoding.DecodeString(compact)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: malformed encoding", interfaces.ErrInvalidRecoveryCode)
	}

	if len(raw) < 2+1+RecoverySecretSize+recoveryChecksumSize {
		return nil, nil, fmt.Errorf("%w: too short", interfaces.ErrInvalidRecoveryCode)
	}

	body, checksum := raw[:len(raw)-recoveryChecksumSize], raw[len(raw)-recoveryChecksumSize:]
	sum := sha256.Sum256(body)
	if !Equal(checksum, sum[:recoveryChecksumSize]) {
		return nil, nil, fmt.Errorf("%w: checksum mismatch", interfaces.ErrInvalidRecoveryCode)
	}

	index := int(body[0])
	shareLen := int(body[1])
	if len(body) != 2+shareLen+RecoverySecretSize {
		return nil, nil, fmt.Errorf("%w: inconsistent length", interfaces.ErrInvalidRecoveryCode)
	}

	share := &interfaces.Share{
		Index: index,
		Value: append([]byte(nil), body[2:2+shareLen]...),
	}
	secret := append([]byte(nil), body[2+shareLen:]...)
	return share, secret, nil
}

// groupCode inserts a dash every five characters.
func groupCode(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && i%5 == 0 {
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return b.String()
}
