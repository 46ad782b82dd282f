// Package splitter implements the (3,2)-threshold secret-sharing layer over
// a wallet private key, using byte-wise Shamir arithmetic in GF(256).
package splitter

import (
	"fmt"
	"time"

	"github.com/hashicorp/vault/shamir"
	"github.com/keyfold/wallet-custody-backend/interfaces"
)

const (
	// Parts is the number of shares produced per split.
	Parts = 3
	// Threshold is the number of distinct shares required to reconstruct.
	Threshold = 2
)

// Split divides a private key into three shares labeled Device, Server, and
// Recovery. Each invocation uses fresh random polynomial coefficients, so
// repeated splits of the same secret are uncorrelated. The caller owns the
// returned shares and must wipe them when done.
func Split(secret []byte, keyID interfaces.KeyID) ([]*interfaces.Share, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty secret", interfaces.ErrCrypto)
	}
	if keyID == "" {
		return nil, fmt.Errorf("%w: missing key id", interfaces.ErrCrypto)
	}

	parts, err := shamir.Split(secret, Parts, Threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: split failed: %v", interfaces.ErrCrypto, err)
	}

	now := time.Now().UTC()
	shares := make([]*interfaces.Share, Parts)
	for i, value := range parts {
		shares[i] = &interfaces.Share{
			Index:     i + 1,
			Value:     value,
			KeyID:     keyID,
			CreatedAt: now,
		}
	}
	return shares, nil
}

// Combine reconstructs the private key from at least Threshold shares with
// distinct indices. Reconstruction is order-independent: any valid pair
// yields bit-identical output. The caller owns the returned secret and must
// wipe it.
func Combine(shares []*interfaces.Share) ([]byte, error) {
	valid := make([]*interfaces.Share, 0, len(shares))
	for _, s := range shares {
		if s != nil && len(s.Value) > 0 {
			valid = append(valid, s)
		}
	}

	if len(valid) < Threshold {
		return nil, fmt.Errorf("%w: have %d, need %d", interfaces.ErrInsufficientShares, len(valid), Threshold)
	}

	seen := make(map[int]bool, len(valid))
	keyID := valid[0].KeyID
	values := make([][]byte, 0, len(valid))
	for _, s := range valid {
		if seen[s.Index] {
			return nil, fmt.Errorf("%w: index %d", interfaces.ErrDuplicateIndex, s.Index)
		}
		seen[s.Index] = true

		if s.KeyID != keyID {
			return nil, fmt.Errorf("%w: %s vs %s", interfaces.ErrKeyMismatch, s.KeyID, keyID)
		}
		values = append(values, s.Value)
	}

	secret, err := shamir.Combine(values)
	if err != nil {
		return nil, fmt.Errorf("%w: combine failed: %v", interfaces.ErrCrypto, err)
	}
	return secret, nil
}
