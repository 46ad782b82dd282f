package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/keyfold/wallet-custody-backend/interfaces"
)

// HMACProvider verifies self-issued identity proofs of the form
// base64url(userID|issuedUnix|mac), where mac is HMAC-SHA256 over the first
// two fields under a shared secret. It stands in for the external magic-link
// verifier in development and tests; production deployments plug in their own
// IdentityProvider.
type HMACProvider struct {
	secret []byte
	maxAge time.Duration
}

// NewHMACProvider creates a provider with the given shared secret. Proofs
// older than maxAge are rejected.
func NewHMACProvider(secret []byte, maxAge time.Duration) (*HMACProvider, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("identity provider secret must not be empty")
	}
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	return &HMACProvider{secret: secret, maxAge: maxAge}, nil
}

// IssueProof mints a proof token for a user, timestamped now.
func (p *HMACProvider) IssueProof(userID string) string {
	issued := strconv.FormatInt(time.Now().Unix(), 10)
	payload := userID + "|" + issued
	mac := p.mac(payload)
	return base64.RawURLEncoding.EncodeToString([]byte(payload + "|" + mac))
}

// VerifyProof implements interfaces.IdentityProvider.
func (p *HMACProvider) VerifyProof(ctx context.Context, token string) (interfaces.IdentityProof, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return interfaces.IdentityProof{}, fmt.Errorf("%w: malformed token", interfaces.ErrAuth)
	}

	parts := strings.Split(string(raw), "|")
	if len(parts) != 3 || parts[0] == "" {
		return interfaces.IdentityProof{}, fmt.Errorf("%w: malformed token", interfaces.ErrAuth)
	}
	userID, issued, mac := parts[0], parts[1], parts[2]

	if !hmac.Equal([]byte(mac), []byte(p.mac(userID+"|"+issued))) {
		return interfaces.IdentityProof{}, fmt.Errorf("%w: bad signature", interfaces.ErrAuth)
	}

	issuedUnix, err := strconv.ParseInt(issued, 10, 64)
	if err != nil {
		return interfaces.IdentityProof{}, fmt.Errorf("%w: malformed timestamp", interfaces.ErrAuth)
	}
	issuedAt := time.Unix(issuedUnix, 0)
	if time.Since(issuedAt) > p.maxAge {
		return interfaces.IdentityProof{}, fmt.Errorf("%w: proof expired", interfaces.ErrAuth)
	}

	return interfaces.IdentityProof{UserID: userID, VerifiedAt: time.Now().UTC()}, nil
}

func (p *HMACProvider) mac(payload string) string {
	h := hmac.New(sha256.New, p.secret)
	h.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
