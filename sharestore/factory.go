package sharestore

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/keyfold/wallet-custody-backend/interfaces"
)

// Factory creates share stores from location URI strings, so deployments can
// pick backing technology per slot through configuration alone.
type Factory struct {
	log *slog.Logger
}

// NewFactory creates a share store factory.
func NewFactory(log *slog.Logger) *Factory {
	return &Factory{log: log}
}

// StoreFor creates a share store for one slot from a location URI.
//
// Supported schemes:
//   - file:///path — local filesystem (device slot, development)
//   - vault://host:port/mount/path?token=... — HashiCorp Vault KV v2
//   - s3://bucket/prefix?region=...&endpoint=... — Amazon S3 or compatible
//   - mem:// — in-memory, non-durable
//
// The Vault token falls back to the VAULT_TOKEN environment variable when
// not present in the URI.
func (f *Factory) StoreFor(locationURI string, slot interfaces.ShareSlot) (interfaces.ShareStore, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("invalid store location URI %q: %w", locationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return NewFileStore(u.Path, slot, f.log)
	case "vault":
		return f.createVaultStore(u, slot)
	case "s3":
		return f.createS3Store(u, slot)
	case "mem":
		return NewMemoryStore(slot), nil
	default:
		return nil, fmt.Errorf("unsupported share store scheme: %s", u.Scheme)
	}
}

func (f *Factory) createVaultStore(u *url.URL, slot interfaces.ShareSlot) (interfaces.ShareStore, error) {
	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("vault URI must be vault://host:port/mount/path, got %q", u.String())
	}

	scheme := "https"
	if u.Query().Get("insecure") == "true" {
		scheme = "http"
	}
	address := fmt.Sprintf("%s://%s", scheme, u.Host)

	token := u.Query().Get("token")
	if token == "" {
		token = os.Getenv("VAULT_TOKEN")
	}

	return NewVaultStore(address, parts[0], parts[1], token, slot, f.log)
}

func (f *Factory) createS3Store(u *url.URL, slot interfaces.ShareSlot) (interfaces.ShareStore, error) {
	bucket := u.Host
	if bucket == "" {
		return nil, fmt.Errorf("s3 URI must include a bucket name, got %q", u.String())
	}

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	region := u.Query().Get("region")
	if region == "" {
		region = "us-east-1"
	}

	return NewS3Store(
		bucket,
		strings.Trim(u.Path, "/"),
		region,
		u.Query().Get("endpoint"),
		accessKey,
		secretKey,
		slot,
		f.log,
	)
}
