package sharestore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/keyfold/wallet-custody-backend/interfaces"
)

// VaultStore implements the server-side share store on HashiCorp Vault's KV
// v2 engine. A compromised Vault yields only sealed shares; the PIN-derived
// key never leaves the custody process.
type VaultStore struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	slot        interfaces.ShareSlot
	log         *slog.Logger
	locationURI string
}

// NewVaultStore creates a Vault-backed share store.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: path prefix within the mount (e.g. "custody")
//   - token: Vault token with access limited to the share path
func NewVaultStore(address, mountPath, dataPath, token string, slot interfaces.ShareSlot, log *slog.Logger) (*VaultStore, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.Timeout = 30 * time.Second

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultStore{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		slot:        slot,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", address, mountPath, dataPath),
	}, nil
}

// Get retrieves the sealed share record for a wallet from Vault.
func (s *VaultStore) Get(ctx context.Context, walletID interfaces.WalletID) (*interfaces.ShareRecord, error) {
	start := time.Now()
	path := s.recordPath(walletID)

	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		s.log.Error("Failed to read from Vault",
			slog.String("path", path),
			slog.String("wallet_id", walletID.String()),
			"err", err)
		return nil, fmt.Errorf("vault read failed: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return nil, interfaces.ErrShareUnavailable
	}

	// KV v2 wraps the payload in a "data" map.
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: unexpected Vault response shape", interfaces.ErrShareCorrupted)
	}
	content, ok := data["record"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: record key missing in Vault data", interfaces.ErrShareCorrupted)
	}

	record, err := decodeRecord([]byte(content))
	if err != nil {
		return nil, err
	}

	s.log.Debug("Fetched share record from Vault",
		slog.String("wallet_id", walletID.String()),
		slog.String("slot", s.slot.String()),
		slog.Duration("duration", time.Since(start)))
	return record, nil
}

// Put stores or replaces the sealed share record for a wallet in Vault.
func (s *VaultStore) Put(ctx context.Context, walletID interfaces.WalletID, record *interfaces.ShareRecord) error {
	start := time.Now()
	data, err := encodeRecord(record)
	if err != nil {
		return err
	}

	path := s.recordPath(walletID)
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"record": string(data),
		},
	}

	if _, err := s.client.Logical().WriteWithContext(ctx, path, payload); err != nil {
		s.log.Error("Failed to write to Vault",
			slog.String("path", path),
			slog.String("wallet_id", walletID.String()),
			"err", err)
		return fmt.Errorf("vault write failed: %w", err)
	}

	s.log.Debug("Stored share record in Vault",
		slog.String("wallet_id", walletID.String()),
		slog.String("slot", s.slot.String()),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Delete removes the sealed share record for a wallet, including prior KV v2
// versions so a replaced server share is not recoverable from Vault history.
func (s *VaultStore) Delete(ctx context.Context, walletID interfaces.WalletID) error {
	path := fmt.Sprintf("%s/metadata/%s/%s", s.mountPath, s.dataPath, walletID)
	if _, err := s.client.Logical().DeleteWithContext(ctx, path); err != nil {
		return fmt.Errorf("vault delete failed: %w", err)
	}
	return nil
}

// Name returns an identifier for logging.
func (s *VaultStore) Name() string {
	return fmt.Sprintf("vault-%s-%s", s.slot, s.mountPath)
}

func (s *VaultStore) recordPath(walletID interfaces.WalletID) string {
	return fmt.Sprintf("%s/data/%s/%s", s.mountPath, s.dataPath, walletID)
}
