package sharestore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/keyfold/wallet-custody-backend/interfaces"
)

// FileWalletStore persists public wallet records as JSON files. Records
// contain no secret material, so no sealing or integrity envelope is applied.
type FileWalletStore struct {
	baseDir string
	log     *slog.Logger
}

// NewFileWalletStore creates a file-backed wallet record store.
func NewFileWalletStore(baseDir string, log *slog.Logger) (*FileWalletStore, error) {
	dir := filepath.Join(baseDir, "wallets")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create wallets directory: %w", err)
	}
	return &FileWalletStore{baseDir: baseDir, log: log}, nil
}

func (s *FileWalletStore) Get(ctx context.Context, walletID interfaces.WalletID) (*interfaces.WalletRecord, error) {
	data, err := os.ReadFile(s.recordPath(walletID))
	if os.IsNotExist(err) {
		return nil, interfaces.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet record: %w", err)
	}

	var record interfaces.WalletRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet record: %w", err)
	}
	return &record, nil
}

func (s *FileWalletStore) Put(ctx context.Context, record *interfaces.WalletRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal wallet record: %w", err)
	}
	if err := os.WriteFile(s.recordPath(record.WalletID), data, 0644); err != nil {
		return fmt.Errorf("failed to write wallet record: %w", err)
	}
	return nil
}

func (s *FileWalletStore) Delete(ctx context.Context, walletID interfaces.WalletID) error {
	err := os.Remove(s.recordPath(walletID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete wallet record: %w", err)
	}
	return nil
}

func (s *FileWalletStore) recordPath(walletID interfaces.WalletID) string {
	return filepath.Join(s.baseDir, "wallets", walletID.String()+".json")
}

// MemoryWalletStore is an in-memory wallet record store for tests.
type MemoryWalletStore struct {
	mu      sync.RWMutex
	records map[interfaces.WalletID]interfaces.WalletRecord
}

// NewMemoryWalletStore creates an empty in-memory wallet store.
func NewMemoryWalletStore() *MemoryWalletStore {
	return &MemoryWalletStore{records: make(map[interfaces.WalletID]interfaces.WalletRecord)}
}

func (s *MemoryWalletStore) Get(ctx context.Context, walletID interfaces.WalletID) (*interfaces.WalletRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[walletID]
	if !ok {
		return nil, interfaces.ErrWalletNotFound
	}
	copied := record
	return &copied, nil
}

func (s *MemoryWalletStore) Put(ctx context.Context, record *interfaces.WalletRecord) error {
	s.mu.Lock()
	s.records[record.WalletID] = *record
	s.mu.Unlock()
	return nil
}

func (s *MemoryWalletStore) Delete(ctx context.Context, walletID interfaces.WalletID) error {
	s.mu.Lock()
	delete(s.records, walletID)
	s.mu.Unlock()
	return nil
}
