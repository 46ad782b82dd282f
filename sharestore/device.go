package sharestore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/keyfold/wallet-custody-backend/interfaces"
)

// FileStore implements a share store on the local file system. It backs the
// device slot: durable, scoped to one physical machine, and lost with it,
// which is what routes a wallet into the recovery flow.
type FileStore struct {
	baseDir     string
	slot        interfaces.ShareSlot
	log         *slog.Logger
	locationURI string
}

// NewFileStore creates a file-backed share store rooted at baseDir. Records
// are kept in a per-slot subdirectory with owner-only permissions.
func NewFileStore(baseDir string, slot interfaces.ShareSlot, log *slog.Logger) (*FileStore, error) {
	dir := filepath.Join(baseDir, slot.String())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create share directory: %w", err)
	}

	return &FileStore{
		baseDir:     baseDir,
		slot:        slot,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Get retrieves the sealed share record for a wallet. Returns
// ErrShareUnavailable if no record exists and ErrShareCorrupted if the record
// fails integrity validation.
func (s *FileStore) Get(ctx context.Context, walletID interfaces.WalletID) (*interfaces.ShareRecord, error) {
	path := s.recordPath(walletID)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, interfaces.ErrShareUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read share record: %w", err)
	}

	record, err := decodeRecord(data)
	if err != nil {
		s.log.Error("Share record failed integrity validation",
			slog.String("wallet_id", walletID.String()),
			slog.String("slot", s.slot.String()),
			"err", err)
		return nil, err
	}

	s.log.Debug("Fetched share record",
		slog.String("wallet_id", walletID.String()),
		slog.String("slot", s.slot.String()))
	return record, nil
}

// Put stores or replaces the sealed share record for a wallet.
func (s *FileStore) Put(ctx context.Context, walletID interfaces.WalletID, record *interfaces.ShareRecord) error {
	data, err := encodeRecord(record)
	if err != nil {
		return err
	}

	path := s.recordPath(walletID)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write share record: %w", err)
	}

	s.log.Debug("Stored share record",
		slog.String("wallet_id", walletID.String()),
		slog.String("slot", s.slot.String()))
	return nil
}

// Delete removes the sealed share record. Deleting a missing record is not
// an error.
func (s *FileStore) Delete(ctx context.Context, walletID interfaces.WalletID) error {
	err := os.Remove(s.recordPath(walletID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete share record: %w", err)
	}
	return nil
}

// Name returns an identifier for logging.
func (s *FileStore) Name() string {
	return fmt.Sprintf("file-%s-%s", s.slot, filepath.Base(s.baseDir))
}

func (s *FileStore) recordPath(walletID interfaces.WalletID) string {
	return filepath.Join(s.baseDir, s.slot.String(), walletID.String()+".json")
}
