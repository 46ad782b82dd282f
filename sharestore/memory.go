package sharestore

import (
	"context"
	"fmt"
	"sync"

	"github.com/keyfold/wallet-custody-backend/interfaces"
)

// MemoryStore is an in-memory share store for tests and single-process
// development setups. Records are stored in their encoded form so integrity
// validation behaves exactly like the durable backends.
type MemoryStore struct {
	mu      sync.RWMutex
	slot    interfaces.ShareSlot
	records map[interfaces.WalletID][]byte
}

// NewMemoryStore creates an empty in-memory share store for one slot.
func NewMemoryStore(slot interfaces.ShareSlot) *MemoryStore {
	return &MemoryStore{
		slot:    slot,
		records: make(map[interfaces.WalletID][]byte),
	}
}

func (s *MemoryStore) Get(ctx context.Context, walletID interfaces.WalletID) (*interfaces.ShareRecord, error) {
	s.mu.RLock()
	data, ok := s.records[walletID]
	s.mu.RUnlock()

	if !ok {
		return nil, interfaces.ErrShareUnavailable
	}
	return decodeRecord(data)
}

func (s *MemoryStore) Put(ctx context.Context, walletID interfaces.WalletID, record *interfaces.ShareRecord) error {
	data, err := encodeRecord(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.records[walletID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, walletID interfaces.WalletID) error {
	s.mu.Lock()
	delete(s.records, walletID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Name() string {
	return fmt.Sprintf("mem-%s", s.slot)
}

// Corrupt flips a byte of a stored record. Test helper for exercising the
// tamper-detection path.
func (s *MemoryStore) Corrupt(walletID interfaces.WalletID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.records[walletID]
	if !ok || len(data) == 0 {
		return false
	}
	mutated := append([]byte(nil), data...)
	mutated[len(mutated)/2] ^= 0xff
	s.records[walletID] = mutated
	return true
}
