package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keyfold/wallet-custody-backend/interfaces"
)

// RecoveryTracker serializes recovery attempts per wallet. Only one recovery
// may be in flight for a wallet at a time; a second attempt aborts with
// ErrRecoveryConflict instead of racing the re-split.
type RecoveryTracker struct {
	mu       sync.Mutex
	active   map[interfaces.WalletID]*interfaces.RecoveryRequest
	finished []*interfaces.RecoveryRequest
}

// NewRecoveryTracker creates an empty tracker.
func NewRecoveryTracker() *RecoveryTracker {
	return &RecoveryTracker{active: make(map[interfaces.WalletID]*interfaces.RecoveryRequest)}
}

// Begin opens a recovery request for a wallet, or fails with
// ErrRecoveryConflict when one is already in flight.
func (t *RecoveryTracker) Begin(walletID interfaces.WalletID) (*interfaces.RecoveryRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, inFlight := t.active[walletID]; inFlight {
		return nil, interfaces.ErrRecoveryConflict
	}

	now := time.Now().UTC()
	request := &interfaces.RecoveryRequest{
		ID:        uuid.New().String(),
		WalletID:  walletID,
		Status:    interfaces.RecoveryPending,
		StartedAt: now,
		UpdatedAt: now,
	}
	t.active[walletID] = request

	copied := *request
	return &copied, nil
}

// Advance moves an in-flight recovery to an intermediate status.
func (t *RecoveryTracker) Advance(walletID interfaces.WalletID, status interfaces.RecoveryStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if request, ok := t.active[walletID]; ok {
		request.Status = status
		request.UpdatedAt = time.Now().UTC()
	}
}

// Finish closes the wallet's in-flight recovery with a terminal status,
// releasing the wallet for future attempts.
func (t *RecoveryTracker) Finish(walletID interfaces.WalletID, status interfaces.RecoveryStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	request, ok := t.active[walletID]
	if !ok {
		return
	}
	request.Status = status
	request.UpdatedAt = time.Now().UTC()
	delete(t.active, walletID)
	t.finished = append(t.finished, request)
}

// Status reports the most recent recovery request for a wallet, in-flight or
// finished, or nil when the wallet never recovered.
func (t *RecoveryTracker) Status(walletID interfaces.WalletID) *interfaces.RecoveryRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	if request, ok := t.active[walletID]; ok {
		copied := *request
		return &copied
	}
	for i := len(t.finished) - 1; i >= 0; i-- {
		if t.finished[i].WalletID == walletID {
			copied := *t.finished[i]
			return &copied
		}
	}
	return nil
}
