// Package session manages authentication sessions and recovery-flow
// bookkeeping. Sessions gate every custody operation; they are created from a
// verified identity proof, expire on a fixed TTL, and can be revoked early.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keyfold/wallet-custody-backend/interfaces"
)

// DefaultTTL bounds how long a session authorizes custody operations.
const DefaultTTL = 15 * time.Minute

// Controller issues and tracks sessions in memory. Losing controller state on
// restart only forces re-authentication, so there is no persistence layer.
type Controller struct {
	provider interfaces.IdentityProvider
	ttl      time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*interfaces.Session

	stopOnce sync.Once
	stop     chan struct{}
}

// NewController creates a session controller backed by the given identity
// provider. A non-positive ttl falls back to DefaultTTL.
func NewController(provider interfaces.IdentityProvider, ttl time.Duration, log *slog.Logger) *Controller {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		provider: provider,
		ttl:      ttl,
		log:      log,
		sessions: make(map[string]*interfaces.Session),
		stop:     make(chan struct{}),
	}
}

// Login verifies an identity proof and opens a new session. Each login event
// gets its own session; proofs are never reused as session handles.
func (c *Controller) Login(ctx context.Context, proofToken string) (*interfaces.Session, error) {
	proof, err := c.provider.VerifyProof(ctx, proofToken)
	if err != nil {
		return nil, fmt.Errorf("login rejected: %w", err)
	}

	now := time.Now().UTC()
	session := &interfaces.Session{
		ID:        uuid.New().String(),
		UserID:    proof.UserID,
		IssuedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}

	c.mu.Lock()
	c.sessions[session.ID] = session
	c.mu.Unlock()

	c.log.Info("session opened", "user", proof.UserID, "expires_at", session.ExpiresAt)

	copied := *session
	return &copied, nil
}

// Resolve returns the live session for an ID. Unknown or revoked IDs return
// ErrSessionRevoked; expired sessions are dropped and return ErrSessionExpired.
func (c *Controller) Resolve(sessionID string) (*interfaces.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, ok := c.sessions[sessionID]
	if !ok {
		return nil, interfaces.ErrSessionRevoked
	}
	if session.Expired(time.Now()) {
		delete(c.sessions, sessionID)
		return nil, interfaces.ErrSessionExpired
	}

	copied := *session
	return &copied, nil
}

// Revoke ends a session immediately. Revoking an unknown ID is a no-op, so
// logout is idempotent.
func (c *Controller) Revoke(sessionID string) {
	c.mu.Lock()
	_, existed := c.sessions[sessionID]
	delete(c.sessions, sessionID)
	c.mu.Unlock()

	if existed {
		c.log.Info("session revoked", "session", sessionID)
	}
}

// StartSweeper launches a background loop removing expired sessions, so the
// map does not grow with abandoned logins. Stop ends the loop.
func (c *Controller) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sweep(time.Now())
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop terminates the sweeper loop.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Controller) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, session := range c.sessions {
		if session.Expired(now) {
			delete(c.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		c.log.Debug("expired sessions swept", "count", removed)
	}
}
