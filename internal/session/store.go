// Package session keeps the open screen sessions. Each session owns one
// screen instance; screens are never shared between sessions.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tshop/admin/internal/observability"
	"github.com/tshop/admin/internal/screen"
	"github.com/tshop/admin/model"
)

// Session is one open screen.
type Session struct {
	ID        string
	Screen    *screen.Screen
	CreatedAt time.Time
}

// NewID returns a fresh session ID.
func NewID() string {
	return uuid.NewString()
}

// Store holds open sessions.
type Store interface {
	// Create adds a session. It fails with TOO_MANY_SESSIONS when the
	// store is full even after expired sessions are dropped.
	Create(ctx context.Context, sess *Session) error
	// Get returns a session and marks it used.
	Get(ctx context.Context, id string) (*Session, error)
	// Touch marks a session used.
	Touch(ctx context.Context, id string) error
	// Delete closes a session.
	Delete(ctx context.Context, id string) error
	// Len returns the number of open sessions.
	Len() int
	// Sweep drops idle sessions last used before cutoff and returns how
	// many were dropped. Sessions with a flow in progress are kept.
	Sweep(cutoff time.Time) int
}

type entry struct {
	sess       *Session
	lastAccess time.Time
}

// MemoryStore is an in-memory Store. It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	ttl      time.Duration
	max      int
	now      func() time.Time
	metrics  *observability.Metrics
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithMaxSessions caps the number of open sessions. Zero means no cap.
func WithMaxSessions(n int) Option {
	return func(s *MemoryStore) { s.max = n }
}

// WithMetrics sets the metrics the store reports its size into.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *MemoryStore) { s.metrics = m }
}

// WithClock sets the store's clock.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates a store whose sessions expire after ttl of
// inactivity.
func NewMemoryStore(ttl time.Duration, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create adds a session.
func (s *MemoryStore) Create(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return fmt.Errorf("session: %q already exists", sess.ID)
	}
	if s.max > 0 && len(s.sessions) >= s.max {
		s.sweepLocked(s.now().Add(-s.ttl))
		if len(s.sessions) >= s.max {
			return model.NewTooManySessionsError()
		}
	}

	now := s.now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	s.sessions[sess.ID] = &entry{sess: sess, lastAccess: now}
	s.metrics.SetScreenSessionsActive(len(s.sessions))
	return nil
}

// Get returns a live session and marks it used. Expired sessions are
// reported as not found even before the sweeper drops them.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok || s.expired(e) {
		return nil, model.NewNotFoundError(fmt.Sprintf("Session %q not found", id))
	}
	e.lastAccess = s.now()
	return e.sess, nil
}

// Touch marks a session used.
func (s *MemoryStore) Touch(ctx context.Context, id string) error {
	_, err := s.Get(ctx, id)
	return err
}

// Delete closes a session.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return model.NewNotFoundError(fmt.Sprintf("Session %q not found", id))
	}
	delete(s.sessions, id)
	s.metrics.SetScreenSessionsActive(len(s.sessions))
	return nil
}

// Len returns the number of sessions, expired ones included until swept.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep drops idle sessions last used before cutoff.
func (s *MemoryStore) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(cutoff)
}

func (s *MemoryStore) sweepLocked(cutoff time.Time) int {
	n := 0
	for id, e := range s.sessions {
		if e.lastAccess.Before(cutoff) && !e.sess.Screen.Busy() {
			delete(s.sessions, id)
			n++
		}
	}
	if n > 0 {
		s.metrics.RecordScreenSessionsExpired(n)
		s.metrics.SetScreenSessionsActive(len(s.sessions))
	}
	return n
}

func (s *MemoryStore) expired(e *entry) bool {
	return s.ttl > 0 && s.now().Sub(e.lastAccess) > s.ttl && !e.sess.Screen.Busy()
}

// HealthCheck fails while the store is full.
func (s *MemoryStore) HealthCheck(_ context.Context) error {
	if s.max > 0 && s.Len() >= s.max {
		return fmt.Errorf("session: store full (%d sessions)", s.max)
	}
	return nil
}

// RunSweeper drops sessions idle for longer than ttl every interval until
// ctx is done.
func RunSweeper(ctx context.Context, store Store, ttl, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := store.Sweep(now.Add(-ttl)); n > 0 {
				logger.Info("session: expired sessions dropped", zap.Int("count", n), zap.Int("open", store.Len()))
			}
		}
	}
}
