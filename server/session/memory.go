package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cyp0633/libguestshare/server/apperror"
	"github.com/cyp0633/libguestshare/server/storage"
	"golang.org/x/time/rate"
)

// MemoryIssuer keeps sessions in process. It declines new sessions once
// MaxSessions are active and rate limits issuance per guest.
type MemoryIssuer struct {
	mu       sync.Mutex
	sessions map[string]*Session
	limiters map[string]*rate.Limiter

	maxSessions int
	limit       rate.Limit
	burst       int
	ttl         time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// MemoryOption configures a MemoryIssuer
type MemoryOption func(*MemoryIssuer)

// WithMaxSessions caps the number of live sessions. Zero means unlimited.
func WithMaxSessions(n int) MemoryOption {
	return func(m *MemoryIssuer) { m.maxSessions = n }
}

// WithRate allows perMinute sessions per guest, with the given burst.
func WithRate(perMinute float64, burst int) MemoryOption {
	return func(m *MemoryIssuer) {
		m.limit = rate.Limit(perMinute / 60)
		m.burst = burst
	}
}

// WithTTL sets how long sessions live.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *MemoryIssuer) { m.ttl = ttl }
}

// WithLogger sets the logger for the issuer
func WithLogger(logger *slog.Logger) MemoryOption {
	return func(m *MemoryIssuer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMemoryIssuer creates an in-memory Issuer
func NewMemoryIssuer(opts ...MemoryOption) *MemoryIssuer {
	m := &MemoryIssuer{
		sessions: make(map[string]*Session),
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Inf,
		burst:    1,
		ttl:      24 * time.Hour,
		now:      time.Now,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue implements Issuer. Capacity is checked before the guest's rate
// budget, so a declined request costs no token.
func (m *MemoryIssuer) Issue(_ context.Context, req Request, c *storage.Context, u *storage.User) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.expire(now)
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.logger.Warn("session store full, declining",
			"max_sessions", m.maxSessions,
			"context_id", c.ID,
			"user_id", u.ID)
		return nil, nil
	}

	if m.limit != rate.Inf {
		key := guestKey(c.ID, u.ID)
		limiter, ok := m.limiters[key]
		if !ok {
			limiter = rate.NewLimiter(m.limit, m.burst)
			m.limiters[key] = limiter
		}
		if !limiter.AllowN(now, 1) {
			m.logger.Warn("session issuance rate limited",
				"context_id", c.ID,
				"user_id", u.ID)
			return nil, apperror.New(apperror.ErrRateLimited,
				fmt.Sprintf("too many sessions requested for guest %d, try again later", u.ID), nil)
		}
	}

	s := newSession(req, c, u, now)
	m.sessions[s.ID] = s
	m.logger.Info("session issued",
		"session_id", s.ID,
		"context_id", c.ID,
		"user_id", u.ID)
	return s, nil
}

// Get returns a live session by id.
func (m *MemoryIssuer) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expire(m.now())
	s, ok := m.sessions[id]
	return s, ok
}

// Remove ends a session.
func (m *MemoryIssuer) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len returns the number of live sessions.
func (m *MemoryIssuer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expire(m.now())
	return len(m.sessions)
}

// expire must be called with mu held. It also drops limiters that have
// refilled completely, since a fresh limiter behaves the same.
func (m *MemoryIssuer) expire(now time.Time) {
	for id, s := range m.sessions {
		if now.Sub(s.Created) >= m.ttl {
			delete(m.sessions, id)
		}
	}
	for key, limiter := range m.limiters {
		if limiter.TokensAt(now) >= float64(m.burst) {
			delete(m.limiters, key)
		}
	}
}
