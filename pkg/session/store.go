package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-flux/pkg/models"
)

const (
	DefaultTTL           = 2 * time.Hour
	DefaultSweepInterval = 30 * time.Minute
)

// Config holds configuration for the session store.
type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces time.Now as the store's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithTokenGenerator replaces the UUIDv4 token source.
func WithTokenGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newToken = gen
	}
}

// Store keeps sessions in memory with a sliding idle TTL. Expired records are
// removed lazily by Get and periodically by a background sweep until Close.
// Every operation runs as a single critical section under mu.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*models.SessionRecord
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	newToken func() string
	stopped  bool
	stopChan chan struct{}
	done     chan struct{}
	logger   *zap.Logger
}

// NewStore creates a session store and starts its sweep goroutine.
func NewStore(cfg Config, logger *zap.Logger, opts ...Option) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		sessions: make(map[string]*models.SessionRecord),
		ttl:      cfg.TTL,
		interval: cfg.SweepInterval,
		now:      time.Now,
		newToken: uuid.NewString,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Named("session"),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.sweepLoop()
	return s
}

// Create stores a new session for creds and returns its token.
func (s *Store) Create(creds models.Credentials) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := s.newToken()
	for {
		if _, taken := s.sessions[token]; !taken {
			break
		}
		token = s.newToken()
	}

	now := s.now()
	s.sessions[token] = &models.SessionRecord{
		ID:             token,
		Credentials:    creds,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	s.logger.Info("session created",
		zap.Object("credentials", creds),
		zap.Int("active", len(s.sessions)),
	)
	return token
}

// Get returns a copy of the session for token and slides its expiry forward.
// Unknown and expired tokens report false; an expired record is removed.
func (s *Store) Get(token string) (*models.SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[token]
	if !ok {
		return nil, false
	}

	now := s.now()
	if s.isExpired(rec, now) {
		delete(s.sessions, token)
		s.logger.Debug("session expired on access",
			zap.Object("credentials", rec.Credentials),
			zap.Duration("idle", now.Sub(rec.LastAccessedAt)),
		)
		return nil, false
	}

	rec.LastAccessedAt = now
	cp := *rec
	return &cp, true
}

// Delete removes the session for token, reporting whether it existed.
func (s *Store) Delete(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[token]
	if !ok {
		return false
	}
	delete(s.sessions, token)
	s.logger.Info("session deleted", zap.Object("credentials", rec.Credentials))
	return true
}

// Sweep removes every expired session and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, rec := range s.sessions {
		if s.isExpired(rec, now) {
			delete(s.sessions, token)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("swept expired sessions",
			zap.Int("count", removed),
			zap.Int("remaining", len(s.sessions)),
		)
	}
	return removed
}

// ActiveCount returns the number of stored sessions, including expired ones not yet swept.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// TTL returns the sliding idle timeout.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Close stops the sweep goroutine and waits for it to exit.
// This method is idempotent and safe to call multiple times.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.stopped = true
	close(s.stopChan)
	s.mu.Unlock()

	<-s.done
	s.logger.Info("session store closed")
	return nil
}

// isExpired is the single expiry predicate shared by Get and Sweep.
// Caller must hold s.mu.
func (s *Store) isExpired(rec *models.SessionRecord, now time.Time) bool {
	return now.Sub(rec.LastAccessedAt) > s.ttl
}

func (s *Store) sweepLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopChan:
			return
		}
	}
}
