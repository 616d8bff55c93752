package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-flux/pkg/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testCreds = models.Credentials{
	URL:          "http://localhost:8086",
	Token:        "super-secret-token-value",
	Organization: "org1",
}

func newTestStore(t *testing.T, clock *fakeClock, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	s := NewStore(Config{TTL: 2 * time.Hour, SweepInterval: time.Hour}, zaptest.NewLogger(t), opts...)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_CreateAndGet(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)

	token := s.Create(testCreds)
	assert.Len(t, token, 36)

	rec, ok := s.Get(token)
	require.True(t, ok)
	assert.Equal(t, token, rec.ID)
	assert.Equal(t, testCreds, rec.Credentials)
	assert.Equal(t, clock.Now(), rec.CreatedAt)
	assert.Equal(t, clock.Now(), rec.LastAccessedAt)
	assert.Equal(t, 1, s.ActiveCount())
}

func TestStore_TokensUnique(t *testing.T) {
	s := newTestStore(t, newFakeClock())

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		token := s.Create(testCreds)
		require.False(t, seen[token], "duplicate token %s", token)
		seen[token] = true
	}
	assert.Equal(t, 1000, s.ActiveCount())
}

func TestStore_CreateRetriesOnCollision(t *testing.T) {
	tokens := []string{"dup", "dup", "fresh"}
	i := 0
	gen := func() string {
		tok := tokens[i]
		i++
		return tok
	}
	s := newTestStore(t, newFakeClock(), WithTokenGenerator(gen))

	assert.Equal(t, "dup", s.Create(testCreds))
	assert.Equal(t, "fresh", s.Create(testCreds))
	assert.Equal(t, 2, s.ActiveCount())
}

func TestStore_GetUnknown(t *testing.T) {
	s := newTestStore(t, newFakeClock())

	rec, ok := s.Get("does-not-exist")
	assert.False(t, ok)
	assert.Nil(t, rec)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := newTestStore(t, newFakeClock())
	token := s.Create(testCreds)

	rec, ok := s.Get(token)
	require.True(t, ok)
	rec.Credentials.Organization = "mutated"

	again, ok := s.Get(token)
	require.True(t, ok)
	assert.Equal(t, "org1", again.Credentials.Organization)
}

func TestStore_SlidingWindowKeepsSessionAlive(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)
	token := s.Create(testCreds)
	created := clock.Now()

	// Touch every 90 minutes for 10 hours; never idle longer than the TTL.
	for i := 0; i < 7; i++ {
		clock.Advance(90 * time.Minute)
		rec, ok := s.Get(token)
		require.True(t, ok, "session expired on touch %d", i)
		assert.Equal(t, clock.Now(), rec.LastAccessedAt)
		assert.Equal(t, created, rec.CreatedAt)
	}

	assert.Equal(t, 0, s.Sweep())
}

func TestStore_ExpiresAfterIdleTTL(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)
	token := s.Create(testCreds)

	clock.Advance(2*time.Hour + time.Second)

	_, ok := s.Get(token)
	assert.False(t, ok)
	assert.Equal(t, 0, s.ActiveCount(), "lazy expiry should remove the record")

	// Expired is terminal: a later Get still misses.
	_, ok = s.Get(token)
	assert.False(t, ok)
}

func TestStore_ExactlyTTLIsStillValid(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)
	token := s.Create(testCreds)

	clock.Advance(2 * time.Hour)

	_, ok := s.Get(token)
	assert.True(t, ok)
}

func TestStore_SweepRemovesOnlyExpired(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)

	stale := s.Create(testCreds)
	clock.Advance(time.Hour)
	fresh := s.Create(testCreds)
	clock.Advance(time.Hour + time.Minute)

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.ActiveCount())

	_, ok := s.Get(stale)
	assert.False(t, ok)
	_, ok = s.Get(fresh)
	assert.True(t, ok)
}

func TestStore_SweepAndGetAgree(t *testing.T) {
	for _, idle := range []time.Duration{time.Hour, 2 * time.Hour, 2*time.Hour + time.Nanosecond, 3 * time.Hour} {
		t.Run(idle.String(), func(t *testing.T) {
			clock := newFakeClock()
			viaGet := newTestStore(t, clock)
			viaSweep := newTestStore(t, clock)
			a := viaGet.Create(testCreds)
			viaSweep.Create(testCreds)

			clock.Advance(idle)

			_, alive := viaGet.Get(a)
			swept := viaSweep.Sweep()
			assert.Equal(t, alive, swept == 0)
		})
	}
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t, newFakeClock())
	token := s.Create(testCreds)

	assert.True(t, s.Delete(token))
	assert.False(t, s.Delete(token))

	_, ok := s.Get(token)
	assert.False(t, ok)
	assert.Equal(t, 0, s.ActiveCount())
}

func TestStore_NeverLogsToken(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	clock := newFakeClock()
	s := NewStore(Config{}, zap.New(core), WithClock(clock.Now))
	defer s.Close()

	token := s.Create(testCreds)
	clock.Advance(3 * time.Hour)
	s.Get(token)
	s.Delete(token)

	require.NotZero(t, logs.Len())
	for _, entry := range logs.All() {
		for _, f := range entry.Context {
			assert.NotContains(t, fmt.Sprint(entry.ContextMap()[f.Key]), testCreds.Token)
		}
	}
}

func TestStore_BackgroundSweep(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(Config{TTL: time.Minute, SweepInterval: 10 * time.Millisecond}, zaptest.NewLogger(t), WithClock(clock.Now))
	defer s.Close()

	s.Create(testCreds)
	clock.Advance(2 * time.Minute)

	require.Eventually(t, func() bool {
		return s.ActiveCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	s := NewStore(Config{SweepInterval: time.Millisecond}, zaptest.NewLogger(t))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	select {
	case <-s.done:
	default:
		t.Fatal("sweep goroutine still running after Close")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, clock)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				token := s.Create(testCreds)
				if _, ok := s.Get(token); !ok {
					t.Errorf("fresh session missing")
				}
				if j%2 == 0 {
					s.Delete(token)
				}
				s.Sweep()
				s.ActiveCount()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20*50, s.ActiveCount())
}

func TestNewStore_Defaults(t *testing.T) {
	s := NewStore(Config{}, nil)
	defer s.Close()

	assert.Equal(t, DefaultTTL, s.TTL())
	assert.Equal(t, DefaultSweepInterval, s.interval)
}
