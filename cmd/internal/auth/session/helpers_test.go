package session

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tekauth/cmd/security/token"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

var testNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func jwtTestConfig() Config {
	cfg := DefaultConfig()
	cfg.AccessSecret = testAccessSecret
	cfg.RefreshSecret = testRefreshSecret
	return cfg
}

func pasetoTestConfig() Config {
	cfg := DefaultConfig()
	cfg.TokenFormat = FormatPaseto
	cfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	cfg.PasetoV4LocalKeyHex = paseto.NewV4SymmetricKey().ExportHex()
	return cfg
}

func mustCodec(t *testing.T, cfg Config) TokenCodec {
	t.Helper()
	c, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("NewCodec(%s): %v", cfg.TokenFormat, err)
	}
	return c
}

// testClock is a settable clock shared by the service and the registry.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: testNow} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fixture is a Service backed by miniredis and an in-memory user table.
type fixture struct {
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	clock    *testClock
	registry *RedisRegistry
	svc      *Service
	audit    *recordingAuditor
	metrics  *Metrics

	mu    sync.Mutex
	users map[string]User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		mr:      mr,
		rdb:     rdb,
		clock:   newTestClock(),
		audit:   &recordingAuditor{},
		metrics: NewMetrics(prometheus.NewRegistry()),
		users:   map[string]User{},
	}

	cfg := jwtTestConfig()
	f.registry = NewRedisRegistry(rdb, token.NewHasher([]byte("test-hmac-key-0123456789abcdefghij")), RedisOptions{
		KeyPrefix: cfg.KeyPrefix,
		OpTimeout: cfg.OpTimeout,
		Now:       f.clock.Now,
	})

	svc, err := NewService(cfg, mustCodec(t, cfg), f.registry, f.lookup,
		WithClock(f.clock.Now),
		WithAuditor(f.audit),
		WithMetrics(f.metrics),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) putUser(u User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
}

func (f *fixture) deleteUser(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
}

func (f *fixture) lookup(_ context.Context, id string) (User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	return u, ok, nil
}

// advance moves both the token clock and Redis TTLs forward.
func (f *fixture) advance(d time.Duration) {
	f.clock.Advance(d)
	f.mr.FastForward(d)
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []Event
}

func (a *recordingAuditor) Record(_ context.Context, ev Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

func (a *recordingAuditor) types() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, ev := range a.events {
		out = append(out, ev.Type)
	}
	return out
}

// requireIndexMatchesRecords asserts that the user's index lists exactly the
// live session records.
func requireIndexMatchesRecords(t *testing.T, mr *miniredis.Miniredis, prefix, userID string) {
	t.Helper()

	recPrefix := prefix + "session:" + userID + ":"
	var live []string
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, recPrefix) {
			live = append(live, strings.TrimPrefix(k, recPrefix))
		}
	}

	var indexed []string
	if mr.Exists(prefix + "sessions:" + userID) {
		members, err := mr.SMembers(prefix + "sessions:" + userID)
		if err != nil {
			t.Fatalf("SMEMBERS: %v", err)
		}
		indexed = members
	}

	slices.Sort(live)
	slices.Sort(indexed)
	if !slices.Equal(live, indexed) {
		t.Fatalf("index %v does not match live records %v", indexed, live)
	}
}

// interleaveHook runs fn once around the first command the client sends:
// before it, or right after it succeeds.
type interleaveHook struct {
	before bool
	armed  atomic.Bool
	once   sync.Once
	fn     func()
}

func (h *interleaveHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *interleaveHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (h *interleaveHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if !h.armed.Load() {
			return next(ctx, cmd)
		}
		if h.before {
			h.once.Do(h.fn)
		}
		err := next(ctx, cmd)
		if !h.before && err == nil {
			h.once.Do(h.fn)
		}
		return err
	}
}
