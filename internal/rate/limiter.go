package rate

import (
	"context"
	"sync"
	"time"
)

// Config is the outbound budget for one upstream operation.
// A RequestsPerSecond of zero or less means unlimited.
type Config struct {
	RequestsPerSecond int
	Burst             int
}

func (c Config) unlimited() bool { return c.RequestsPerSecond <= 0 }

// Limiter is a token bucket. The bucket starts full.
type Limiter struct {
	mu     sync.Mutex
	cfg    Config
	tokens float64
	stamp  time.Time
	now    func() time.Time
}

func New(cfg Config) *Limiter {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	l := &Limiter{cfg: cfg, now: time.Now}
	l.tokens = float64(cfg.Burst)
	l.stamp = l.now()
	return l
}

// refill tops up the bucket for the time since the last call. Callers hold mu.
func (l *Limiter) refill() {
	now := l.now()
	l.tokens += now.Sub(l.stamp).Seconds() * float64(l.cfg.RequestsPerSecond)
	if burst := float64(l.cfg.Burst); l.tokens > burst {
		l.tokens = burst
	}
	l.stamp = now
}

// Allow takes a token if one is available right now.
func (l *Limiter) Allow() bool {
	return l.reserve(false) == 0
}

// reserve returns how long the caller must wait for its token. With commit set
// the token is taken even when it is not yet available (the bucket goes
// negative); otherwise nothing is taken unless the wait is zero.
func (l *Limiter) reserve(commit bool) time.Duration {
	if l.cfg.unlimited() {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens >= 1 {
		l.tokens--
		return 0
	}
	deficit := 1 - l.tokens
	wait := time.Duration(deficit / float64(l.cfg.RequestsPerSecond) * float64(time.Second))
	if commit {
		l.tokens--
	}
	return wait
}

// Wait blocks until the caller's token is due or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	wait := l.reserve(true)
	if wait == 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		l.tokens++
		l.mu.Unlock()
		return ctx.Err()
	}
}

// Manager keeps one Limiter per operation. Operations without an override
// share the defaults (but not a bucket).
type Manager struct {
	mu        sync.RWMutex
	defaults  Config
	overrides map[string]Config
	limiters  map[string]*Limiter
}

func NewManager(defaults Config) *Manager {
	return &Manager{
		defaults:  defaults,
		overrides: make(map[string]Config),
		limiters:  make(map[string]*Limiter),
	}
}

// Set overrides the budget for op. Any existing bucket for op is replaced.
func (m *Manager) Set(op string, cfg Config) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[op] = cfg
	delete(m.limiters, op)
	return m
}

func (m *Manager) GetLimiter(op string) *Limiter {
	m.mu.RLock()
	lim, ok := m.limiters[op]
	m.mu.RUnlock()
	if ok {
		return lim
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[op]; ok {
		return lim
	}
	cfg, ok := m.overrides[op]
	if !ok {
		cfg = m.defaults
	}
	lim = New(cfg)
	m.limiters[op] = lim
	return lim
}

// Wait blocks until op may issue another request.
func (m *Manager) Wait(ctx context.Context, op string) error {
	return m.GetLimiter(op).Wait(ctx)
}
