package session

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool runs several decoder sessions concurrently, bounding how many may
// have an in-flight map_frame wait at once and propagating the first
// session error — generalizing the single-session-per-thread model of §5
// ("parallelism is expressed by running independent sessions on
// independent threads") the way cmd/prism/main.go uses an errgroup to run
// its ingest/distribution goroutines.
type Pool struct {
	log *slog.Logger
	sem *semaphore.Weighted

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewPool returns a Pool allowing at most maxConcurrentMaps sessions to be
// blocked inside map_frame simultaneously. A maxConcurrentMaps of 0 means
// unbounded.
func NewPool(logger *slog.Logger, maxConcurrentMaps int64) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	var sem *semaphore.Weighted
	if maxConcurrentMaps > 0 {
		sem = semaphore.NewWeighted(maxConcurrentMaps)
	}
	return &Pool{
		log:      logger.With("component", "session-pool"),
		sem:      sem,
		sessions: make(map[string]*Session),
	}
}

// Add registers s under key for later lookup/removal. Returns false if key
// is already in use.
func (p *Pool) Add(key string, s *Session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.sessions[key]; exists {
		p.log.Warn("session key already registered", "key", key)
		return false
	}
	p.sessions[key] = s
	return true
}

// Remove unregisters and returns the session at key, if any.
func (p *Pool) Remove(key string) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[key]
	if ok {
		delete(p.sessions, key)
	}
	return s, ok
}

// Get returns the session registered at key, if any.
func (p *Pool) Get(key string) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[key]
	return s, ok
}

// List returns every currently registered session key.
func (p *Pool) List() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.sessions))
	for k := range p.sessions {
		keys = append(keys, k)
	}
	return keys
}

// AcquireMapSlot blocks until a map_frame concurrency slot is available
// (or the pool is unbounded), returning a release function the caller must
// call exactly once.
func (p *Pool) AcquireMapSlot(ctx context.Context) (release func(), err error) {
	if p.sem == nil {
		return func() {}, nil
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { p.sem.Release(1) }, nil
}

// Run drives fn for every registered session concurrently via an
// errgroup, returning the first non-nil error any fn returns and
// canceling the shared context for the rest, matching cmd/prism/main.go's
// errgroup.WithContext pattern.
func (p *Pool) Run(ctx context.Context, fn func(ctx context.Context, key string, s *Session) error) error {
	g, gctx := errgroup.WithContext(ctx)
	p.mu.Lock()
	snapshot := make(map[string]*Session, len(p.sessions))
	for k, s := range p.sessions {
		snapshot[k] = s
	}
	p.mu.Unlock()

	for key, s := range snapshot {
		key, s := key, s
		g.Go(func() error {
			return fn(gctx, key, s)
		})
	}
	return g.Wait()
}
