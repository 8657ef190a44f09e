package explorer

import (
	"context"
	"errors"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/OFFIS-RIT/lineage/pkg/logger"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// DefaultIdleTTL is how long an untouched session lives.
const DefaultIdleTTL = 30 * time.Minute

// Registry keeps the live sessions of the server.
type Registry struct {
	deps     Deps
	ttl      time.Duration
	onChange func(int)

	mu       sync.RWMutex
	sessions map[string]*Explorer
}

// NewRegistryParams configures a Registry. OnChange is called with the
// number of live sessions whenever it changes.
type NewRegistryParams struct {
	Deps     Deps
	TTL      time.Duration
	OnChange func(int)
}

func NewRegistry(params NewRegistryParams) *Registry {
	ttl := params.TTL
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return &Registry{
		deps:     params.Deps,
		ttl:      ttl,
		onChange: params.OnChange,
		sessions: make(map[string]*Explorer),
	}
}

// Create starts a new session owned by owner.
func (r *Registry) Create(owner string) (*Explorer, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	x := New(id, owner, r.deps)

	r.mu.Lock()
	r.sessions[id] = x
	n := len(r.sessions)
	r.mu.Unlock()

	logger.Info("Session created", "session", id, "owner", owner)
	r.changed(n)
	return x, nil
}

func (r *Registry) Get(id string) (*Explorer, error) {
	r.mu.RLock()
	x, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return x, nil
}

// Close stops and forgets a session.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	x, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	x.Close()
	logger.Info("Session closed", "session", id)
	r.changed(n)
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than the TTL and returns how many
// were closed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	var expired []*Explorer
	for id, x := range r.sessions {
		if now.Sub(x.IdleSince()) > r.ttl {
			expired = append(expired, x)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, x := range expired {
		x.Close()
		logger.Info("Session expired", "session", x.ID())
	}
	if len(expired) > 0 {
		r.changed(n)
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done and then closes all sessions.
func (r *Registry) Run(ctx context.Context) error {
	interval := r.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return nil
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Explorer)
	r.mu.Unlock()

	for _, x := range all {
		x.Close()
	}
	r.changed(0)
}

func (r *Registry) changed(n int) {
	if r.onChange != nil {
		r.onChange(n)
	}
}
