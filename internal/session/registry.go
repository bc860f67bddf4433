// Package session tracks live render sessions by key, guaranteeing that a
// superseded session is fully torn down before its replacement is visible.
package session

import (
	"log/slog"
	"sync"
)

// Handle is the disposable half of a render session. Dispose must be
// idempotent; the registry may call it at most once per registration.
type Handle interface {
	Dispose()
}

// Registry manages the lifecycle of active render sessions. Exactly one
// session exists per key; registering a new one disposes its predecessor
// first.
type Registry struct {
	log      *slog.Logger
	mu       sync.Mutex
	sessions map[string]Handle
}

// NewRegistry creates a registry. If log is nil, slog.Default() is used.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:      log.With("component", "session-registry"),
		sessions: make(map[string]Handle),
	}
}

// Replace registers s under key. Any session already registered there is
// disposed, fully, before s is stored.
func (r *Registry) Replace(key string, s Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.sessions[key]; ok {
		r.log.Info("disposing superseded session", "key", key)
		old.Dispose()
	}
	r.sessions[key] = s
	r.log.Info("session registered", "key", key)
}

// Remove disposes and deregisters the session under key, if any.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	s, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
	}
	r.mu.Unlock()

	if ok {
		s.Dispose()
		r.log.Info("session removed", "key", key)
	}
}

// Get returns the session under key, or nil.
func (r *Registry) Get(key string) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[key]
}

// Keys returns the keys of all registered sessions.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	return keys
}

// Close disposes and deregisters every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]Handle)
	r.mu.Unlock()

	for key, s := range sessions {
		s.Dispose()
		r.log.Info("session removed", "key", key)
	}
}
