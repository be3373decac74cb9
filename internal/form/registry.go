package form

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const defaultIdleTimeout = 30 * time.Minute

// Observer is notified when forms are mounted or torn down.
type Observer interface {
	FormMounted()
	FormUnmounted()
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithIdleTimeout sets how long an untouched form survives a sweep.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.idle = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDGenerator overrides form ID generation.
func WithIDGenerator(gen func() string) RegistryOption {
	return func(r *Registry) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// WithObserver registers a lifecycle observer.
func WithObserver(obs Observer) RegistryOption {
	return func(r *Registry) {
		r.observer = obs
	}
}

// WithLogger sets the logger used by the sweeper.
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Registry owns the mounted forms. Mount creates a form, Unmount and Sweep
// tear forms down.
type Registry struct {
	mu       sync.RWMutex
	forms    map[string]*Form
	idle     time.Duration
	now      func() time.Time
	newID    func() string
	observer Observer
	logger   *zap.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		forms:  make(map[string]*Form),
		idle:   defaultIdleTimeout,
		now:    time.Now,
		newID:  func() string { return ulid.Make().String() },
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mount creates a form with all fields empty.
func (r *Registry) Mount() *Form {
	f := New(r.newID(), r.now())
	f.clock = r.now

	r.mu.Lock()
	r.forms[f.ID()] = f
	r.mu.Unlock()

	if r.observer != nil {
		r.observer.FormMounted()
	}
	return f
}

// Lookup returns the mounted form with the given ID.
func (r *Registry) Lookup(id string) (*Form, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.forms[id]
	return f, ok
}

// Unmount tears the form down. A submission still in flight keeps running
// against the detached form.
func (r *Registry) Unmount(id string) bool {
	r.mu.Lock()
	_, ok := r.forms[id]
	delete(r.forms, id)
	r.mu.Unlock()

	if ok && r.observer != nil {
		r.observer.FormUnmounted()
	}
	return ok
}

// Len returns the number of mounted forms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.forms)
}

// Sweep unmounts forms idle longer than the idle timeout. Forms with a
// submission in flight are kept.
func (r *Registry) Sweep(now time.Time) int {
	var expired []string

	r.mu.RLock()
	for id, f := range r.forms {
		if f.Loading() {
			continue
		}
		if now.Sub(f.Touched()) > r.idle {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	removed := 0
	for _, id := range expired {
		if r.Unmount(id) {
			removed++
		}
	}
	return removed
}

// Run sweeps on every interval tick until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := r.Sweep(r.now()); removed > 0 {
				r.logger.Debug("swept idle forms", zap.Int("removed", removed), zap.Int("mounted", r.Len()))
			}
		}
	}
}
