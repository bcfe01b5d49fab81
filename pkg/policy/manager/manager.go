package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/luthien/pkg/policy"
	"mercator-hq/luthien/pkg/policy/store"
	"mercator-hq/luthien/pkg/telemetry/logging"
	"mercator-hq/luthien/pkg/telemetry/metrics"

	"github.com/robfig/cron/v3"
)

// Reload triggers, used as the metrics label.
const (
	TriggerStartup  = "startup"
	TriggerWatch    = "watch"
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// ErrNotReady is returned by Reload callers that need a tree when none has
// ever loaded.
var ErrNotReady = errors.New("policy tree not loaded")

// Loader builds a policy tree by name.
type Loader interface {
	Load(ctx context.Context, name string) (policy.Policy, error)
}

// Options configures a Manager.
type Options struct {
	// Root is the name of the top-level policy.
	Root string

	// Metrics receives reload outcomes. Nil disables metrics.
	Metrics *metrics.Collector

	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// Snapshot is an immutable view of one successful load.
type Snapshot struct {
	Root     policy.Policy
	LoadedAt time.Time
	Version  uint64
	Revision string
}

// Status reports the manager's reload history.
type Status struct {
	Ready     bool
	Version   uint64
	Revision  string
	LoadedAt  time.Time
	LastError error
}

// Manager holds the current root policy and replaces it on reload.
type Manager struct {
	root    string
	loader  Loader
	store   store.Store
	metrics *metrics.Collector
	logger  *slog.Logger

	current atomic.Pointer[Snapshot]

	// mu serializes reloads and guards lastErr.
	mu      sync.Mutex
	version uint64
	lastErr error
}

// New returns a Manager with no tree loaded. Call Reload before serving.
func New(l Loader, s store.Store, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	root := opts.Root
	if root == "" {
		root = "root"
	}
	return &Manager{
		root:    root,
		loader:  l,
		store:   s,
		metrics: opts.Metrics,
		logger:  logger.With("component", "policy.manager"),
	}
}

// Current returns the active root policy, or nil before the first
// successful load.
func (m *Manager) Current() policy.Policy {
	if s := m.current.Load(); s != nil {
		return s.Root
	}
	return nil
}

// Snapshot returns the active snapshot, or nil.
func (m *Manager) Snapshot() *Snapshot {
	return m.current.Load()
}

// Ready reports whether a tree has been loaded.
func (m *Manager) Ready() bool {
	return m.current.Load() != nil
}

// Check implements a readiness probe.
func (m *Manager) Check(context.Context) error {
	if !m.Ready() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.lastErr != nil {
			return fmt.Errorf("%w: %v", ErrNotReady, m.lastErr)
		}
		return ErrNotReady
	}
	return nil
}

// Status returns the current reload state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{LastError: m.lastErr}
	if s := m.current.Load(); s != nil {
		st.Ready = true
		st.Version = s.Version
		st.Revision = s.Revision
		st.LoadedAt = s.LoadedAt
	}
	return st
}

// Reload refreshes the store, builds a new tree and swaps it in. On any error
// the previous tree stays active and the error is returned.
func (m *Manager) Reload(ctx context.Context, trigger string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	changed, err := m.refresh(ctx, trigger)
	if err == nil && !changed && trigger == TriggerSchedule && m.current.Load() != nil {
		m.logger.DebugContext(ctx, "policy source unchanged", "trigger", trigger)
		return nil
	}

	var root policy.Policy
	if err == nil {
		root, err = m.loader.Load(ctx, m.root)
	}
	m.metrics.RecordPolicyReload(trigger, err == nil)

	if err != nil {
		m.lastErr = err
		attrs := []any{"root", m.root, "trigger", trigger, "error", err}
		if m.current.Load() != nil {
			m.logger.ErrorContext(ctx, "policy reload failed, keeping previous tree", attrs...)
		} else {
			m.logger.ErrorContext(ctx, "policy load failed", attrs...)
		}
		return fmt.Errorf("reload policy %q: %w", m.root, err)
	}

	m.version++
	snap := &Snapshot{Root: root, LoadedAt: time.Now(), Version: m.version, Revision: m.revision()}
	m.current.Store(snap)
	m.lastErr = nil

	m.logger.InfoContext(ctx, "policy tree loaded",
		"root", m.root,
		"trigger", trigger,
		"version", snap.Version,
		"revision", snap.Revision,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// refresh re-reads stores that cache their content. It reports whether the
// source may have changed.
func (m *Manager) refresh(ctx context.Context, trigger string) (bool, error) {
	switch s := m.store.(type) {
	case *store.FileStore:
		if err := s.Reload(); err != nil {
			return false, err
		}
		return true, nil
	case *store.GitStore:
		if trigger == TriggerStartup {
			return true, nil
		}
		return s.Sync(ctx)
	default:
		return true, nil
	}
}

func (m *Manager) revision() string {
	if g, ok := m.store.(*store.GitStore); ok {
		return g.Head()
	}
	return ""
}

// WatchOptions selects the reload triggers started by Run.
type WatchOptions struct {
	// WatchPath enables a file watch on this path when non-empty.
	WatchPath string

	// Debounce collapses bursts of file events. Default 200ms.
	Debounce time.Duration

	// Schedule is a cron expression for periodic reloads. Empty disables it.
	Schedule string
}

// Run starts the configured reload triggers and blocks until ctx is done.
// It returns an error only when a trigger cannot be started.
func (m *Manager) Run(ctx context.Context, opts WatchOptions) error {
	if opts.WatchPath == "" && opts.Schedule == "" {
		<-ctx.Done()
		return nil
	}

	var c *cron.Cron
	if opts.Schedule != "" {
		c = cron.New()
		if _, err := c.AddFunc(opts.Schedule, func() {
			_ = m.Reload(ctx, TriggerSchedule)
		}); err != nil {
			return fmt.Errorf("invalid reload schedule %q: %w", opts.Schedule, err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
		m.logger.InfoContext(ctx, "scheduled policy reload enabled", "schedule", opts.Schedule)
	}

	if opts.WatchPath != "" {
		w, err := NewFileWatcher(WatcherConfig{Path: opts.WatchPath, DebounceInterval: opts.Debounce}, m.logger)
		if err != nil {
			return err
		}
		return w.Watch(ctx, func() error {
			return m.Reload(ctx, TriggerWatch)
		})
	}

	<-ctx.Done()
	return nil
}
