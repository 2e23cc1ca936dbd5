package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Lifecycle states reported by Manager.Status.
const (
	StateUninitialized = "uninitialized"
	StateBuilding      = "building"
	StateReady         = "ready"
)

// DefaultRefreshDebounce batches rapid successive ingestions into one rebuild.
const DefaultRefreshDebounce = 3 * time.Second

// BuildFunc produces a fresh snapshot. Implementations apply their own
// timeouts; the manager never cancels an in-flight build.
type BuildFunc func(ctx context.Context) (*Snapshot, error)

// Manager owns the process-wide snapshot lifecycle: lazy build on first use,
// single-flight rebuilds, and debounced background refresh after ingestion.
// The snapshot pointer is replaced wholesale so concurrent readers always see
// a consistent (possibly stale) view.
type Manager struct {
	build    BuildFunc
	debounce time.Duration

	group    singleflight.Group
	inflight atomic.Int32
	snap     atomic.Pointer[Snapshot]

	mu    sync.Mutex
	timer *time.Timer
}

// NewManager creates a Manager. A non-positive debounce falls back to
// DefaultRefreshDebounce.
func NewManager(build BuildFunc, debounce time.Duration) *Manager {
	if debounce <= 0 {
		debounce = DefaultRefreshDebounce
	}
	return &Manager{build: build, debounce: debounce}
}

// Current returns the latest ready snapshot, or nil before the first
// successful build. Callers must re-fetch per request rather than caching
// the pointer.
func (m *Manager) Current() *Snapshot {
	return m.snap.Load()
}

// Status reports the lifecycle state.
func (m *Manager) Status() string {
	if m.inflight.Load() > 0 {
		return StateBuilding
	}
	if m.snap.Load() != nil {
		return StateReady
	}
	return StateUninitialized
}

// EnsureReady returns the current snapshot, lazily building it on first use.
// Concurrent callers while uninitialized share exactly one underlying build.
// A failed build leaves the manager uninitialized so the next access retries.
func (m *Manager) EnsureReady(ctx context.Context) (*Snapshot, error) {
	if s := m.snap.Load(); s != nil {
		return s, nil
	}
	return m.rebuild(ctx)
}

// Refresh rebuilds immediately, coalescing with any in-flight build.
func (m *Manager) Refresh(ctx context.Context) (*Snapshot, error) {
	return m.rebuild(ctx)
}

// RefreshInBackground schedules a rebuild after the debounce window. Repeat
// calls within the window reset it; calls during an in-flight build coalesce
// into that build via the single-flight group.
func (m *Manager) RefreshInBackground() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Reset(m.debounce)
		return
	}
	m.timer = time.AfterFunc(m.debounce, func() {
		m.mu.Lock()
		m.timer = nil
		m.mu.Unlock()
		if _, err := m.rebuild(context.Background()); err != nil {
			zap.L().Warn("snapshot: background refresh failed", zap.Error(err))
		}
	})
}

// rebuild runs the build under the single-flight guard. The build uses a
// detached context so one caller's cancellation cannot poison the shared
// result.
func (m *Manager) rebuild(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err, _ := m.group.Do("build", func() (any, error) {
		m.inflight.Add(1)
		defer m.inflight.Add(-1)

		s, err := m.build(context.Background())
		if err != nil {
			return nil, err
		}
		m.snap.Store(s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}
