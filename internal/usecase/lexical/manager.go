package lexical

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// scopeState tracks one scope's snapshot. A nil index with built=true means
// the scope is known to be empty.
type scopeState struct {
	mu       sync.Mutex
	index    *Index
	docCount int
	built    bool
	dirty    bool
}

// Manager hands out BM25 snapshots per scope, rebuilding lazily on first
// access, after an explicit dirty mark, on a forced refresh, or when the
// stored document count has drifted from the snapshot. Rebuilds of different
// scopes proceed in parallel; rebuilds of the same scope serialize.
type Manager struct {
	source   DocumentSource
	rebuilds *prometheus.CounterVec
	logger   *zap.Logger

	mu     sync.Mutex
	scopes map[string]*scopeState
}

// NewManager creates a manager over the given document source. rebuilds is a
// counter vec labelled by trigger ("initial", "dirty", "forced", "drift").
func NewManager(source DocumentSource, rebuilds *prometheus.CounterVec, logger *zap.Logger) *Manager {
	return &Manager{
		source:   source,
		rebuilds: rebuilds,
		logger:   logger,
		scopes:   make(map[string]*scopeState),
	}
}

// GetIndex returns the scope's current snapshot, rebuilding it first if any
// rebuild trigger applies. A nil index with a nil error means the scope holds
// no documents. When a drift check fails but a previous snapshot exists, the
// stale snapshot is served rather than failing the search.
func (m *Manager) GetIndex(ctx context.Context, scope string, force bool) (*Index, error) {
	st := m.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()

	trigger := ""
	switch {
	case !st.built:
		trigger = "initial"
	case st.dirty:
		trigger = "dirty"
	case force:
		trigger = "forced"
	default:
		count, err := m.source.Count(ctx, scope)
		if err != nil {
			m.logger.Warn("Lexical drift check failed, serving stale snapshot",
				zap.String("scope", scope), zap.Error(err))
			return st.index, nil
		}
		if count != st.docCount {
			trigger = "drift"
		}
	}

	if trigger == "" {
		return st.index, nil
	}
	if err := m.rebuildLocked(ctx, scope, st, trigger); err != nil {
		if st.built {
			m.logger.Warn("Lexical rebuild failed, serving stale snapshot",
				zap.String("scope", scope), zap.Error(err))
			return st.index, nil
		}
		return nil, err
	}
	return st.index, nil
}

// MarkDirty flags a scope so its next access rebuilds. Unknown scopes need no
// flag: their first access rebuilds anyway.
func (m *Manager) MarkDirty(scope string) {
	m.mu.Lock()
	st, ok := m.scopes[scope]
	m.mu.Unlock()
	if !ok {
		return
	}
	st.mu.Lock()
	st.dirty = true
	st.mu.Unlock()
}

// Rebuild refreshes one scope's snapshot immediately.
func (m *Manager) Rebuild(ctx context.Context, scope string) error {
	st := m.state(scope)
	st.mu.Lock()
	defer st.mu.Unlock()
	return m.rebuildLocked(ctx, scope, st, "forced")
}

// RebuildAll refreshes every scope the manager has seen. The first error is
// returned after all scopes have been attempted.
func (m *Manager) RebuildAll(ctx context.Context) error {
	m.mu.Lock()
	names := make([]string, 0, len(m.scopes))
	for name := range m.scopes {
		names = append(names, name)
	}
	m.mu.Unlock()

	var firstErr error
	for _, name := range names {
		if err := m.Rebuild(ctx, name); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("rebuild scope %s: %w", name, err)
		}
	}
	return firstErr
}

func (m *Manager) state(scope string) *scopeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.scopes[scope]
	if !ok {
		st = &scopeState{}
		m.scopes[scope] = st
	}
	return st
}

func (m *Manager) rebuildLocked(ctx context.Context, scope string, st *scopeState, trigger string) error {
	docs, err := m.source.Load(ctx, scope)
	if err != nil {
		return fmt.Errorf("load scope %s: %w", scope, err)
	}

	st.index = BuildIndex(docs)
	st.docCount = len(docs)
	st.built = true
	st.dirty = false

	if m.rebuilds != nil {
		m.rebuilds.WithLabelValues(trigger).Inc()
	}
	m.logger.Info("Rebuilt lexical index",
		zap.String("scope", scope),
		zap.String("trigger", trigger),
		zap.Int("documents", len(docs)))
	return nil
}
