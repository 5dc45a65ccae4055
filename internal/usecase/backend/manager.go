package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/colsearch/internal/domain"
	"github.com/kailas-cloud/colsearch/internal/domain/search/result"
	"github.com/kailas-cloud/colsearch/internal/metrics"
)

// State is the lifecycle state of the backend.
type State string

const (
	// Uninitialized means no construction attempt has started.
	Uninitialized State = "uninitialized"
	// Initializing means a construction attempt is in flight.
	Initializing State = "initializing"
	// Ready means the engine is loaded and serving.
	Ready State = "ready"
	// Failed means construction failed. Only Restart leaves this state.
	Failed State = "failed"
)

// Manager owns the single Engine instance of the process.
//
// The mutex guards state transitions only. Construction runs outside the lock on
// the manager's own context, and callers await it through the done channel, so at
// most one construction is ever in flight. The ready engine is published once
// through live; Search loads it without locking.
type Manager struct {
	factory    Factory
	decorators []Decorator
	indexRoot  string
	indexName  string
	logger     *zap.Logger

	live atomic.Pointer[liveEngine]

	mu     sync.Mutex
	state  State
	err    error
	done   chan struct{}
	closed bool

	// baseCtx outlives any single request; construction is bound to it.
	baseCtx context.Context
	cancel  context.CancelFunc
}

type liveEngine struct {
	Engine
}

// NewManager creates a Manager in the Uninitialized state.
func NewManager(factory Factory, indexRoot, indexName string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		factory:   factory,
		indexRoot: indexRoot,
		indexName: indexName,
		logger:    logger,
		state:     Uninitialized,
		baseCtx:   ctx,
		cancel:    cancel,
	}
	metrics.SetBackendState(string(Uninitialized))
	return m
}

// WithDecorators wraps the constructed engine, innermost first.
func (m *Manager) WithDecorators(ds ...Decorator) *Manager {
	m.decorators = append(m.decorators, ds...)
	return m
}

// IndexName returns the name of the index the manager serves.
func (m *Manager) IndexName() string { return m.indexName }

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the construction error when Failed, nil otherwise.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Start triggers construction in the background without waiting for it.
func (m *Manager) Start() {
	m.mu.Lock()
	m.beginLocked()
	m.mu.Unlock()
}

// Init starts construction if nothing has started yet, then waits for the outcome.
// All concurrent callers observe the same outcome. If ctx ends first the caller stops
// waiting with domain.ErrBackendUnavailable; construction continues for everyone else.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	done := m.beginLocked()
	m.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for initialization: %w", domain.ErrBackendUnavailable, ctx.Err())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Failed {
		return m.err
	}
	return nil
}

// beginLocked starts the construction attempt when Uninitialized and returns the
// channel that closes when the current attempt completes. m.mu must be held.
func (m *Manager) beginLocked() <-chan struct{} {
	if m.state != Uninitialized {
		return m.done
	}
	m.state = Initializing
	m.done = make(chan struct{})
	metrics.SetBackendState(string(Initializing))

	go m.construct(m.done)
	return m.done
}

func (m *Manager) construct(done chan struct{}) {
	start := time.Now()
	m.logger.Info("Initializing retrieval backend",
		zap.String("index_root", m.indexRoot),
		zap.String("index_name", m.indexName),
	)

	engine, err := m.build()
	duration := time.Since(start)

	var discard Engine
	m.mu.Lock()
	switch {
	case err != nil:
		m.state = Failed
		m.err = fmt.Errorf("%w: %w", domain.ErrBackendInit, err)
		m.logger.Error("Retrieval backend initialization failed",
			zap.String("index_name", m.indexName),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		metrics.ObserveBackendInit("error", duration)
	case m.closed:
		// Close already ran and will not see this engine.
		discard = engine
		m.state = Failed
		m.err = errClosed
		m.logger.Warn("Retrieval backend finished after close, discarding",
			zap.String("index_name", m.indexName),
			zap.Duration("duration", duration),
		)
	default:
		m.state = Ready
		m.live.Store(&liveEngine{Engine: engine})
		m.logger.Info("Retrieval backend ready",
			zap.String("index_name", m.indexName),
			zap.Duration("duration", duration),
		)
		metrics.ObserveBackendInit("success", duration)
	}
	metrics.SetBackendState(string(m.state))
	m.mu.Unlock()

	if discard != nil {
		if err := closeEngine(discard); err != nil {
			m.logger.Warn("Failed to close discarded backend", zap.Error(err))
		}
	}
	close(done)
}

// build calls the factory, turning a panic into an error so the state machine always settles.
func (m *Manager) build() (engine Engine, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine construction panicked: %v", r)
		}
	}()
	engine, err = m.factory(m.baseCtx, m.indexRoot, m.indexName)
	if err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, errors.New("factory returned nil engine")
	}
	for _, d := range m.decorators {
		engine = d(engine)
	}
	return engine, nil
}

// ErrNotFailed is returned by Retry and Restart outside the Failed state.
var ErrNotFailed = errors.New("backend is not in failed state")

var errClosed = fmt.Errorf("%w: manager is closed", domain.ErrBackendUnavailable)

// Retry starts a new construction attempt after a failure without waiting for it.
func (m *Manager) Retry() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	if m.state != Failed {
		return fmt.Errorf("%w: state is %q", ErrNotFailed, m.state)
	}
	m.logger.Warn("Restarting retrieval backend after failure", zap.NamedError("previous_error", m.err))
	m.state = Uninitialized
	m.err = nil
	m.beginLocked()
	return nil
}

// Restart is Retry followed by waiting for the new attempt.
func (m *Manager) Restart(ctx context.Context) error {
	if err := m.Retry(); err != nil {
		return err
	}
	return m.Init(ctx)
}

// Search runs a query against the ready engine.
// It never waits for initialization: outside Ready it fails with domain.ErrBackendUnavailable.
func (m *Manager) Search(ctx context.Context, query string, k int) ([]result.Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrInvalidQuery
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidRequest, k)
	}

	engine, err := m.ready()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	hits, err := engine.Search(ctx, query, k)
	if err != nil {
		metrics.ObserveBackendSearch("error", time.Since(start))
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendInternal, err)
	}
	metrics.ObserveBackendSearch("success", time.Since(start))

	if len(hits) > k {
		m.logger.Warn("Engine returned more hits than requested",
			zap.Int("k", k), zap.Int("returned", len(hits)))
		hits = hits[:k]
	}
	return hits, nil
}

func (m *Manager) ready() (Engine, error) {
	if le := m.live.Load(); le != nil {
		return le.Engine, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Ready:
		return m.live.Load().Engine, nil
	case Failed:
		return nil, fmt.Errorf("%w: %w", domain.ErrBackendUnavailable, m.err)
	default:
		return nil, fmt.Errorf("%w: backend is %s", domain.ErrBackendUnavailable, m.state)
	}
}

// Close cancels any in-flight construction and releases the engine.
// The manager ends in Failed and refuses further searches and retries. An engine
// built after Close returns is closed as soon as its construction finishes.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.cancel()

	le := m.live.Swap(nil)
	switch m.state {
	case Uninitialized:
		// Init callers must not wait on a construction that will never start.
		m.done = make(chan struct{})
		close(m.done)
		m.state, m.err = Failed, errClosed
	case Ready:
		m.state, m.err = Failed, errClosed
	}
	metrics.SetBackendState(string(m.state))
	m.mu.Unlock()

	if le == nil {
		return nil
	}
	if err := closeEngine(le.Engine); err != nil {
		return fmt.Errorf("close engine: %w", err)
	}
	return nil
}

func closeEngine(e Engine) error {
	if c, ok := e.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
