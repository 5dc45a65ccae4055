package backend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kailas-cloud/colsearch/internal/domain"
	"github.com/kailas-cloud/colsearch/internal/domain/search/result"
)

// --- Mocks ---

type mockEngine struct {
	hits   []result.Hit
	err    error
	calls  atomic.Int64
	closed atomic.Bool
}

func (m *mockEngine) Search(_ context.Context, _ string, k int) ([]result.Hit, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.hits, nil
}

func (m *mockEngine) Close() error {
	m.closed.Store(true)
	return nil
}

// countingFactory blocks until release is closed, then returns engine or err.
type countingFactory struct {
	calls   atomic.Int64
	release chan struct{}
	engine  Engine
	err     error
}

func newCountingFactory(engine Engine, err error) *countingFactory {
	return &countingFactory{release: make(chan struct{}), engine: engine, err: err}
}

func (f *countingFactory) build(ctx context.Context, _, _ string) (Engine, error) {
	f.calls.Add(1)
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.engine, nil
}

func readyFactory(engine Engine) Factory {
	return func(_ context.Context, _, _ string) (Engine, error) { return engine, nil }
}

func initReady(t *testing.T, m *Manager) {
	t.Helper()
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
}

// --- Tests ---

func TestManager_InitialState(t *testing.T) {
	m := NewManager(readyFactory(&mockEngine{}), "/idx", "wiki", nil)
	if m.State() != Uninitialized {
		t.Errorf("State() = %q, want %q", m.State(), Uninitialized)
	}
	if m.IndexName() != "wiki" {
		t.Errorf("IndexName() = %q", m.IndexName())
	}
}

func TestManager_ExactlyOnceConstruction(t *testing.T) {
	engine := &mockEngine{hits: []result.Hit{{ID: 1, Score: 2}}}
	f := newCountingFactory(engine, nil)
	m := NewManager(f.build, "/idx", "wiki", nil)

	const callers = 50
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make(chan error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs <- m.Init(context.Background())
		}()
	}
	close(start)

	// Let every caller reach the wait before construction completes.
	waitForState(t, m, Initializing)
	time.Sleep(20 * time.Millisecond)
	close(f.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Init returned error: %v", err)
		}
	}
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("factory called %d times, want 1", got)
	}
	if m.State() != Ready {
		t.Errorf("State() = %q, want %q", m.State(), Ready)
	}
}

func TestManager_ExactlyOnceFailure(t *testing.T) {
	f := newCountingFactory(nil, errors.New("checkpoint mismatch"))
	m := NewManager(f.build, "/idx", "wiki", nil)

	const callers = 50
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.Init(context.Background())
		}()
	}
	waitForState(t, m, Initializing)
	close(f.release)
	wg.Wait()
	close(errs)

	var first error
	for err := range errs {
		if !errors.Is(err, domain.ErrBackendInit) {
			t.Fatalf("expected ErrBackendInit, got %v", err)
		}
		if first == nil {
			first = err
		} else if err != first {
			t.Errorf("callers observed different failures: %v vs %v", first, err)
		}
	}
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("factory called %d times, want 1", got)
	}
	if m.State() != Failed {
		t.Errorf("State() = %q, want %q", m.State(), Failed)
	}
}

func TestManager_FailedIsTerminal(t *testing.T) {
	var calls atomic.Int64
	m := NewManager(func(_ context.Context, _, _ string) (Engine, error) {
		calls.Add(1)
		return nil, errors.New("index missing")
	}, "/idx", "wiki", nil)

	for i := 0; i < 3; i++ {
		if err := m.Init(context.Background()); !errors.Is(err, domain.ErrBackendInit) {
			t.Fatalf("Init #%d: expected ErrBackendInit, got %v", i, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("factory called %d times, want 1 (no automatic retry)", calls.Load())
	}

	_, err := m.Search(context.Background(), "q", 5)
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if !errors.Is(err, domain.ErrBackendInit) {
		t.Errorf("expected the init cause to be preserved, got %v", err)
	}
}

func TestManager_SearchBeforeReadyFailsFast(t *testing.T) {
	f := newCountingFactory(&mockEngine{}, nil)
	m := NewManager(f.build, "/idx", "wiki", nil)
	defer close(f.release)

	_, err := m.Search(context.Background(), "q", 5)
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("uninitialized: expected ErrBackendUnavailable, got %v", err)
	}

	m.Start()
	waitForState(t, m, Initializing)

	done := make(chan error, 1)
	go func() {
		_, err := m.Search(context.Background(), "q", 5)
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrBackendUnavailable) {
			t.Fatalf("initializing: expected ErrBackendUnavailable, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Search blocked while backend was initializing")
	}
}

func TestManager_InitWaitHonorsContext(t *testing.T) {
	f := newCountingFactory(&mockEngine{}, nil)
	m := NewManager(f.build, "/idx", "wiki", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.Init(ctx)
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}

	// The abandoned wait must not abort construction for others.
	close(f.release)
	initReady(t, m)
	if f.calls.Load() != 1 {
		t.Errorf("factory called %d times, want 1", f.calls.Load())
	}
}

func TestManager_Search(t *testing.T) {
	engine := &mockEngine{hits: []result.Hit{{ID: 0, Score: 12.4}, {ID: 37, Score: 9.1}}}
	m := NewManager(readyFactory(engine), "/idx", "wiki", nil)
	initReady(t, m)

	hits, err := m.Search(context.Background(), "barack obama", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != 0 || hits[1].ID != 37 {
		t.Errorf("unexpected hits: %+v", hits)
	}
}

func TestManager_SearchValidation(t *testing.T) {
	engine := &mockEngine{}
	m := NewManager(readyFactory(engine), "/idx", "wiki", nil)
	initReady(t, m)

	if _, err := m.Search(context.Background(), "   ", 5); !errors.Is(err, domain.ErrInvalidQuery) {
		t.Errorf("empty query: expected ErrInvalidQuery, got %v", err)
	}
	if _, err := m.Search(context.Background(), "q", 0); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("k=0: expected ErrInvalidRequest, got %v", err)
	}
	if engine.calls.Load() != 0 {
		t.Errorf("engine must not be called for invalid input, got %d calls", engine.calls.Load())
	}
}

func TestManager_SearchEngineFault(t *testing.T) {
	engine := &mockEngine{err: errors.New("CUDA out of memory")}
	m := NewManager(readyFactory(engine), "/idx", "wiki", nil)
	initReady(t, m)

	_, err := m.Search(context.Background(), "q", 5)
	if !errors.Is(err, domain.ErrBackendInternal) {
		t.Fatalf("expected ErrBackendInternal, got %v", err)
	}
	if engine.calls.Load() != 1 {
		t.Errorf("engine called %d times, want 1 (no internal retry)", engine.calls.Load())
	}
	if m.State() != Ready {
		t.Errorf("a search fault must not change state, got %q", m.State())
	}
}

func TestManager_SearchTruncatesToK(t *testing.T) {
	engine := &mockEngine{hits: []result.Hit{{ID: 1, Score: 3}, {ID: 2, Score: 2}, {ID: 3, Score: 1}}}
	m := NewManager(readyFactory(engine), "/idx", "wiki", nil)
	initReady(t, m)

	hits, err := m.Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != 1 || hits[1].ID != 2 {
		t.Errorf("unexpected hits: %+v", hits)
	}
}

func TestManager_Restart(t *testing.T) {
	var calls atomic.Int64
	engine := &mockEngine{}
	m := NewManager(func(_ context.Context, _, _ string) (Engine, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("engine not reachable")
		}
		return engine, nil
	}, "/idx", "wiki", nil)

	if err := m.Init(context.Background()); err == nil {
		t.Fatal("expected first Init to fail")
	}
	if err := m.Restart(context.Background()); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if m.State() != Ready {
		t.Errorf("State() = %q, want %q", m.State(), Ready)
	}
	if m.Err() != nil {
		t.Errorf("Err() = %v, want nil", m.Err())
	}
	if err := m.Restart(context.Background()); !errors.Is(err, ErrNotFailed) {
		t.Errorf("Restart from Ready: expected ErrNotFailed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("factory called %d times, want 2", calls.Load())
	}
}

func TestManager_FactoryPanic(t *testing.T) {
	m := NewManager(func(_ context.Context, _, _ string) (Engine, error) {
		panic("corrupt index")
	}, "/idx", "wiki", nil)

	err := m.Init(context.Background())
	if !errors.Is(err, domain.ErrBackendInit) {
		t.Fatalf("expected ErrBackendInit, got %v", err)
	}
	if m.State() != Failed {
		t.Errorf("State() = %q, want %q", m.State(), Failed)
	}
}

func TestManager_NilEngine(t *testing.T) {
	m := NewManager(func(_ context.Context, _, _ string) (Engine, error) {
		return nil, nil
	}, "/idx", "wiki", nil)

	if err := m.Init(context.Background()); !errors.Is(err, domain.ErrBackendInit) {
		t.Fatalf("expected ErrBackendInit, got %v", err)
	}
}

type taggingEngine struct {
	inner Engine
	tag   int64
}

func (e *taggingEngine) Search(ctx context.Context, q string, k int) ([]result.Hit, error) {
	hits, err := e.inner.Search(ctx, q, k)
	if err != nil {
		return nil, err
	}
	return append(hits, result.Hit{ID: e.tag}), nil
}

func TestManager_Decorators(t *testing.T) {
	engine := &mockEngine{hits: []result.Hit{{ID: 1}}}
	m := NewManager(readyFactory(engine), "/idx", "wiki", nil).WithDecorators(
		func(e Engine) Engine { return &taggingEngine{inner: e, tag: 100} },
		func(e Engine) Engine { return &taggingEngine{inner: e, tag: 200} },
	)
	initReady(t, m)

	hits, err := m.Search(context.Background(), "q", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 3 || hits[1].ID != 100 || hits[2].ID != 200 {
		t.Errorf("decorators applied in wrong order: %+v", hits)
	}
}

func TestManager_Close(t *testing.T) {
	engine := &mockEngine{}
	m := NewManager(readyFactory(engine), "/idx", "wiki", nil)

	if err := m.Close(); err != nil {
		t.Fatalf("Close before init: %v", err)
	}

	m = NewManager(readyFactory(engine), "/idx", "wiki", nil)
	initReady(t, m)
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !engine.closed.Load() {
		t.Error("expected engine to be closed")
	}
}

func TestManager_CloseDuringConstruction(t *testing.T) {
	engine := &mockEngine{hits: []result.Hit{{ID: 1, Score: 1}}}
	release := make(chan struct{})
	// The factory ignores ctx, like an engine client stuck in a blocking call.
	m := NewManager(func(_ context.Context, _, _ string) (Engine, error) {
		<-release
		return engine, nil
	}, "/idx", "wiki", nil)

	m.Start()
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	close(release)

	err := m.Init(context.Background())
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("Init after Close: expected ErrBackendUnavailable, got %v", err)
	}
	if m.State() != Failed {
		t.Errorf("State() = %q, want %q", m.State(), Failed)
	}
	if !engine.closed.Load() {
		t.Error("engine built after Close must be closed")
	}
	if _, err := m.Search(context.Background(), "q", 1); !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Errorf("Search after Close: expected ErrBackendUnavailable, got %v", err)
	}
	if engine.calls.Load() != 0 {
		t.Errorf("engine searched %d times after Close", engine.calls.Load())
	}
}

func TestManager_CloseStopsServing(t *testing.T) {
	engine := &mockEngine{hits: []result.Hit{{ID: 1, Score: 1}}}
	m := NewManager(readyFactory(engine), "/idx", "wiki", nil)
	initReady(t, m)

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := m.Search(context.Background(), "q", 1); !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Errorf("Search after Close: expected ErrBackendUnavailable, got %v", err)
	}
	if err := m.Retry(); !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Errorf("Retry after Close: expected ErrBackendUnavailable, got %v", err)
	}
}

func TestManager_InitAfterCloseDoesNotBlock(t *testing.T) {
	var calls atomic.Int64
	m := NewManager(func(_ context.Context, _, _ string) (Engine, error) {
		calls.Add(1)
		return &mockEngine{}, nil
	}, "/idx", "wiki", nil)

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Init(ctx); !errors.Is(err, domain.ErrBackendUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Init after Close: expected immediate ErrBackendUnavailable, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("factory called %d times after Close", calls.Load())
	}
}

func TestManager_ConcurrentSearches(t *testing.T) {
	engine := &mockEngine{hits: []result.Hit{{ID: 1, Score: 1}}}
	m := NewManager(readyFactory(engine), "/idx", "wiki", nil)
	initReady(t, m)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Search(context.Background(), "q", 1); err != nil {
				t.Errorf("Search: %v", err)
			}
		}()
	}
	wg.Wait()
	if engine.calls.Load() != 100 {
		t.Errorf("engine calls = %d, want 100", engine.calls.Load())
	}
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state never reached %q (current %q)", want, m.State())
}

func TestManager_RetryDoesNotWait(t *testing.T) {
	var calls atomic.Int64
	release := make(chan struct{})
	m := NewManager(func(_ context.Context, _, _ string) (Engine, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("engine not reachable")
		}
		<-release
		return &mockEngine{}, nil
	}, "/idx", "wiki", nil)

	if err := m.Retry(); !errors.Is(err, ErrNotFailed) {
		t.Fatalf("Retry before any attempt: expected ErrNotFailed, got %v", err)
	}
	_ = m.Init(context.Background())

	if err := m.Retry(); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if m.State() != Initializing {
		t.Errorf("State() = %q, want %q", m.State(), Initializing)
	}
	if err := m.Retry(); !errors.Is(err, ErrNotFailed) {
		t.Errorf("Retry while initializing: expected ErrNotFailed, got %v", err)
	}

	close(release)
	waitForState(t, m, Ready)
}
