package saga

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-tokengate/core"
)

// MemoryEngine runs job bodies on goroutines inside the gateway process. It
// remembers every handle it has started so the shutdown sweep can enumerate
// them; it does not stop in-flight bodies.
type MemoryEngine struct {
	mu      sync.Mutex
	order   []core.RunHandle
	started map[string]struct{}
	wg      sync.WaitGroup
}

func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{started: make(map[string]struct{})}
}

func (e *MemoryEngine) Start(ctx context.Context, handle core.RunHandle, body core.JobBody) error {
	if e == nil {
		return fmt.Errorf("saga: memory engine is nil")
	}
	if handle.RunID == "" {
		return fmt.Errorf("saga: run id is required")
	}
	if body == nil {
		return fmt.Errorf("saga: job body is required")
	}

	e.mu.Lock()
	if _, exists := e.started[handle.RunID]; exists {
		e.mu.Unlock()
		return fmt.Errorf("saga: run already started: %s", handle.RunID)
	}
	e.started[handle.RunID] = struct{}{}
	e.order = append(e.order, handle)
	e.mu.Unlock()

	// Bodies outlive the dispatching request; detach from its cancellation.
	runCtx := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		_ = body(runCtx)
	}()
	return nil
}

func (e *MemoryEngine) List(_ context.Context, max int) ([]core.RunHandle, error) {
	if e == nil {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	handles := e.order
	if max > 0 && len(handles) > max {
		handles = handles[:max]
	}
	return append([]core.RunHandle(nil), handles...), nil
}

// Wait blocks until every started body has returned.
func (e *MemoryEngine) Wait() {
	if e == nil {
		return
	}
	e.wg.Wait()
}

var _ core.ExecutionEngine = (*MemoryEngine)(nil)
