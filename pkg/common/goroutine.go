// pkg/common/goroutine.go
package common

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// GoroutineRegistry tracks worker goroutines so shutdown can wait for
// them, and recovers panics so one worker cannot kill the process.
type GoroutineRegistry struct {
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu     sync.Mutex
	active map[string]int
	panics int
}

// NewGoroutineRegistry creates a registry whose context is canceled by
// Shutdown.
func NewGoroutineRegistry(logger *zap.Logger) *GoroutineRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GoroutineRegistry{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		active: make(map[string]int),
	}
}

// Go runs f on a tracked goroutine. f receives the registry context and
// should return when it is canceled.
func (gr *GoroutineRegistry) Go(name string, f func(ctx context.Context)) {
	gr.wg.Add(1)
	gr.mu.Lock()
	gr.active[name]++
	gr.mu.Unlock()

	go func() {
		defer gr.wg.Done()
		defer func() {
			gr.mu.Lock()
			gr.active[name]--
			if gr.active[name] == 0 {
				delete(gr.active, name)
			}
			gr.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				gr.mu.Lock()
				gr.panics++
				gr.mu.Unlock()

				stack := make([]byte, 4096)
				stack = stack[:runtime.Stack(stack, false)]
				gr.logger.Error("goroutine panic",
					zap.String("name", name),
					zap.Any("panic", r),
					zap.String("stack", string(stack)))
			}
		}()

		f(gr.ctx)
	}()
}

// Shutdown cancels the registry context and waits up to timeout for all
// tracked goroutines to exit.
func (gr *GoroutineRegistry) Shutdown(timeout time.Duration) error {
	gr.cancel()

	done := make(chan struct{})
	go func() {
		gr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		gr.mu.Lock()
		remaining := make([]string, 0, len(gr.active))
		for name := range gr.active {
			remaining = append(remaining, name)
		}
		gr.mu.Unlock()
		return fmt.Errorf("shutdown timed out, still running: %v", remaining)
	}
}

// Context returns the registry's context.
func (gr *GoroutineRegistry) Context() context.Context {
	return gr.ctx
}

// ActiveCount returns the number of tracked goroutines still running.
func (gr *GoroutineRegistry) ActiveCount() int {
	gr.mu.Lock()
	defer gr.mu.Unlock()
	n := 0
	for _, c := range gr.active {
		n += c
	}
	return n
}

// PanicCount returns the number of recovered worker panics.
func (gr *GoroutineRegistry) PanicCount() int {
	gr.mu.Lock()
	defer gr.mu.Unlock()
	return gr.panics
}
