// Package dispatch routes normalized updates to registered handlers.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bytedance/gg/gmap"

	"github.com/tgifai/tgflow/internal/pkg/logs"
	"github.com/tgifai/tgflow/internal/pkg/metrics"
)

type Handler func(ctx context.Context, c *Context) error

// HandlerID identifies one registration so it can be removed with Off.
type HandlerID uint64

// HandlerError is a handler failure isolated at the dispatch boundary.
type HandlerError struct {
	Key   string
	Err   error
	Panic any
	Stack []byte
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("handler for %q panicked: %v", e.Key, e.Panic)
	}
	return fmt.Sprintf("handler for %q: %v", e.Key, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

type registration struct {
	id      HandlerID
	handler Handler
}

// Bus maps event keys to ordered handler lists. Each list is replaced on
// write and never mutated in place, so an emit iterates a stable snapshot
// while registrations change around it.
type Bus struct {
	mu       sync.Mutex
	handlers map[string][]registration
	nextID   HandlerID

	inflight sync.WaitGroup
	onError  func(ctx context.Context, err *HandlerError)
}

type Option func(*Bus)

// WithErrorHook is called for every isolated handler failure, after it has
// been logged.
func WithErrorHook(fn func(ctx context.Context, err *HandlerError)) Option {
	return func(b *Bus) { b.onError = fn }
}

func NewBus(opts ...Option) *Bus {
	b := &Bus{handlers: make(map[string][]registration)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// On appends h to key's list. Registering the same function twice yields two
// invocations per emit.
func (b *Bus) On(key string, h Handler) HandlerID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	prev := b.handlers[key]
	next := make([]registration, len(prev), len(prev)+1)
	copy(next, prev)
	b.handlers[key] = append(next, registration{id: id, handler: h})
	return id
}

// Off removes one registration. It reports whether the id was registered
// under key.
func (b *Bus) Off(key string, id HandlerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.handlers[key]
	for i, r := range prev {
		if r.id != id {
			continue
		}
		if len(prev) == 1 {
			delete(b.handlers, key)
			return true
		}
		next := make([]registration, 0, len(prev)-1)
		next = append(next, prev[:i]...)
		b.handlers[key] = append(next, prev[i+1:]...)
		return true
	}
	return false
}

func (b *Bus) Len(key string) int {
	return len(b.snapshot(key))
}

// Keys lists the event keys that currently have handlers, in no particular
// order.
func (b *Bus) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return gmap.ToSlice(b.handlers, func(k string, _ []registration) string { return k })
}

func (b *Bus) snapshot(key string) []registration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handlers[key]
}

// Emit runs key's handlers in registration order on the calling goroutine.
// Failures are isolated per handler and returned; they never stop the
// remaining handlers.
func (b *Bus) Emit(ctx context.Context, key string, c *Context) []*HandlerError {
	return b.run(ctx, key, b.snapshot(key), c)
}

// Dispatch snapshots the handlers of every key now, then runs them on a new
// goroutine: keys in the given order, handlers in registration order. Distinct
// updates therefore run concurrently while one update's handlers stay
// ordered. The handlers outlive cancellation of ctx.
func (b *Bus) Dispatch(ctx context.Context, c *Context, keys ...string) {
	type batch struct {
		key  string
		regs []registration
	}
	batches := make([]batch, 0, len(keys))
	for _, key := range keys {
		if regs := b.snapshot(key); len(regs) > 0 {
			batches = append(batches, batch{key: key, regs: regs})
		}
	}
	if len(batches) == 0 {
		logs.CtxDebug(ctx, "[bus] no handlers for %v", keys)
		return
	}

	ctx = context.WithoutCancel(ctx)
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		for _, bt := range batches {
			b.run(ctx, bt.key, bt.regs, c)
		}
	}()
}

// Wait blocks until every dispatched update has finished its handlers.
func (b *Bus) Wait() {
	b.inflight.Wait()
}

func (b *Bus) run(ctx context.Context, key string, regs []registration, c *Context) []*HandlerError {
	var errs []*HandlerError
	for _, r := range regs {
		if herr := b.invoke(ctx, key, r.handler, c); herr != nil {
			errs = append(errs, herr)
		}
	}
	return errs
}

func (b *Bus) invoke(ctx context.Context, key string, h Handler, c *Context) (herr *HandlerError) {
	start := time.Now()
	defer func() {
		if v := recover(); v != nil {
			herr = &HandlerError{Key: key, Panic: v, Stack: debug.Stack()}
		}
		metrics.HandlerDuration.WithLabelValues(key).Observe(time.Since(start).Seconds())
		if herr != nil {
			metrics.HandlerFailures.WithLabelValues(key).Inc()
			logs.CtxError(ctx, "[bus] %v", herr)
			if herr.Stack != nil {
				logs.CtxDebug(ctx, "[bus] stack:\n%s", herr.Stack)
			}
			if b.onError != nil {
				b.onError(ctx, herr)
			}
		}
	}()

	if err := h(ctx, c); err != nil {
		return &HandlerError{Key: key, Err: err}
	}
	return nil
}
