// Package transport defines what the polling and webhook receivers share.
package transport

import (
	"context"
	"sync/atomic"
)

type State int32

const (
	Idle State = iota
	Running
	Listening
	Stopped
	Faulted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Listening:
		return "listening"
	case Stopped:
		return "stopped"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Sink consumes one raw update. Both transports feed the same sink.
type Sink interface {
	HandleRaw(ctx context.Context, raw []byte) error
}

type SinkFunc func(ctx context.Context, raw []byte) error

func (f SinkFunc) HandleRaw(ctx context.Context, raw []byte) error { return f(ctx, raw) }

// Transport delivers raw updates to a Sink until stopped.
type Transport interface {
	Name() string
	// Start blocks until the transport stops. It returns nil after Stop and
	// an error when the transport faults.
	Start(ctx context.Context) error
	// Stop is cooperative: no new work starts, in-flight handlers finish.
	Stop(ctx context.Context) error
	State() State
}

// StateBox is an atomically updated State.
type StateBox struct{ v atomic.Int32 }

func (b *StateBox) Load() State { return State(b.v.Load()) }

func (b *StateBox) Store(s State) { b.v.Store(int32(s)) }

// CompareAndSwap moves from old to next and reports whether it did.
func (b *StateBox) CompareAndSwap(old, next State) bool {
	return b.v.CompareAndSwap(int32(old), int32(next))
}
