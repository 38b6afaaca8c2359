// Package hooks provides the async-resource lifecycle notification
// capability the recorder subscribes to.
//
// A Source raises five notifications per resource: Init when the resource
// is created, Before and After around every callback invocation, Destroy
// once when it can never run again, and PromiseResolve when a promise
// settles. Runtime is the real source used by instrumented Go programs;
// Script is a synthetic source for tests.
package hooks

import (
	"context"

	"github.com/loopviz/loopviz/internal/event"
)

// Resource kinds raised by Runtime.
const (
	KindTimeout   = "Timeout"
	KindImmediate = "Immediate"
	KindTick      = "TickObject"
	KindPromise   = "Promise"
	KindGoroutine = "Goroutine"
)

// Callbacks receives lifecycle notifications. Nil fields are skipped.
// Callbacks run synchronously on the goroutine performing the transition
// and must not block.
type Callbacks struct {
	Init           func(id int64, kind string, trigger int64)
	Before         func(id int64)
	After          func(id int64)
	Destroy        func(id int64)
	PromiseResolve func(id int64)
}

// Handle tears down a subscription.
type Handle interface {
	Disable()
}

// Source is anything that can notify subscribers of resource lifecycles.
type Source interface {
	Subscribe(cb Callbacks) Handle
}

type executionKey struct{}

// ExecutionID returns the id of the resource whose callback is running in
// ctx, or event.RootID for top-level code.
func ExecutionID(ctx context.Context) int64 {
	if ctx == nil {
		return event.RootID
	}
	if id, ok := ctx.Value(executionKey{}).(int64); ok {
		return id
	}
	return event.RootID
}

func withExecution(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, executionKey{}, id)
}
