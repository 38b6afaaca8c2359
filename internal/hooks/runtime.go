package hooks

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Runtime schedules deferred work and raises lifecycle notifications for
// every resource it creates. Ids start at 1 and are never reused within a
// Runtime.
//
// The trigger of a new resource is the resource whose callback is running in
// the ctx passed to the scheduling call (see ExecutionID). Promise reactions
// are the exception: their trigger is the promise they react to while that
// promise is still live.
type Runtime struct {
	subs    subscriberSet
	nextID  atomic.Int64
	live    atomic.Int64
	pending sync.WaitGroup
	logger  *slog.Logger
}

// NewRuntime creates an idle runtime. logger may be nil.
func NewRuntime(logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runtime{logger: logger}
	r.subs.logger = logger
	return r
}

// Subscribe registers cb for all future notifications. Resources created
// before the subscription exist without an Init for this subscriber.
func (r *Runtime) Subscribe(cb Callbacks) Handle {
	return r.subs.add(cb)
}

// Live returns the number of created, not yet destroyed resources.
func (r *Runtime) Live() int {
	return int(r.live.Load())
}

// Wait blocks until every resource has been destroyed or ctx is done.
func (r *Runtime) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type resource struct {
	rt        *Runtime
	id        int64
	kind      string
	destroyed atomic.Bool
}

func (r *Runtime) newResource(kind string, trigger int64) *resource {
	res := &resource{rt: r, id: r.nextID.Add(1), kind: kind}
	r.live.Add(1)
	r.pending.Add(1)
	r.subs.init(res.id, kind, trigger)
	return res
}

// run invokes fn between Before and After. A panic in fn is logged and
// swallowed; After is raised either way.
func (res *resource) run(ctx context.Context, fn func(context.Context)) {
	res.rt.subs.before(res.id)
	defer func() {
		if p := recover(); p != nil {
			res.rt.logger.Error("async callback panicked", "id", res.id, "kind", res.kind, "panic", p)
		}
		res.rt.subs.after(res.id)
	}()
	fn(withExecution(ctx, res.id))
}

func (res *resource) destroy() {
	if !res.destroyed.CompareAndSwap(false, true) {
		return
	}
	res.rt.subs.destroy(res.id)
	res.rt.live.Add(-1)
	res.rt.pending.Done()
}

// Go runs fn on a new goroutine as a resource of the given kind.
func (r *Runtime) Go(ctx context.Context, kind string, fn func(ctx context.Context)) int64 {
	if kind == "" {
		kind = KindGoroutine
	}
	res := r.newResource(kind, ExecutionID(ctx))
	go func() {
		res.run(ctx, fn)
		res.destroy()
	}()
	return res.id
}

// SetImmediate runs fn as soon as possible, after the caller returns.
func (r *Runtime) SetImmediate(ctx context.Context, fn func(ctx context.Context)) int64 {
	return r.Go(ctx, KindImmediate, fn)
}

// NextTick runs fn as a tick object.
func (r *Runtime) NextTick(ctx context.Context, fn func(ctx context.Context)) int64 {
	return r.Go(ctx, KindTick, fn)
}

// Timer is a scheduled Timeout resource.
type Timer struct {
	res     *resource
	t       *time.Timer
	done    chan struct{}
	stopped atomic.Bool
}

// ID returns the timer's resource id.
func (tm *Timer) ID() int64 {
	return tm.res.id
}

// SetTimeout runs fn once after d.
func (r *Runtime) SetTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context)) *Timer {
	res := r.newResource(KindTimeout, ExecutionID(ctx))
	tm := &Timer{res: res}
	tm.t = time.AfterFunc(d, func() {
		if !tm.stopped.Load() {
			res.run(ctx, fn)
		}
		res.destroy()
	})
	return tm
}

// SetInterval runs fn every d until the timer is stopped or ctx is done.
// Each tick is one Before/After pair on the same resource.
func (r *Runtime) SetInterval(ctx context.Context, d time.Duration, fn func(ctx context.Context)) *Timer {
	res := r.newResource(KindTimeout, ExecutionID(ctx))
	tm := &Timer{res: res, done: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		defer res.destroy()
		for {
			select {
			case <-ticker.C:
				if tm.stopped.Load() {
					return
				}
				res.run(ctx, fn)
			case <-tm.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return tm
}

// Stop cancels the timer. It reports whether this call stopped it.
func (tm *Timer) Stop() bool {
	if !tm.stopped.CompareAndSwap(false, true) {
		return false
	}
	if tm.done != nil {
		close(tm.done)
		return true
	}
	if tm.t.Stop() {
		tm.res.destroy()
		return true
	}
	return false
}
