package hooks

import (
	"context"
	"sync"
)

// Promise is a settle-once value with chained reactions. It is destroyed once
// settled and every reaction registered so far has run.
type Promise struct {
	res *resource
	ctx context.Context

	mu        sync.Mutex
	settled   bool
	value     any
	err       error
	reactions []func()
	inflight  int
	done      chan struct{}
}

// NewPromise creates a pending promise triggered by the resource running in
// ctx.
func (r *Runtime) NewPromise(ctx context.Context) *Promise {
	return r.newPromise(ctx, ExecutionID(ctx))
}

func (r *Runtime) newPromise(ctx context.Context, trigger int64) *Promise {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Promise{
		res:  r.newResource(KindPromise, trigger),
		ctx:  ctx,
		done: make(chan struct{}),
	}
}

// ID returns the promise's resource id.
func (p *Promise) ID() int64 {
	return p.res.id
}

// Resolve settles p with v. Later calls are ignored.
func (p *Promise) Resolve(v any) {
	p.settle(v, nil)
}

// Reject settles p with err. Later calls are ignored.
func (p *Promise) Reject(err error) {
	p.settle(nil, err)
}

func (p *Promise) settle(v any, err error) {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return
	}
	p.settled = true
	p.value, p.err = v, err
	reactions := p.reactions
	p.reactions = nil
	close(p.done)
	p.mu.Unlock()

	p.res.rt.subs.promiseResolve(p.res.id)
	for _, react := range reactions {
		react()
	}
	p.maybeDestroy()
}

// Then registers fn to run once p settles successfully and returns the
// promise of its result. A rejection skips fn and rejects the child. The
// child is triggered by p unless p is already destroyed, in which case it
// is triggered by the resource running in p's context.
func (p *Promise) Then(fn func(ctx context.Context, v any) (any, error)) *Promise {
	// Holding an inflight slot keeps p alive while the child is created.
	p.mu.Lock()
	p.inflight++
	p.mu.Unlock()

	trigger := p.res.id
	if p.res.destroyed.Load() {
		trigger = ExecutionID(p.ctx)
	}
	child := p.res.rt.newPromise(p.ctx, trigger)
	react := func() {
		go func() {
			defer p.reactionDone()
			p.mu.Lock()
			v, perr := p.value, p.err
			p.mu.Unlock()

			var out any
			err := perr
			child.res.run(p.ctx, func(ctx context.Context) {
				if perr == nil {
					out, err = fn(ctx, v)
				}
			})
			child.settle(out, err)
		}()
	}

	p.mu.Lock()
	if !p.settled {
		p.reactions = append(p.reactions, react)
		p.mu.Unlock()
		return child
	}
	p.mu.Unlock()
	react()
	return child
}

// Await blocks until p settles or ctx is done.
func (p *Promise) Await(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Promise) reactionDone() {
	p.mu.Lock()
	p.inflight--
	p.mu.Unlock()
	p.maybeDestroy()
}

func (p *Promise) maybeDestroy() {
	p.mu.Lock()
	ready := p.settled && p.inflight == 0
	p.mu.Unlock()
	if ready {
		p.res.destroy()
	}
}

// All resolves with every input's value, in order, once all resolve, or
// rejects with the first rejection.
func (r *Runtime) All(ctx context.Context, inputs ...*Promise) *Promise {
	out := r.NewPromise(ctx)
	if len(inputs) == 0 {
		out.Resolve([]any{})
		return out
	}

	var mu sync.Mutex
	values := make([]any, len(inputs))
	remaining := len(inputs)
	for i, in := range inputs {
		i := i
		in := in
		in.Then(func(_ context.Context, v any) (any, error) {
			mu.Lock()
			values[i] = v
			remaining--
			last := remaining == 0
			mu.Unlock()
			if last {
				out.Resolve(values)
			}
			return v, nil
		})
		// A rejected input rejects the aggregate; the first one wins.
		go func() {
			if _, err := in.Await(context.Background()); err != nil {
				out.Reject(err)
			}
		}()
	}
	return out
}
