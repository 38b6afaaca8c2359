// Package recorder runs inside the observed process. It subscribes to
// async-resource lifecycle notifications, keeps a table of live resources,
// and emits one lifecycle event per notification to the relay.
//
// All emission is best-effort: when the link is down, events are dropped,
// never queued for later.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loopviz/loopviz/internal/event"
	"github.com/loopviz/loopviz/internal/hooks"
	"github.com/loopviz/loopviz/internal/session"
	"github.com/loopviz/loopviz/internal/transport"
)

// Sender accepts encoded frames without blocking. It reports false when the
// frame was not accepted.
type Sender interface {
	Send(frame []byte) bool
}

type Options struct {
	// CaptureStacks records the creation call stack on every init event.
	CaptureStacks bool
	// Sender, when set, receives every frame in addition to the transport
	// bound by Attach.
	Sender Sender
	Clock  func() time.Time
	Logger *slog.Logger
}

type entry struct {
	kind      string
	trigger   int64
	stack     string
	createdAt time.Time
}

// Stats counts what happened to lifecycle notifications.
type Stats struct {
	Emitted uint64 `json:"emitted"`
	Dropped uint64 `json:"dropped"`
	Skipped uint64 `json:"skipped"`
}

// Recorder turns lifecycle notifications into lifecycle events.
type Recorder struct {
	opts Options
	sess *session.Session

	mu    sync.Mutex
	table map[int64]*entry

	linkMu sync.Mutex
	client *transport.Client
	cancel context.CancelFunc
	done   chan struct{}

	handleMu sync.Mutex
	handle   hooks.Handle

	identityOnce sync.Once
	identity     ProcessInfo

	emitted atomic.Uint64
	dropped atomic.Uint64
	skipped atomic.Uint64
}

// New creates a detached recorder.
func New(opts Options) *Recorder {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Recorder{
		opts:  opts,
		sess:  session.New("recorder"),
		table: make(map[int64]*entry),
	}
}

// Session exposes the recorder's view of the link.
func (r *Recorder) Session() *session.Session {
	return r.sess
}

// Start subscribes to src. A second Start replaces the first subscription.
func (r *Recorder) Start(src hooks.Source) {
	h := src.Subscribe(hooks.Callbacks{
		Init:           r.OnInit,
		Before:         r.OnBefore,
		After:          r.OnAfter,
		Destroy:        r.OnDestroy,
		PromiseResolve: r.OnPromiseResolve,
	})
	r.handleMu.Lock()
	prev := r.handle
	r.handle = h
	r.handleMu.Unlock()
	if prev != nil {
		prev.Disable()
	}
}

// Stop disables the hook subscription. The resource table is kept.
func (r *Recorder) Stop() {
	r.handleMu.Lock()
	h := r.handle
	r.handle = nil
	r.handleMu.Unlock()
	if h != nil {
		h.Disable()
	}
}

// Attach connects to the relay at endpoint, replacing any previous link.
// The connection runs in the background until ctx is done or Shutdown is
// called; reconnection follows the transport's own policy.
func (r *Recorder) Attach(ctx context.Context, endpoint string, opts transport.Options) {
	r.linkMu.Lock()
	if r.cancel != nil {
		r.cancel()
	}

	if opts.Logger == nil {
		opts.Logger = r.opts.Logger
	}
	var client *transport.Client
	opts.OnConnect = func() { r.onConnected(client) }
	opts.OnDisconnect = func(err error) { r.onDisconnected(client, err) }
	client = transport.NewClient(endpoint, r.sess, opts)

	cctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.client, r.cancel, r.done = client, cancel, done
	r.linkMu.Unlock()

	go func() {
		defer close(done)
		if err := client.Run(cctx); err != nil {
			r.opts.Logger.Debug("recorder link ended", "endpoint", endpoint, "error", err)
		}
	}()
}

// Shutdown stops observing and closes the link. While a connection attempt
// is outstanding or accepted frames are still being written it waits, but
// never past ctx.
func (r *Recorder) Shutdown(ctx context.Context) error {
	r.Stop()

	r.linkMu.Lock()
	client, cancel, done := r.client, r.cancel, r.done
	r.client, r.cancel, r.done = nil, nil, nil
	r.linkMu.Unlock()
	if client == nil {
		return nil
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for client.Dialing() || client.Pending() {
		select {
		case <-ctx.Done():
			cancel()
			return ctx.Err()
		case <-ticker.C:
		}
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Live returns the number of resources in the table.
func (r *Recorder) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.table)
}

// Stats returns a snapshot of the emission counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Emitted: r.emitted.Load(),
		Dropped: r.dropped.Load(),
		Skipped: r.skipped.Load(),
	}
}

// OnInit records a new resource and emits init.
func (r *Recorder) OnInit(id int64, kind string, trigger int64) {
	now := r.opts.Clock()
	e := &entry{kind: kind, trigger: trigger, createdAt: now}
	if r.opts.CaptureStacks {
		e.stack = captureStack()
	}

	r.mu.Lock()
	r.table[id] = e
	r.mu.Unlock()

	r.emit(event.LifecycleEvent{
		EventType:  event.Init,
		ResourceID: id,
		Kind:       kind,
		TriggerID:  trigger,
		Timestamp:  event.Millis(now),
		Stack:      e.stack,
	})
}

// OnBefore emits before for a known resource.
func (r *Recorder) OnBefore(id int64) {
	r.emitKnown(event.Before, id, false)
}

// OnAfter emits after for a known resource. The entry is kept; a resource
// may run many times.
func (r *Recorder) OnAfter(id int64) {
	r.emitKnown(event.After, id, false)
}

// OnDestroy emits destroy and removes the entry. This is the only place
// table memory is reclaimed.
func (r *Recorder) OnDestroy(id int64) {
	r.emitKnown(event.Destroy, id, true)
}

// OnPromiseResolve emits promiseResolve and keeps the entry.
func (r *Recorder) OnPromiseResolve(id int64) {
	r.emitKnown(event.PromiseResolve, id, false)
}

// emitKnown looks up id and emits t with the stored kind. Unknown ids (the
// hook was enabled after the resource existed) are skipped silently.
func (r *Recorder) emitKnown(t event.EventType, id int64, remove bool) {
	r.mu.Lock()
	e, ok := r.table[id]
	if ok && remove {
		delete(r.table, id)
	}
	r.mu.Unlock()

	if !ok {
		r.skipped.Add(1)
		return
	}
	r.emit(event.LifecycleEvent{
		EventType:  t,
		ResourceID: id,
		Kind:       e.kind,
		Timestamp:  event.Millis(r.opts.Clock()),
	})
}

func (r *Recorder) emit(ev event.LifecycleEvent) {
	frame, err := event.Encode(ev)
	if err != nil {
		r.dropped.Add(1)
		r.opts.Logger.Debug("dropping unencodable event", "error", err)
		return
	}

	accepted := false
	if r.opts.Sender != nil && r.opts.Sender.Send(frame) {
		accepted = true
	}
	r.linkMu.Lock()
	client := r.client
	r.linkMu.Unlock()
	if client != nil && client.Send(frame) {
		accepted = true
	}

	if accepted {
		r.emitted.Add(1)
	} else {
		r.dropped.Add(1)
	}
}

func (r *Recorder) current(c *transport.Client) bool {
	r.linkMu.Lock()
	defer r.linkMu.Unlock()
	return r.client == c
}

func (r *Recorder) onConnected(c *transport.Client) {
	if !r.current(c) {
		return
	}
	r.emit(event.Status(event.StatusConnected, r.opts.Clock(), r.processInfo()))
}

// onDisconnected reports the loss. The link is already unbound, so these
// frames only reach the optional Sender; the relay synthesizes its own view.
func (r *Recorder) onDisconnected(c *transport.Client, err error) {
	if !r.current(c) {
		return
	}
	now := r.opts.Clock()
	if err != nil {
		r.emit(event.Status(event.StatusError, now, map[string]string{"error": err.Error()}))
	}
	r.emit(event.Status(event.StatusDisconnected, now, nil))
}

func (r *Recorder) processInfo() ProcessInfo {
	r.identityOnce.Do(func() {
		r.identity = currentProcess()
	})
	return r.identity
}
