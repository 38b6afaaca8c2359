// Package workload is a sample instrumented program: it schedules timers,
// immediates, ticks, promise chains and I/O on a hooks.Runtime so the rest
// of the pipeline has something realistic to record.
package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/loopviz/loopviz/internal/hooks"
)

// KindFSReq tags file-system requests.
const KindFSReq = "FSReqCallback"

// Scenario is one named group of scheduled work.
type Scenario struct {
	Name string
	run  func(g *Generator, ctx context.Context)
}

var scenarios = []Scenario{
	{Name: "timers", run: (*Generator).timers},
	{Name: "ticks", run: (*Generator).ticks},
	{Name: "immediates", run: (*Generator).immediates},
	{Name: "promises", run: (*Generator).promises},
	{Name: "async", run: (*Generator).async},
	{Name: "all", run: (*Generator).all},
	{Name: "rejection", run: (*Generator).rejection},
	{Name: "io", run: (*Generator).io},
	{Name: "emitter", run: (*Generator).emitter},
	{Name: "interval", run: (*Generator).interval},
}

// Names lists the available scenarios in run order.
func Names() []string {
	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.Name
	}
	return names
}

// Options tunes a Generator.
type Options struct {
	// Rounds is how many times the scenarios are replayed; 0 means once,
	// negative means until ctx ends.
	Rounds int
	// Pause separates rounds.
	Pause time.Duration
	// Unit scales every delay in the scenarios. Defaults to 1ms.
	Unit time.Duration
	// Only restricts the run to the named scenarios.
	Only []string
}

// Generator drives the scenarios on a runtime.
type Generator struct {
	rt     *hooks.Runtime
	opts   Options
	logger *slog.Logger
	steps  []Scenario
}

// NewGenerator validates opts against the known scenarios.
func NewGenerator(rt *hooks.Runtime, opts Options, logger *slog.Logger) (*Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Unit <= 0 {
		opts.Unit = time.Millisecond
	}
	if opts.Rounds == 0 {
		opts.Rounds = 1
	}
	steps := scenarios
	if len(opts.Only) > 0 {
		byName := make(map[string]Scenario, len(scenarios))
		for _, s := range scenarios {
			byName[s.Name] = s
		}
		steps = nil
		for _, name := range opts.Only {
			s, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("unknown scenario %q", name)
			}
			steps = append(steps, s)
		}
	}
	return &Generator{rt: rt, opts: opts, logger: logger, steps: steps}, nil
}

// Run schedules every scenario, waits for the runtime to drain, and repeats
// for the configured rounds.
func (g *Generator) Run(ctx context.Context) error {
	for round := 1; g.opts.Rounds < 0 || round <= g.opts.Rounds; round++ {
		g.logger.Info("workload round", "round", round, "scenarios", len(g.steps))
		for _, s := range g.steps {
			s.run(g, ctx)
		}
		if err := g.rt.Wait(ctx); err != nil {
			return err
		}
		if g.opts.Pause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(g.opts.Pause):
			}
		}
	}
	return nil
}

func (g *Generator) d(n int) time.Duration {
	return time.Duration(n) * g.opts.Unit
}

func (g *Generator) say(ctx context.Context, msg string) {
	g.logger.Debug(msg, "resource", hooks.ExecutionID(ctx))
}

func (g *Generator) timers(ctx context.Context) {
	g.rt.SetTimeout(ctx, 0, func(ctx context.Context) { g.say(ctx, "timeout 0") })
	g.rt.SetTimeout(ctx, g.d(5), func(ctx context.Context) {
		g.say(ctx, "timeout 5")
		g.rt.NextTick(ctx, func(ctx context.Context) { g.say(ctx, "tick inside timeout") })
		g.resolved(ctx, nil).Then(func(ctx context.Context, _ any) (any, error) {
			g.say(ctx, "promise inside timeout")
			return nil, nil
		})
	})
	g.rt.SetTimeout(ctx, g.d(15), func(ctx context.Context) { g.say(ctx, "timeout 15") })

	// Cancelled before it fires: init and destroy with no run.
	g.rt.SetTimeout(ctx, g.d(1000), func(ctx context.Context) {}).Stop()
}

func (g *Generator) ticks(ctx context.Context) {
	g.rt.NextTick(ctx, func(ctx context.Context) { g.say(ctx, "tick") })
	g.rt.NextTick(ctx, func(ctx context.Context) {
		g.say(ctx, "first tick")
		g.rt.NextTick(ctx, func(ctx context.Context) { g.say(ctx, "nested tick") })
	})
}

func (g *Generator) immediates(ctx context.Context) {
	g.rt.SetImmediate(ctx, func(ctx context.Context) { g.say(ctx, "immediate") })
	g.rt.SetImmediate(ctx, func(ctx context.Context) {
		g.say(ctx, "immediate with nested work")
		g.rt.NextTick(ctx, func(ctx context.Context) { g.say(ctx, "tick inside immediate") })
		g.resolved(ctx, nil).Then(func(ctx context.Context, _ any) (any, error) {
			g.say(ctx, "promise inside immediate")
			return nil, nil
		})
		g.rt.SetTimeout(ctx, 0, func(ctx context.Context) { g.say(ctx, "timeout inside immediate") })
	})
}

// resolved mirrors an already-resolved promise.
func (g *Generator) resolved(ctx context.Context, v any) *hooks.Promise {
	p := g.rt.NewPromise(ctx)
	p.Resolve(v)
	return p
}

func (g *Generator) promises(ctx context.Context) {
	g.resolved(ctx, nil).Then(func(ctx context.Context, _ any) (any, error) {
		g.say(ctx, "resolved promise reaction")
		return nil, nil
	})

	p := g.rt.NewPromise(ctx)
	p.Resolve("promise resolved")
	p.Then(func(ctx context.Context, v any) (any, error) {
		g.say(ctx, "then")
		return "chained result", nil
	}).Then(func(ctx context.Context, v any) (any, error) {
		g.say(ctx, "chained then")
		return v, nil
	})
}

// async is an awaited timer inside a goroutine task.
func (g *Generator) async(ctx context.Context) {
	g.rt.Go(ctx, hooks.KindGoroutine, func(ctx context.Context) {
		p := g.rt.NewPromise(ctx)
		g.rt.SetTimeout(ctx, g.d(10), func(ctx context.Context) {
			g.say(ctx, "awaited timeout")
			p.Resolve("async resolved")
		})
		if _, err := p.Await(ctx); err != nil {
			return
		}
		g.say(ctx, "after await")
	})
}

func (g *Generator) all(ctx context.Context) {
	third := g.rt.NewPromise(ctx)
	g.rt.SetTimeout(ctx, g.d(20), func(ctx context.Context) { third.Resolve("third") })
	g.rt.All(ctx, g.resolved(ctx, "first"), g.resolved(ctx, "second"), third).
		Then(func(ctx context.Context, v any) (any, error) {
			g.say(ctx, "all settled")
			return v, nil
		})
}

var errWorkload = errors.New("test error")

func (g *Generator) rejection(ctx context.Context) {
	p := g.rt.NewPromise(ctx)
	p.Reject(errWorkload)
	p.Then(func(ctx context.Context, v any) (any, error) { return v, nil })
}

func (g *Generator) io(ctx context.Context) {
	g.rt.Go(ctx, KindFSReq, func(ctx context.Context) {
		entries, err := os.ReadDir(os.TempDir())
		if err != nil {
			g.logger.Debug("read dir failed", "err", err)
			return
		}
		g.say(ctx, fmt.Sprintf("read %d entries", len(entries)))
	})
}

// emitter delivers an event to its listeners from an immediate.
func (g *Generator) emitter(ctx context.Context) {
	listeners := []func(ctx context.Context, data string){
		func(ctx context.Context, data string) { g.say(ctx, "listener: "+data) },
	}
	g.rt.SetImmediate(ctx, func(ctx context.Context) {
		for _, l := range listeners {
			l(ctx, "event data")
		}
	})
}

func (g *Generator) interval(ctx context.Context) {
	var (
		n  int
		tm atomic.Pointer[hooks.Timer]
	)
	tm.Store(g.rt.SetInterval(ctx, g.d(4), func(ctx context.Context) {
		n++
		g.say(ctx, "interval")
		if t := tm.Load(); n >= 3 && t != nil {
			t.Stop()
		}
	}))
}
