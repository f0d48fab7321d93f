package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/logging"
	"github.com/cxd309/railsim/internal/metrics"
	"github.com/cxd309/railsim/internal/simulation"
)

// Live steps a simulation against the wall clock. The simulation is only
// touched by the goroutine running Run; everything else reads the latest
// Frame or enqueues commands.
type Live struct {
	engine   *Engine
	step     time.Duration
	interval time.Duration
	frame    atomic.Pointer[Frame]
	events   chan simulation.Event
	logger   logging.Logger
}

// NewLive prepares a live runner. One tick of simulated time passes per tick
// of wall-clock time; speedup stretches the simulated side.
func NewLive(e *Engine) *Live {
	step := e.scenario.Simulation.Step()
	l := &Live{
		engine:   e,
		step:     step,
		interval: step,
		events:   make(chan simulation.Event, 256),
		logger:   e.logger.With(logging.Component("live")),
	}
	e.sim.AddHandler(simulation.HandlerFunc(l.forward))
	l.publish()
	return l
}

// forward copies events to the Events channel, dropping them when nobody
// keeps up.
func (l *Live) forward(e simulation.Event) error {
	if _, ok := e.(simulation.ActionTaken); ok {
		return nil
	}
	select {
	case l.events <- e:
	default:
	}
	return nil
}

func (l *Live) publish() {
	sim := l.engine.sim
	l.frame.Store(&Frame{
		Observation: sim.Observe(),
		State:       sim.State(),
		Speedup:     sim.Speedup(),
	})
}

// Run ticks until ctx is cancelled.
func (l *Live) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("live simulation started", logging.Duration("step", l.step))
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("live simulation stopped", logging.Tick(l.engine.sim.Tick()))
			return ctx.Err()
		case <-ticker.C:
			l.engine.sim.Step(l.step)
			l.publish()
		}
	}
}

// Frame returns the latest published frame.
func (l *Live) Frame() *Frame { return l.frame.Load() }

// Enqueue forwards cmd to the simulation. The result arrives after the next tick.
func (l *Live) Enqueue(cmd simulation.Command) <-chan simulation.Result {
	return l.engine.sim.Enqueue(cmd)
}

// Events delivers every non-action event. Slow readers miss events.
func (l *Live) Events() <-chan simulation.Event { return l.events }

func (l *Live) Graph() *graph.Graph   { return l.engine.graph }
func (l *Live) Metrics() *metrics.Set { return l.engine.set }
func (l *Live) Step() time.Duration   { return l.step }
