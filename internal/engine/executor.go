package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cxd309/railsim/internal/logging"
	"github.com/cxd309/railsim/internal/simulation"
)

// Executor runs a simulation for a fixed number of ticks as fast as possible.
type Executor struct {
	FPS     float64       // ticks per simulated second
	RunTime time.Duration // unscaled simulated time to cover
	Logger  logging.Logger
}

// Step returns the tick length.
func (x *Executor) Step() time.Duration {
	return time.Duration(float64(time.Second) / x.FPS)
}

// Ticks returns how many ticks Run performs.
func (x *Executor) Ticks() int {
	return int(math.Ceil(x.RunTime.Seconds() * x.FPS))
}

// Run records the initial state, then one row per tick. The tick count is
// fixed up front, so a paused simulation still terminates.
func (x *Executor) Run(ctx context.Context, sim *simulation.Simulation) ([]SimulationLogRow, error) {
	if x.FPS <= 0 || math.IsInf(x.FPS, 0) || math.IsNaN(x.FPS) {
		return nil, errors.New("fps must be positive")
	}
	logger := x.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	ticks := x.Ticks()
	timer := logging.StartTimer(logger, "simulation run finished", logging.Int("ticks", ticks))

	rows := make([]SimulationLogRow, 0, ticks+1)
	rows = append(rows, row(sim, nil))
	step := x.Step()
	for i := 0; i < ticks; i++ {
		if err := ctx.Err(); err != nil {
			timer.EndError(err)
			return nil, err
		}
		events := sim.Step(step)
		rows = append(rows, row(sim, events))
	}
	timer.End(logging.Duration("simulated", sim.Elapsed()))
	return rows, nil
}

func row(sim *simulation.Simulation, events []simulation.Event) SimulationLogRow {
	r := SimulationLogRow{
		Timestamp: sim.Elapsed().Seconds(),
		Tick:      sim.Tick(),
		State:     sim.State().String(),
		Objects:   sim.Objects(),
	}
	for _, e := range events {
		switch e.(type) {
		case simulation.ActionTaken, simulation.TickCompleted:
			continue
		}
		r.Events = append(r.Events, simulation.Describe(e))
	}
	return r
}
