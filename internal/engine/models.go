package engine

import (
	"github.com/cxd309/railsim/internal/environment"
	"github.com/cxd309/railsim/internal/railway"
	"github.com/cxd309/railsim/internal/simulation"
)

// SimulationMeta holds the identity and timing parameters for a simulation run.
type SimulationMeta struct {
	SimulationID string  `json:"simulation_id"`
	RunTime      float64 `json:"run_time"`  // seconds
	TimeStep     float64 `json:"time_step"` // seconds
}

// SimulationLogRow is the state of all objects after one tick.
type SimulationLogRow struct {
	Timestamp float64         `json:"timestamp"` // simulated seconds
	Tick      uint64          `json:"tick"`
	State     string          `json:"state"`
	Objects   []railway.State `json:"objects"`
	Events    []string        `json:"events,omitempty"`
}

// SimulationLog is the complete output of a simulation run.
type SimulationLog struct {
	Meta    SimulationMeta     `json:"simulation_meta"`
	Output  []SimulationLogRow `json:"output"`
	Metrics map[string]float64 `json:"metrics"`
}

// Frame is the published view of a live simulation. Frames are never
// modified once published.
type Frame struct {
	Observation *environment.Snapshot
	State       simulation.State
	Speedup     float64
}
