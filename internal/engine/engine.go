// Package engine builds simulations from scenarios and drives them.
//
// An Engine owns one Simulation together with its metric handlers. It is run
// either to completion by an Executor, producing a SimulationLog, or paced
// against the wall clock by a Live runner for interactive sessions.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/cxd309/railsim/internal/agent"
	"github.com/cxd309/railsim/internal/config"
	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/kinematics"
	"github.com/cxd309/railsim/internal/learning"
	"github.com/cxd309/railsim/internal/logging"
	"github.com/cxd309/railsim/internal/metrics"
	"github.com/cxd309/railsim/internal/railway"
	"github.com/cxd309/railsim/internal/simulation"
)

// AgentOptions carries what NewAgent needs for each kind.
type AgentOptions struct {
	BrakingFactor float64
	Policy        *learning.QTable
	Discretizer   learning.Discretizer
}

// NewAgent is the single constructor for every agent kind.
func NewAgent(kind agent.Kind, o AgentOptions) (agent.Agent, error) {
	rule := &agent.ForwardUntilTarget{BrakingFactor: o.BrakingFactor}
	switch kind {
	case agent.KindForwardUntilTarget, "":
		return rule, nil
	case agent.KindLearning:
		if o.Policy == nil {
			return nil, errors.New("learning agent requires a policy")
		}
		a := learning.NewAgent(o.Policy, o.Discretizer)
		a.Fallback = rule
		return a, nil
	default:
		return nil, fmt.Errorf("unknown agent kind %q", kind)
	}
}

// Engine is a simulation built from a scenario.
type Engine struct {
	scenario *config.Scenario
	graph    *graph.Graph
	sim      *simulation.Simulation
	set      *metrics.Set
	registry *metrics.Registry
	logger   logging.Logger

	policy      *learning.QTable
	discretizer learning.Discretizer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used by the engine and its simulation.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRegistry mirrors simulation events into Prometheus collectors.
func WithRegistry(r *metrics.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithPolicy supplies the table used by learning agents. Without it a policy
// is loaded from the scenario's policy file or trained on demand.
func WithPolicy(table *learning.QTable, d learning.Discretizer) Option {
	return func(e *Engine) {
		e.policy = table
		e.discretizer = d
	}
}

func newEngine(s *config.Scenario, opts []Option) (*Engine, error) {
	if s == nil {
		return nil, errors.New("scenario is required")
	}
	e := &Engine{
		scenario: s,
		set:      metrics.DefaultSet(),
		logger:   logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	g, err := s.Graph.Build()
	if err != nil {
		return nil, fmt.Errorf("building graph: %w", err)
	}
	e.graph = g
	return e, nil
}

// NewFromScenario builds the graph, the trains and their agents.
func NewFromScenario(ctx context.Context, s *config.Scenario, opts ...Option) (*Engine, error) {
	e, err := newEngine(s, opts)
	if err != nil {
		return nil, err
	}

	simOpts := []simulation.Option{
		simulation.WithLogger(e.logger),
		simulation.WithSpeedup(s.Simulation.Speedup),
	}
	if s.AutoTargets != nil {
		simOpts = append(simOpts, simulation.WithAutoTargets(*s.AutoTargets))
	}
	e.sim = simulation.New(e.graph, simOpts...)
	e.set.Register(e.sim)
	if e.registry != nil {
		e.sim.AddHandler(metrics.NewExporter(e.registry))
	}

	for _, tc := range s.Trains {
		kind := tc.AgentKind()
		if kind == agent.KindLearning && e.policy == nil {
			if err := e.loadPolicy(ctx); err != nil {
				return nil, err
			}
		}
		a, err := NewAgent(kind, AgentOptions{
			BrakingFactor: s.Agents.BrakingFactor,
			Policy:        e.policy,
			Discretizer:   e.discretizer,
		})
		if err != nil {
			return nil, fmt.Errorf("train %d: %w", tc.ID, err)
		}

		train := railway.NewTrain(tc.ID, tc.Start, tc.Profile())
		for _, n := range tc.Targets {
			train.PushTarget(n)
		}
		if err := e.sim.AddObject(train, a); err != nil {
			return nil, fmt.Errorf("train %d: %w", tc.ID, err)
		}
	}
	return e, nil
}

// Train trains a policy for the scenario's trains and saves it to the
// configured policy file, if any. No simulation is built.
func Train(ctx context.Context, s *config.Scenario, opts ...Option) (*learning.QTable, learning.Stats, error) {
	e, err := newEngine(s, opts)
	if err != nil {
		return nil, learning.Stats{}, err
	}
	return e.trainAndSave(ctx)
}

// loadPolicy reads the scenario's policy file. A missing file, or none
// configured, trains a fresh policy (and saves it when a path is set).
func (e *Engine) loadPolicy(ctx context.Context) error {
	l := e.scenario.Learning
	if l.PolicyFile != "" {
		table, d, err := learning.LoadPolicyFile(l.PolicyFile, l.MaxStates)
		switch {
		case err == nil:
			e.logger.Info("policy loaded",
				logging.String("path", l.PolicyFile),
				logging.Int("states", table.Len()))
			e.policy, e.discretizer = table, d
			return nil
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("loading policy: %w", err)
		}
		e.logger.Warn("policy file missing, training", logging.String("path", l.PolicyFile))
	}

	table, _, err := e.trainAndSave(ctx)
	if err != nil {
		return fmt.Errorf("training policy: %w", err)
	}
	e.policy, e.discretizer = table, l.Discretize
	return nil
}

func (e *Engine) trainAndSave(ctx context.Context) (*learning.QTable, learning.Stats, error) {
	table, stats, err := e.train(ctx)
	if err != nil {
		return nil, stats, err
	}
	if path := e.scenario.Learning.PolicyFile; path != "" {
		if err := learning.SavePolicyFile(path, table, e.scenario.Learning.Discretize); err != nil {
			return nil, stats, fmt.Errorf("saving policy: %w", err)
		}
		e.logger.Info("policy saved", logging.String("path", path), logging.Int("states", table.Len()))
	}
	return table, stats, nil
}

// train runs one training pass per distinct train profile into a shared
// table. Each train contributes its own route as start/target pairs.
func (e *Engine) train(ctx context.Context) (*learning.QTable, learning.Stats, error) {
	s := e.scenario
	table := learning.NewQTable(s.Learning.Initial, s.Learning.MaxStates)

	routes := make(map[kinematics.Profile][][2]graph.NodeID)
	var profiles []kinematics.Profile
	for _, tc := range s.Trains {
		p := tc.Profile()
		if _, ok := routes[p]; !ok {
			profiles = append(profiles, p)
			routes[p] = nil
		}
		prev := tc.Start
		for _, n := range tc.Targets {
			if n != prev {
				routes[p] = append(routes[p], [2]graph.NodeID{prev, n})
			}
			prev = n
		}
	}
	if len(profiles) == 0 {
		profiles = append(profiles, learning.DefaultTrainerConfig().Profile)
	}

	var total learning.Stats
	for _, p := range profiles {
		cfg := s.TrainerConfig(p)
		cfg.Pairs = routes[p]
		trainer, err := learning.NewTrainer(e.graph, table, cfg, e.logger, e.registry)
		if err != nil {
			return nil, total, err
		}
		stats, err := trainer.Train(ctx)
		if err != nil {
			return nil, total, err
		}
		total.Episodes += stats.Episodes
		total.Arrivals += stats.Arrivals
		total.MeanReward += stats.MeanReward * float64(stats.Episodes)
		total.MeanTicks += stats.MeanTicks * float64(stats.Episodes)
	}
	if total.Episodes > 0 {
		total.MeanReward /= float64(total.Episodes)
		total.MeanTicks /= float64(total.Episodes)
	}
	total.States = table.Len()
	return table, total, nil
}

func (e *Engine) Scenario() *config.Scenario         { return e.scenario }
func (e *Engine) Graph() *graph.Graph                { return e.graph }
func (e *Engine) Simulation() *simulation.Simulation { return e.sim }
func (e *Engine) Metrics() *metrics.Set              { return e.set }

// Executor returns an executor paced by the scenario's timing.
func (e *Engine) Executor() *Executor {
	return &Executor{
		FPS:     float64(time.Second) / float64(e.scenario.Simulation.Step()),
		RunTime: time.Duration(e.scenario.Simulation.RunTime * float64(time.Second)),
		Logger:  e.logger,
	}
}

// Run executes the scenario to completion and returns the log.
func (e *Engine) Run(ctx context.Context) (SimulationLog, error) {
	x := e.Executor()
	rows, err := x.Run(ctx, e.sim)
	if err != nil {
		return SimulationLog{}, err
	}
	return SimulationLog{
		Meta: SimulationMeta{
			SimulationID: e.scenario.Simulation.ID,
			RunTime:      e.scenario.Simulation.RunTime,
			TimeStep:     x.Step().Seconds(),
		},
		Output:  rows,
		Metrics: e.set.Values(),
	}, nil
}

// RunJSON is the entry point for the CLI and WASM targets. It accepts a
// JSON (or YAML) scenario, runs it, and returns a JSON-encoded SimulationLog.
func RunJSON(input string) (string, error) {
	s, err := config.Parse([]byte(input))
	if err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	ctx := context.Background()
	e, err := NewFromScenario(ctx, s)
	if err != nil {
		return "", err
	}
	log, err := e.Run(ctx)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(log)
	if err != nil {
		return "", fmt.Errorf("encoding output: %w", err)
	}
	return string(out), nil
}
