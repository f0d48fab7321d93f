// Package config loads and validates scenario files.
//
// A scenario is YAML (JSON is accepted as a subset) describing the graph,
// the trains and how the run is driven:
//
//	simulation:
//	  run_time: 120
//	  fps: 10
//	graph:
//	  nodes: [{node_id: 1, lat: 51.5, lon: -0.1}, ...]
//	  edges: [{edge_id: 1, u: 1, v: 2, length: 500}, ...]
//	trains:
//	  - id: 1
//	    start: 1
//	    targets: [3]
//	    max_speed: 20
//	    max_acceleration: 1
//	    max_deceleration: 1.2
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/cxd309/railsim/internal/agent"
	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/kinematics"
	"github.com/cxd309/railsim/internal/learning"
	"github.com/cxd309/railsim/internal/railway"
)

// ErrInvalidScenario wraps every validation failure.
var ErrInvalidScenario = errors.New("invalid scenario")

var validate = validator.New()

// Scenario is a complete run description.
type Scenario struct {
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Graph      GraphConfig      `json:"graph" yaml:"graph"`
	Trains     []TrainConfig    `json:"trains" yaml:"trains" validate:"dive"`
	Agents     AgentsConfig     `json:"agents" yaml:"agents"`
	Learning   LearningConfig   `json:"learning" yaml:"learning"`
	Server     ServerConfig     `json:"server" yaml:"server"`

	// AutoTargets seeds random targets for trains whose queue runs empty.
	// Unset disables them.
	AutoTargets *int64 `json:"auto_targets,omitempty" yaml:"auto_targets"`
}

// SimulationConfig holds the run identity and timing.
type SimulationConfig struct {
	ID       string  `json:"id" yaml:"id"`
	RunTime  float64 `json:"run_time" yaml:"run_time" validate:"gte=0"`   // seconds
	TimeStep float64 `json:"time_step" yaml:"time_step" validate:"gte=0"` // seconds, overrides fps
	FPS      float64 `json:"fps" yaml:"fps" validate:"gte=0"`
	Speedup  float64 `json:"speedup" yaml:"speedup" validate:"gte=0"`
	LogLevel string  `json:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
}

// Step returns the simulated length of one tick.
func (c SimulationConfig) Step() time.Duration {
	if c.TimeStep > 0 {
		return time.Duration(c.TimeStep * float64(time.Second))
	}
	return time.Duration(float64(time.Second) / c.FPS)
}

// GraphConfig is either an explicit node/edge list or a list of map elements.
type GraphConfig struct {
	Directed bool            `json:"directed" yaml:"directed"`
	Nodes    []graph.Node    `json:"nodes,omitempty" yaml:"nodes"`
	Edges    []graph.Edge    `json:"edges,omitempty" yaml:"edges"`
	Elements []graph.Element `json:"elements,omitempty" yaml:"elements"`
}

// Build constructs the graph.
func (c GraphConfig) Build() (*graph.Graph, error) {
	if len(c.Elements) > 0 {
		if len(c.Nodes) > 0 || len(c.Edges) > 0 {
			return nil, errors.New("graph: elements cannot be combined with nodes or edges")
		}
		if c.Directed {
			return nil, errors.New("graph: elements always build an undirected graph")
		}
		return graph.FromElements(c.Elements)
	}
	return graph.New(graph.GraphData{Directed: c.Directed, Nodes: c.Nodes, Edges: c.Edges})
}

// TrainConfig places one train.
type TrainConfig struct {
	ID              railway.ObjectID `json:"id" yaml:"id"`
	Start           graph.NodeID     `json:"start" yaml:"start"`
	Targets         []graph.NodeID   `json:"targets" yaml:"targets"`
	MaxSpeed        float64          `json:"max_speed" yaml:"max_speed" validate:"gt=0"`
	MaxAcceleration float64          `json:"max_acceleration" yaml:"max_acceleration" validate:"gt=0"`
	MaxDeceleration float64          `json:"max_deceleration" yaml:"max_deceleration" validate:"gt=0"`
	Agent           string           `json:"agent,omitempty" yaml:"agent" validate:"omitempty,oneof=forward_until_target learning"`
}

// Profile returns the train's kinematic envelope.
func (c TrainConfig) Profile() kinematics.Profile {
	return kinematics.Profile{
		MaxSpeed:        c.MaxSpeed,
		MaxAcceleration: c.MaxAcceleration,
		MaxDeceleration: c.MaxDeceleration,
	}
}

// AgentKind returns the configured controller kind.
func (c TrainConfig) AgentKind() agent.Kind {
	k, _ := agent.ParseKind(c.Agent)
	return k
}

// AgentsConfig tunes the rule-based agent.
type AgentsConfig struct {
	BrakingFactor float64 `json:"braking_factor" yaml:"braking_factor" validate:"gte=0,lte=1"`
}

// LearningConfig holds the Q-learning hyper-parameters.
type LearningConfig struct {
	Alpha      float64               `json:"alpha" yaml:"alpha" validate:"gt=0,lte=1"`
	Gamma      float64               `json:"gamma" yaml:"gamma" validate:"gte=0,lte=1"`
	Epsilon    float64               `json:"epsilon" yaml:"epsilon" validate:"gte=0,lte=1"`
	Episodes   int                   `json:"episodes" yaml:"episodes" validate:"gt=0"`
	MaxTicks   int                   `json:"max_ticks" yaml:"max_ticks" validate:"gt=0"`
	Workers    int                   `json:"workers" yaml:"workers" validate:"gte=1,lte=256"`
	Seed       int64                 `json:"seed" yaml:"seed"`
	Initial    float64               `json:"initial" yaml:"initial"`
	MaxStates  int                   `json:"max_states" yaml:"max_states" validate:"gte=0"`
	Reward     learning.RewardConfig `json:"reward" yaml:"reward"`
	Discretize learning.Discretizer  `json:"discretizer" yaml:"discretizer"`
	PolicyFile string                `json:"policy_file,omitempty" yaml:"policy_file"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr" validate:"omitempty,hostname_port"`
}

// Load reads and validates the scenario at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Decode reads and validates a scenario from r.
func Decode(r io.Reader) (*Scenario, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes data, fills defaults and validates the result.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ApplyDefaults fills unset fields.
func (s *Scenario) ApplyDefaults() {
	if s.Simulation.ID == "" {
		s.Simulation.ID = uuid.NewString()
	}
	if s.Simulation.RunTime == 0 {
		s.Simulation.RunTime = 60
	}
	if s.Simulation.FPS == 0 && s.Simulation.TimeStep == 0 {
		s.Simulation.FPS = 10
	}
	if s.Simulation.Speedup == 0 {
		s.Simulation.Speedup = 1
	}
	if s.Simulation.LogLevel == "" {
		s.Simulation.LogLevel = "info"
	}
	if s.Agents.BrakingFactor == 0 {
		s.Agents.BrakingFactor = 1
	}

	d := learning.DefaultTrainerConfig()
	l := &s.Learning
	if l.Alpha == 0 {
		l.Alpha = d.Alpha
	}
	if l.Gamma == 0 {
		l.Gamma = d.Gamma
	}
	if l.Epsilon == 0 {
		l.Epsilon = d.Epsilon
	}
	if l.Episodes == 0 {
		l.Episodes = d.Episodes
	}
	if l.MaxTicks == 0 {
		l.MaxTicks = d.MaxTicks
	}
	if l.Workers == 0 {
		l.Workers = d.Workers
	}
	if l.Seed == 0 {
		l.Seed = d.Seed
	}
	if l.Reward == (learning.RewardConfig{}) {
		l.Reward = d.Reward
	}
	if l.Discretize == (learning.Discretizer{}) {
		l.Discretize = d.Discretizer
	}

	if s.Server.Addr == "" {
		s.Server.Addr = "localhost:8080"
	}
}

// Validate checks field ranges, unique train IDs and that every train
// starts on and targets nodes of the graph.
func (s *Scenario) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScenario, formatValidationError(err))
	}

	g, err := s.Graph.Build()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}

	seen := make(map[railway.ObjectID]bool, len(s.Trains))
	for i, t := range s.Trains {
		if seen[t.ID] {
			return fmt.Errorf("%w: trains[%d]: duplicate id %d", ErrInvalidScenario, i, t.ID)
		}
		seen[t.ID] = true
		if !g.HasNode(t.Start) {
			return fmt.Errorf("%w: train %d: start node %d: %w", ErrInvalidScenario, t.ID, t.Start, graph.ErrNotFound)
		}
		for _, n := range t.Targets {
			if !g.HasNode(n) {
				return fmt.Errorf("%w: train %d: target node %d: %w", ErrInvalidScenario, t.ID, n, graph.ErrNotFound)
			}
		}
	}
	return nil
}

// TrainerConfig converts the learning section for profile p.
func (s *Scenario) TrainerConfig(p kinematics.Profile) learning.TrainerConfig {
	l := s.Learning
	return learning.TrainerConfig{
		Episodes:    l.Episodes,
		MaxTicks:    l.MaxTicks,
		Step:        s.Simulation.Step(),
		Workers:     l.Workers,
		Seed:        l.Seed,
		Alpha:       l.Alpha,
		Gamma:       l.Gamma,
		Epsilon:     l.Epsilon,
		Profile:     p,
		Discretizer: l.Discretize,
		Reward:      l.Reward,
	}
}

// formatValidationError reports the first failing field.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, e := range verrs {
		field := e.Namespace()
		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "gt":
			return fmt.Errorf("%s: must be greater than %s", field, e.Param())
		case "gte", "min":
			return fmt.Errorf("%s: must be at least %s", field, e.Param())
		case "lte", "max":
			return fmt.Errorf("%s: must not exceed %s", field, e.Param())
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, e.Param())
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}
	return err
}
