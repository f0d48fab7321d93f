package learning

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/kinematics"
	"github.com/cxd309/railsim/internal/logging"
	"github.com/cxd309/railsim/internal/metrics"
	"github.com/cxd309/railsim/internal/railway"
	"github.com/cxd309/railsim/internal/simulation"
)

// TrainerConfig controls a training run.
type TrainerConfig struct {
	Episodes int           `json:"episodes" yaml:"episodes"`
	MaxTicks int           `json:"max_ticks" yaml:"max_ticks"`
	Step     time.Duration `json:"step" yaml:"step"`
	Workers  int           `json:"workers" yaml:"workers"`
	Seed     int64         `json:"seed" yaml:"seed"`

	Alpha   float64 `json:"alpha" yaml:"alpha"`
	Gamma   float64 `json:"gamma" yaml:"gamma"`
	Epsilon float64 `json:"epsilon" yaml:"epsilon"`

	Profile     kinematics.Profile `json:"profile" yaml:"profile"`
	Discretizer Discretizer        `json:"discretizer" yaml:"discretizer"`
	Reward      RewardConfig       `json:"reward" yaml:"reward"`

	// Pairs restricts episodes to these start/target pairs. Empty means
	// random reachable pairs.
	Pairs [][2]graph.NodeID `json:"pairs,omitempty" yaml:"pairs"`
}

// DefaultTrainerConfig returns conservative defaults.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Episodes:    200,
		MaxTicks:    5000,
		Step:        500 * time.Millisecond,
		Workers:     1,
		Seed:        1,
		Alpha:       0.2,
		Gamma:       0.9,
		Epsilon:     0.1,
		Profile:     kinematics.Profile{MaxSpeed: 20, MaxAcceleration: 1, MaxDeceleration: 1},
		Discretizer: DefaultDiscretizer(),
		Reward:      DefaultRewardConfig(),
	}
}

// Stats summarises a training run.
type Stats struct {
	Episodes   int     `json:"episodes"`
	Arrivals   int     `json:"arrivals"`
	MeanReward float64 `json:"mean_reward"`
	MeanTicks  float64 `json:"mean_ticks"`
	States     int     `json:"states"`
}

// EpisodeResult is the outcome of a single episode.
type EpisodeResult struct {
	Start, Target graph.NodeID
	Ticks         int
	Reward        float64
	Arrived       bool
}

// Trainer runs episodes against independent simulations that share one QTable.
type Trainer struct {
	graph   *graph.Graph
	table   *QTable
	cfg     TrainerConfig
	logger  logging.Logger
	metrics *metrics.Registry
	nodes   []graph.NodeID
}

// NewTrainer validates cfg against g.
func NewTrainer(g *graph.Graph, table *QTable, cfg TrainerConfig, logger logging.Logger, reg *metrics.Registry) (*Trainer, error) {
	if g == nil || table == nil {
		return nil, errors.New("graph and table are required")
	}
	if cfg.Episodes <= 0 || cfg.MaxTicks <= 0 || cfg.Step <= 0 {
		return nil, fmt.Errorf("episodes, max ticks and step must be positive")
	}
	if err := cfg.Profile.Validate(); err != nil {
		return nil, fmt.Errorf("train profile: %w", err)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	for _, p := range cfg.Pairs {
		if _, err := g.ShortestPath(p[0], p[1]); err != nil {
			return nil, fmt.Errorf("training pair %d -> %d: %w", p[0], p[1], err)
		}
	}

	var nodes []graph.NodeID
	for _, n := range g.Nodes() {
		if len(g.Neighbors(n.ID)) > 0 {
			nodes = append(nodes, n.ID)
		}
	}
	if len(cfg.Pairs) == 0 && len(nodes) < 2 {
		return nil, errors.New("graph has no connected node pairs to train on")
	}

	return &Trainer{
		graph:   g,
		table:   table,
		cfg:     cfg,
		logger:  logger.With(logging.Component("trainer")),
		metrics: reg,
		nodes:   nodes,
	}, nil
}

// Train runs every episode. With Workers == 1 episodes run one after another
// and the result is reproducible for a given Seed.
func (t *Trainer) Train(ctx context.Context) (Stats, error) {
	timer := logging.StartTimer(t.logger, "training finished", logging.Int("episodes", t.cfg.Episodes))

	var (
		mu    sync.Mutex
		stats Stats
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Workers)

	for i := 0; i < t.cfg.Episodes; i++ {
		episode := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := t.RunEpisode(episode)
			if err != nil {
				return fmt.Errorf("episode %d: %w", episode, err)
			}

			mu.Lock()
			stats.Episodes++
			stats.MeanReward += res.Reward
			stats.MeanTicks += float64(res.Ticks)
			if res.Arrived {
				stats.Arrivals++
			}
			mu.Unlock()

			if t.metrics != nil {
				t.metrics.RecordEpisode(res.Reward, res.Ticks, t.table.Len())
			}
			t.logger.Debug("episode finished",
				logging.Int("episode", episode),
				logging.Int64("start", int64(res.Start)),
				logging.Int64("target", int64(res.Target)),
				logging.Int("ticks", res.Ticks),
				logging.Float64("reward", res.Reward),
				logging.Bool("arrived", res.Arrived))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		timer.EndError(err)
		return Stats{}, err
	}

	if stats.Episodes > 0 {
		stats.MeanReward /= float64(stats.Episodes)
		stats.MeanTicks /= float64(stats.Episodes)
	}
	stats.States = t.table.Len()
	timer.End(logging.Int("arrivals", stats.Arrivals), logging.Int("states", stats.States))
	return stats, nil
}

// pair draws the start and target of an episode.
func (t *Trainer) pair(rng *rand.Rand) (graph.NodeID, graph.NodeID, error) {
	if len(t.cfg.Pairs) > 0 {
		p := t.cfg.Pairs[rng.Intn(len(t.cfg.Pairs))]
		return p[0], p[1], nil
	}
	for tries := 0; tries < 100; tries++ {
		start := t.nodes[rng.Intn(len(t.nodes))]
		reachable, err := t.graph.ReachableNodes(start)
		if err != nil {
			return 0, 0, err
		}
		if len(reachable) < 2 {
			continue
		}
		for {
			target := reachable[rng.Intn(len(reachable))]
			if target != start {
				return start, target, nil
			}
		}
	}
	return 0, 0, errors.New("no reachable start/target pair found")
}

// RunEpisode plays one episode with its own simulation and updates the table
// after every tick.
func (t *Trainer) RunEpisode(episode int) (EpisodeResult, error) {
	rng := rand.New(rand.NewSource(t.cfg.Seed + int64(episode)))
	start, target, err := t.pair(rng)
	if err != nil {
		return EpisodeResult{}, err
	}
	res := EpisodeResult{Start: start, Target: target}

	const id railway.ObjectID = 1
	sim := simulation.New(t.graph)
	learner := NewTrainingAgent(t.table, t.cfg.Discretizer, t.cfg.Epsilon, rng)
	train := railway.NewTrain(id, start, t.cfg.Profile)
	train.PushTarget(target)
	if err := sim.AddObject(train, learner); err != nil {
		return res, err
	}

	before, err := railway.DistanceToTarget(t.graph, train.Position(), target)
	if err != nil {
		return res, err
	}

	for res.Ticks < t.cfg.MaxTicks {
		events := sim.Step(t.cfg.Step)
		res.Ticks++

		dec, ok := learner.Last(id)
		if !ok {
			break
		}

		arrived := false
		for _, e := range events {
			if _, ok := e.(simulation.TargetReached); ok {
				arrived = true
			}
		}

		after := 0.0
		next := dec.State
		if !arrived {
			after, err = railway.DistanceToTarget(t.graph, train.Position(), target)
			if err != nil {
				return res, err
			}
			next = t.cfg.Discretizer.Of(train.Position().Node, target, train.Speed(), after, t.cfg.Profile)
		}

		r := t.cfg.Reward.Reward(Transition{
			Before:     before,
			After:      after,
			Arrived:    arrived,
			Speed:      train.Speed(),
			Ceiling:    t.cfg.Profile.SpeedCeiling(after),
			Stationary: train.Speed() == 0,
		})
		t.table.Update(dec.State, dec.Action, r, next, arrived, t.cfg.Alpha, t.cfg.Gamma)
		res.Reward += r
		before = after

		if arrived {
			res.Arrived = true
			break
		}
	}
	return res, nil
}
