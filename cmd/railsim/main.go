// Command railsim runs, trains, serves and inspects railway simulation
// scenarios.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/cxd309/railsim/internal/config"
	"github.com/cxd309/railsim/internal/console"
	"github.com/cxd309/railsim/internal/engine"
	"github.com/cxd309/railsim/internal/export"
	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/logging"
	"github.com/cxd309/railsim/internal/metrics"
	"github.com/cxd309/railsim/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch command, args := os.Args[1], os.Args[2:]; command {
	case "run":
		err = runCommand(ctx, args)
	case "train":
		err = trainCommand(ctx, args)
	case "serve":
		err = serveCommand(ctx, args)
	case "tui":
		err = tuiCommand(ctx, args)
	case "export":
		err = exportCommand(args)
	case "check":
		err = checkCommand(args)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "railsim %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func printUsage() {
	usage := `railsim - discrete-time railway simulator

Usage:
  railsim <command> [options] <scenario>

Available Commands:
  run       Run a scenario to completion and print the JSON log
  train     Train a learning policy and write it to the policy file
  serve     Run a scenario live behind the HTTP API
  tui       Run a scenario live with the interactive console
  export    Render the scenario graph as DOT or SVG
  check     Validate a scenario and report connectivity
  help      Show this help message

A scenario is a YAML or JSON file. Use "-" to read it from stdin.
Use "railsim <command> -h" for the options of a command.
`
	fmt.Print(usage)
}

// loadScenario reads the single positional argument of fs.
func loadScenario(fs *flag.FlagSet) (*config.Scenario, error) {
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("expected one scenario file, got %d arguments", fs.NArg())
	}
	path := fs.Arg(0)
	if path != "-" {
		return config.Load(path)
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	return config.Parse(data)
}

func newLogger(s *config.Scenario) logging.Logger {
	return logging.NewJSONLogger(os.Stderr, logging.ParseLevel(s.Simulation.LogLevel))
}

// create opens path for writing, or returns stdout for "" and "-".
func create(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func runCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	output := fs.String("o", "", "Output file for the simulation log (default stdout)")
	indent := fs.Bool("indent", false, "Indent the JSON log")
	fs.Parse(args)

	s, err := loadScenario(fs)
	if err != nil {
		return err
	}
	logger := newLogger(s)

	e, err := engine.NewFromScenario(ctx, s, engine.WithLogger(logger))
	if err != nil {
		return err
	}
	log, err := e.Run(ctx)
	if err != nil {
		return err
	}

	w, err := create(*output)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	if *indent {
		enc.SetIndent("", "  ")
	}
	return errors.Join(enc.Encode(log), w.Close())
}

func trainCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	output := fs.String("o", "", "Policy file to write (default learning.policy_file)")
	episodes := fs.Int("episodes", 0, "Override the number of training episodes")
	workers := fs.Int("workers", 0, "Override the number of parallel episodes")
	seed := fs.Int64("seed", 0, "Override the training seed")
	fs.Parse(args)

	s, err := loadScenario(fs)
	if err != nil {
		return err
	}
	if *output != "" {
		s.Learning.PolicyFile = *output
	}
	if s.Learning.PolicyFile == "" {
		return errors.New("no policy file: set learning.policy_file or pass -o")
	}
	if *episodes > 0 {
		s.Learning.Episodes = *episodes
	}
	if *workers > 0 {
		s.Learning.Workers = *workers
	}
	if *seed != 0 {
		s.Learning.Seed = *seed
	}

	logger := newLogger(s)
	reg := metrics.NewRegistry()
	_, stats, err := engine.Train(ctx, s, engine.WithLogger(logger), engine.WithRegistry(reg))
	if err != nil {
		return err
	}

	fmt.Printf("Trained %d episodes: %d arrivals, mean reward %.2f, mean ticks %.1f, %d states\n",
		stats.Episodes, stats.Arrivals, stats.MeanReward, stats.MeanTicks, stats.States)
	fmt.Printf("Policy written to %s\n", s.Learning.PolicyFile)
	return nil
}

func serveCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "Listen address (default server.addr)")
	fs.Parse(args)

	s, err := loadScenario(fs)
	if err != nil {
		return err
	}
	if *addr != "" {
		s.Server.Addr = *addr
	}
	logger := newLogger(s)
	reg := metrics.NewRegistry()

	e, err := engine.NewFromScenario(ctx, s, engine.WithLogger(logger), engine.WithRegistry(reg))
	if err != nil {
		return err
	}
	live := engine.NewLive(e)
	srv := server.New(live, reg, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return live.Run(ctx) })
	g.Go(func() error { return srv.ListenAndServe(ctx, s.Server.Addr) })
	return g.Wait()
}

func tuiCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tui", flag.ExitOnError)
	logFile := fs.String("log", "", "Write logs to this file instead of discarding them")
	fs.Parse(args)

	s, err := loadScenario(fs)
	if err != nil {
		return err
	}
	// The terminal belongs to the TUI.
	logger := logging.NewNopLogger()
	if *logFile != "" {
		f, err := os.Create(*logFile)
		if err != nil {
			return err
		}
		defer f.Close()
		logger = logging.NewJSONLogger(f, logging.ParseLevel(s.Simulation.LogLevel))
	}

	e, err := engine.NewFromScenario(ctx, s, engine.WithLogger(logger))
	if err != nil {
		return err
	}
	live := engine.NewLive(e)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go live.Run(ctx)

	return console.Run(live)
}

func exportCommand(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "dot", "Output format: dot or svg")
	output := fs.String("o", "", "Output file (default stdout)")
	width := fs.Float64("width", export.DefaultSVGOptions().Width, "SVG canvas width")
	height := fs.Float64("height", export.DefaultSVGOptions().Height, "SVG canvas height")
	fs.Parse(args)

	s, err := loadScenario(fs)
	if err != nil {
		return err
	}
	g, err := s.Graph.Build()
	if err != nil {
		return err
	}

	opts := export.DefaultSVGOptions()
	opts.Width, opts.Height = *width, *height
	out, err := export.Format(g, *format, opts)
	if err != nil {
		return err
	}

	w, err := create(*output)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return errors.Join(err, w.Close())
}

func checkCommand(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	fs.Parse(args)

	s, err := loadScenario(fs)
	if err != nil {
		return err
	}
	g, err := s.Graph.Build()
	if err != nil {
		return err
	}

	fmt.Printf("Scenario %s: %d nodes, %d edges (%.1f m of track), %d trains\n",
		s.Simulation.ID, g.NodeCount(), g.EdgeCount(), g.TotalLength(), len(s.Trains))

	var unreachable int
	for _, tc := range s.Trains {
		reachable, err := g.ReachableNodes(tc.Start)
		if err != nil {
			return err
		}
		fmt.Printf("  train %d: %d of %d nodes reachable from node %d\n",
			tc.ID, len(reachable), g.NodeCount(), tc.Start)

		set := make(map[graph.NodeID]bool, len(reachable))
		for _, n := range reachable {
			set[n] = true
		}
		for _, target := range tc.Targets {
			if !set[target] {
				fmt.Printf("    target %d is unreachable\n", target)
				unreachable++
			}
		}
	}
	if unreachable > 0 {
		return fmt.Errorf("%d unreachable targets", unreachable)
	}
	fmt.Println("OK")
	return nil
}
