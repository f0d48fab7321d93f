// Package console parses and executes text commands against a live
// simulation. Commands that change the simulation are queued and take effect
// at the next tick; queries read the latest published frame.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cxd309/railsim/internal/engine"
	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/metrics"
	"github.com/cxd309/railsim/internal/railway"
	"github.com/cxd309/railsim/internal/simulation"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnknownMetric  = errors.New("unknown metric")
	ErrUsage          = errors.New("usage")
)

// Session is the live simulation a console talks to.
type Session interface {
	Enqueue(cmd simulation.Command) <-chan simulation.Result
	Frame() *engine.Frame
	Metrics() *metrics.Set
}

// Console executes command lines.
type Console struct {
	session Session
	timeout time.Duration
}

// New returns a console that waits up to five seconds for queued commands.
func New(s Session) *Console {
	return &Console{session: s, timeout: 5 * time.Second}
}

// SetTimeout changes how long Execute waits for a queued command.
func (c *Console) SetTimeout(d time.Duration) { c.timeout = d }

const helpText = `Commands:
  pause                 pause the simulation
  resume                resume the simulation
  toggle                toggle between paused and running
  speedup <factor>      scale simulated time per tick
  object list           list every object
  object show <id>      show one object as JSON
  target <id> <node>    append a target to an object's queue
  clear <id>            drop every target of an object
  metrics list          list metric names
  metrics get <name>    show one metric value
  help                  show this text`

// Help returns the command summary.
func Help() string { return helpText }

// Execute runs one command line and returns its output.
func (c *Console) Execute(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}

	switch cmd, args := strings.ToLower(fields[0]), fields[1:]; cmd {
	case "help", "?":
		return helpText, nil
	case "pause":
		return c.submit(ctx, simulation.Pause{})
	case "resume":
		return c.submit(ctx, simulation.Resume{})
	case "toggle":
		return c.submit(ctx, simulation.TogglePause{})
	case "speedup":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: speedup <factor>", ErrUsage)
		}
		f, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return "", fmt.Errorf("%w: speedup <factor>: %v", ErrUsage, err)
		}
		return c.submit(ctx, simulation.SetSpeedup{Factor: f})
	case "target":
		if len(args) != 2 {
			return "", fmt.Errorf("%w: target <id> <node>", ErrUsage)
		}
		id, err := parseObjectID(args[0])
		if err != nil {
			return "", err
		}
		node, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return "", fmt.Errorf("%w: target <id> <node>: %v", ErrUsage, err)
		}
		return c.submit(ctx, simulation.PushTarget{Object: id, Node: graph.NodeID(node)})
	case "clear":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: clear <id>", ErrUsage)
		}
		id, err := parseObjectID(args[0])
		if err != nil {
			return "", err
		}
		return c.submit(ctx, simulation.ClearTargets{Object: id})
	case "object", "objects":
		return c.object(args)
	case "metrics", "metric":
		return c.metrics(args)
	default:
		return "", fmt.Errorf("%w: %q (try help)", ErrUnknownCommand, fields[0])
	}
}

func parseObjectID(s string) (railway.ObjectID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: object id %q is not a number", ErrUsage, s)
	}
	return railway.ObjectID(id), nil
}

// submit queues cmd and waits for the simulation to apply it.
func (c *Console) submit(ctx context.Context, cmd simulation.Command) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	select {
	case res := <-c.session.Enqueue(cmd):
		return res.Message, res.Err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for the simulation: %w", ctx.Err())
	}
}

func (c *Console) object(args []string) (string, error) {
	obs := c.session.Frame().Observation
	if len(args) == 0 || args[0] == "list" {
		objects := obs.Objects()
		if len(objects) == 0 {
			return "no objects", nil
		}
		lines := make([]string, len(objects))
		for i, st := range objects {
			lines[i] = FormatObject(st)
		}
		return strings.Join(lines, "\n"), nil
	}
	if args[0] != "show" || len(args) != 2 {
		return "", fmt.Errorf("%w: object list | object show <id>", ErrUsage)
	}
	id, err := parseObjectID(args[1])
	if err != nil {
		return "", err
	}
	st, ok := obs.Object(id)
	if !ok {
		return "", fmt.Errorf("object %d: %w", id, simulation.ErrObjectNotFound)
	}
	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// FormatObject renders one object on a single line.
func FormatObject(st railway.State) string {
	where := fmt.Sprintf("node %d", st.Position.Node)
	if st.Position.OnEdge() {
		where = fmt.Sprintf("edge %d +%.1fm from node %d", st.Position.Edge, st.Position.Offset, st.Position.Node)
	}
	return fmt.Sprintf("%s %d at %s, %.2f m/s, targets %v", st.Kind, st.ID, where, st.Speed, st.Targets)
}

func (c *Console) metrics(args []string) (string, error) {
	set := c.session.Metrics()
	if len(args) == 0 || args[0] == "list" {
		return strings.Join(set.Names(), "\n"), nil
	}
	if args[0] != "get" || len(args) != 2 {
		return "", fmt.Errorf("%w: metrics list | metrics get <name>", ErrUsage)
	}
	h, ok := set.Get(args[1])
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, args[1])
	}
	out := fmt.Sprintf("%s = %g", h.Name(), h.Value())
	if ac, ok := h.(*metrics.ActionCount); ok {
		counts := ac.Counts()
		kinds := make([]string, 0, len(counts))
		for k := range counts {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			out += fmt.Sprintf("\n  %s: %d", k, counts[k])
		}
	}
	return out, nil
}
