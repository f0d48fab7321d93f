// Package metrics turns simulation events into counters: in-memory handlers
// that the console and API query by name, and a Prometheus exporter.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/cxd309/railsim/internal/graph"
	"github.com/cxd309/railsim/internal/railway"
	"github.com/cxd309/railsim/internal/simulation"
)

// Handler is a simulation handler with a single headline value.
type Handler interface {
	simulation.Handler
	Name() string
	Value() float64
}

// ActionCount counts chosen actions per kind.
type ActionCount struct {
	mu     sync.RWMutex
	counts map[string]uint64
}

func NewActionCount() *ActionCount {
	return &ActionCount{counts: make(map[string]uint64)}
}

func (h *ActionCount) Name() string { return "ActionCount" }

func (h *ActionCount) Handle(e simulation.Event) error {
	if at, ok := e.(simulation.ActionTaken); ok {
		h.mu.Lock()
		h.counts[at.Action.Kind.String()]++
		h.mu.Unlock()
	}
	return nil
}

// Value is the total number of actions.
func (h *ActionCount) Value() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var total uint64
	for _, n := range h.counts {
		total += n
	}
	return float64(total)
}

// Counts returns a copy of the per-kind counts.
func (h *ActionCount) Counts() map[string]uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]uint64, len(h.counts))
	for k, v := range h.counts {
		out[k] = v
	}
	return out
}

// Arrival is one recorded target-reached occurrence.
type Arrival struct {
	Object  railway.ObjectID `json:"object"`
	Node    graph.NodeID     `json:"node"`
	Tick    uint64           `json:"tick"`
	Elapsed time.Duration    `json:"elapsed"`
}

// TargetReached counts and records arrivals.
type TargetReached struct {
	mu       sync.RWMutex
	arrivals []Arrival
}

func NewTargetReached() *TargetReached { return &TargetReached{} }

func (h *TargetReached) Name() string { return "TargetReached" }

func (h *TargetReached) Handle(e simulation.Event) error {
	if tr, ok := e.(simulation.TargetReached); ok {
		h.mu.Lock()
		h.arrivals = append(h.arrivals, Arrival{
			Object:  tr.Object,
			Node:    tr.Node,
			Tick:    tr.Tick,
			Elapsed: tr.Elapsed,
		})
		h.mu.Unlock()
	}
	return nil
}

func (h *TargetReached) Value() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return float64(len(h.arrivals))
}

// Arrivals returns a copy of every recorded arrival in order.
func (h *TargetReached) Arrivals() []Arrival {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Arrival(nil), h.arrivals...)
}

// Exporter mirrors simulation events into a Registry.
type Exporter struct {
	registry *Registry
}

func NewExporter(r *Registry) *Exporter { return &Exporter{registry: r} }

func (x *Exporter) Handle(e simulation.Event) error {
	switch ev := e.(type) {
	case simulation.ActionTaken:
		x.registry.RecordAction(ev.Action.Kind.String())
	case simulation.TargetReached:
		x.registry.RecordTargetReached(int64(ev.Object))
	case simulation.StateChanged:
		x.registry.RecordStateChange(ev.To.String())
	case simulation.TickCompleted:
		x.registry.RecordTick(ev.Elapsed, ev.Objects)
	}
	return nil
}

// Set is a named collection of metric handlers.
type Set struct {
	handlers []Handler
}

// NewSet groups handlers. Names are expected to be unique.
func NewSet(handlers ...Handler) *Set {
	return &Set{handlers: handlers}
}

// DefaultSet returns ActionCount and TargetReached.
func DefaultSet() *Set {
	return NewSet(NewActionCount(), NewTargetReached())
}

// Handlers returns the handlers in registration order.
func (s *Set) Handlers() []Handler {
	return append([]Handler(nil), s.handlers...)
}

// Names returns the metric names, sorted.
func (s *Set) Names() []string {
	names := make([]string, len(s.handlers))
	for i, h := range s.handlers {
		names[i] = h.Name()
	}
	sort.Strings(names)
	return names
}

// Get returns the handler with the given name.
func (s *Set) Get(name string) (Handler, bool) {
	for _, h := range s.handlers {
		if h.Name() == name {
			return h, true
		}
	}
	return nil, false
}

// Values returns every headline value by name.
func (s *Set) Values() map[string]float64 {
	out := make(map[string]float64, len(s.handlers))
	for _, h := range s.handlers {
		out[h.Name()] = h.Value()
	}
	return out
}

// Register adds every handler of the set to sim.
func (s *Set) Register(sim *simulation.Simulation) {
	for _, h := range s.handlers {
		sim.AddHandler(h)
	}
}
