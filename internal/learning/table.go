package learning

import (
	"sort"
	"sync"
)

// Values holds one estimate per action.
type Values [NumActions]float64

// QTable is a concurrency-safe value table keyed by State.
type QTable struct {
	mu        sync.RWMutex
	values    map[State]*Values
	initial   float64
	maxStates int
	dropped   int
}

// NewQTable creates an empty table. Unseen entries read as initial. A
// positive maxStates caps the number of states; updates to new states are
// dropped once the cap is reached.
func NewQTable(initial float64, maxStates int) *QTable {
	return &QTable{
		values:    make(map[State]*Values),
		initial:   initial,
		maxStates: maxStates,
	}
}

func (q *QTable) fresh() *Values {
	var v Values
	for i := range v {
		v[i] = q.initial
	}
	return &v
}

// Lookup returns the values of s. The second result reports whether s has
// ever been updated.
func (q *QTable) Lookup(s State) (Values, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if v, ok := q.values[s]; ok {
		return *v, true
	}
	return *q.fresh(), false
}

// Update applies one temporal-difference step:
//
//	Q(s,a) += alpha * (reward + gamma * max Q(next, ·) - Q(s,a))
//
// When terminal is true the bootstrap term is omitted.
func (q *QTable) Update(s State, a int, reward float64, next State, terminal bool, alpha, gamma float64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	v, ok := q.values[s]
	if !ok {
		if q.maxStates > 0 && len(q.values) >= q.maxStates {
			q.dropped++
			return
		}
		v = q.fresh()
		q.values[s] = v
	}

	future := 0.0
	if !terminal {
		nv, ok := q.values[next]
		if !ok {
			nv = q.fresh()
		}
		_, future = best(*nv)
	}
	v[a] += alpha * (reward + gamma*future - v[a])
}

// Len returns the number of states in the table.
func (q *QTable) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.values)
}

// Dropped returns how many updates were refused by the state cap.
func (q *QTable) Dropped() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.dropped
}

// Entry is one table row.
type Entry struct {
	State  State  `json:"state"`
	Values Values `json:"values"`
}

// Entries returns every row in a stable order.
func (q *QTable) Entries() []Entry {
	q.mu.RLock()
	out := make([]Entry, 0, len(q.values))
	for s, v := range q.values {
		out = append(out, Entry{State: s, Values: *v})
	}
	q.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return lessState(out[i].State, out[j].State) })
	return out
}

func lessState(a, b State) bool {
	switch {
	case a.Node != b.Node:
		return a.Node < b.Node
	case a.Target != b.Target:
		return a.Target < b.Target
	case a.Speed != b.Speed:
		return a.Speed < b.Speed
	case a.Ceiling != b.Ceiling:
		return a.Ceiling < b.Ceiling
	case a.MaxSpeed != b.MaxSpeed:
		return a.MaxSpeed < b.MaxSpeed
	default:
		return a.MaxSpeedPercentage < b.MaxSpeedPercentage
	}
}

// best returns the first index holding the maximum value.
func best(v Values) (int, float64) {
	idx := 0
	for i := 1; i < NumActions; i++ {
		if v[i] > v[idx] {
			idx = i
		}
	}
	return idx, v[idx]
}
