package qlearning

import (
	"sort"

	"github.com/felixgeelhaar/reinforce-go/domain/model"
	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

// row is one Q-table entry: a value per action ordinal, a visit counter
// per cell for diagnostics, and an update sequence for LRU eviction.
type row struct {
	values  []float64
	visits  []uint64
	touched uint64
}

// QTable maps state keys to per-action value vectors for one agent type.
// It grows as new states are seen and never shrinks except through the
// MaxStates LRU bound. Not safe for concurrent use; the owning learner's
// caller serializes access.
type QTable struct {
	actions   int
	maxStates int
	rows      map[rl.StateKey]*row
	clock     uint64
}

// NewQTable creates a table with the given action-set size and bound.
func NewQTable(actions, maxStates int) *QTable {
	return &QTable{
		actions:   actions,
		maxStates: maxStates,
		rows:      make(map[rl.StateKey]*row),
	}
}

// Size returns the number of known states.
func (t *QTable) Size() int {
	return len(t.rows)
}

// Row returns a copy of the value vector for a state. Unknown states
// yield a zero vector.
func (t *QTable) Row(key rl.StateKey) []float64 {
	out := make([]float64, t.actions)
	if r, ok := t.rows[key]; ok {
		copy(out, r.values)
	}
	return out
}

// Visits returns the visit count for one cell.
func (t *QTable) Visits(key rl.StateKey, ordinal int) uint64 {
	if r, ok := t.rows[key]; ok && ordinal >= 0 && ordinal < len(r.visits) {
		return r.visits[ordinal]
	}
	return 0
}

// ensure lazily initializes a zero row, evicting the least-recently-
// updated row when the table is at its bound. An existing key counts as
// a touch, so a row being read for an update is never the eviction
// victim of the bootstrap row it pulls in. Returns true if the state
// was newly inserted.
func (t *QTable) ensure(key rl.StateKey) bool {
	if r, ok := t.rows[key]; ok {
		t.clock++
		r.touched = t.clock
		return false
	}
	if len(t.rows) >= t.maxStates {
		t.evictLRU()
	}
	t.clock++
	t.rows[key] = &row{
		values:  make([]float64, t.actions),
		visits:  make([]uint64, t.actions),
		touched: t.clock,
	}
	return true
}

func (t *QTable) evictLRU() {
	var victim rl.StateKey
	oldest := uint64(0)
	first := true
	for key, r := range t.rows {
		if first || r.touched < oldest {
			victim = key
			oldest = r.touched
			first = false
		}
	}
	if !first {
		delete(t.rows, victim)
	}
}

// get returns the current value of one cell without touching LRU state.
func (t *QTable) get(key rl.StateKey, ordinal int) float64 {
	if r, ok := t.rows[key]; ok {
		return r.values[ordinal]
	}
	return 0
}

// set writes one cell, counting the visit and refreshing LRU order.
// The row is re-materialized if eviction removed it between the
// caller's ensure and the write, which can happen at MaxStates 1.
func (t *QTable) set(key rl.StateKey, ordinal int, value float64) {
	t.ensure(key)
	r := t.rows[key]
	r.values[ordinal] = value
	r.visits[ordinal]++
	t.clock++
	r.touched = t.clock
}

// max returns the maximum value across a state's actions; zero for
// unknown states.
func (t *QTable) max(key rl.StateKey) float64 {
	r, ok := t.rows[key]
	if !ok {
		return 0
	}
	best := r.values[0]
	for _, v := range r.values[1:] {
		if v > best {
			best = v
		}
	}
	return best
}

// argmax returns the ordinal with the highest value, breaking ties by
// the lowest ordinal. Zero for unknown states.
func (t *QTable) argmax(key rl.StateKey) int {
	r, ok := t.rows[key]
	if !ok {
		return 0
	}
	best := 0
	for i := 1; i < len(r.values); i++ {
		if r.values[i] > r.values[best] {
			best = i
		}
	}
	return best
}

// Snapshot returns a serializable copy with rows in key order.
func (t *QTable) Snapshot(agentType rl.AgentType, epsilon float64) model.Snapshot {
	rows := make([]model.Row, 0, len(t.rows))
	for key, r := range t.rows {
		values := make([]float64, len(r.values))
		copy(values, r.values)
		visits := make([]uint64, len(r.visits))
		copy(visits, r.visits)
		rows = append(rows, model.Row{Key: key, Values: values, Visits: visits})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })

	return model.Snapshot{AgentType: agentType, Rows: rows, Epsilon: epsilon}
}

// Restore replaces the table contents from a snapshot. Rows whose value
// vector does not match the action-set size are rejected.
func (t *QTable) Restore(snapshot model.Snapshot) error {
	rows := make(map[rl.StateKey]*row, len(snapshot.Rows))
	for i, r := range snapshot.Rows {
		if len(r.Values) != t.actions {
			return rl.NewValidationError("snapshot", "row width does not match action-set size")
		}
		values := make([]float64, t.actions)
		copy(values, r.Values)
		visits := make([]uint64, t.actions)
		copy(visits, r.Visits)
		rows[r.Key] = &row{values: values, visits: visits, touched: uint64(i + 1)}
	}
	t.rows = rows
	t.clock = uint64(len(rows))
	return nil
}
