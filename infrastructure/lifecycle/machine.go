// Package lifecycle provides the statekit statechart for the per-agent
// episode slot: idle → active → terminal, with terminal resetting back
// to idle so the next episode can start.
package lifecycle

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

// Slot states.
const (
	StateIdle     statekit.StateID = "idle"
	StateActive   statekit.StateID = "active"
	StateTerminal statekit.StateID = "terminal"
)

// Events driving the slot.
const (
	EventStart  statekit.EventType = "START"
	EventFinish statekit.EventType = "FINISH"
	EventReset  statekit.EventType = "RESET"
)

// Context carries the owning agent type and the active episode ID
// through the statechart.
type Context struct {
	AgentType rl.AgentType
	EpisodeID string
}

// newSlotMachine builds the episode slot statechart.
func newSlotMachine(agentType rl.AgentType) (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("episode-slot").
		WithInitial(StateIdle).
		WithContext(&Context{AgentType: agentType}).
		State(StateIdle).
		On(EventStart).Target(StateActive).
		Done().
		State(StateActive).
		On(EventFinish).Target(StateTerminal).
		Done().
		State(StateTerminal).
		On(EventReset).Target(StateIdle).
		Done().
		Build()
}

// Slot wraps the statekit interpreter with episode-slot semantics.
// It enforces the at-most-one-active-episode invariant for its agent
// type. Not safe for concurrent use; the registry serializes access.
type Slot struct {
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewSlot creates and starts an idle slot for an agent type.
func NewSlot(agentType rl.AgentType) (*Slot, error) {
	machine, err := newSlotMachine(agentType)
	if err != nil {
		return nil, err
	}

	ctx := &Context{AgentType: agentType}
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	interp.Start()

	return &Slot{interp: interp, ctx: ctx}, nil
}

// AgentType returns the owning agent type.
func (s *Slot) AgentType() rl.AgentType {
	return s.ctx.AgentType
}

// Active returns true while an episode is running in this slot.
func (s *Slot) Active() bool {
	return s.interp.Matches(StateActive)
}

// EpisodeID returns the active episode's ID, or empty when idle.
func (s *Slot) EpisodeID() string {
	if !s.Active() {
		return ""
	}
	return s.ctx.EpisodeID
}

// Begin transitions idle → active for a new episode. Returns a
// ConflictError while another episode is active.
func (s *Slot) Begin(episodeID string) error {
	if !s.interp.Matches(StateIdle) {
		return &rl.ConflictError{
			AgentType: s.ctx.AgentType,
			Reason:    "episode " + s.ctx.EpisodeID + " is still active",
		}
	}
	s.ctx.EpisodeID = episodeID
	s.interp.Send(statekit.Event{Type: EventStart})
	return nil
}

// Finish transitions active → terminal and immediately resets the slot
// to idle so the next episode may start.
func (s *Slot) Finish() error {
	if !s.interp.Matches(StateActive) {
		return &rl.ConflictError{
			AgentType: s.ctx.AgentType,
			Reason:    "no active episode",
		}
	}
	s.interp.Send(statekit.Event{Type: EventFinish})
	s.interp.Send(statekit.Event{Type: EventReset})
	s.ctx.EpisodeID = ""
	return nil
}
