package qlearning

import (
	"errors"
	"math"
	"testing"

	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

func shellState(target string) rl.State {
	return rl.State{Target: target, LatencyMS: 100, BandwidthMbps: 64}
}

func shellAction(t *testing.T, tag rl.ActionTag) rl.Action {
	t.Helper()
	action, err := rl.NewAction(rl.AgentShell, tag, nil)
	if err != nil {
		t.Fatalf("NewAction: %v", err)
	}
	return action
}

func shellExperience(t *testing.T, state rl.State, tag rl.ActionTag, reward float64, next rl.State, done bool) rl.Experience {
	t.Helper()
	exp, err := rl.NewExperience(rl.AgentShell, state, shellAction(t, tag), reward, next, done, 0)
	if err != nil {
		t.Fatalf("NewExperience: %v", err)
	}
	return exp
}

func TestLearner_GreedySelectionIsDeterministic(t *testing.T) {
	l, err := NewLearner(rl.AgentShell, Config{}, WithSeed(1))
	if err != nil {
		t.Fatalf("NewLearner: %v", err)
	}

	state := shellState("10.0.0.8")
	first, err := l.SelectAction(state, false)
	if err != nil {
		t.Fatalf("SelectAction: %v", err)
	}

	for range 50 {
		action, err := l.SelectAction(state, false)
		if err != nil {
			t.Fatalf("SelectAction: %v", err)
		}
		if action.Tag != first.Tag {
			t.Fatalf("greedy selection changed: %q vs %q", action.Tag, first.Tag)
		}
	}
}

func TestLearner_GreedyTieBreaksLowestOrdinal(t *testing.T) {
	l, err := NewLearner(rl.AgentShell, Config{}, WithSeed(1))
	if err != nil {
		t.Fatalf("NewLearner: %v", err)
	}

	// Unseen state: all values zero, every ordinal ties.
	action, err := l.SelectAction(shellState("fresh"), false)
	if err != nil {
		t.Fatalf("SelectAction: %v", err)
	}
	want, _ := rl.ActionByOrdinal(rl.AgentShell, 0)
	if action.Tag != want {
		t.Errorf("tie-break tag = %q, want %q", action.Tag, want)
	}
}

func TestLearner_ExplorationIsUniform(t *testing.T) {
	l, err := NewLearner(rl.AgentShell, Config{Epsilon: 1.0}, WithSeed(99))
	if err != nil {
		t.Fatalf("NewLearner: %v", err)
	}

	state := shellState("10.0.0.8")
	const draws = 1000
	counts := make(map[rl.ActionTag]int)
	for range draws {
		action, err := l.SelectAction(state, true)
		if err != nil {
			t.Fatalf("SelectAction: %v", err)
		}
		counts[action.Tag]++
	}

	// Chi-square goodness of fit against uniform; df=4, p=0.05 -> 9.488.
	expected := float64(draws) / float64(rl.ActionCount(rl.AgentShell))
	var chi2 float64
	for _, tag := range rl.ActionSet(rl.AgentShell) {
		diff := float64(counts[tag]) - expected
		chi2 += diff * diff / expected
	}
	if chi2 > 9.488 {
		t.Errorf("chi-square = %.3f, want <= 9.488 (counts: %v)", chi2, counts)
	}
}

func TestLearner_UpdateMatchesClosedForm(t *testing.T) {
	l, err := NewLearner(rl.AgentShell, Config{Alpha: 0.5, Gamma: 0.9}, WithSeed(1))
	if err != nil {
		t.Fatalf("NewLearner: %v", err)
	}

	state := shellState("10.0.0.8")
	next := shellState("10.0.0.9") // Never updated: its row stays zero.

	// Q_n = Q_{n-1} + alpha * (r_n - Q_{n-1}) since max Q(next) == 0.
	var want float64
	for reward := 1.0; reward <= 10; reward++ {
		exp := shellExperience(t, state, rl.TagProbe, reward, next, false)
		if _, _, err := l.Update(exp); err != nil {
			t.Fatalf("Update: %v", err)
		}
		want += 0.5 * (reward - want)
	}

	if got := l.QValue(state, rl.TagProbe); math.Abs(got-want) > 1e-12 {
		t.Errorf("Q(state, probe) = %v, want %v", got, want)
	}
	if visits := l.Visits(state, rl.TagProbe); visits != 10 {
		t.Errorf("Visits = %d, want 10", visits)
	}
}

func TestLearner_TerminalUpdateIgnoresNextState(t *testing.T) {
	build := func(inflateNext bool) float64 {
		l, err := NewLearner(rl.AgentShell, Config{Alpha: 0.5, Gamma: 0.9}, WithSeed(1))
		if err != nil {
			t.Fatalf("NewLearner: %v", err)
		}
		state := shellState("10.0.0.8")
		next := shellState("10.0.0.9")

		if inflateNext {
			// Drive the next state's row far from zero.
			for range 5 {
				exp := shellExperience(t, next, rl.TagEscalate, 100, shellState("10.0.0.10"), true)
				if _, _, err := l.Update(exp); err != nil {
					t.Fatalf("Update: %v", err)
				}
			}
		}

		exp := shellExperience(t, state, rl.TagProbe, 2, next, true)
		if _, _, err := l.Update(exp); err != nil {
			t.Fatalf("Update: %v", err)
		}
		return l.QValue(state, rl.TagProbe)
	}

	plain := build(false)
	inflated := build(true)
	if plain != inflated {
		t.Errorf("terminal update depends on next state row: %v vs %v", plain, inflated)
	}
	if plain != 1.0 { // 0 + 0.5*(2 - 0)
		t.Errorf("terminal update = %v, want 1.0", plain)
	}
}

func TestLearner_NonTerminalUpdateBootstraps(t *testing.T) {
	l, err := NewLearner(rl.AgentShell, Config{Alpha: 1.0, Gamma: 0.5}, WithSeed(1))
	if err != nil {
		t.Fatalf("NewLearner: %v", err)
	}

	state := shellState("a")
	next := shellState("b")

	// Give the next state a known max value of 4.
	terminal := shellExperience(t, next, rl.TagPersist, 4, shellState("c"), true)
	if _, _, err := l.Update(terminal); err != nil {
		t.Fatalf("Update: %v", err)
	}

	exp := shellExperience(t, state, rl.TagProbe, 1, next, false)
	if _, _, err := l.Update(exp); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// alpha=1: Q = r + gamma * max = 1 + 0.5*4 = 3.
	if got := l.QValue(state, rl.TagProbe); got != 3 {
		t.Errorf("Q = %v, want 3", got)
	}
}

func TestLearner_UpdateRejectsForeignOrdinal(t *testing.T) {
	l, err := NewLearner(rl.AgentShell, Config{}, WithSeed(1))
	if err != nil {
		t.Fatalf("NewLearner: %v", err)
	}

	exp := rl.Experience{
		AgentType: rl.AgentShell,
		State:     shellState("a"),
		NextState: shellState("b"),
		Action:    rl.Action{AgentType: rl.AgentShell, Tag: rl.ActionTag("bogus")},
		Reward:    1,
		Priority:  1,
	}

	_, _, err = l.Update(exp)
	var verr *rl.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Update error = %v, want *ValidationError", err)
	}
}

func TestLearner_EpsilonDecay(t *testing.T) {
	l, err := NewLearner(rl.AgentShell, Config{Epsilon: 1.0, EpsilonDecay: 0.5, EpsilonMin: 0.1}, WithSeed(1))
	if err != nil {
		t.Fatalf("NewLearner: %v", err)
	}

	previous := l.Epsilon()
	for range 10 {
		l.DecayEpsilon()
		current := l.Epsilon()
		if current > previous {
			t.Fatalf("epsilon increased: %v -> %v", previous, current)
		}
		if current < 0.1 {
			t.Fatalf("epsilon %v fell below floor 0.1", current)
		}
		previous = current
	}
	if l.Epsilon() != 0.1 {
		t.Errorf("epsilon = %v, want floor 0.1", l.Epsilon())
	}
}

func TestLearner_TableBoundedByMaxStates(t *testing.T) {
	l, err := NewLearner(rl.AgentShell, Config{MaxStates: 8}, WithSeed(1))
	if err != nil {
		t.Fatalf("NewLearner: %v", err)
	}

	for i := range 50 {
		state := shellState("a")
		state.StepsTaken = i // Distinct key per iteration.
		exp := shellExperience(t, state, rl.TagProbe, 1, shellState("next"), true)
		if _, _, err := l.Update(exp); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if l.TableSize() > 8 {
			t.Fatalf("table size %d exceeds MaxStates 8", l.TableSize())
		}
	}
}

func TestLearner_UpdateAtCapacityKeepsCurrentRow(t *testing.T) {
	l, err := NewLearner(rl.AgentShell, Config{Alpha: 0.5, MaxStates: 2}, WithSeed(1))
	if err != nil {
		t.Fatalf("NewLearner: %v", err)
	}

	a := shellState("a")
	b := shellState("b")
	c := shellState("c")

	// Fill the table with a then b, leaving a least recently updated.
	for _, state := range []rl.State{a, b} {
		exp := shellExperience(t, state, rl.TagProbe, 1, shellState("sink"), true)
		if _, _, err := l.Update(exp); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	// A non-terminal update on a pulls in c's bootstrap row while the
	// table is full. The eviction must not remove a's own row mid-update.
	exp := shellExperience(t, a, rl.TagProbe, 2, c, false)
	if _, _, err := l.Update(exp); err != nil {
		t.Fatalf("Update at capacity: %v", err)
	}

	// Q(a) was 0.5 after the fill; 0.5 + 0.5*(2 + gamma*0 - 0.5) = 1.25.
	if got := l.QValue(a, rl.TagProbe); got != 1.25 {
		t.Errorf("Q(a, probe) = %v, want 1.25", got)
	}
	if l.TableSize() > 2 {
		t.Errorf("table size %d exceeds MaxStates 2", l.TableSize())
	}
}

func TestLearner_UpdateSurvivesSingleStateBound(t *testing.T) {
	l, err := NewLearner(rl.AgentShell, Config{MaxStates: 1}, WithSeed(1))
	if err != nil {
		t.Fatalf("NewLearner: %v", err)
	}

	for i := range 10 {
		state := shellState("a")
		state.StepsTaken = i
		next := shellState("b")
		next.StepsTaken = i
		exp := shellExperience(t, state, rl.TagProbe, 1, next, false)
		if _, _, err := l.Update(exp); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if l.TableSize() != 1 {
			t.Fatalf("table size %d, want 1", l.TableSize())
		}
	}
}

func TestLearner_SnapshotRestoreRoundTrip(t *testing.T) {
	l, err := NewLearner(rl.AgentShell, Config{Alpha: 0.5}, WithSeed(1))
	if err != nil {
		t.Fatalf("NewLearner: %v", err)
	}

	state := shellState("a")
	exp := shellExperience(t, state, rl.TagProbe, 3, shellState("b"), true)
	if _, _, err := l.Update(exp); err != nil {
		t.Fatalf("Update: %v", err)
	}
	l.DecayEpsilon()

	snapshot := l.Snapshot()

	restored, err := NewLearner(rl.AgentShell, Config{Alpha: 0.5}, WithSeed(2))
	if err != nil {
		t.Fatalf("NewLearner: %v", err)
	}
	if err := restored.Restore(snapshot); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if got, want := restored.QValue(state, rl.TagProbe), l.QValue(state, rl.TagProbe); got != want {
		t.Errorf("restored Q = %v, want %v", got, want)
	}
	if restored.Epsilon() != l.Epsilon() {
		t.Errorf("restored epsilon = %v, want %v", restored.Epsilon(), l.Epsilon())
	}
	if restored.TableSize() != l.TableSize() {
		t.Errorf("restored size = %d, want %d", restored.TableSize(), l.TableSize())
	}
}
