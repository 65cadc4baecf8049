package replay

import (
	"errors"
	"testing"

	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

func testExperience(t *testing.T, reward, priority float64) rl.Experience {
	t.Helper()
	state := rl.State{Target: "10.0.0.8", LatencyMS: 100, BandwidthMbps: 50}
	action, err := rl.NewAction(rl.AgentShell, rl.TagProbe, nil)
	if err != nil {
		t.Fatalf("NewAction: %v", err)
	}
	exp, err := rl.NewExperience(rl.AgentShell, state, action, reward, state, false, priority)
	if err != nil {
		t.Fatalf("NewExperience: %v", err)
	}
	return exp
}

func TestBuffer_CapacityNeverExceeded(t *testing.T) {
	b := New(rl.AgentShell, WithCapacity(50), WithSeed(1))

	for i := range 500 {
		if err := b.Add(testExperience(t, float64(i%7), 0)); err != nil {
			t.Fatalf("Add: %v", err)
		}
		if b.Len() > b.Capacity() {
			t.Fatalf("Len() = %d exceeds capacity %d", b.Len(), b.Capacity())
		}
	}

	if b.Len() != 50 {
		t.Errorf("Len() = %d, want 50", b.Len())
	}
}

func TestBuffer_EvictionNeverDropsInsertedEntry(t *testing.T) {
	b := New(rl.AgentShell, WithCapacity(10), WithSeed(7))

	// Fill with low-priority entries, then insert a distinctive one.
	for range 10 {
		if err := b.Add(testExperience(t, 0, rl.PriorityEpsilon)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	marker := testExperience(t, 99, rl.PriorityMax)
	if err := b.Add(marker); err != nil {
		t.Fatalf("Add: %v", err)
	}

	batch, err := b.Sample(b.Len())
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	found := false
	for _, e := range batch {
		if e.Reward == 99 {
			found = true
		}
	}
	if !found {
		t.Error("just-inserted entry was evicted")
	}
}

func TestBuffer_SampleInsufficientData(t *testing.T) {
	b := New(rl.AgentShell, WithSeed(1))
	if err := b.Add(testExperience(t, 1, 0)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	_, err := b.Sample(2)
	var insufficient *rl.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Sample(2) error = %v, want *InsufficientDataError", err)
	}
	if insufficient.Requested != 2 || insufficient.Available != 1 {
		t.Errorf("error = %+v, want Requested=2 Available=1", insufficient)
	}
}

func TestBuffer_SampleWithoutReplacementWithinBatch(t *testing.T) {
	b := New(rl.AgentShell, WithCapacity(20), WithSeed(3))

	for i := range 10 {
		if err := b.Add(testExperience(t, float64(i), 0)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	batch, err := b.Sample(10)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}

	seen := make(map[float64]bool)
	for _, e := range batch {
		if seen[e.Reward] {
			t.Fatalf("reward %v sampled twice within one batch", e.Reward)
		}
		seen[e.Reward] = true
	}
}

func TestBuffer_SampleFavorsHighPriority(t *testing.T) {
	b := New(rl.AgentShell, WithCapacity(100), WithSeed(11))

	// One dominant entry among many negligible ones.
	if err := b.Add(testExperience(t, 1, rl.PriorityMax)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	for range 20 {
		if err := b.Add(testExperience(t, 0, rl.PriorityEpsilon)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	hits := 0
	for range 100 {
		batch, err := b.Sample(1)
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		if batch[0].Reward == 1 {
			hits++
		}
	}

	// Dominant entry carries >99.8% of the total priority mass.
	if hits < 90 {
		t.Errorf("high-priority entry sampled %d/100 times, want >= 90", hits)
	}
}

func TestBuffer_SampleDeterministicForSeed(t *testing.T) {
	build := func() *Buffer {
		b := New(rl.AgentShell, WithCapacity(50), WithSeed(42))
		for i := range 20 {
			if err := b.Add(testExperience(t, float64(i), 0)); err != nil {
				t.Fatalf("Add: %v", err)
			}
		}
		return b
	}

	first, err := build().Sample(5)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	second, err := build().Sample(5)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}

	for i := range first {
		if first[i].Reward != second[i].Reward {
			t.Fatalf("batch diverged at %d: %v vs %v", i, first[i].Reward, second[i].Reward)
		}
	}
}

func TestBuffer_RejectsForeignAgentType(t *testing.T) {
	b := New(rl.AgentDDoS, WithSeed(1))
	if err := b.Add(testExperience(t, 1, 0)); err == nil {
		t.Error("Add should reject an experience from a different agent type")
	}
}

func TestBuffer_Clear(t *testing.T) {
	b := New(rl.AgentShell, WithSeed(1))
	for range 5 {
		if err := b.Add(testExperience(t, 1, 0)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	b.Clear()
	if b.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", b.Len())
	}
}
