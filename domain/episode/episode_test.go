package episode

import (
	"testing"

	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		expected bool
	}{
		{StatusActive, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.expected {
				t.Errorf("Status(%q).IsTerminal() = %v, want %v", tt.status, got, tt.expected)
			}
		})
	}
}

func TestEpisode_Record(t *testing.T) {
	e := New("ep-1", rl.AgentShell)

	e.Record(1.5)
	e.Record(-0.5)
	e.Record(2.0)

	if e.CumulativeReward != 3.0 {
		t.Errorf("CumulativeReward = %v, want 3.0", e.CumulativeReward)
	}
	if e.StepCount != 3 {
		t.Errorf("StepCount = %d, want 3", e.StepCount)
	}
	if e.IsTerminal() {
		t.Error("episode must stay active while recording")
	}
}

func TestEpisode_Finalize(t *testing.T) {
	tests := []struct {
		name        string
		success     bool
		totalReward float64
		wantStatus  Status
		wantReward  float64
	}{
		{"success keeps accumulated reward", true, 0, StatusCompleted, 2.5},
		{"failure", false, 0, StatusFailed, 2.5},
		{"caller override", true, 9.75, StatusCompleted, 9.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New("ep-1", rl.AgentDDoS)
			e.Record(2.5)

			e.Finalize(tt.success, tt.totalReward, map[string]float64{"packets": 120})

			if e.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", e.Status, tt.wantStatus)
			}
			if e.CumulativeReward != tt.wantReward {
				t.Errorf("CumulativeReward = %v, want %v", e.CumulativeReward, tt.wantReward)
			}
			if !e.IsTerminal() {
				t.Error("finalized episode must be terminal")
			}
			if e.EndTime.IsZero() {
				t.Error("EndTime must be set on finalize")
			}
			if e.Metrics["packets"] != 120 {
				t.Errorf("Metrics[packets] = %v, want 120", e.Metrics["packets"])
			}
		})
	}
}
