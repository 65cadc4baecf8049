package rl

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
)

// StateKey is the derived hash used to index a state in the Q-table.
type StateKey uint64

// State is an immutable snapshot of the environment at decision time.
// Two states are compared only through Key().
type State struct {
	// Target identifies the environment instance the agent acts on.
	Target string `json:"target"`

	// OpenPorts lists observed open ports.
	OpenPorts []int `json:"open_ports,omitempty"`

	// LatencyMS is the observed round-trip latency in milliseconds.
	LatencyMS float64 `json:"latency_ms"`

	// BandwidthMbps is the observed available bandwidth.
	BandwidthMbps float64 `json:"bandwidth_mbps"`

	// FirewallUp and RateLimited are observed defensive postures.
	FirewallUp  bool `json:"firewall_up"`
	RateLimited bool `json:"rate_limited"`

	// ElapsedSec is the time elapsed since the episode started.
	ElapsedSec float64 `json:"elapsed_sec"`

	// StepsTaken and Detections are cumulative episode counters.
	StepsTaken int `json:"steps_taken"`
	Detections int `json:"detections"`

	// History is the ordered sequence of prior action tags this episode.
	History []ActionTag `json:"history,omitempty"`
}

// Validate checks that all numeric fields are finite.
func (s State) Validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"latency_ms", s.LatencyMS},
		{"bandwidth_mbps", s.BandwidthMbps},
		{"elapsed_sec", s.ElapsedSec},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return NewValidationError(f.name, "must be finite")
		}
	}
	return nil
}

// Quantization constants for Key. Changing these changes the state-space
// partitioning and invalidates persisted Q-tables.
const (
	latencyBucketMS  = 50.0
	elapsedBucketSec = 10.0
)

// Key derives the deterministic Q-table hash for this state.
// Continuous fields are bucketed: latency to 50 ms, bandwidth to the
// nearest power of two, elapsed time to 10 s. Counters and booleans are
// used raw; prior actions contribute in order.
func (s State) Key() StateKey {
	h := fnv.New64a()

	write := func(format string, args ...any) {
		fmt.Fprintf(h, format, args...)
	}

	write("t=%s;", s.Target)

	ports := make([]int, len(s.OpenPorts))
	copy(ports, s.OpenPorts)
	sort.Ints(ports)
	for _, p := range ports {
		write("p=%d;", p)
	}

	write("l=%d;", int(s.LatencyMS/latencyBucketMS))
	write("b=%d;", bandwidthBucket(s.BandwidthMbps))
	write("fw=%t;rl=%t;", s.FirewallUp, s.RateLimited)
	write("e=%d;", int(s.ElapsedSec/elapsedBucketSec))
	write("st=%d;dt=%d;", s.StepsTaken, s.Detections)

	for _, tag := range s.History {
		write("h=%s;", tag)
	}

	return StateKey(h.Sum64())
}

// bandwidthBucket maps bandwidth to its power-of-two bucket index.
func bandwidthBucket(mbps float64) int {
	if mbps < 1 {
		return 0
	}
	return int(math.Log2(mbps)) + 1
}

// ToMap serializes the state to a generic map.
func (s State) ToMap() map[string]any {
	history := make([]string, len(s.History))
	for i, tag := range s.History {
		history[i] = string(tag)
	}
	ports := make([]int, len(s.OpenPorts))
	copy(ports, s.OpenPorts)

	return map[string]any{
		"target":         s.Target,
		"open_ports":     ports,
		"latency_ms":     s.LatencyMS,
		"bandwidth_mbps": s.BandwidthMbps,
		"firewall_up":    s.FirewallUp,
		"rate_limited":   s.RateLimited,
		"elapsed_sec":    s.ElapsedSec,
		"steps_taken":    s.StepsTaken,
		"detections":     s.Detections,
		"history":        history,
	}
}

// StateFromMap reconstructs a state from its map form.
func StateFromMap(m map[string]any) (State, error) {
	s := State{
		Target:        asString(m["target"]),
		LatencyMS:     asFloat(m["latency_ms"]),
		BandwidthMbps: asFloat(m["bandwidth_mbps"]),
		FirewallUp:    asBool(m["firewall_up"]),
		RateLimited:   asBool(m["rate_limited"]),
		ElapsedSec:    asFloat(m["elapsed_sec"]),
		StepsTaken:    asInt(m["steps_taken"]),
		Detections:    asInt(m["detections"]),
	}

	switch ports := m["open_ports"].(type) {
	case []int:
		s.OpenPorts = append(s.OpenPorts, ports...)
	case []any:
		for _, p := range ports {
			s.OpenPorts = append(s.OpenPorts, asInt(p))
		}
	}

	switch history := m["history"].(type) {
	case []string:
		for _, tag := range history {
			s.History = append(s.History, ActionTag(tag))
		}
	case []ActionTag:
		s.History = append(s.History, history...)
	case []any:
		for _, tag := range history {
			s.History = append(s.History, ActionTag(asString(tag)))
		}
	}

	if err := s.Validate(); err != nil {
		return State{}, err
	}
	return s, nil
}

// WithHistory returns a copy of the state with one more action appended
// to the history and the step counter advanced.
func (s State) WithHistory(tag ActionTag) State {
	next := s
	next.History = make([]ActionTag, 0, len(s.History)+1)
	next.History = append(next.History, s.History...)
	next.History = append(next.History, tag)
	next.StepsTaken = s.StepsTaken + 1
	return next
}

// Conversion helpers tolerant of JSON decoding artifacts.

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
