// Package replay provides the per-agent-type priority replay buffer.
package replay

import (
	"math/rand"
	"sync"
	"time"

	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

// DefaultCapacity is the default bounded size of a buffer.
const DefaultCapacity = 10000

// Buffer is a bounded, priority-weighted store of experiences for one
// agent type. All mutating operations are serialized by the buffer's own
// mutex; buffers for different agent types never contend.
type Buffer struct {
	agentType rl.AgentType
	capacity  int
	entries   []rl.Experience
	rng       *rand.Rand
	mu        sync.Mutex
}

// Option configures a buffer.
type Option func(*Buffer)

// WithCapacity overrides the default capacity.
func WithCapacity(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithSeed makes sampling and eviction deterministic for tests.
func WithSeed(seed int64) Option {
	return func(b *Buffer) {
		b.rng = rand.New(rand.NewSource(seed))
	}
}

// New creates a buffer for an agent type.
func New(agentType rl.AgentType, opts ...Option) *Buffer {
	b := &Buffer{
		agentType: agentType,
		capacity:  DefaultCapacity,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.entries = make([]rl.Experience, 0, min(b.capacity, 1024))
	return b
}

// AgentType returns the agent type this buffer belongs to.
func (b *Buffer) AgentType() rl.AgentType {
	return b.agentType
}

// Capacity returns the configured bound.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Add stores an experience. At capacity it first evicts one existing
// entry by inverse-priority weighted sampling, so lower-priority entries
// are preferentially dropped and the incoming entry is never the victim.
func (b *Buffer) Add(exp rl.Experience) error {
	if exp.AgentType != b.agentType {
		return rl.NewValidationError("agent_type", "experience belongs to a different agent type")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) >= b.capacity {
		b.evictLocked()
	}
	b.entries = append(b.entries, exp)
	return nil
}

// evictLocked removes one entry, weighted by inverse priority.
func (b *Buffer) evictLocked() {
	var total float64
	for _, e := range b.entries {
		total += 1 / e.Priority
	}

	r := b.rng.Float64() * total
	victim := len(b.entries) - 1
	for i, e := range b.entries {
		r -= 1 / e.Priority
		if r <= 0 {
			victim = i
			break
		}
	}

	b.entries = append(b.entries[:victim], b.entries[victim+1:]...)
}

// Sample draws batchSize experiences with priority-proportional
// weighting, without replacement within the batch. The same entry may
// reappear across batches. Returns InsufficientDataError when batchSize
// exceeds the current length.
func (b *Buffer) Sample(batchSize int) ([]rl.Experience, error) {
	if batchSize <= 0 {
		return nil, rl.NewValidationError("batch_size", "must be positive")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if batchSize > len(b.entries) {
		return nil, &rl.InsufficientDataError{Requested: batchSize, Available: len(b.entries)}
	}

	// Work on an index pool so the stored slice is untouched.
	pool := make([]int, len(b.entries))
	weights := make([]float64, len(b.entries))
	var total float64
	for i, e := range b.entries {
		pool[i] = i
		weights[i] = e.Priority
		total += e.Priority
	}

	batch := make([]rl.Experience, 0, batchSize)
	for range batchSize {
		r := b.rng.Float64() * total
		chosen := len(pool) - 1
		for i, idx := range pool {
			r -= weights[idx]
			if r <= 0 {
				chosen = i
				break
			}
		}

		idx := pool[chosen]
		batch = append(batch, b.entries[idx])
		total -= weights[idx]
		pool = append(pool[:chosen], pool[chosen+1:]...)
	}

	return batch, nil
}

// Len returns the number of stored experiences.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Clear removes all stored experiences.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = b.entries[:0]
}
