package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// Common field constructors for learning-core logging.

// Agent adds an agent_type field.
func Agent(t rl.AgentType) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("agent_type", string(t))
	}
}

// EpisodeID adds an episode ID field.
func EpisodeID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("episode_id", id)
	}
}

// ActionField adds an action tag field.
func ActionField(tag rl.ActionTag) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("action", string(tag))
	}
}

// Reward adds a reward field.
func Reward(r float64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Float64("reward", r)
	}
}

// Epsilon adds the current exploration rate.
func Epsilon(eps float64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Float64("epsilon", eps)
	}
}

// Version adds a model version field.
func Version(v int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("version", v)
	}
}

// BufferSize adds a buffer_size field.
func BufferSize(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("buffer_size", n)
	}
}

// QTableSize adds a qtable_size field.
func QTableSize(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("qtable_size", n)
	}
}

// Steps adds a step count field.
func Steps(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("steps", n)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Str("error", err.Error())
	}
}
