package model

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

// Store defines the interface for model persistence. A snapshot and its
// version record are persisted atomically; implementations must never
// overwrite an existing (agent type, version) pair.
type Store interface {
	// Save persists a snapshot with its version record.
	Save(ctx context.Context, snapshot Snapshot, version Version) error

	// Load retrieves the latest snapshot and version for an agent type.
	Load(ctx context.Context, agentType rl.AgentType) (Snapshot, Version, error)

	// LatestVersion returns the most recent version record, or
	// ErrModelNotFound when the agent type has never been trained.
	LatestVersion(ctx context.Context, agentType rl.AgentType) (Version, error)

	// Versions lists all version records for an agent type, oldest first.
	Versions(ctx context.Context, agentType rl.AgentType) ([]Version, error)
}

// Domain errors for model persistence.
var (
	// ErrModelNotFound indicates no model has been saved for the agent type.
	ErrModelNotFound = errors.New("model not found")

	// ErrVersionExists indicates an attempt to overwrite a persisted version.
	ErrVersionExists = errors.New("model version already exists")

	// ErrVersionRegression indicates a save with a version number at or
	// below the latest persisted one.
	ErrVersionRegression = errors.New("model version must increase")
)
