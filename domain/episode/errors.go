package episode

import "errors"

// Domain errors for episode persistence.
var (
	// ErrInvalidEpisodeID indicates an empty or malformed episode ID.
	ErrInvalidEpisodeID = errors.New("invalid episode ID")

	// ErrEpisodeExists indicates a save for an already stored episode ID.
	ErrEpisodeExists = errors.New("episode already exists")

	// ErrEpisodeNotFound indicates the requested episode does not exist.
	ErrEpisodeNotFound = errors.New("episode not found")
)
