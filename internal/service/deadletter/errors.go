package deadletter

import "errors"

// Sentinel errors for the dead-letter service layer.
var (
	ErrNotFound         = errors.New("dead-letter entry not found")
	ErrAlreadyResolved  = errors.New("dead-letter entry already resolved")
	ErrReplayInProgress = errors.New("replay already in progress for this entry")
)
