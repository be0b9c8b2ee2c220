package deadletter

import (
	"context"
	"time"

	"github.com/prospectly/outreach-engine/internal/domain"
	"github.com/prospectly/outreach-engine/internal/service/ingest"
)

// Repository defines the data access contract for dead-letter entries.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Enqueue inserts a new pending entry.
	Enqueue(ctx context.Context, entry *domain.DeadLetterEntry) error

	// Get returns one entry with its event loaded. Returns ErrNotFound if
	// absent.
	Get(ctx context.Context, id string) (*domain.DeadLetterEntry, error)

	// ListPending returns unresolved entries matching the filter, oldest
	// first.
	ListPending(ctx context.Context, f Filter) ([]domain.DeadLetterEntry, error)

	// MarkResolved flags the entry as successfully replayed.
	MarkResolved(ctx context.Context, id string) error

	// IncrementRetry bumps the retry counter after a failed replay and
	// records the latest failure detail.
	IncrementRetry(ctx context.Context, id, detail string) error

	// PurgeResolved deletes resolved entries older than the cutoff and
	// returns how many were removed.
	PurgeResolved(ctx context.Context, olderThan time.Time) (int64, error)
}

// Filter controls dead-letter listing.
type Filter struct {
	Reason    string
	OlderThan time.Duration
	Limit     int
	Offset    int
}

// Replayer re-runs correlation and application for a recorded event.
// *ingest.Service satisfies it.
type Replayer interface {
	Replay(ctx context.Context, eventID string) (ingest.Disposition, error)
}
