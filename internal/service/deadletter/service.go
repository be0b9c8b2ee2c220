package deadletter

import (
	"context"
	"time"

	"github.com/prospectly/outreach-engine/internal/domain"
	"github.com/prospectly/outreach-engine/internal/pkg/distlock"
	"github.com/prospectly/outreach-engine/internal/pkg/logger"
	"github.com/prospectly/outreach-engine/internal/service/ingest"
)

// LockFactory builds a distributed lock for a key. Wired to distlock.NewLock
// in production; tests substitute an in-memory factory.
type LockFactory func(key string) distlock.DistLock

// Service implements dead-letter queue management.
type Service struct {
	repo     Repository
	replayer Replayer
	locks    LockFactory
}

// NewService creates a dead-letter service. A nil lock factory disables
// replay locking (single-operator deployments and tests).
func NewService(repo Repository, replayer Replayer, locks LockFactory) *Service {
	return &Service{repo: repo, replayer: replayer, locks: locks}
}

// ListPending returns unresolved entries matching the filter.
func (s *Service) ListPending(ctx context.Context, f Filter) ([]domain.DeadLetterEntry, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	return s.repo.ListPending(ctx, f)
}

// ReplayResult reports the outcome of one replay attempt.
type ReplayResult struct {
	EntryID     string             `json:"entry_id"`
	Disposition ingest.Disposition `json:"disposition"`
	Resolved    bool               `json:"resolved"`
}

// Replay re-attempts correlation and application for one entry. The replay
// is serialized per entry with a distributed lock so concurrent operators
// cannot race each other; the entry is marked resolved on success and its
// retry count bumped on failure.
func (s *Service) Replay(ctx context.Context, id string) (*ReplayResult, error) {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Resolved {
		return nil, ErrAlreadyResolved
	}

	if s.locks != nil {
		lock := s.locks("dlq-replay:" + id)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, ErrReplayInProgress
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				logger.Warn("replay lock release failed", "entry_id", id, "error", err)
			}
		}()
	}

	disposition, err := s.replayer.Replay(ctx, entry.EventID)
	if err != nil {
		if retryErr := s.repo.IncrementRetry(ctx, id, err.Error()); retryErr != nil {
			logger.Error("retry count update failed", "entry_id", id, "error", retryErr)
		}
		return nil, err
	}

	if err := s.repo.MarkResolved(ctx, id); err != nil {
		return nil, err
	}
	logger.Info("dead-letter entry replayed",
		"entry_id", id, "event_id", entry.EventID, "disposition", string(disposition))
	return &ReplayResult{EntryID: id, Disposition: disposition, Resolved: true}, nil
}

// PurgeResolved removes resolved entries older than the retention cutoff.
func (s *Service) PurgeResolved(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return s.repo.PurgeResolved(ctx, time.Now().UTC().Add(-retention))
}
