package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Guard applies the two webhook-facing limits: a per-provider burst limit
// and a per-source lockout after repeated signature failures. Counter
// errors are returned to the caller, which fails open; the verification
// layer itself still rejects bad signatures.
type Guard struct {
	counters CounterStore

	burstPerMinute   int64
	lockoutThreshold int64
	lockoutWindow    time.Duration
}

// NewGuard creates a webhook guard. A burstPerMinute of zero disables the
// burst limit; a lockoutThreshold of zero disables lockout.
func NewGuard(counters CounterStore, burstPerMinute, lockoutThreshold int, lockoutWindow time.Duration) *Guard {
	return &Guard{
		counters:         counters,
		burstPerMinute:   int64(burstPerMinute),
		lockoutThreshold: int64(lockoutThreshold),
		lockoutWindow:    lockoutWindow,
	}
}

// AllowBurst reports whether the provider is within its per-minute ingest
// budget. Keys are bucketed on the wall-clock minute so a burst in one
// minute does not starve the next.
func (g *Guard) AllowBurst(ctx context.Context, providerName string) (bool, error) {
	if g == nil || g.burstPerMinute <= 0 {
		return true, nil
	}
	bucket := time.Now().Unix() / 60
	key := fmt.Sprintf("rl:webhook:%s:%d", providerName, bucket)
	allowed, _, err := g.counters.IncrWithLimit(ctx, key, g.burstPerMinute, 2*time.Minute)
	if err != nil {
		return true, err
	}
	return allowed, nil
}

// NoteSignatureFailure records a failed verification from the given source
// address and reports whether the source has crossed the lockout threshold.
func (g *Guard) NoteSignatureFailure(ctx context.Context, remoteIP string) (bool, error) {
	if g == nil || g.lockoutThreshold <= 0 {
		return false, nil
	}
	n, err := g.counters.Incr(ctx, lockoutKey(remoteIP), g.lockoutWindow)
	if err != nil {
		return false, err
	}
	return n >= g.lockoutThreshold, nil
}

// LockedOut reports whether the source address is currently locked out.
func (g *Guard) LockedOut(ctx context.Context, remoteIP string) (bool, error) {
	if g == nil || g.lockoutThreshold <= 0 {
		return false, nil
	}
	n, err := g.counters.Get(ctx, lockoutKey(remoteIP))
	if err != nil {
		return false, err
	}
	return n >= g.lockoutThreshold, nil
}

func lockoutKey(remoteIP string) string {
	return "rl:sigfail:" + remoteIP
}
