package domain

import "time"

// DeadLetterReason enumerates why an event landed in the dead-letter queue.
type DeadLetterReason string

const (
	DeadLetterNoEnrollment     DeadLetterReason = "no_enrollment_found"
	DeadLetterApplicationError DeadLetterReason = "application_error"
)

// DeadLetterEntry holds a verified, recorded event whose correlation or
// application failed. Entries are replayed by an operator; replay re-runs
// correlation and application only, never signature verification.
type DeadLetterEntry struct {
	ID         string           `json:"id" db:"id"`
	EventID    string           `json:"event_id" db:"event_id"`
	Event      *Event           `json:"event,omitempty" db:"-"`
	Reason     DeadLetterReason `json:"reason" db:"reason"`
	Detail     string           `json:"detail,omitempty" db:"detail"`
	RetryCount int              `json:"retry_count" db:"retry_count"`
	Resolved   bool             `json:"resolved" db:"resolved"`
	ReceivedAt time.Time        `json:"received_at" db:"received_at"`
	ResolvedAt *time.Time       `json:"resolved_at" db:"resolved_at"`
}
