package domain

import "time"

// EnrollmentStatus enumerates the lifecycle states of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentEnrolled     EnrollmentStatus = "enrolled"
	EnrollmentActive       EnrollmentStatus = "active"
	EnrollmentPaused       EnrollmentStatus = "paused"
	EnrollmentCompleted    EnrollmentStatus = "completed"
	EnrollmentUnsubscribed EnrollmentStatus = "unsubscribed"
	EnrollmentBounced      EnrollmentStatus = "bounced"
)

// Enrollment represents one contact's run through one campaign instance.
// Counters are mutated exclusively by the enrollment service's atomic apply
// path; reading code must treat them as eventually consistent with the event
// audit trail.
type Enrollment struct {
	ID                 string           `json:"id" db:"id"`
	CampaignInstanceID string           `json:"campaign_instance_id" db:"campaign_instance_id"`
	ContactID          string           `json:"contact_id" db:"contact_id"`
	Status             EnrollmentStatus `json:"status" db:"status"`
	CurrentStep        int              `json:"current_step" db:"current_step"`

	// Correlation keys written by the send path before dispatch.
	ProviderMessageID *string `json:"provider_message_id" db:"provider_message_id"`
	ProviderActionID  *string `json:"provider_action_id" db:"provider_action_id"`

	TotalSent      int `json:"total_sent" db:"total_sent"`
	TotalDelivered int `json:"total_delivered" db:"total_delivered"`
	TotalOpened    int `json:"total_opened" db:"total_opened"`
	TotalClicked   int `json:"total_clicked" db:"total_clicked"`
	TotalReplied   int `json:"total_replied" db:"total_replied"`
	TotalBounced   int `json:"total_bounced" db:"total_bounced"`

	// LinkedIn connection outcomes (no status effect).
	TotalAccepted int `json:"total_accepted" db:"total_accepted"`
	TotalRejected int `json:"total_rejected" db:"total_rejected"`

	EnrolledAt     time.Time  `json:"enrolled_at" db:"enrolled_at"`
	CompletedAt    *time.Time `json:"completed_at" db:"completed_at"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at" db:"unsubscribed_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the enrollment can no longer accrue counters.
func (e *Enrollment) IsTerminal() bool {
	return e.Status.IsTerminal()
}

// IsTerminal reports whether the status is absorbing: once reached, no event
// may mutate counters or status again.
func (s EnrollmentStatus) IsTerminal() bool {
	return s == EnrollmentUnsubscribed || s == EnrollmentBounced
}

// Valid reports whether s is a known enrollment status.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentEnrolled, EnrollmentActive, EnrollmentPaused,
		EnrollmentCompleted, EnrollmentUnsubscribed, EnrollmentBounced:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status transition s -> next is allowed.
// Terminal states are reachable from any non-terminal state; nothing leaves a
// terminal state.
func (s EnrollmentStatus) CanTransitionTo(next EnrollmentStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next.IsTerminal() {
		return true
	}
	switch s {
	case EnrollmentEnrolled:
		return next == EnrollmentActive
	case EnrollmentActive:
		return next == EnrollmentPaused || next == EnrollmentCompleted
	case EnrollmentPaused:
		return next == EnrollmentActive || next == EnrollmentCompleted
	case EnrollmentCompleted:
		return false
	}
	return false
}
