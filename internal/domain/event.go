package domain

import "time"

// EventType enumerates provider-reported occurrence types in their canonical
// form. Provider payloads use their own vocabulary; the normalizer maps into
// these values.
type EventType string

const (
	EventSent               EventType = "sent"
	EventDelivered          EventType = "delivered"
	EventOpened             EventType = "opened"
	EventClicked            EventType = "clicked"
	EventReplied            EventType = "replied"
	EventBounced            EventType = "bounced"
	EventUnsubscribed       EventType = "unsubscribed"
	EventConnectionAccepted EventType = "connection_accepted"
	EventConnectionRejected EventType = "connection_rejected"
)

// Valid reports whether t is a known canonical event type.
func (t EventType) Valid() bool {
	switch t {
	case EventSent, EventDelivered, EventOpened, EventClicked, EventReplied,
		EventBounced, EventUnsubscribed, EventConnectionAccepted, EventConnectionRejected:
		return true
	}
	return false
}

// Channel enumerates the outbound channels that report events.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelLinkedIn Channel = "linkedin"
)

// Event is one immutable provider-reported occurrence. Rows are append-only:
// the only mutation ever performed is filling EnrollmentID after correlation
// resolves, and that happens at most once.
type Event struct {
	ID           string    `json:"id" db:"id"`
	EnrollmentID *string   `json:"enrollment_id" db:"enrollment_id"`
	EventType    EventType `json:"event_type" db:"event_type"`
	Channel      Channel   `json:"channel" db:"channel"`
	StepNumber   *int      `json:"step_number" db:"step_number"`
	Provider     string    `json:"provider" db:"provider"`

	// Correlation keys as reported by the provider.
	ProviderMessageID *string `json:"provider_message_id" db:"provider_message_id"`
	ProviderActionID  *string `json:"provider_action_id" db:"provider_action_id"`

	// ProviderEventID is the provider's own unique event identifier and the
	// sole idempotency key. Nil for providers that don't supply one; such
	// events carry BestEffortDedup = true and may be applied more than once.
	ProviderEventID *string `json:"provider_event_id" db:"provider_event_id"`
	BestEffortDedup bool    `json:"best_effort_dedup" db:"best_effort_dedup"`

	Timestamp time.Time         `json:"timestamp" db:"event_timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// CounterColumn returns the enrollments counter column this event type
// increments, or "" for types with no counter effect (unsubscribed).
func (t EventType) CounterColumn() string {
	switch t {
	case EventSent:
		return "total_sent"
	case EventDelivered:
		return "total_delivered"
	case EventOpened:
		return "total_opened"
	case EventClicked:
		return "total_clicked"
	case EventReplied:
		return "total_replied"
	case EventBounced:
		return "total_bounced"
	case EventConnectionAccepted:
		return "total_accepted"
	case EventConnectionRejected:
		return "total_rejected"
	}
	return ""
}

// IsTerminalEvent reports whether the event type forces the enrollment into
// an absorbing status.
func (t EventType) IsTerminalEvent() bool {
	return t == EventBounced || t == EventUnsubscribed
}
