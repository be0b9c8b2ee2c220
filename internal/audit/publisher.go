// Package audit publishes event-processing outcomes to an SQS queue so
// downstream reporting can reconcile counters against the raw event trail.
// Publishing is fire-and-forget: a queue outage must never block or fail
// webhook ingestion.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/prospectly/outreach-engine/internal/domain"
	"github.com/prospectly/outreach-engine/internal/pkg/logger"
)

type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeLate         Outcome = "late"
	OutcomeDeadLettered Outcome = "dead_lettered"
)

type Record struct {
	Outcome      Outcome          `json:"outcome"`
	EventID      string           `json:"event_id"`
	Provider     string           `json:"provider"`
	EventType    domain.EventType `json:"event_type"`
	EnrollmentID string           `json:"enrollment_id,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
	RecordedAt   time.Time        `json:"recorded_at"`
}

// SQSClient is the subset of the SQS API the publisher uses.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type Publisher struct {
	client   SQSClient
	queueURL string
}

func NewPublisher(client SQSClient, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

// EventApplied signals that an event's counter change reached its enrollment.
func (p *Publisher) EventApplied(_ context.Context, evt domain.Event) {
	p.publish(record(OutcomeApplied, evt, ""))
}

// EventLate signals that an event arrived after its enrollment reached a
// terminal status and was dropped without a counter change.
func (p *Publisher) EventLate(_ context.Context, evt domain.Event) {
	p.publish(record(OutcomeLate, evt, ""))
}

// EventDeadLettered signals that an event was parked for later replay.
func (p *Publisher) EventDeadLettered(_ context.Context, evt domain.Event, reason domain.DeadLetterReason) {
	p.publish(record(OutcomeDeadLettered, evt, string(reason)))
}

func record(outcome Outcome, evt domain.Event, reason string) Record {
	rec := Record{
		Outcome:    outcome,
		EventID:    evt.ID,
		Provider:   evt.Provider,
		EventType:  evt.EventType,
		Reason:     reason,
		OccurredAt: evt.Timestamp,
		RecordedAt: time.Now().UTC(),
	}
	if evt.EnrollmentID != nil {
		rec.EnrollmentID = *evt.EnrollmentID
	}
	return rec
}

func (p *Publisher) publish(rec Record) {
	body, err := json.Marshal(rec)
	if err != nil {
		logger.Error("marshal audit record", "event_id", rec.EventID, "error", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(p.queueURL),
			MessageBody: aws.String(string(body)),
		})
		if err != nil {
			logger.Error("publish audit record", "event_id", rec.EventID, "outcome", string(rec.Outcome), "error", err)
		}
	}()
}
