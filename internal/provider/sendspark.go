package provider

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/prospectly/outreach-engine/internal/config"
	"github.com/prospectly/outreach-engine/internal/domain"
)

// Sendspark has no HMAC support; it authenticates with a pre-shared static
// token, sent either as a header or a "token" query parameter.
const (
	SendsparkTokenHeader = "X-Sendspark-Token"
	SendsparkTokenQuery  = "token"
)

// Sendspark is the video-email provider. Video messages ride the email
// channel; a "played" event counts as a click for accounting purposes.
type Sendspark struct {
	token string
}

// NewSendspark builds the provider from configuration. The pre-shared token
// comes from the provider's secret env var.
func NewSendspark(cfg config.ProviderConfig) *Sendspark {
	return &Sendspark{token: cfg.Secret()}
}

func (v *Sendspark) Name() string            { return "sendspark" }
func (v *Sendspark) Channel() domain.Channel { return domain.ChannelEmail }

// VerifySignature checks the static token from header or query parameter.
// No timestamp is available, so no replay window applies.
func (v *Sendspark) VerifySignature(req Request, _ time.Time) error {
	presented := req.Headers.Get(SendsparkTokenHeader)
	if presented == "" && req.Query != nil {
		presented = req.Query.Get(SendsparkTokenQuery)
	}
	return verifyStaticToken(v.token, presented)
}

type sendsparkPayload struct {
	Event     string `json:"event"`
	EventID   string `json:"event_id"`
	MessageID string `json:"message_id"`
	VideoID   string `json:"video_id"`
	Timestamp string `json:"timestamp"`
}

var sendsparkEventTypes = map[string]domain.EventType{
	"sent":      domain.EventSent,
	"delivered": domain.EventDelivered,
	"opened":    domain.EventOpened,
	"played":    domain.EventClicked,
	"replied":   domain.EventReplied,
	"bounced":   domain.EventBounced,
}

// ParseEvents normalizes one Sendspark webhook call.
func (v *Sendspark) ParseEvents(body []byte) ([]InboundEvent, error) {
	var p sendsparkPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	eventType, ok := sendsparkEventTypes[p.Event]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event %q", ErrMalformedPayload, p.Event)
	}

	evt := InboundEvent{
		EventType:         eventType,
		Channel:           domain.ChannelEmail,
		ProviderMessageID: strPtr(p.MessageID),
		ProviderEventID:   strPtr(p.EventID),
		Timestamp:         parseEventTime(p.Timestamp),
		Metadata:          extraFields(body, "event", "event_id", "message_id", "timestamp"),
	}
	if err := requireCorrelation(evt); err != nil {
		return nil, err
	}
	return []InboundEvent{evt}, nil
}
