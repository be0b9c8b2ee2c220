package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prospectly/outreach-engine/internal/config"
	"github.com/prospectly/outreach-engine/internal/domain"
	"github.com/prospectly/outreach-engine/internal/pkg/httpretry"
	"github.com/prospectly/outreach-engine/internal/pkg/logger"
)

// HeyReach signs with HMAC-SHA256 over the raw body, base64 encoded. It does
// not send a timestamp header, so no replay window applies.
const HeyReachSignatureHeader = "X-HeyReach-Signature"

// HeyReach is the LinkedIn automation provider. It reports action-level
// identifiers (connection requests, profile messages) rather than message
// ids, so correlation falls back to provider_action_id.
type HeyReach struct {
	secret string

	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewHeyReach builds the provider from configuration.
func NewHeyReach(cfg config.ProviderConfig) *HeyReach {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.heyreach.io/api/public"
	}
	return &HeyReach{
		secret:  cfg.Secret(),
		baseURL: baseURL,
		apiKey:  cfg.APIKey(),
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

func (h *HeyReach) Name() string            { return "heyreach" }
func (h *HeyReach) Channel() domain.Channel { return domain.ChannelLinkedIn }

// VerifySignature checks the base64 HMAC over the raw body.
func (h *HeyReach) VerifySignature(req Request, _ time.Time) error {
	sig := req.Headers.Get(HeyReachSignatureHeader)
	if sig == "" {
		return ErrMissingSignature
	}
	return verifyHMACBase64(h.secret, sig, req.Body)
}

// heyreachEnvelope is the webhook body: a batch of events.
type heyreachEnvelope struct {
	Events []heyreachEvent `json:"events"`
}

type heyreachEvent struct {
	Type      string          `json:"type"`
	EventID   string          `json:"event_id"`
	ActionID  string          `json:"action_id"`
	MessageID string          `json:"message_id"`
	Step      *int            `json:"step"`
	Timestamp string          `json:"timestamp"`
	Extra     json.RawMessage `json:"data"`
}

var heyreachEventTypes = map[string]domain.EventType{
	"MESSAGE_SENT":        domain.EventSent,
	"MESSAGE_DELIVERED":   domain.EventDelivered,
	"MESSAGE_REPLY":       domain.EventReplied,
	"CONNECTION_ACCEPTED": domain.EventConnectionAccepted,
	"CONNECTION_DECLINED": domain.EventConnectionRejected,
	"LEAD_OPTED_OUT":      domain.EventUnsubscribed,
}

// ParseEvents normalizes a HeyReach batch. Some events arrive without an
// event_id; those fall into the best-effort dedup path downstream.
func (h *HeyReach) ParseEvents(body []byte) ([]InboundEvent, error) {
	var env heyreachEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(env.Events) == 0 {
		return nil, fmt.Errorf("%w: empty event batch", ErrMalformedPayload)
	}

	out := make([]InboundEvent, 0, len(env.Events))
	for _, raw := range env.Events {
		eventType, ok := heyreachEventTypes[raw.Type]
		if !ok {
			// HeyReach adds event types without notice. Skipping keeps the
			// rest of the batch processable instead of bouncing it whole.
			logger.Warn("skipping unrecognized event type", "provider", "heyreach", "type", raw.Type)
			continue
		}

		evt := InboundEvent{
			EventType:         eventType,
			Channel:           domain.ChannelLinkedIn,
			StepNumber:        raw.Step,
			ProviderMessageID: strPtr(raw.MessageID),
			ProviderActionID:  strPtr(raw.ActionID),
			ProviderEventID:   strPtr(raw.EventID),
			Timestamp:         parseEventTime(raw.Timestamp),
		}
		if len(raw.Extra) > 0 {
			evt.Metadata = extraFields(raw.Extra)
		}
		if err := requireCorrelation(evt); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no recognized events in batch", ErrMalformedPayload)
	}
	return out, nil
}

// Send dispatches one LinkedIn action through the HeyReach API.
func (h *HeyReach) Send(ctx context.Context, msg OutboundMessage) (*DispatchReceipt, error) {
	payload := map[string]any{
		"campaign_ref": msg.CampaignRef,
		"lead_ref":     msg.ContactRef,
		"step":         msg.StepNumber,
		"message":      msg.Body,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/campaigns/actions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", h.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("heyreach request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("heyreach API %d: %s", resp.StatusCode, body)
	}

	var out struct {
		ActionID  string `json:"action_id"`
		MessageID string `json:"message_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &DispatchReceipt{
		ProviderMessageID: out.MessageID,
		ProviderActionID:  out.ActionID,
	}, nil
}
