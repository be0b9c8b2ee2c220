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
)

// Smartlead header names. The signature is HMAC-SHA256, hex encoded, over
// "<timestamp>.<raw body>" so a captured payload cannot be replayed with a
// fresh timestamp.
const (
	SmartleadSignatureHeader = "X-Smartlead-Signature"
	SmartleadTimestampHeader = "X-Smartlead-Timestamp"
)

// Smartlead is the email sequencing provider.
type Smartlead struct {
	secret    string
	freshness FreshnessPolicy

	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewSmartlead builds the provider from configuration.
func NewSmartlead(cfg config.ProviderConfig, freshness FreshnessPolicy) *Smartlead {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://server.smartlead.ai/api/v1"
	}
	return &Smartlead{
		secret:    cfg.Secret(),
		freshness: freshness,
		baseURL:   baseURL,
		apiKey:    cfg.APIKey(),
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

func (s *Smartlead) Name() string            { return "smartlead" }
func (s *Smartlead) Channel() domain.Channel { return domain.ChannelEmail }

// VerifySignature checks the HMAC-hex signature and the replay window.
func (s *Smartlead) VerifySignature(req Request, now time.Time) error {
	sig := req.Headers.Get(SmartleadSignatureHeader)
	if sig == "" {
		return ErrMissingSignature
	}
	ts := req.Headers.Get(SmartleadTimestampHeader)
	if ts == "" {
		return ErrMissingSignature
	}

	signed := make([]byte, 0, len(ts)+1+len(req.Body))
	signed = append(signed, ts...)
	signed = append(signed, '.')
	signed = append(signed, req.Body...)
	if err := verifyHMACHex(s.secret, sig, signed); err != nil {
		return err
	}
	return s.freshness.CheckFreshness(ts, now)
}

// smartleadPayload is the subset of the webhook body we map; everything else
// lands in metadata.
type smartleadPayload struct {
	EventType      string `json:"event_type"`
	EventID        string `json:"event_id"`
	MessageID      string `json:"message_id"`
	SequenceNumber *int   `json:"sequence_number"`
	EventTime      string `json:"event_timestamp"`
}

var smartleadEventTypes = map[string]domain.EventType{
	"EMAIL_SENT":        domain.EventSent,
	"EMAIL_DELIVERED":   domain.EventDelivered,
	"EMAIL_OPEN":        domain.EventOpened,
	"EMAIL_LINK_CLICK":  domain.EventClicked,
	"EMAIL_REPLY":       domain.EventReplied,
	"EMAIL_BOUNCE":      domain.EventBounced,
	"LEAD_UNSUBSCRIBED": domain.EventUnsubscribed,
}

// ParseEvents normalizes one Smartlead webhook call (a single event object).
func (s *Smartlead) ParseEvents(body []byte) ([]InboundEvent, error) {
	var p smartleadPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	eventType, ok := smartleadEventTypes[p.EventType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event_type %q", ErrMalformedPayload, p.EventType)
	}

	evt := InboundEvent{
		EventType:  eventType,
		Channel:    domain.ChannelEmail,
		StepNumber: p.SequenceNumber,
		Metadata:   extraFields(body, "event_type", "event_id", "message_id", "sequence_number", "event_timestamp"),
	}
	if p.MessageID != "" {
		evt.ProviderMessageID = &p.MessageID
	}
	if p.EventID != "" {
		evt.ProviderEventID = &p.EventID
	}
	evt.Timestamp = parseEventTime(p.EventTime)

	if !evt.HasCorrelationKey() {
		return nil, fmt.Errorf("%w: no message_id or event_id", ErrMalformedPayload)
	}
	return []InboundEvent{evt}, nil
}

// Send dispatches one sequence email through the Smartlead API.
func (s *Smartlead) Send(ctx context.Context, msg OutboundMessage) (*DispatchReceipt, error) {
	payload := map[string]any{
		"campaign_ref": msg.CampaignRef,
		"lead_ref":     msg.ContactRef,
		"sequence":     msg.StepNumber,
		"subject":      msg.Subject,
		"body":         msg.Body,
	}
	var resp struct {
		MessageID string `json:"message_id"`
	}
	if err := s.doJSON(ctx, http.MethodPost, "/campaigns/messages", payload, &resp); err != nil {
		return nil, err
	}
	return &DispatchReceipt{ProviderMessageID: resp.MessageID}, nil
}

// GetStatus fetches delivery status for a dispatched message.
func (s *Smartlead) GetStatus(ctx context.Context, providerMessageID string) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := s.doJSON(ctx, http.MethodGet, "/messages/"+providerMessageID, nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (s *Smartlead) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("smartlead request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("smartlead API %d: %s", resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
