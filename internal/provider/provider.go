// Package provider implements the outbound-channel provider contract: each
// concrete provider knows how to verify its webhook signatures, normalize
// its payloads into canonical events, and (for the send path) dispatch
// messages and fetch status over its HTTP API.
//
// Providers are selected via a registry keyed by configuration; there is no
// inheritance chain, only capability interfaces.
package provider

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/prospectly/outreach-engine/internal/domain"
)

// Sentinel errors for the verification and normalization paths. Handlers
// map these to HTTP status codes; nothing below the webhook endpoint ever
// sees an unverified payload.
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrStaleTimestamp   = errors.New("webhook timestamp outside replay window")
	ErrFutureTimestamp  = errors.New("webhook timestamp too far in the future")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrUnknownProvider  = errors.New("unrecognized webhook provider")
)

// Request carries the raw inbound webhook exactly as received. Body is the
// unparsed bytes: signatures are computed over the wire form, so any
// re-serialization would break verification.
type Request struct {
	Headers http.Header
	Query   url.Values
	Body    []byte
}

// InboundEvent is a provider event normalized to the canonical vocabulary,
// not yet persisted or correlated.
type InboundEvent struct {
	EventType         domain.EventType
	Channel           domain.Channel
	StepNumber        *int
	ProviderMessageID *string
	ProviderActionID  *string
	ProviderEventID   *string
	Timestamp         time.Time
	Metadata          map[string]string
}

// HasCorrelationKey reports whether at least one identifier usable for
// correlation or dedup is present. Events with none are malformed.
func (e InboundEvent) HasCorrelationKey() bool {
	return e.ProviderMessageID != nil || e.ProviderActionID != nil || e.ProviderEventID != nil
}

// Provider is the webhook-side contract every concrete provider implements.
// VerifySignature and ParseEvents are pure functions over the request and
// must be safe for concurrent use.
type Provider interface {
	// Name returns the provider key used in configuration and storage.
	Name() string
	// Channel returns the outbound channel this provider serves.
	Channel() domain.Channel
	// VerifySignature authenticates the raw request. Any decode or length
	// mismatch is an invalid signature, never an internal error.
	VerifySignature(req Request, now time.Time) error
	// ParseEvents normalizes the payload into canonical events. Returns
	// ErrMalformedPayload when the minimum fields are missing.
	ParseEvents(body []byte) ([]InboundEvent, error)
}

// Sender is the outbound capability: dispatching one step message. The
// workflow orchestrator owns sequencing; it calls this and then stores the
// returned correlation ids before the provider could deliver a webhook.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) (*DispatchReceipt, error)
}

// StatusFetcher is the polling capability for providers whose webhook
// coverage is incomplete.
type StatusFetcher interface {
	GetStatus(ctx context.Context, providerMessageID string) (string, error)
}

// OutboundMessage is the channel-neutral send request.
type OutboundMessage struct {
	CampaignRef string            `json:"campaign_ref"`
	ContactRef  string            `json:"contact_ref"`
	StepNumber  int               `json:"step_number"`
	Subject     string            `json:"subject,omitempty"`
	Body        string            `json:"body"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// DispatchReceipt carries the provider identifiers produced by a send.
type DispatchReceipt struct {
	ProviderMessageID string `json:"provider_message_id"`
	ProviderActionID  string `json:"provider_action_id,omitempty"`
}
