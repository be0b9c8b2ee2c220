package provider

import (
	"encoding/json"
	"fmt"

	"github.com/prospectly/outreach-engine/internal/config"
)

// Registry holds the configured providers, keyed by name. It is built once
// at startup and read-only afterwards, so it needs no locking.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry constructs providers for every enabled entry in the
// configuration. Unknown provider names are an error: a typo in config must
// not silently disable webhook verification.
func NewRegistry(cfgs map[string]config.ProviderConfig, freshness FreshnessPolicy) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider)}
	for name, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		switch name {
		case "smartlead":
			r.providers[name] = NewSmartlead(cfg, freshness)
		case "heyreach":
			r.providers[name] = NewHeyReach(cfg)
		case "sendspark":
			r.providers[name] = NewSendspark(cfg)
		default:
			return nil, fmt.Errorf("unknown provider %q in configuration", name)
		}
	}
	return r, nil
}

// Get returns the provider by name, or ErrUnknownProvider.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names returns the configured provider names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	return out
}

// Detect selects the provider for an unpinned webhook call. It inspects
// signature header names first, then well-known payload shape markers.
// Exactly one provider must match: zero or multiple matches fail closed so
// we never try several secrets against one payload.
func (r *Registry) Detect(req Request) (Provider, error) {
	var matches []string

	if req.Headers.Get(SmartleadSignatureHeader) != "" {
		matches = append(matches, "smartlead")
	}
	if req.Headers.Get(HeyReachSignatureHeader) != "" {
		matches = append(matches, "heyreach")
	}
	if req.Headers.Get(SendsparkTokenHeader) != "" ||
		(req.Query != nil && req.Query.Get(SendsparkTokenQuery) != "") {
		matches = append(matches, "sendspark")
	}

	if len(matches) == 0 {
		matches = detectByShape(req.Body)
	}
	if len(matches) != 1 {
		return nil, ErrUnknownProvider
	}
	return r.Get(matches[0])
}

// detectByShape looks at top-level payload markers unique to each provider's
// wire format. Used only when no signature header identified the caller.
func detectByShape(body []byte) []string {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil
	}

	var matches []string
	if _, ok := probe["event_type"]; ok {
		if _, ok := probe["message_id"]; ok {
			matches = append(matches, "smartlead")
		}
	}
	if _, ok := probe["events"]; ok {
		matches = append(matches, "heyreach")
	}
	if _, ok := probe["video_id"]; ok {
		matches = append(matches, "sendspark")
	}
	return matches
}
