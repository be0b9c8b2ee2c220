package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// extraFields collects top-level scalar fields not consumed by the typed
// payload struct into the event metadata, so unknown provider fields survive
// in the audit trail.
func extraFields(body []byte, known ...string) map[string]string {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}
	knownSet := make(map[string]struct{}, len(known))
	for _, k := range known {
		knownSet[k] = struct{}{}
	}

	meta := make(map[string]string)
	for k, v := range raw {
		if _, ok := knownSet[k]; ok {
			continue
		}
		switch val := v.(type) {
		case string:
			meta[k] = val
		case float64:
			meta[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			meta[k] = strconv.FormatBool(val)
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// parseEventTime accepts RFC3339 or unix-seconds timestamps. Providers are
// inconsistent here; an unparsable value falls back to the receive time
// rather than rejecting an otherwise valid event.
func parseEventTime(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC()
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	return time.Now().UTC()
}

// strPtr returns a pointer to s, or nil when s is empty.
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// requireCorrelation wraps the shared malformed-payload check.
func requireCorrelation(evt InboundEvent) error {
	if !evt.HasCorrelationKey() {
		return fmt.Errorf("%w: event carries no correlation identifier", ErrMalformedPayload)
	}
	return nil
}
