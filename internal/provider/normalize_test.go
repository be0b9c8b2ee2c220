package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospectly/outreach-engine/internal/config"
	"github.com/prospectly/outreach-engine/internal/domain"
)

func TestSmartleadParseEvents(t *testing.T) {
	p := smartleadProvider(t)

	body := []byte(`{
		"event_type": "EMAIL_LINK_CLICK",
		"event_id": "ev-42",
		"message_id": "m-123",
		"sequence_number": 3,
		"event_timestamp": "2026-08-29T10:15:00Z",
		"lead_email": "jane@example.com",
		"clicked_url": "https://example.com/pricing"
	}`)

	events, err := p.ParseEvents(body)
	require.NoError(t, err)
	require.Len(t, events, 1)

	evt := events[0]
	assert.Equal(t, domain.EventClicked, evt.EventType)
	assert.Equal(t, domain.ChannelEmail, evt.Channel)
	require.NotNil(t, evt.ProviderMessageID)
	assert.Equal(t, "m-123", *evt.ProviderMessageID)
	require.NotNil(t, evt.ProviderEventID)
	assert.Equal(t, "ev-42", *evt.ProviderEventID)
	require.NotNil(t, evt.StepNumber)
	assert.Equal(t, 3, *evt.StepNumber)
	assert.Equal(t, time.Date(2026, 8, 29, 10, 15, 0, 0, time.UTC), evt.Timestamp)

	// Unknown fields survive as metadata.
	assert.Equal(t, "https://example.com/pricing", evt.Metadata["clicked_url"])
	assert.Equal(t, "jane@example.com", evt.Metadata["lead_email"])
}

func TestSmartleadParseRejectsUnknownType(t *testing.T) {
	p := smartleadProvider(t)
	_, err := p.ParseEvents([]byte(`{"event_type":"SOMETHING_NEW","message_id":"m-1"}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestSmartleadParseRejectsMissingCorrelation(t *testing.T) {
	p := smartleadProvider(t)
	_, err := p.ParseEvents([]byte(`{"event_type":"EMAIL_OPEN"}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestSmartleadParseRejectsNonJSON(t *testing.T) {
	p := smartleadProvider(t)
	_, err := p.ParseEvents([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestHeyReachParseBatch(t *testing.T) {
	p := heyreachProvider(t)

	body := []byte(`{"events":[
		{"type":"CONNECTION_ACCEPTED","event_id":"hr-1","action_id":"act-9","timestamp":"1756461300"},
		{"type":"MESSAGE_REPLY","action_id":"act-9","step":2}
	]}`)

	events, err := p.ParseEvents(body)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, domain.EventConnectionAccepted, events[0].EventType)
	assert.Equal(t, domain.ChannelLinkedIn, events[0].Channel)
	require.NotNil(t, events[0].ProviderActionID)
	assert.Equal(t, "act-9", *events[0].ProviderActionID)
	require.NotNil(t, events[0].ProviderEventID)

	// Second event carries no event_id: best-effort dedup downstream.
	assert.Nil(t, events[1].ProviderEventID)
	assert.Equal(t, domain.EventReplied, events[1].EventType)
	require.NotNil(t, events[1].StepNumber)
	assert.Equal(t, 2, *events[1].StepNumber)
}

func TestHeyReachParseEmptyBatch(t *testing.T) {
	p := heyreachProvider(t)
	_, err := p.ParseEvents([]byte(`{"events":[]}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestHeyReachParseSkipsUnknownTypes(t *testing.T) {
	p := heyreachProvider(t)

	// A new event type on their side must not blackhole the whole batch.
	events, err := p.ParseEvents([]byte(`{"events":[
		{"type":"PROFILE_VIEWED","event_id":"hr-1","action_id":"act-1"},
		{"type":"MESSAGE_REPLY","event_id":"hr-2","action_id":"act-2"}
	]}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventReplied, events[0].EventType)

	// All-unknown batches carry nothing we can process.
	_, err = p.ParseEvents([]byte(`{"events":[
		{"type":"PROFILE_VIEWED","event_id":"hr-3","action_id":"act-3"}
	]}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestSendsparkParse(t *testing.T) {
	t.Setenv("SENDSPARK_WEBHOOK_TOKEN", "tok")
	p := NewSendspark(config.ProviderConfig{SecretEnv: "SENDSPARK_WEBHOOK_TOKEN"})

	events, err := p.ParseEvents([]byte(`{
		"event": "played",
		"event_id": "ss-7",
		"message_id": "m-55",
		"video_id": "vid-1",
		"timestamp": "2026-08-29T09:00:00Z"
	}`))
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, domain.EventClicked, events[0].EventType)
	assert.Equal(t, "vid-1", events[0].Metadata["video_id"])
}

func TestParseEventTimeFallback(t *testing.T) {
	before := time.Now().UTC()
	got := parseEventTime("definitely not a time")
	assert.False(t, got.Before(before.Add(-time.Second)))

	assert.Equal(t, time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC), parseEventTime("2026-08-29T09:00:00Z"))
	assert.Equal(t, int64(1756458000), parseEventTime("1756458000").Unix())
}
