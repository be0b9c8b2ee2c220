package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prospectly/outreach-engine/internal/config"
	"github.com/prospectly/outreach-engine/internal/domain"
	"github.com/prospectly/outreach-engine/internal/provider"
	"github.com/prospectly/outreach-engine/internal/ratelimit"
	"github.com/prospectly/outreach-engine/internal/service/deadletter"
	"github.com/prospectly/outreach-engine/internal/service/enrollment"
	"github.com/prospectly/outreach-engine/internal/service/ingest"
)

const testSecret = "whsec_test_0123456789"

type testAPI struct {
	handler     http.Handler
	enrollments *memEnrollmentRepo
	events      *memEventStore
	deadletters *memDeadLetterRepo
	enrollSvc   *enrollment.Service
}

func newTestAPI(t *testing.T, guard *ratelimit.Guard) *testAPI {
	t.Helper()
	t.Setenv("TEST_SMARTLEAD_SECRET", testSecret)
	t.Setenv("TEST_SENDSPARK_TOKEN", "tok_test_sendspark")

	registry, err := provider.NewRegistry(map[string]config.ProviderConfig{
		"smartlead": {Enabled: true, SecretEnv: "TEST_SMARTLEAD_SECRET"},
		"sendspark": {Enabled: true, SecretEnv: "TEST_SENDSPARK_TOKEN"},
	}, provider.FreshnessPolicy{MaxAge: 5 * time.Minute, MaxFutureSkew: time.Minute})
	require.NoError(t, err)

	enrollments := newMemEnrollmentRepo()
	events := newMemEventStore()
	dlq := newMemDeadLetterRepo()

	enrollSvc := enrollment.NewService(enrollments)
	ingestSvc := ingest.NewService(registry, events, enrollSvc, dlq, nil, time.Second)
	dlqSvc := deadletter.NewService(dlq, ingestSvc, nil)

	handlers := NewHandlers(ingestSvc, enrollSvc, dlqSvc, guard, 1024*1024)
	return &testAPI{
		handler:     SetupRoutes(handlers),
		enrollments: enrollments,
		events:      events,
		deadletters: dlq,
		enrollSvc:   enrollSvc,
	}
}

func (a *testAPI) seedEnrollment(t *testing.T, messageID string) *domain.Enrollment {
	t.Helper()
	e, err := a.enrollSvc.Create(context.Background(), enrollment.CreateInput{
		CampaignInstanceID: "ci-1",
		ContactID:          "contact-1",
	})
	require.NoError(t, err)
	if messageID != "" {
		require.NoError(t, a.enrollSvc.StoreCorrelation(context.Background(), e.ID, messageID, ""))
	}
	return e
}

func smartleadBody(eventType, eventID, messageID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event_type":%q,"event_id":%q,"message_id":%q,"event_timestamp":%q}`,
		eventType, eventID, messageID, time.Now().UTC().Format(time.RFC3339)))
}

func signedSmartleadRequest(body []byte) *http.Request {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(ts + "."))
	mac.Write(body)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/smartlead", bytes.NewReader(body))
	req.Header.Set(provider.SmartleadSignatureHeader, hex.EncodeToString(mac.Sum(nil)))
	req.Header.Set(provider.SmartleadTimestampHeader, ts)
	return req
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeReceipt(t *testing.T, rr *httptest.ResponseRecorder) ingest.Receipt {
	t.Helper()
	var receipt ingest.Receipt
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &receipt))
	return receipt
}

func TestHealthCheck(t *testing.T) {
	api := newTestAPI(t, nil)
	rr := doJSON(t, api.handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
}

func TestWebhookAppliesEvent(t *testing.T) {
	api := newTestAPI(t, nil)
	e := api.seedEnrollment(t, "msg-100")

	rr := httptest.NewRecorder()
	api.handler.ServeHTTP(rr, signedSmartleadRequest(smartleadBody("EMAIL_OPEN", "evt-1", "msg-100")))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	receipt := decodeReceipt(t, rr)
	assert.Equal(t, 1, receipt.Received)
	assert.Equal(t, 1, receipt.Applied)

	got, err := api.enrollSvc.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalOpened)
	assert.Equal(t, domain.EnrollmentActive, got.Status, "first engagement event activates the enrollment")
}

func TestWebhookEventSequence(t *testing.T) {
	// The full accounting lifecycle through the real router: an open
	// activates, a redelivery is absorbed, a bounce is terminal, and
	// anything after the bounce is late with no counter effect.
	api := newTestAPI(t, nil)
	e := api.seedEnrollment(t, "msg-100")
	ctx := context.Background()

	status := func(t *testing.T) *domain.Enrollment {
		t.Helper()
		got, err := api.enrollSvc.Get(ctx, e.ID)
		require.NoError(t, err)
		return got
	}

	openBody := smartleadBody("EMAIL_OPEN", "evt-1", "msg-100")
	rr := httptest.NewRecorder()
	api.handler.ServeHTTP(rr, signedSmartleadRequest(openBody))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	got := status(t)
	assert.Equal(t, 1, got.TotalOpened)
	assert.Equal(t, domain.EnrollmentActive, got.Status)

	// Redelivery of the same event id.
	rr = httptest.NewRecorder()
	api.handler.ServeHTTP(rr, signedSmartleadRequest(openBody))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decodeReceipt(t, rr).Duplicates)
	got = status(t)
	assert.Equal(t, 1, got.TotalOpened)
	assert.Equal(t, domain.EnrollmentActive, got.Status)

	rr = httptest.NewRecorder()
	api.handler.ServeHTTP(rr, signedSmartleadRequest(smartleadBody("EMAIL_BOUNCE", "evt-2", "msg-100")))
	require.Equal(t, http.StatusOK, rr.Code)
	got = status(t)
	assert.Equal(t, 1, got.TotalBounced)
	assert.Equal(t, domain.EnrollmentBounced, got.Status)

	// A click after the bounce is recorded but side-effect free.
	rr = httptest.NewRecorder()
	api.handler.ServeHTTP(rr, signedSmartleadRequest(smartleadBody("EMAIL_LINK_CLICK", "evt-3", "msg-100")))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decodeReceipt(t, rr).Late)
	got = status(t)
	assert.Equal(t, 0, got.TotalClicked)
	assert.Equal(t, domain.EnrollmentBounced, got.Status)
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	api := newTestAPI(t, nil)
	e := api.seedEnrollment(t, "msg-100")

	body := smartleadBody("EMAIL_OPEN", "evt-1", "msg-100")
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		api.handler.ServeHTTP(rr, signedSmartleadRequest(body))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	got, err := api.enrollSvc.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalOpened, "redelivery must not double-count")
}

func TestWebhookInvalidSignature(t *testing.T) {
	api := newTestAPI(t, nil)

	body := smartleadBody("EMAIL_OPEN", "evt-1", "msg-100")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/smartlead", bytes.NewReader(body))
	req.Header.Set(provider.SmartleadSignatureHeader, "deadbeef")
	req.Header.Set(provider.SmartleadTimestampHeader, strconv.FormatInt(time.Now().Unix(), 10))

	rr := httptest.NewRecorder()
	api.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	// The rejection must never echo the payload back.
	assert.NotContains(t, rr.Body.String(), "msg-100")
}

func TestWebhookUnknownProvider(t *testing.T) {
	api := newTestAPI(t, nil)
	rr := doJSON(t, api.handler, http.MethodPost, "/webhooks/mystery", map[string]string{"hello": "world"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWebhookAutoDetect(t *testing.T) {
	api := newTestAPI(t, nil)
	e := api.seedEnrollment(t, "msg-200")

	body := smartleadBody("EMAIL_DELIVERED", "evt-2", "msg-200")
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(ts + "."))
	mac.Write(body)

	// No provider in the path: detection goes by signature headers.
	req := httptest.NewRequest(http.MethodPost, "/webhooks", bytes.NewReader(body))
	req.Header.Set(provider.SmartleadSignatureHeader, hex.EncodeToString(mac.Sum(nil)))
	req.Header.Set(provider.SmartleadTimestampHeader, ts)

	rr := httptest.NewRecorder()
	api.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	got, err := api.enrollSvc.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalDelivered)
}

func TestWebhookStorageUnavailable(t *testing.T) {
	api := newTestAPI(t, nil)
	api.seedEnrollment(t, "msg-100")
	api.events.failRecord = true

	rr := httptest.NewRecorder()
	api.handler.ServeHTTP(rr, signedSmartleadRequest(smartleadBody("EMAIL_OPEN", "evt-1", "msg-100")))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestWebhookPayloadTooLarge(t *testing.T) {
	api := newTestAPI(t, nil)

	big := bytes.Repeat([]byte("a"), 2*1024*1024)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/smartlead", bytes.NewReader(big))
	rr := httptest.NewRecorder()
	api.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestWebhookSignatureLockout(t *testing.T) {
	guard := ratelimit.NewGuard(ratelimit.NewMemoryStore(), 0, 3, time.Minute)
	api := newTestAPI(t, guard)

	bad := func() *http.Request {
		body := smartleadBody("EMAIL_OPEN", "evt-x", "msg-x")
		req := httptest.NewRequest(http.MethodPost, "/webhooks/smartlead", bytes.NewReader(body))
		req.Header.Set(provider.SmartleadSignatureHeader, "deadbeef")
		req.Header.Set(provider.SmartleadTimestampHeader, strconv.FormatInt(time.Now().Unix(), 10))
		req.RemoteAddr = "203.0.113.9:4444"
		return req
	}

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		api.handler.ServeHTTP(rr, bad())
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	}

	// Past the threshold even a correctly signed call is refused.
	req := signedSmartleadRequest(smartleadBody("EMAIL_OPEN", "evt-y", "msg-y"))
	req.RemoteAddr = "203.0.113.9:4444"
	rr := httptest.NewRecorder()
	api.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestWebhookBurstLimit(t *testing.T) {
	guard := ratelimit.NewGuard(ratelimit.NewMemoryStore(), 2, 0, 0)
	api := newTestAPI(t, guard)
	api.seedEnrollment(t, "msg-100")

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		api.handler.ServeHTTP(rr, signedSmartleadRequest(
			smartleadBody("EMAIL_OPEN", fmt.Sprintf("evt-%d", i), "msg-100")))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := httptest.NewRecorder()
	api.handler.ServeHTTP(rr, signedSmartleadRequest(smartleadBody("EMAIL_OPEN", "evt-3", "msg-100")))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestWebhookDeadLettersUnmatched(t *testing.T) {
	api := newTestAPI(t, nil)

	rr := httptest.NewRecorder()
	api.handler.ServeHTTP(rr, signedSmartleadRequest(smartleadBody("EMAIL_OPEN", "evt-1", "msg-unknown")))

	require.Equal(t, http.StatusOK, rr.Code, "post-record failures still answer 200")
	receipt := decodeReceipt(t, rr)
	assert.Equal(t, 1, receipt.DeadLettered)

	list := doJSON(t, api.handler, http.MethodGet, "/api/v1/dead-letters", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), string(domain.DeadLetterNoEnrollment))
}

func TestDeadLetterReplayAfterCorrelation(t *testing.T) {
	api := newTestAPI(t, nil)

	rr := httptest.NewRecorder()
	api.handler.ServeHTTP(rr, signedSmartleadRequest(smartleadBody("EMAIL_OPEN", "evt-1", "msg-late")))
	require.Equal(t, http.StatusOK, rr.Code)

	ids := api.deadletters.pendingIDs()
	require.Len(t, ids, 1)

	// Replay before the correlation exists fails and bumps the retry count.
	rr = doJSON(t, api.handler, http.MethodPost, "/api/v1/dead-letters/"+ids[0]+"/replay", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	// The send path catches up, then replay succeeds.
	e := api.seedEnrollment(t, "msg-late")
	rr = doJSON(t, api.handler, http.MethodPost, "/api/v1/dead-letters/"+ids[0]+"/replay", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	got, err := api.enrollSvc.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalOpened)

	// A second replay of the resolved entry conflicts.
	rr = doJSON(t, api.handler, http.MethodPost, "/api/v1/dead-letters/"+ids[0]+"/replay", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestEnrollmentLifecycle(t *testing.T) {
	api := newTestAPI(t, nil)

	rr := doJSON(t, api.handler, http.MethodPost, "/api/v1/enrollments", enrollment.CreateInput{
		CampaignInstanceID: "ci-1",
		ContactID:          "contact-9",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var created domain.Enrollment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, domain.EnrollmentEnrolled, created.Status)

	// Pause from enrolled is not a legal transition.
	rr = doJSON(t, api.handler, http.MethodPost, "/api/v1/enrollments/"+created.ID+"/pause", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	// Correlation write activates nothing by itself.
	rr = doJSON(t, api.handler, http.MethodPost, "/api/v1/enrollments/"+created.ID+"/correlation",
		correlationRequest{ProviderMessageID: "msg-55"})
	require.Equal(t, http.StatusNoContent, rr.Code)

	// First sent event promotes enrolled to active; then pause works.
	sent := httptest.NewRecorder()
	api.handler.ServeHTTP(sent, signedSmartleadRequest(smartleadBody("EMAIL_SENT", "evt-s1", "msg-55")))
	require.Equal(t, http.StatusOK, sent.Code)

	rr = doJSON(t, api.handler, http.MethodPost, "/api/v1/enrollments/"+created.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doJSON(t, api.handler, http.MethodPost, "/api/v1/enrollments/"+created.ID+"/resume", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, api.handler, http.MethodPost, "/api/v1/enrollments/"+created.ID+"/advance", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"current_step":1`)

	rr = doJSON(t, api.handler, http.MethodPost, "/api/v1/enrollments/"+created.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, api.handler, http.MethodGet, "/api/v1/enrollments/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got domain.Enrollment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, domain.EnrollmentCompleted, got.Status)
	assert.Equal(t, 1, got.TotalSent)
}

func TestEnrollmentNotFound(t *testing.T) {
	api := newTestAPI(t, nil)
	rr := doJSON(t, api.handler, http.MethodGet, "/api/v1/enrollments/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListEnrollmentsRequiresCampaignInstance(t *testing.T) {
	api := newTestAPI(t, nil)
	rr := doJSON(t, api.handler, http.MethodGet, "/api/v1/enrollments", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListEnrollmentEvents(t *testing.T) {
	api := newTestAPI(t, nil)
	e := api.seedEnrollment(t, "msg-100")

	rr := httptest.NewRecorder()
	api.handler.ServeHTTP(rr, signedSmartleadRequest(smartleadBody("EMAIL_OPEN", "evt-1", "msg-100")))
	require.Equal(t, http.StatusOK, rr.Code)

	rr2 := doJSON(t, api.handler, http.MethodGet, "/api/v1/enrollments/"+e.ID+"/events", nil)
	require.Equal(t, http.StatusOK, rr2.Code)
	assert.Contains(t, rr2.Body.String(), `"count":1`)
	assert.Contains(t, rr2.Body.String(), `"opened"`)
}
