package handlers_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fieldrouter/internal/cache"
	"fieldrouter/internal/dedup"
	"fieldrouter/internal/dispatch"
	"fieldrouter/internal/handlers"
	"fieldrouter/internal/models"
	"fieldrouter/internal/pipeline"
	"fieldrouter/internal/refdata"
	"fieldrouter/internal/transform"
)

// emptyRefClient answers every lookup with not-found.
type emptyRefClient struct{}

func (emptyRefClient) Connection(context.Context, string) (*models.Connection, error) {
	return nil, refdata.ErrNotFound
}
func (emptyRefClient) Route(context.Context, string) (*models.Route, error) {
	return nil, refdata.ErrNotFound
}
func (emptyRefClient) Destination(context.Context, string) (*models.Destination, error) {
	return nil, refdata.ErrNotFound
}
func (emptyRefClient) Integration(context.Context, string) (*models.Integration, error) {
	return nil, refdata.ErrNotFound
}
func (emptyRefClient) Device(context.Context, string, string) (*models.Device, error) {
	return nil, refdata.ErrNotFound
}
func (emptyRefClient) OutboundsByDevice(context.Context, string, string) ([]models.Destination, error) {
	return nil, nil
}

type recordingBroker struct {
	topics []string
}

func (r *recordingBroker) Publish(_ context.Context, topic string, _ []byte, _ map[string]string, _ string) error {
	r.topics = append(r.topics, topic)
	return nil
}

func (r *recordingBroker) Close() error { return nil }

func newTestHandler(t *testing.T) (*handlers.PushHandler, *recordingBroker) {
	t.Helper()

	backend := cache.NewMemory()
	store := refdata.NewStore(backend, emptyRefClient{}, time.Minute)
	ledger := dedup.NewStore(backend, time.Hour, time.Second)
	registry := transform.NewRegistry(transform.NewSmart(store, nil, nil))
	broker := &recordingBroker{}
	gateway := dispatch.NewGateway(broker, dispatch.Config{
		Environment:     "test",
		DeadLetterTopic: "dlq",
		MaxAttempts:     1,
	})
	pl := pipeline.New(store, ledger, registry, gateway, 0)

	return handlers.NewPushHandler(handlers.PushConfig{
		Pipeline: pl,
		Gateway:  gateway,
	}), broker
}

func pushBody(t *testing.T, payload string, attributes map[string]string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"message": map[string]any{
			"data":        base64.StdEncoding.EncodeToString([]byte(payload)),
			"attributes":  attributes,
			"messageId":   "m-1",
			"publishTime": time.Now().UTC().Format(time.RFC3339),
		},
		"subscription": "projects/test/subscriptions/observations",
	})
	if err != nil {
		t.Fatalf("marshal push body: %v", err)
	}
	return body
}

func doPush(handler http.Handler, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/push", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestPushHandlerProcessed(t *testing.T) {
	handler, broker := newTestHandler(t)

	payload := `{"id": "evt-1", "device_id": "ranger-3", "integration_id": "int-1", "event_type": "x", "recorded_at": "2026-01-15T10:30:00Z"}`
	w := doPush(handler, pushBody(t, payload, map[string]string{
		models.AttrObservationType: "ge",
	}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp["status"] != "processed" {
		t.Errorf("status = %v", resp["status"])
	}
	if len(broker.topics) != 0 {
		t.Errorf("no destinations configured, published to %v", broker.topics)
	}
}

func TestPushHandlerDiscardedDeadLetters(t *testing.T) {
	handler, broker := newTestHandler(t)

	w := doPush(handler, pushBody(t, `{"id": "evt-1"}`, map[string]string{
		models.AttrObservationType: "mystery",
	}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, terminal failure must still acknowledge: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp["status"] != "discarded" {
		t.Errorf("status = %v", resp["status"])
	}
	if resp["reason"] != "validation_error" {
		t.Errorf("reason = %v", resp["reason"])
	}
	if len(broker.topics) != 1 || broker.topics[0] != "dlq" {
		t.Errorf("dead-letter publish topics = %v", broker.topics)
	}
}

func TestPushHandlerRetryableReturns500(t *testing.T) {
	handler, _ := newTestHandler(t)

	// v2 envelope with no connection configured: reference lookup fails and
	// the delivery system must redeliver.
	payload := `{"gundi_id": "g-1", "source_id": "src-1", "data_provider_id": "prov-1", "event_type": "x", "recorded_at": "2026-01-15T10:30:00Z"}`
	w := doPush(handler, pushBody(t, payload, map[string]string{
		models.AttrGundiVersion:    "v2",
		models.AttrObservationType: "ev",
	}))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 for retryable failure: %s", w.Code, w.Body.String())
	}
}

func TestPushHandlerRejectsBadRequests(t *testing.T) {
	handler, _ := newTestHandler(t)

	tests := []struct {
		name string
		do   func() *httptest.ResponseRecorder
		want int
	}{
		{
			name: "wrong method",
			do: func() *httptest.ResponseRecorder {
				req := httptest.NewRequest(http.MethodGet, "/push", nil)
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)
				return w
			},
			want: http.StatusMethodNotAllowed,
		},
		{
			name: "invalid json",
			do: func() *httptest.ResponseRecorder {
				return doPush(handler, []byte("{not json"))
			},
			want: http.StatusBadRequest,
		},
		{
			name: "empty message data",
			do: func() *httptest.ResponseRecorder {
				return doPush(handler, []byte(`{"message": {"data": "", "messageId": "m-1"}}`))
			},
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := tt.do(); w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestPushHandlerIdempotentRedelivery(t *testing.T) {
	handler, _ := newTestHandler(t)

	payload := `{"id": "evt-1", "device_id": "ranger-3", "integration_id": "int-1", "event_type": "x", "recorded_at": "2026-01-15T10:30:00Z"}`
	body := pushBody(t, payload, map[string]string{models.AttrObservationType: "ge"})

	first := doPush(handler, body)
	if first.Code != http.StatusOK {
		t.Fatalf("first delivery status = %d", first.Code)
	}

	second := doPush(handler, body)
	if second.Code != http.StatusOK {
		t.Fatalf("redelivery status = %d, duplicates must be acknowledged", second.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp["status"] != "discarded" || resp["reason"] != "already_processed" {
		t.Errorf("redelivery response = %v", resp)
	}
}
