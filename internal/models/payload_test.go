package models_test

import (
	"testing"

	"fieldrouter/internal/models"
)

func TestParsePayloadVariants(t *testing.T) {
	tests := []struct {
		name       string
		streamType models.StreamType
		payload    string
		eventID    string
		deviceID   string
		providerID string
	}{
		{
			name:       "v1 position",
			streamType: models.StreamPosition,
			payload: `{
				"id": "pos-1",
				"device_id": "collar-9",
				"integration_id": "int-1",
				"recorded_at": "2026-01-15T10:30:00Z",
				"location": {"lon": 36.8, "lat": -1.3}
			}`,
			eventID:    "pos-1",
			deviceID:   "collar-9",
			providerID: "int-1",
		},
		{
			name:       "v1 geo event",
			streamType: models.StreamGeoEvent,
			payload: `{
				"id": "evt-1",
				"device_id": "ranger-3",
				"integration_id": "int-1",
				"event_type": "leopard_sighting",
				"recorded_at": "2026-01-15T10:30:00Z"
			}`,
			eventID:    "evt-1",
			deviceID:   "ranger-3",
			providerID: "int-1",
		},
		{
			name:       "v2 observation",
			streamType: models.StreamObservation,
			payload: `{
				"gundi_id": "g-1",
				"source_id": "src-1",
				"data_provider_id": "prov-1",
				"recorded_at": "2026-01-15T10:30:00Z",
				"location": {"lon": 36.8, "lat": -1.3}
			}`,
			eventID:    "g-1",
			deviceID:   "src-1",
			providerID: "prov-1",
		},
		{
			name:       "v2 event update",
			streamType: models.StreamEventUpdate,
			payload: `{
				"gundi_id": "g-2",
				"source_id": "src-1",
				"data_provider_id": "prov-1",
				"changes": {"title": "updated"}
			}`,
			eventID:    "g-2",
			deviceID:   "src-1",
			providerID: "prov-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := models.ParsePayload(tt.streamType, []byte(tt.payload))
			if err != nil {
				t.Fatalf("ParsePayload: %v", err)
			}
			if p.Kind() != tt.streamType {
				t.Errorf("Kind() = %v, want %v", p.Kind(), tt.streamType)
			}
			if p.EventID() != tt.eventID {
				t.Errorf("EventID() = %q, want %q", p.EventID(), tt.eventID)
			}
			deviceID, providerID := p.Source()
			if deviceID != tt.deviceID || providerID != tt.providerID {
				t.Errorf("Source() = (%q, %q), want (%q, %q)", deviceID, providerID, tt.deviceID, tt.providerID)
			}
		})
	}
}

func TestParsePayloadUnknownStreamType(t *testing.T) {
	if _, err := models.ParsePayload("bogus", []byte("{}")); err == nil {
		t.Fatal("expected error for unknown stream type")
	}
	if models.KnownStreamType("bogus") {
		t.Error("bogus should not be a known stream type")
	}
}

func TestParsePayloadMalformedJSON(t *testing.T) {
	if _, err := models.ParsePayload(models.StreamPosition, []byte("{not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestValidatePayloadTable(t *testing.T) {
	if err := models.ValidatePayloadTable(); err != nil {
		t.Fatalf("ValidatePayloadTable: %v", err)
	}
}
