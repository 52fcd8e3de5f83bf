package models_test

import (
	"testing"
	"time"

	"fieldrouter/internal/models"
)

func TestEnvelopeVersion(t *testing.T) {
	tests := []struct {
		name      string
		attrs     map[string]string
		want      models.SchemaVersion
		supported bool
	}{
		{"missing attribute means v1", map[string]string{}, models.SchemaV1, true},
		{"explicit v1", map[string]string{models.AttrGundiVersion: "v1"}, models.SchemaV1, true},
		{"explicit v2", map[string]string{models.AttrGundiVersion: "v2"}, models.SchemaV2, true},
		{"unknown version unsupported", map[string]string{models.AttrGundiVersion: "v3"}, "v3", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := models.NewEnvelope([]byte("{}"), tt.attrs)
			got, supported := e.Version()
			if got != tt.want || supported != tt.supported {
				t.Errorf("Version() = (%v, %v), want (%v, %v)", got, supported, tt.want, tt.supported)
			}
		})
	}
}

func TestEnvelopeIngestedAt(t *testing.T) {
	e := models.NewEnvelope([]byte("{}"), map[string]string{
		models.AttrIngestedAt: "2026-03-01T12:00:00Z",
	})
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := e.IngestedAt(); !got.Equal(want) {
		t.Errorf("IngestedAt() = %v, want %v", got, want)
	}

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	if got := e.Age(now); got != 24*time.Hour {
		t.Errorf("Age() = %v, want 24h", got)
	}
}

func TestEnvelopeIngestedAtFallsBackToReceiveTime(t *testing.T) {
	tests := []string{"", "not-a-timestamp"}
	for _, raw := range tests {
		attrs := map[string]string{}
		if raw != "" {
			attrs[models.AttrIngestedAt] = raw
		}
		e := models.NewEnvelope([]byte("{}"), attrs)
		if got := e.IngestedAt(); !got.Equal(e.ReceivedAt) {
			t.Errorf("IngestedAt() with attr %q = %v, want receive time %v", raw, got, e.ReceivedAt)
		}
	}
}

func TestNewEnvelopeNilAttributes(t *testing.T) {
	e := models.NewEnvelope([]byte("{}"), nil)
	if e.Attributes == nil {
		t.Fatal("attributes map not initialized")
	}
	if e.Attr("anything") != "" {
		t.Error("missing attribute should be empty string")
	}
}
