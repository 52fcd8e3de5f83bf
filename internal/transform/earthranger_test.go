package transform_test

import (
	"context"
	"testing"
	"time"

	"fieldrouter/internal/models"
	"fieldrouter/internal/rules"
	"fieldrouter/internal/transform"
)

func TestEarthRangerObservationDeviceBackfill(t *testing.T) {
	er := &transform.EarthRanger{}
	pos := &models.Position{
		ID:            "pos-1",
		DeviceID:      "collar-9",
		IntegrationID: "int-1",
		RecordedAt:    time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
	}
	device := &models.Device{
		ID:          "dev-1",
		ExternalID:  "collar-9",
		Name:        "Amboseli Elephant 07",
		SubjectType: "elephant",
		Location:    &models.Location{Lon: 37.2, Lat: -2.6},
	}

	doc, err := er.Transform(context.Background(), pos, transform.Context{
		Version: models.SchemaV1,
		Device:  device,
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	if got := doc["subject_name"]; got != "Amboseli Elephant 07" {
		t.Errorf("subject_name = %v", got)
	}
	if got := doc["subject_subtype"]; got != "elephant" {
		t.Errorf("subject_subtype = %v", got)
	}
	if got := doc["source_type"]; got != "tracking-device" {
		t.Errorf("source_type = %v", got)
	}
	loc, _ := doc["location"].(map[string]any)
	if loc["lon"] != 37.2 || loc["lat"] != -2.6 {
		t.Errorf("zero location not backfilled from device: %v", loc)
	}
}

func TestEarthRangerSubjectSubtypeOmittedWhenEmpty(t *testing.T) {
	er := &transform.EarthRanger{}
	pos := &models.Position{
		ID:            "pos-1",
		DeviceID:      "collar-9",
		IntegrationID: "int-1",
		RecordedAt:    time.Now(),
		Location:      models.Location{Lon: 36.8, Lat: -1.3},
	}

	doc, err := er.Transform(context.Background(), pos, transform.Context{Version: models.SchemaV1})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	if _, present := doc["subject_subtype"]; present {
		t.Error("subject_subtype must be absent, not null, when unknown")
	}
	if got := doc["subject_name"]; got != "collar-9" {
		t.Errorf("subject_name fallback = %v, want device id", got)
	}
}

func TestEarthRangerEventDoc(t *testing.T) {
	er := &transform.EarthRanger{}
	ev := &models.Event{
		GundiID:        "g-1",
		SourceID:       "src-1",
		DataProviderID: "prov-1",
		Title:          "Leopard sighting",
		EventType:      "leopard_sighting",
		RecordedAt:     time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
		Location:       &models.Location{Lon: 36.8, Lat: -1.3},
		EventDetails:   map[string]any{"species": "leopard"},
	}

	doc, err := er.Transform(context.Background(), ev, transform.Context{Version: models.SchemaV2})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	if got := doc["event_type"]; got != "leopard_sighting" {
		t.Errorf("event_type = %v", got)
	}
	if got := doc["time"]; got != "2026-01-15T10:30:00Z" {
		t.Errorf("time = %v", got)
	}
	loc, _ := doc["location"].(map[string]any)
	if loc["longitude"] != 36.8 || loc["latitude"] != -1.3 {
		t.Errorf("location = %v", loc)
	}
}

func TestEarthRangerEventWithoutLocation(t *testing.T) {
	er := &transform.EarthRanger{}
	ev := &models.GeoEvent{
		ID:            "evt-1",
		DeviceID:      "ranger-3",
		IntegrationID: "int-1",
		EventType:     "radio_report",
		RecordedAt:    time.Now(),
	}

	doc, err := er.Transform(context.Background(), ev, transform.Context{Version: models.SchemaV1})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if _, present := doc["location"]; present {
		t.Error("location must be absent when the event carries none")
	}
}

func TestEarthRangerRouteRulesOverrideBaseDocument(t *testing.T) {
	er := &transform.EarthRanger{}
	pos := &models.Position{
		ID:            "pos-1",
		DeviceID:      "collar-9",
		IntegrationID: "int-1",
		RecordedAt:    time.Now(),
		Location:      models.Location{Lon: 36.8, Lat: -1.3},
	}

	doc, err := er.Transform(context.Background(), pos, transform.Context{
		Version: models.SchemaV1,
		RouteRules: []rules.FieldMappingRule{
			{Target: "source_type", Default: "gps-radio"},
			{Target: "provider_device", Source: "device_id"},
		},
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	if got := doc["source_type"]; got != "gps-radio" {
		t.Errorf("rule did not override source_type: %v", got)
	}
	if got := doc["provider_device"]; got != "collar-9" {
		t.Errorf("rule did not extract from original document: %v", got)
	}
}

func TestAttachmentPassthrough(t *testing.T) {
	wps := &transform.AttachmentPassthrough{}

	ct := &models.CameraTrap{
		ID:            "ct-1",
		DeviceID:      "cam-2",
		IntegrationID: "int-1",
		CameraName:    "waterhole-east",
		File:          "captures/2026/01/15/0001.jpg",
		RecordedAt:    time.Date(2026, 1, 15, 4, 12, 0, 0, time.UTC),
	}
	doc, err := wps.Transform(context.Background(), ct, transform.Context{Version: models.SchemaV1})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if got := doc["file_path"]; got != "captures/2026/01/15/0001.jpg" {
		t.Errorf("file_path = %v", got)
	}
	if got := doc["camera_name"]; got != "waterhole-east" {
		t.Errorf("camera_name = %v", got)
	}

	att := &models.Attachment{GundiID: "g-1", RelatedTo: "g-0", FilePath: "files/a.jpg"}
	doc, err = wps.Transform(context.Background(), att, transform.Context{Version: models.SchemaV2})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if doc["file_path"] != "files/a.jpg" || doc["related_to"] != "g-0" {
		t.Errorf("attachment doc = %v", doc)
	}
}
