package transform

import (
	"context"
	"time"

	"fieldrouter/internal/models"
	"fieldrouter/internal/rules"
)

// EarthRanger encodes observations, events and event updates for generic
// EarthRanger-style destinations. Route rules run after the base document is
// built, so routes can override any field.
type EarthRanger struct{}

func (e *EarthRanger) Transform(_ context.Context, payload models.Payload, tc Context) (map[string]any, error) {
	var doc map[string]any

	switch p := payload.(type) {
	case *models.Position:
		doc = e.observationDoc(p.DeviceID, p.Type, p.Name, p.SubjectType,
			p.RecordedAt, p.Location, p.Additional, tc.Device)
	case *models.Observation:
		name := p.SourceName
		if name == "" {
			name = p.ExternalSourceID
		}
		doc = e.observationDoc(p.SourceID, p.Type, name, p.SubjectType,
			p.RecordedAt, p.Location, p.Additional, nil)
	case *models.GeoEvent:
		doc = e.eventDoc(p.Title, p.EventType, p.RecordedAt, p.Location, p.EventDetails)
	case *models.Event:
		doc = e.eventDoc(p.Title, p.EventType, p.RecordedAt, p.Location, p.EventDetails)
	case *models.EventUpdate:
		doc = map[string]any{
			"gundi_id": p.GundiID,
			"changes":  p.Changes,
		}
	default:
		return nil, nil
	}

	rules.ApplyAll(tc.RouteRules, doc, docOf(payload))
	return doc, nil
}

// observationDoc maps a position fix to the destination's observation
// shape. The device (when present) backfills fields the provider omitted.
// subject_subtype is added only when a value exists: the destination
// rejects an explicit null.
func (e *EarthRanger) observationDoc(
	deviceID, sourceType, name, subjectType string,
	recordedAt time.Time, location models.Location,
	additional map[string]any, device *models.Device,
) map[string]any {
	if device != nil {
		if name == "" {
			name = device.Name
		}
		if subjectType == "" {
			subjectType = device.SubjectType
		}
		if location.Lon == 0 && location.Lat == 0 && device.Location != nil {
			location = *device.Location
		}
	}
	if sourceType == "" {
		sourceType = "tracking-device"
	}
	if name == "" {
		name = deviceID
	}

	doc := map[string]any{
		"manufacturer_id": deviceID,
		"source_type":     sourceType,
		"subject_name":    name,
		"recorded_at":     recordedAt.UTC().Format(time.RFC3339),
		"location": map[string]any{
			"lon": location.Lon,
			"lat": location.Lat,
		},
		"additional": additional,
	}
	if subjectType != "" {
		doc["subject_subtype"] = subjectType
	}
	return doc
}

func (e *EarthRanger) eventDoc(
	title, eventType string, recordedAt time.Time,
	location *models.Location, details map[string]any,
) map[string]any {
	doc := map[string]any{
		"title":         title,
		"event_type":    eventType,
		"event_details": details,
		"time":          recordedAt.UTC().Format(time.RFC3339),
	}
	if location != nil {
		doc["location"] = map[string]any{
			"longitude": location.Lon,
			"latitude":  location.Lat,
		}
	}
	return doc
}

// AttachmentPassthrough forwards a file reference untouched; upload
// semantics live with the destination's dispatcher.
type AttachmentPassthrough struct{}

func (a *AttachmentPassthrough) Transform(_ context.Context, payload models.Payload, tc Context) (map[string]any, error) {
	var doc map[string]any
	switch p := payload.(type) {
	case *models.CameraTrap:
		doc = map[string]any{
			"file_path":   p.File,
			"camera_name": p.CameraName,
			"recorded_at": p.RecordedAt.UTC().Format(time.RFC3339),
		}
	case *models.Attachment:
		doc = map[string]any{
			"file_path":  p.FilePath,
			"related_to": p.RelatedTo,
		}
	default:
		return nil, nil
	}
	rules.ApplyAll(tc.RouteRules, doc, docOf(payload))
	return doc, nil
}
