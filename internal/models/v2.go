package models

import "time"

// Observation is the v2 equivalent of Position: a single fix from a source
// owned by a data provider.
type Observation struct {
	GundiID          string         `json:"gundi_id"`
	RelatedTo        string         `json:"related_to,omitempty"`
	DataProviderID   string         `json:"data_provider_id"`
	SourceID         string         `json:"source_id"`
	ExternalSourceID string         `json:"external_source_id,omitempty"`
	SourceName       string         `json:"source_name,omitempty"`
	Type             string         `json:"type,omitempty"`
	SubjectType      string         `json:"subject_type,omitempty"`
	RecordedAt       time.Time      `json:"recorded_at"`
	Location         Location       `json:"location"`
	Additional       map[string]any `json:"additional,omitempty"`
}

func (o *Observation) Kind() StreamType { return StreamObservation }
func (o *Observation) EventID() string  { return o.GundiID }
func (o *Observation) Source() (string, string) {
	return o.SourceID, o.DataProviderID
}
func (o *Observation) Timestamp() time.Time { return o.RecordedAt }
func (o *Observation) Coordinates() (float64, float64, bool) {
	return o.Location.Lon, o.Location.Lat, true
}

// Event is the v2 equivalent of GeoEvent.
type Event struct {
	GundiID        string         `json:"gundi_id"`
	RelatedTo      string         `json:"related_to,omitempty"`
	DataProviderID string         `json:"data_provider_id"`
	SourceID       string         `json:"source_id"`
	Title          string         `json:"title,omitempty"`
	EventType      string         `json:"event_type"`
	RecordedAt     time.Time      `json:"recorded_at"`
	Location       *Location      `json:"location,omitempty"`
	EventDetails   map[string]any `json:"event_details,omitempty"`
}

func (e *Event) Kind() StreamType { return StreamEvent }
func (e *Event) EventID() string  { return e.GundiID }
func (e *Event) Source() (string, string) {
	return e.SourceID, e.DataProviderID
}
func (e *Event) Timestamp() time.Time { return e.RecordedAt }
func (e *Event) Coordinates() (float64, float64, bool) {
	if e.Location == nil {
		return 0, 0, false
	}
	return e.Location.Lon, e.Location.Lat, true
}

// EventUpdate carries a partial change-set against a previously delivered
// event rather than a full document.
type EventUpdate struct {
	GundiID        string         `json:"gundi_id"`
	RelatedTo      string         `json:"related_to,omitempty"`
	DataProviderID string         `json:"data_provider_id"`
	SourceID       string         `json:"source_id"`
	Changes        map[string]any `json:"changes"`
}

func (u *EventUpdate) Kind() StreamType { return StreamEventUpdate }
func (u *EventUpdate) EventID() string  { return u.GundiID }
func (u *EventUpdate) Source() (string, string) {
	return u.SourceID, u.DataProviderID
}

// Attachment is the v2 equivalent of CameraTrap: a file reference attached
// to another observation.
type Attachment struct {
	GundiID        string `json:"gundi_id"`
	RelatedTo      string `json:"related_to,omitempty"`
	DataProviderID string `json:"data_provider_id"`
	SourceID       string `json:"source_id"`
	FilePath       string `json:"file_path"`
}

func (a *Attachment) Kind() StreamType { return StreamAttachment }
func (a *Attachment) EventID() string  { return a.GundiID }
func (a *Attachment) Source() (string, string) {
	return a.SourceID, a.DataProviderID
}
