package models

import "time"

// Location is a WGS84 point shared by both schema generations.
type Location struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
	Alt float64 `json:"alt,omitempty"`
}

// Position is a v1 GPS fix from a tracking device.
type Position struct {
	ID            string         `json:"id"`
	DeviceID      string         `json:"device_id"`
	IntegrationID string         `json:"integration_id"`
	Name          string         `json:"name,omitempty"`
	Type          string         `json:"type,omitempty"`
	SubjectType   string         `json:"subject_type,omitempty"`
	RecordedAt    time.Time      `json:"recorded_at"`
	Location      Location       `json:"location"`
	Additional    map[string]any `json:"additional,omitempty"`
}

func (p *Position) Kind() StreamType { return StreamPosition }
func (p *Position) EventID() string  { return p.ID }
func (p *Position) Source() (string, string) {
	return p.DeviceID, p.IntegrationID
}
func (p *Position) Timestamp() time.Time { return p.RecordedAt }
func (p *Position) Coordinates() (float64, float64, bool) {
	return p.Location.Lon, p.Location.Lat, true
}

// GeoEvent is a v1 observed incident or sighting with free-form details.
type GeoEvent struct {
	ID            string         `json:"id"`
	DeviceID      string         `json:"device_id"`
	IntegrationID string         `json:"integration_id"`
	Title         string         `json:"title,omitempty"`
	EventType     string         `json:"event_type"`
	RecordedAt    time.Time      `json:"recorded_at"`
	Location      *Location      `json:"location,omitempty"`
	EventDetails  map[string]any `json:"event_details,omitempty"`
}

func (g *GeoEvent) Kind() StreamType { return StreamGeoEvent }
func (g *GeoEvent) EventID() string  { return g.ID }
func (g *GeoEvent) Source() (string, string) {
	return g.DeviceID, g.IntegrationID
}
func (g *GeoEvent) Timestamp() time.Time { return g.RecordedAt }
func (g *GeoEvent) Coordinates() (float64, float64, bool) {
	if g.Location == nil {
		return 0, 0, false
	}
	return g.Location.Lon, g.Location.Lat, true
}

// CameraTrap is a v1 camera-trap capture. The file is a reference into blob
// storage; retrieval happens outside this pipeline.
type CameraTrap struct {
	ID            string    `json:"id"`
	DeviceID      string    `json:"device_id"`
	IntegrationID string    `json:"integration_id"`
	CameraName    string    `json:"camera_name,omitempty"`
	File          string    `json:"file"`
	RecordedAt    time.Time `json:"recorded_at"`
	Location      *Location `json:"location,omitempty"`
}

func (c *CameraTrap) Kind() StreamType { return StreamCameraTrap }
func (c *CameraTrap) EventID() string  { return c.ID }
func (c *CameraTrap) Source() (string, string) {
	return c.DeviceID, c.IntegrationID
}
func (c *CameraTrap) Timestamp() time.Time { return c.RecordedAt }
func (c *CameraTrap) Coordinates() (float64, float64, bool) {
	if c.Location == nil {
		return 0, 0, false
	}
	return c.Location.Lon, c.Location.Lat, true
}

// ERPatrol is a v1 patrol aggregate: an ordered set of segments, each with a
// leader and the events recorded during the segment.
type ERPatrol struct {
	ID            string          `json:"id"`
	SerialNumber  int             `json:"serial_number,omitempty"`
	Title         string          `json:"title,omitempty"`
	DeviceID      string          `json:"device_id"`
	IntegrationID string          `json:"integration_id"`
	Objective     string          `json:"objective,omitempty"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       *time.Time      `json:"end_time,omitempty"`
	Segments      []PatrolSegment `json:"segments"`
}

// PatrolSegment is one leg of a patrol.
type PatrolSegment struct {
	ID            string        `json:"id"`
	Leader        *PatrolLeader `json:"leader,omitempty"`
	StartLocation *Location     `json:"start_location,omitempty"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       *time.Time    `json:"end_time,omitempty"`
	Events        []GeoEvent    `json:"events,omitempty"`
}

// PatrolLeader identifies the ranger leading a segment. CAUUID is the
// conservation area fallback used when none of the segment's events carries
// one in its event type.
type PatrolLeader struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	CAUUID string `json:"ca_uuid,omitempty"`
}

func (p *ERPatrol) Kind() StreamType { return StreamERPatrol }
func (p *ERPatrol) EventID() string  { return p.ID }
func (p *ERPatrol) Source() (string, string) {
	return p.DeviceID, p.IntegrationID
}
func (p *ERPatrol) Timestamp() time.Time { return p.StartTime }
func (p *ERPatrol) Coordinates() (float64, float64, bool) {
	for _, seg := range p.Segments {
		if seg.StartLocation != nil {
			return seg.StartLocation.Lon, seg.StartLocation.Lat, true
		}
	}
	return 0, 0, false
}
