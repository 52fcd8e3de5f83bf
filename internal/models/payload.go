package models

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// StreamType identifies the payload variant carried by an envelope. The two
// schema generations use disjoint codes, so both share one namespace.
type StreamType string

const (
	// v1 codes
	StreamPosition   StreamType = "ps"
	StreamGeoEvent   StreamType = "ge"
	StreamCameraTrap StreamType = "ct"
	StreamERPatrol   StreamType = "er_patrol"

	// v2 codes
	StreamObservation StreamType = "obv"
	StreamEvent       StreamType = "ev"
	StreamEventUpdate StreamType = "evu"
	StreamAttachment  StreamType = "att"
)

// Payload is the tagged union over the observation/event variants. Every
// variant knows its stream type, its event identity for deduplication, and
// the source/provider pair that owns it.
type Payload interface {
	Kind() StreamType
	// EventID is the globally unique id used for deduplication and as the
	// dispatch ordering key.
	EventID() string
	// Source returns the device/source id and its owning
	// integration/connection id. The two schema generations name these
	// fields differently but they are semantically identical.
	Source() (deviceID, integrationID string)
}

// Timestamped is implemented by variants that carry a recording time.
type Timestamped interface {
	Timestamp() time.Time
}

// Locatable is implemented by variants that may carry coordinates.
// ok is false when the variant has no location at all.
type Locatable interface {
	Coordinates() (lon, lat float64, ok bool)
}

// payloadParsers is the static mapping from stream type to parser, one entry
// per union member. Validated at startup via ValidatePayloadTable.
var payloadParsers = map[StreamType]func([]byte) (Payload, error){
	StreamPosition:    parseAs[Position],
	StreamGeoEvent:    parseAs[GeoEvent],
	StreamCameraTrap:  parseAs[CameraTrap],
	StreamERPatrol:    parseAs[ERPatrol],
	StreamObservation: parseAs[Observation],
	StreamEvent:       parseAs[Event],
	StreamEventUpdate: parseAs[EventUpdate],
	StreamAttachment:  parseAs[Attachment],
}

func parseAs[T any, PT interface {
	*T
	Payload
}](data []byte) (Payload, error) {
	v := PT(new(T))
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	return v, nil
}

// ParsePayload decodes the payload bytes for the given stream type.
func ParsePayload(streamType StreamType, data []byte) (Payload, error) {
	parse, ok := payloadParsers[streamType]
	if !ok {
		return nil, fmt.Errorf("unknown stream type %q", streamType)
	}
	return parse(data)
}

// KnownStreamType reports whether a parser is registered for the code.
func KnownStreamType(streamType StreamType) bool {
	_, ok := payloadParsers[streamType]
	return ok
}

// ValidatePayloadTable checks the parser table covers every declared stream
// type. Called once at process startup.
func ValidatePayloadTable() error {
	for _, st := range []StreamType{
		StreamPosition, StreamGeoEvent, StreamCameraTrap, StreamERPatrol,
		StreamObservation, StreamEvent, StreamEventUpdate, StreamAttachment,
	} {
		if _, ok := payloadParsers[st]; !ok {
			return fmt.Errorf("stream type %q has no registered parser", st)
		}
	}
	return nil
}
