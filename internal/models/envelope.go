package models

import (
	"time"
)

// Schema generations supported by the pipeline. Anything else is discarded
// to the dead-letter channel without processing.
type SchemaVersion string

const (
	SchemaV1 SchemaVersion = "v1"
	SchemaV2 SchemaVersion = "v2"
)

// Well-known envelope attribute keys. Attributes carry routing hints and
// opaque trace-propagation values; the pipeline reads the keys below and
// forwards everything else untouched.
const (
	AttrGundiVersion     = "gundi_version"
	AttrObservationType  = "observation_type"
	AttrGundiID          = "gundi_id"
	AttrDeviceID         = "device_id"
	AttrIntegrationID    = "integration_id"
	AttrOutboundConfigID = "outbound_config_id"
	AttrDestinationID    = "destination_id"
	AttrProviderKey      = "provider_key"
	AttrIngestedAt       = "ingested_at"
	AttrDeadLetterReason = "dead_letter_reason"
)

// Envelope is the raw inbound message: payload bytes plus string attributes.
// Immutable once received; the pipeline never mutates it, only re-wraps it
// for retry or dead-letter.
type Envelope struct {
	Payload    []byte            `json:"payload"`
	Attributes map[string]string `json:"attributes"`

	// ReceivedAt is when this process first saw the envelope; used as the
	// age fallback when no ingestion timestamp attribute is present.
	ReceivedAt time.Time `json:"received_at"`
}

// NewEnvelope wraps a payload and its attributes.
func NewEnvelope(payload []byte, attributes map[string]string) *Envelope {
	if attributes == nil {
		attributes = map[string]string{}
	}
	return &Envelope{
		Payload:    payload,
		Attributes: attributes,
		ReceivedAt: time.Now().UTC(),
	}
}

// Attr returns the named attribute or the empty string.
func (e *Envelope) Attr(key string) string {
	return e.Attributes[key]
}

// Version detects the schema generation from the attributes. A missing
// gundi_version attribute means v1 (the attribute was introduced with v2).
// The boolean is false for versions this pipeline does not support.
func (e *Envelope) Version() (SchemaVersion, bool) {
	switch e.Attr(AttrGundiVersion) {
	case "", string(SchemaV1):
		return SchemaV1, true
	case string(SchemaV2):
		return SchemaV2, true
	default:
		return SchemaVersion(e.Attr(AttrGundiVersion)), false
	}
}

// IngestedAt returns the upstream ingestion timestamp, falling back to the
// local receive time when the attribute is absent or unparseable.
func (e *Envelope) IngestedAt() time.Time {
	if raw := e.Attr(AttrIngestedAt); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts.UTC()
		}
	}
	return e.ReceivedAt
}

// Age returns how long ago the envelope was ingested upstream.
func (e *Envelope) Age(now time.Time) time.Duration {
	return now.Sub(e.IngestedAt())
}
