package models

import (
	"fmt"

	"fieldrouter/internal/rules"
)

// Destination type slugs select a transformer family.
const (
	DestEarthRanger  = "earth_ranger"
	DestSmartConnect = "smart_connect"
	DestMovebank     = "movebank"
	DestWPSWatch     = "wps_watch"
)

// Supported broker selection for destination delivery. Anything else in
// additional["broker"] is a configuration error for the whole envelope.
const BrokerPubSub = "pubsub"

// Provider describes the data provider side of a connection.
type Provider struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Type  string `json:"type,omitempty"`
	Owner string `json:"owner,omitempty"`
}

// Ref is a lightweight reference to another entity.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Connection is the v2 routing entity linking a data provider to its
// configured destinations through a default route.
type Connection struct {
	ID           string   `json:"id"`
	Provider     Provider `json:"provider"`
	Destinations []Ref    `json:"destinations"`
	DefaultRoute Ref      `json:"default_route"`
	Status       string   `json:"status,omitempty"`
}

// ProviderKey is the slug attached to every dispatch so downstream
// dispatchers can attribute the data to its provider.
func (c *Connection) ProviderKey() string {
	if c.Provider.Type != "" {
		return c.Provider.Type
	}
	return c.Provider.ID
}

// RouteConfiguration holds the ordered rule specs applied to every
// transformed document regardless of which destination receives it.
type RouteConfiguration struct {
	ID    string                   `json:"id"`
	Name  string                   `json:"name,omitempty"`
	Rules []rules.FieldMappingRule `json:"rules,omitempty"`
}

// Route is the transformation-rule set attached to a connection.
type Route struct {
	ID            string             `json:"id"`
	Name          string             `json:"name,omitempty"`
	Configuration RouteConfiguration `json:"configuration"`
}

// Destination is a configured downstream system: v2 calls it a destination
// integration, v1 an outbound configuration. The shapes are unified here.
// Additional holds broker selection, topic name and destination-specific
// settings (conservation area id, timezone, attribute maps, format version).
type Destination struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	TypeSlug   string         `json:"type_slug"`
	Endpoint   string         `json:"endpoint,omitempty"`
	Login      string         `json:"login,omitempty"`
	Password   string         `json:"password,omitempty"`
	Token      string         `json:"token,omitempty"`
	Additional map[string]any `json:"additional,omitempty"`
}

// Broker returns the broker selection, defaulting to the supported one when
// the setting is absent.
func (d *Destination) Broker() string {
	if v := d.StringOption("broker"); v != "" {
		return v
	}
	return BrokerPubSub
}

// Topic returns the configured topic name, or the deterministic default for
// the given environment when none is configured.
func (d *Destination) Topic(env string) string {
	if v := d.StringOption("topic"); v != "" {
		return v
	}
	return fmt.Sprintf("destination-%s-%s", d.ID, env)
}

// StringOption reads a string value from Additional.
func (d *Destination) StringOption(key string) string {
	v, _ := d.Additional[key].(string)
	return v
}

// MapOption reads a nested map value from Additional.
func (d *Destination) MapOption(key string) map[string]any {
	v, _ := d.Additional[key].(map[string]any)
	return v
}

// Device is the v1 reference entity used to backfill missing fields on an
// observation before transformation.
type Device struct {
	ID            string    `json:"id"`
	ExternalID    string    `json:"external_id"`
	IntegrationID string    `json:"integration_id"`
	Name          string    `json:"name,omitempty"`
	SubjectType   string    `json:"subject_type,omitempty"`
	Location      *Location `json:"location,omitempty"`
}

// BlankDevice synthesizes a placeholder so pipeline processing can proceed
// when the device lookup fails. Device enrichment is best-effort and must
// not block delivery of an otherwise-valid observation.
func BlankDevice(integrationID, deviceID string) *Device {
	return &Device{
		ExternalID:    deviceID,
		IntegrationID: integrationID,
	}
}

// Blank reports whether the device is a synthesized placeholder.
func (d *Device) Blank() bool { return d.ID == "" }

// Integration describes an inbound integration (v1): the system that
// produced the observation. Its type slug doubles as the v1 provider key.
type Integration struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	TypeSlug string `json:"type_slug,omitempty"`
}
