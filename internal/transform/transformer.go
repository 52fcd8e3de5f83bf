// Package transform holds the per-destination-type encoders. Each encoder
// turns one observation variant into the wire document a destination
// expects; returning a nil document means "skip this destination for this
// observation" and is never an error.
package transform

import (
	"context"

	json "github.com/goccy/go-json"

	"fieldrouter/internal/errs"
	"fieldrouter/internal/models"
	"fieldrouter/internal/rules"
)

// Context carries the routing material a transformer may need: the resolved
// destination, the route's rule list, the enrichment device (v1) and the
// provider key of the owning connection/integration.
type Context struct {
	Version     models.SchemaVersion
	Destination *models.Destination
	RouteRules  []rules.FieldMappingRule
	Device      *models.Device
	ProviderKey string
}

// Transformer encodes one payload for one destination. A nil document with
// a nil error skips the destination.
type Transformer interface {
	Transform(ctx context.Context, payload models.Payload, tc Context) (map[string]any, error)
}

type registryKey struct {
	stream models.StreamType
	slug   string
}

// Registry is the static table from (stream type, destination type) to
// encoder, built once at startup.
type Registry struct {
	table map[registryKey]Transformer
}

// NewRegistry builds the full encoder table. smart carries its own clients
// (data-model download, timezone resolution) so it is constructed by the
// caller.
func NewRegistry(smart *Smart) *Registry {
	er := &EarthRanger{}
	mb := &Movebank{}
	wps := &AttachmentPassthrough{}

	table := map[registryKey]Transformer{
		// EarthRanger-style generic destination.
		{models.StreamPosition, models.DestEarthRanger}:    er,
		{models.StreamObservation, models.DestEarthRanger}: er,
		{models.StreamGeoEvent, models.DestEarthRanger}:    er,
		{models.StreamEvent, models.DestEarthRanger}:       er,
		{models.StreamEventUpdate, models.DestEarthRanger}: er,
		{models.StreamCameraTrap, models.DestEarthRanger}:  wps,
		{models.StreamAttachment, models.DestEarthRanger}:  wps,

		// Tag-tracking destination.
		{models.StreamPosition, models.DestMovebank}:    mb,
		{models.StreamObservation, models.DestMovebank}: mb,

		// Conservation-incident destination.
		{models.StreamGeoEvent, models.DestSmartConnect}: smart,
		{models.StreamEvent, models.DestSmartConnect}:    smart,
		{models.StreamERPatrol, models.DestSmartConnect}: smart,

		// Image-upload destination.
		{models.StreamCameraTrap, models.DestWPSWatch}: wps,
		{models.StreamAttachment, models.DestWPSWatch}: wps,
	}

	return &Registry{table: table}
}

// Lookup returns the encoder for a stream-type/destination-type pair.
func (r *Registry) Lookup(stream models.StreamType, slug string) (Transformer, error) {
	t, ok := r.table[registryKey{stream, slug}]
	if !ok {
		return nil, &errs.TransformerNotFoundError{
			StreamType:      string(stream),
			DestinationType: slug,
		}
	}
	return t, nil
}

// Validate confirms every registered destination type can encode at least
// one stream type. Called at startup alongside the payload table check.
func (r *Registry) Validate() error {
	for _, slug := range []string{
		models.DestEarthRanger, models.DestMovebank,
		models.DestSmartConnect, models.DestWPSWatch,
	} {
		found := false
		for key := range r.table {
			if key.slug == slug {
				found = true
				break
			}
		}
		if !found {
			return &errs.TransformerNotFoundError{DestinationType: slug}
		}
	}
	return nil
}

// docOf renders a payload into the generic document form the rule engine
// extracts source values from.
func docOf(payload models.Payload) map[string]any {
	data, err := json.Marshal(payload)
	if err != nil {
		return map[string]any{}
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return map[string]any{}
	}
	return doc
}
