// Package pipeline orchestrates the routing of one envelope: version
// detection, deduplication, reference resolution, per-destination
// transformation and dispatch, and the final idempotency mark.
//
// Errors are never swallowed here except the explicitly enumerated soft
// cases (zero destinations, unsupported version, stale message, duplicate).
// Everything else propagates to the transport, which decides between
// redelivery and dead-letter via the errs classification.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"fieldrouter/internal/dedup"
	"fieldrouter/internal/dispatch"
	"fieldrouter/internal/errs"
	"fieldrouter/internal/logger"
	"fieldrouter/internal/metrics"
	"fieldrouter/internal/models"
	"fieldrouter/internal/refdata"
	"fieldrouter/internal/rules"
	"fieldrouter/internal/transform"
)

// Pipeline routes envelopes. Construct once, share across workers; all
// state lives in the injected collaborators.
type Pipeline struct {
	refdata  *refdata.Store
	dedup    *dedup.Store
	registry *transform.Registry
	gateway  *dispatch.Gateway
	maxAge   time.Duration
}

// New wires a Pipeline. maxAge guards against unbounded redelivery storms;
// zero disables the check.
func New(store *refdata.Store, ledger *dedup.Store, registry *transform.Registry, gateway *dispatch.Gateway, maxAge time.Duration) *Pipeline {
	return &Pipeline{
		refdata:  store,
		dedup:    ledger,
		registry: registry,
		gateway:  gateway,
		maxAge:   maxAge,
	}
}

// routing is the reference material resolved for one envelope.
type routing struct {
	destinations []models.Destination
	routeRules   []rules.FieldMappingRule
	device       *models.Device
	providerKey  string
}

// Process runs one envelope through the state machine. A nil return means
// the envelope is fully handled (including the zero-destination case); a
// returned error is classified by the caller.
func (p *Pipeline) Process(ctx context.Context, envelope *models.Envelope) (err error) {
	start := time.Now()
	version, supported := envelope.Version()
	log := logger.WithComponent("pipeline").With().
		Str("version", string(version)).
		Logger()

	defer func() {
		metrics.EnvelopeProcessDuration.Observe(time.Since(start).Seconds())
		metrics.EnvelopesTotal.WithLabelValues(string(version), outcomeOf(err)).Inc()
	}()

	if !supported {
		log.Warn().Msg("unsupported schema version, discarding")
		return &errs.DiscardError{Reason: errs.ReasonUnsupportedVersion}
	}

	if p.maxAge > 0 && envelope.Age(time.Now()) > p.maxAge {
		log.Warn().
			Time("ingested_at", envelope.IngestedAt()).
			Msg("message exceeded maximum age, discarding")
		return &errs.DiscardError{Reason: errs.ReasonTooOld}
	}

	streamType := models.StreamType(envelope.Attr(models.AttrObservationType))
	if !models.KnownStreamType(streamType) {
		return &errs.ValidationError{Reason: fmt.Sprintf("unknown observation type %q", streamType)}
	}

	payload, perr := models.ParsePayload(streamType, envelope.Payload)
	if perr != nil {
		return &errs.ValidationError{Reason: "undecodable payload", Err: perr}
	}

	eventID := payload.EventID()
	if eventID == "" {
		eventID = envelope.Attr(models.AttrGundiID)
	}
	if eventID == "" {
		// Dedup cannot be honored without an identity.
		return &errs.ValidationError{Reason: "payload has no event id"}
	}
	log = log.With().Str("event_id", eventID).Str("observation_type", string(streamType)).Logger()

	if p.dedup.Status(ctx, eventID) == dedup.Processed {
		metrics.DedupHits.Inc()
		log.Info().Msg("event already processed, discarding duplicate")
		return &errs.DiscardError{Reason: errs.ReasonDuplicate}
	}

	var route *routing
	if version == models.SchemaV2 {
		route, err = p.resolveV2(ctx, payload)
	} else {
		route, err = p.resolveV1(ctx, envelope, payload)
	}
	if err != nil {
		log.Error().Err(err).Msg("reference resolution failed")
		return err
	}

	if len(route.destinations) == 0 {
		// A configuration state, not an error: processing ends
		// successfully with zero dispatches.
		log.Warn().Msg("no destinations configured for source")
		p.dedup.MarkProcessed(ctx, eventID)
		return nil
	}

	deviceID, integrationID := payload.Source()
	for i := range route.destinations {
		dest := &route.destinations[i]

		// A single bad destination configuration aborts the whole
		// envelope so it stays visible. Review point: deliberately not
		// softened to per-destination skipping.
		if dest.Broker() != models.BrokerPubSub {
			cfgErr := &errs.ConfigurationError{
				DestinationID: dest.ID,
				Reason:        fmt.Sprintf("unsupported broker %q", dest.Broker()),
			}
			log.Error().Err(cfgErr).Msg("destination misconfigured")
			return cfgErr
		}

		transformer, terr := p.registry.Lookup(streamType, dest.TypeSlug)
		if terr != nil {
			log.Error().Err(terr).Str("destination_id", dest.ID).Msg("no transformer registered")
			return terr
		}

		doc, terr := transformer.Transform(ctx, payload, transform.Context{
			Version:     version,
			Destination: dest,
			RouteRules:  route.routeRules,
			Device:      route.device,
			ProviderKey: route.providerKey,
		})
		if terr != nil {
			log.Error().Err(terr).Str("destination_id", dest.ID).Msg("transform failed")
			return terr
		}
		if doc == nil {
			metrics.TransformSkippedTotal.WithLabelValues(dest.TypeSlug).Inc()
			log.Debug().Str("destination_id", dest.ID).Msg("transformer skipped destination")
			continue
		}

		attributes := map[string]string{
			models.AttrGundiVersion:    string(version),
			models.AttrObservationType: string(streamType),
			models.AttrDestinationID:   dest.ID,
			models.AttrProviderKey:     route.providerKey,
			models.AttrGundiID:         eventID,
			models.AttrDeviceID:        deviceID,
			models.AttrIntegrationID:   integrationID,
		}
		if derr := p.gateway.Publish(ctx, doc, attributes, dest, eventID); derr != nil {
			log.Error().Err(derr).Str("destination_id", dest.ID).Msg("dispatch failed")
			return derr
		}
	}

	p.dedup.MarkProcessed(ctx, eventID)
	log.Info().Int("destinations", len(route.destinations)).Msg("envelope processed")
	return nil
}

// resolveV2 resolves the connection, its default route's rules and the full
// destination configurations. Absence of the connection or route is a
// ReferenceDataError and retryable.
func (p *Pipeline) resolveV2(ctx context.Context, payload models.Payload) (*routing, error) {
	_, providerID := payload.Source()

	conn, err := p.refdata.Connection(ctx, providerID)
	if err != nil {
		return nil, err
	}

	var ruleSet []rules.FieldMappingRule
	if conn.DefaultRoute.ID != "" {
		route, err := p.refdata.Route(ctx, conn.DefaultRoute.ID)
		if err != nil {
			return nil, err
		}
		ruleSet = route.Configuration.Rules
	}

	destinations := make([]models.Destination, 0, len(conn.Destinations))
	for _, ref := range conn.Destinations {
		dest, err := p.refdata.Destination(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		destinations = append(destinations, *dest)
	}

	return &routing{
		destinations: destinations,
		routeRules:   ruleSet,
		providerKey:  conn.ProviderKey(),
	}, nil
}

// resolveV1 resolves the device (blank-tolerant), the inbound integration's
// provider key (best effort) and the destination list, honoring an explicit
// outbound_config_id attribute when present.
func (p *Pipeline) resolveV1(ctx context.Context, envelope *models.Envelope, payload models.Payload) (*routing, error) {
	deviceID, integrationID := payload.Source()

	device := p.refdata.Device(ctx, integrationID, deviceID)

	providerKey := integrationID
	if integ, err := p.refdata.Integration(ctx, integrationID); err == nil && integ.TypeSlug != "" {
		providerKey = integ.TypeSlug
	} else if err != nil {
		log := logger.WithComponent("pipeline")
		log.Warn().
			Err(err).
			Str("integration_id", integrationID).
			Msg("inbound integration lookup failed, using integration id as provider key")
	}

	var destinations []models.Destination
	if outboundID := envelope.Attr(models.AttrOutboundConfigID); outboundID != "" {
		dest, err := p.refdata.Destination(ctx, outboundID)
		if err != nil {
			return nil, err
		}
		destinations = []models.Destination{*dest}
	} else {
		var err error
		destinations, err = p.refdata.OutboundsByDevice(ctx, integrationID, deviceID)
		if err != nil {
			return nil, err
		}
	}

	return &routing{
		destinations: destinations,
		device:       device,
		providerKey:  providerKey,
	}, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "processed"
	case errs.DeadLetter(err):
		return "dead_letter"
	default:
		return "retryable"
	}
}
