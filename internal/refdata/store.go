package refdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"fieldrouter/internal/cache"
	"fieldrouter/internal/errs"
	"fieldrouter/internal/logger"
	"fieldrouter/internal/metrics"
	"fieldrouter/internal/models"
)

// Store is the read-through cache in front of the reference-data service.
//
// Cache keys are deterministic, namespaced strings derived from the entity
// type and its natural ids. Empty lookup results are never cached, so a
// transient not-found cannot stick. Cache I/O failures are logged and
// treated as a miss; the fetch path is always attempted as a fallback.
// Entries expire passively, there is no invalidation path.
type Store struct {
	backend cache.Backend
	client  Client
	ttl     time.Duration
}

// NewStore wires a Store over a cache backend and the service client.
func NewStore(backend cache.Backend, client Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{backend: backend, client: client, ttl: ttl}
}

// GetOrFetch resolves one entity through the cache. fetch is invoked on a
// miss; a nil result (ErrNotFound) is returned as ErrNotFound and never
// cached. Exported so other packages (the incident transformer's data-model
// lookup) can share the cache discipline with their own fetchers.
func GetOrFetch[T any](ctx context.Context, s *Store, entity, key string, fetch func(context.Context) (*T, error)) (*T, error) {
	log := logger.WithComponent("refdata")

	if data, err := s.backend.Get(ctx, key); err == nil {
		out := new(T)
		if err := json.Unmarshal(data, out); err == nil {
			metrics.CacheHits.WithLabelValues(entity).Inc()
			return out, nil
		}
		// Undecodable entry: fall through to a fresh fetch and overwrite.
		log.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	} else if !errors.Is(err, cache.ErrMiss) {
		metrics.CacheErrors.WithLabelValues(entity).Inc()
		log.Warn().Err(err).Str("key", key).Msg("cache read failed, falling back to fetch")
	}
	metrics.CacheMisses.WithLabelValues(entity).Inc()

	out, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}

	if data, err := json.Marshal(out); err == nil {
		if err := s.backend.SetEx(ctx, key, s.ttl, data); err != nil {
			metrics.CacheErrors.WithLabelValues(entity).Inc()
			log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return out, nil
}

// Connection resolves a v2 connection. Absence is a ReferenceDataError: the
// pipeline cannot route without it.
func (s *Store) Connection(ctx context.Context, id string) (*models.Connection, error) {
	key := "connection_detail." + id
	conn, err := GetOrFetch(ctx, s, "connection", key, func(ctx context.Context) (*models.Connection, error) {
		return s.client.Connection(ctx, id)
	})
	if err != nil {
		return nil, &errs.ReferenceDataError{Entity: "connection", Key: id, Err: err}
	}
	return conn, nil
}

// Route resolves the rule configuration attached to a connection.
func (s *Store) Route(ctx context.Context, id string) (*models.Route, error) {
	key := "route_detail." + id
	route, err := GetOrFetch(ctx, s, "route", key, func(ctx context.Context) (*models.Route, error) {
		return s.client.Route(ctx, id)
	})
	if err != nil {
		return nil, &errs.ReferenceDataError{Entity: "route", Key: id, Err: err}
	}
	return route, nil
}

// Destination resolves the full configuration of one configured destination.
func (s *Store) Destination(ctx context.Context, id string) (*models.Destination, error) {
	key := "outbound_detail." + id
	dest, err := GetOrFetch(ctx, s, "destination", key, func(ctx context.Context) (*models.Destination, error) {
		return s.client.Destination(ctx, id)
	})
	if err != nil {
		return nil, &errs.ReferenceDataError{Entity: "destination", Key: id, Err: err}
	}
	return dest, nil
}

// Integration resolves an inbound integration (v1 provider key source).
func (s *Store) Integration(ctx context.Context, id string) (*models.Integration, error) {
	key := "integration_detail." + id
	integ, err := GetOrFetch(ctx, s, "integration", key, func(ctx context.Context) (*models.Integration, error) {
		return s.client.Integration(ctx, id)
	})
	if err != nil {
		return nil, &errs.ReferenceDataError{Entity: "integration", Key: id, Err: err}
	}
	return integ, nil
}

// Device resolves a v1 device. This lookup never fails outward: on any
// fetch error a blank placeholder is synthesized, because device enrichment
// is best-effort and must not block delivery.
func (s *Store) Device(ctx context.Context, integrationID, deviceID string) *models.Device {
	key := fmt.Sprintf("device_detail.%s.%s", integrationID, deviceID)
	device, err := GetOrFetch(ctx, s, "device", key, func(ctx context.Context) (*models.Device, error) {
		return s.client.Device(ctx, integrationID, deviceID)
	})
	if err != nil {
		metrics.BlankDevicesTotal.Inc()
		log := logger.WithComponent("refdata")
		log.Warn().
			Err(err).
			Str("integration_id", integrationID).
			Str("device_id", deviceID).
			Msg("device lookup failed, using blank device")
		return models.BlankDevice(integrationID, deviceID)
	}
	return device
}

// OutboundsByDevice resolves the v1 destination list for a device. An empty
// list is a valid result (and is not cached); a lookup failure is a
// ReferenceDataError.
func (s *Store) OutboundsByDevice(ctx context.Context, integrationID, deviceID string) ([]models.Destination, error) {
	key := fmt.Sprintf("outbound_list.%s.%s", integrationID, deviceID)
	list, err := GetOrFetch(ctx, s, "outbound_list", key, func(ctx context.Context) (*[]models.Destination, error) {
		out, err := s.client.OutboundsByDevice(ctx, integrationID, deviceID)
		if err != nil {
			return nil, err
		}
		if len(out) == 0 {
			// Absence of destinations is a configuration state, not an
			// error, and an empty list must not be cached.
			return nil, nil
		}
		return &out, nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &errs.ReferenceDataError{
			Entity: "outbound_list",
			Key:    integrationID + "." + deviceID,
			Err:    err,
		}
	}
	return *list, nil
}
