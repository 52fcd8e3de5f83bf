package transform

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"fieldrouter/internal/errs"
	"fieldrouter/internal/logger"
	"fieldrouter/internal/models"
	"fieldrouter/internal/refdata"
)

// smartDateTimeLayout is the destination's fixed local-time format.
const smartDateTimeLayout = "2006-01-02T15:04:05"

// Smart encodes events and patrols as conservation-incident features for a
// SMART Connect destination.
type Smart struct {
	store  *refdata.Store
	client SmartClient
	tz     TimezoneResolver
}

// NewSmart builds the conservation-incident encoder. store caches the
// downloaded data models; client may be nil, in which case the built-in
// fallback model is used everywhere.
func NewSmart(store *refdata.Store, client SmartClient, tz TimezoneResolver) *Smart {
	return &Smart{store: store, client: client, tz: tz}
}

func (s *Smart) Transform(ctx context.Context, payload models.Payload, tc Context) (map[string]any, error) {
	switch p := payload.(type) {
	case *models.GeoEvent:
		return s.transformEvent(ctx, p.Title, p.EventType, p.RecordedAt, p.Location, p.EventDetails, tc.Destination)
	case *models.Event:
		return s.transformEvent(ctx, p.Title, p.EventType, p.RecordedAt, p.Location, p.EventDetails, tc.Destination)
	case *models.ERPatrol:
		return s.transformPatrol(ctx, p, tc.Destination)
	default:
		return nil, nil
	}
}

func (s *Smart) transformEvent(
	ctx context.Context,
	title, eventType string, recordedAt time.Time,
	location *models.Location, details map[string]any,
	dest *models.Destination,
) (map[string]any, error) {
	caUUID, strippedType := ExtractCAUUID(eventType)
	if caUUID == "" {
		caUUID = dest.StringOption("ca_uuid")
	}

	dm, err := s.dataModel(ctx, dest, caUUID)
	if err != nil {
		return nil, err
	}

	category, ok := s.resolveCategory(dm, strippedType, dest)
	if !ok {
		log := logger.WithComponent("transform.smart")
		log.Info().
			Str("event_type", strippedType).
			Str("destination_id", dest.ID).
			Msg("no category for event type, skipping destination")
		return nil, nil
	}

	waypoint := s.waypoint(category, title, recordedAt, location, details, dm, dest)
	return waypoint, nil
}

// waypoint assembles the GeoJSON-like incident feature.
func (s *Smart) waypoint(
	category, comment string, recordedAt time.Time,
	location *models.Location, details map[string]any,
	dm *DataModel, dest *models.Destination,
) map[string]any {
	// Coordinates default to [0,0] when the event carries no location.
	var lon, lat float64
	if location != nil {
		lon, lat = location.Lon, location.Lat
	}

	local := localize(recordedAt, lon, lat, dest.StringOption("timezone"), s.tz)
	attributes := s.resolveAttributes(dm, details, dest)

	return map[string]any{
		"type": "Feature",
		"geometry": map[string]any{
			"type":        "Point",
			"coordinates": []float64{lon, lat},
		},
		"properties": map[string]any{
			"dateTime":         local.Format(smartDateTimeLayout),
			"smartDataType":    "incident",
			"smartFeatureType": "waypoint/new",
			"smartAttributes": map[string]any{
				"comment": comment,
				"observationGroups": []any{
					map[string]any{
						"observations": []any{
							map[string]any{
								"category":   category,
								"attributes": attributes,
							},
						},
					},
				},
			},
		},
	}
}

// transformPatrol builds one patrol request per segment. All events across
// the patrol must agree on the conservation area; the segment leader's
// configured UUID is the fallback when no event carries one.
func (s *Smart) transformPatrol(ctx context.Context, p *models.ERPatrol, dest *models.Destination) (map[string]any, error) {
	seen := map[string]struct{}{}
	for _, seg := range p.Segments {
		for _, ev := range seg.Events {
			if u, _ := ExtractCAUUID(ev.EventType); u != "" {
				seen[u] = struct{}{}
			}
		}
	}
	if len(seen) > 1 {
		uuids := make([]string, 0, len(seen))
		for u := range seen {
			uuids = append(uuids, u)
		}
		sort.Strings(uuids)
		return nil, &errs.CAConflictError{UUIDs: uuids}
	}

	var caUUID string
	for u := range seen {
		caUUID = u
	}
	if caUUID == "" {
		for _, seg := range p.Segments {
			if seg.Leader != nil && seg.Leader.CAUUID != "" {
				caUUID = strings.ToLower(seg.Leader.CAUUID)
				break
			}
		}
	}
	if caUUID == "" {
		return nil, &errs.IndeterminableCAError{PatrolID: p.ID}
	}

	dm, err := s.dataModel(ctx, dest, caUUID)
	if err != nil {
		return nil, err
	}

	requests := make([]any, 0, len(p.Segments))
	for _, seg := range p.Segments {
		waypoints := make([]any, 0, len(seg.Events))
		for _, ev := range seg.Events {
			_, strippedType := ExtractCAUUID(ev.EventType)
			category, ok := s.resolveCategory(dm, strippedType, dest)
			if !ok {
				log := logger.WithComponent("transform.smart")
				log.Info().
					Str("event_type", strippedType).
					Str("patrol_id", p.ID).
					Msg("no category for patrol event, dropping waypoint")
				continue
			}
			waypoints = append(waypoints,
				s.waypoint(category, ev.Title, ev.RecordedAt, ev.Location, ev.EventDetails, dm, dest))
		}

		patrol := map[string]any{
			"id":        seg.ID,
			"objective": p.Objective,
			"startDate": seg.StartTime.UTC().Format(smartDateTimeLayout),
		}
		if seg.Leader != nil {
			patrol["leader"] = seg.Leader.Name
		}
		if seg.EndTime != nil {
			patrol["endDate"] = seg.EndTime.UTC().Format(smartDateTimeLayout)
		}
		requests = append(requests, map[string]any{
			"patrol":    patrol,
			"waypoints": waypoints,
		})
	}

	return map[string]any{"patrol_requests": requests}, nil
}

// resolveCategory walks the resolution chain: data model (exact, then
// dotted), then the destination's configured category map.
func (s *Smart) resolveCategory(dm *DataModel, eventType string, dest *models.Destination) (string, bool) {
	if category, ok := dm.CategoryForEventType(eventType); ok {
		return category, true
	}
	if categoryMap := dest.MapOption("category_map"); categoryMap != nil {
		if mapped, ok := categoryMap[eventType].(string); ok && mapped != "" {
			return mapped, true
		}
	}
	return "", false
}

// resolveAttributes filters event details through the data model's
// attribute dictionary, then the configured attribute map. Unknown keys are
// dropped with a warning. Single-element list values are unwrapped first.
func (s *Smart) resolveAttributes(dm *DataModel, details map[string]any, dest *models.Destination) map[string]any {
	log := logger.WithComponent("transform.smart")
	attributeMap := dest.MapOption("attribute_map")

	out := map[string]any{}
	for key, value := range details {
		if list, ok := value.([]any); ok && len(list) == 1 {
			value = list[0]
		}

		if dm.HasAttribute(key) {
			out[key] = value
			continue
		}

		mapping, ok := attributeMap[key].(map[string]any)
		if !ok {
			log.Warn().
				Str("attribute", key).
				Str("destination_id", dest.ID).
				Msg("no mapping for event detail, dropping")
			continue
		}

		target, _ := mapping["key"].(string)
		if target == "" {
			target = key
		}
		if options, ok := mapping["options"].(map[string]any); ok {
			if mapped, ok := options[fmt.Sprint(value)]; ok {
				value = mapped
			} else {
				value = mapping["default"]
			}
		}
		out[target] = value
	}
	return out
}

// dataModel resolves the cached Data Model of a conservation area, falling
// back to the built-in minimal model when the destination's format version
// predates data-model support or no area/client is available.
func (s *Smart) dataModel(ctx context.Context, dest *models.Destination, caUUID string) (*DataModel, error) {
	if s.client == nil || caUUID == "" || !supportsDataModel(dest.StringOption("version")) {
		return fallbackDataModel, nil
	}

	key := fmt.Sprintf("smart_datamodel.%s.%s", dest.ID, caUUID)
	dm, err := refdata.GetOrFetch(ctx, s.store, "smart_datamodel", key, func(ctx context.Context) (*DataModel, error) {
		return s.client.DataModel(ctx, dest.Endpoint, dest.Token, caUUID)
	})
	if err != nil {
		return nil, &errs.ReferenceDataError{Entity: "smart_datamodel", Key: key, Err: err}
	}
	return dm, nil
}
