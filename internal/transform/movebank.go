package transform

import (
	"context"
	"fmt"

	"fieldrouter/internal/logger"
	"fieldrouter/internal/models"
)

// recordedAtLayout is the tag-tracking destination's fixed timestamp format:
// UTC ISO-8601 to whole seconds.
const recordedAtLayout = "2006-01-02T15:04:05Z"

// Movebank encodes positions for the tag-tracking destination. The tag id
// is a manufacturer/device/integration composite so the destination can
// group fixes per physical tag across providers.
type Movebank struct{}

func (m *Movebank) Transform(_ context.Context, payload models.Payload, tc Context) (map[string]any, error) {
	ts, ok := payload.(models.Timestamped)
	if !ok {
		return nil, nil
	}
	loc, ok := payload.(models.Locatable)
	if !ok {
		return nil, nil
	}

	deviceID, integrationID := payload.Source()
	lon, lat, hasLoc := loc.Coordinates()
	if !hasLoc || (lon == 0 && lat == 0) {
		log := logger.WithComponent("transform.movebank")
		log.Warn().
			Str("device_id", deviceID).
			Str("integration_id", integrationID).
			Msg("position without usable coordinates")
	}

	manufacturer := tc.ProviderKey
	if manufacturer == "" {
		manufacturer = "unknown"
	}

	return map[string]any{
		"recorded_at":           ts.Timestamp().UTC().Format(recordedAtLayout),
		"tag_id":                fmt.Sprintf("%s.%s.%s", manufacturer, deviceID, integrationID),
		"lon":                   lon,
		"lat":                   lat,
		"sensor_type":           "GPS",
		"tag_manufacturer_name": manufacturer,
		"gundi_urn":             GundiURN(tc.Version, integrationID, deviceID),
	}, nil
}

// GundiURN builds the provenance URN attached to tag-tracking documents.
func GundiURN(version models.SchemaVersion, integrationID, deviceID string) string {
	return fmt.Sprintf("urn:gundi:%s.intsrc.%s.%s", version, integrationID, deviceID)
}
