package transform

import (
	"strings"

	"github.com/google/uuid"
)

// ExtractCAUUID pulls a conservation-area UUID prefix out of an event type.
// The event type is split on "_", every token that parses as a UUID is
// stripped, and the first match is returned. The second return value is the
// event type with UUID tokens removed, which is what category resolution
// operates on.
func ExtractCAUUID(eventType string) (caUUID, stripped string) {
	tokens := strings.Split(eventType, "_")
	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, err := uuid.Parse(token); err == nil {
			if caUUID == "" {
				caUUID = strings.ToLower(token)
			}
			continue
		}
		kept = append(kept, token)
	}
	return caUUID, strings.Join(kept, "_")
}
