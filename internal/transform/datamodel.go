package transform

import (
	"context"
	"strconv"
	"strings"
)

// DataModel is the category taxonomy and attribute dictionary of one
// conservation area, fetched from the destination system and cached.
type DataModel struct {
	Categories []Category             `json:"categories"`
	Attributes map[string]DMAttribute `json:"attributes"`
}

// Category is one node of the taxonomy, addressed by a dotted path.
type Category struct {
	Path    string `json:"path"`
	Display string `json:"display,omitempty"`
}

// DMAttribute describes one attribute the destination accepts.
type DMAttribute struct {
	Key     string     `json:"key"`
	Type    string     `json:"type,omitempty"`
	Options []DMOption `json:"options,omitempty"`
}

// DMOption is one allowed value of a list-typed attribute.
type DMOption struct {
	Key     string `json:"key"`
	Display string `json:"display,omitempty"`
}

// SmartClient downloads conservation-area metadata from the destination
// system. The HTTP implementation lives with the destination client suite;
// tests use fakes.
type SmartClient interface {
	DataModel(ctx context.Context, endpoint, token, caUUID string) (*DataModel, error)
}

// CategoryForEventType resolves a category path for an event type: exact
// match first, then with underscores replaced by the destination's dotted
// path syntax. ok is false when the taxonomy has no such category.
func (dm *DataModel) CategoryForEventType(eventType string) (string, bool) {
	for _, c := range dm.Categories {
		if c.Path == eventType {
			return c.Path, true
		}
	}
	dotted := strings.ReplaceAll(eventType, "_", ".")
	for _, c := range dm.Categories {
		if c.Path == dotted {
			return c.Path, true
		}
	}
	return "", false
}

// HasAttribute reports whether the attribute dictionary knows the key.
func (dm *DataModel) HasAttribute(key string) bool {
	_, ok := dm.Attributes[key]
	return ok
}

// fallbackDataModel is the minimal built-in model used for destination
// format versions that predate data-model support. It carries no taxonomy,
// so category resolution relies entirely on the configured category map.
var fallbackDataModel = &DataModel{Attributes: map[string]DMAttribute{}}

// dataModelMinVersion is the first destination format version that serves a
// downloadable data model.
const dataModelMinVersion = 7.5

// supportsDataModel parses the destination's configured format version
// ("7.5", "7.5.3", ...) and compares its major.minor part against the
// cutoff. Unparseable or missing versions are treated as current.
func supportsDataModel(version string) bool {
	if version == "" {
		return true
	}
	parts := strings.SplitN(version, ".", 3)
	numeric := parts[0]
	if len(parts) > 1 {
		numeric = parts[0] + "." + parts[1]
	}
	v, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return true
	}
	return v >= dataModelMinVersion
}
