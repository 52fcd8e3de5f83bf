package rules_test

import (
	"testing"

	"fieldrouter/internal/rules"
)

func TestFieldMappingRuleApply(t *testing.T) {
	tests := []struct {
		name     string
		rule     rules.FieldMappingRule
		doc      map[string]any
		original map[string]any
		want     any
		wantSet  bool
	}{
		{
			name:    "constant rule sets default unconditionally",
			rule:    rules.FieldMappingRule{Target: "source_type", Default: "tracking-device"},
			doc:     map[string]any{},
			want:    "tracking-device",
			wantSet: true,
		},
		{
			name:    "copies value from transformed document",
			rule:    rules.FieldMappingRule{Target: "name", Source: "subject_name"},
			doc:     map[string]any{"subject_name": "elephant-07"},
			want:    "elephant-07",
			wantSet: true,
		},
		{
			name:     "falls back to original document",
			rule:     rules.FieldMappingRule{Target: "device", Source: "device_id"},
			doc:      map[string]any{},
			original: map[string]any{"device_id": "collar-9"},
			want:     "collar-9",
			wantSet:  true,
		},
		{
			name:    "transformed document wins over original",
			rule:    rules.FieldMappingRule{Target: "out", Source: "kind"},
			doc:     map[string]any{"kind": "new"},
			original: map[string]any{"kind": "old"},
			want:    "new",
			wantSet: true,
		},
		{
			name: "map table translates the extracted value",
			rule: rules.FieldMappingRule{
				Target: "priority",
				Source: "severity",
				Map:    map[string]string{"high": "red", "low": "green"},
			},
			doc:     map[string]any{"severity": "high"},
			want:    "red",
			wantSet: true,
		},
		{
			name: "map table falls back to default for unknown values",
			rule: rules.FieldMappingRule{
				Target:  "priority",
				Source:  "severity",
				Map:     map[string]string{"high": "red"},
				Default: "amber",
			},
			doc:     map[string]any{"severity": "medium"},
			want:    "amber",
			wantSet: true,
		},
		{
			name:    "missing source without map leaves target unset",
			rule:    rules.FieldMappingRule{Target: "missing", Source: "nope"},
			doc:     map[string]any{},
			wantSet: false,
		},
		{
			name:    "empty target is a no-op",
			rule:    rules.FieldMappingRule{Source: "severity"},
			doc:     map[string]any{"severity": "high"},
			wantSet: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.rule.Apply(tt.doc, tt.original)
			got, ok := tt.doc[tt.rule.Target]
			if ok != tt.wantSet {
				t.Fatalf("target set = %v, want %v", ok, tt.wantSet)
			}
			if tt.wantSet && got != tt.want {
				t.Errorf("target = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractDottedPath(t *testing.T) {
	doc := map[string]any{
		"Location": map[string]any{
			"lat": -1.28,
			"lon": 36.81,
		},
		"event_details": map[string]any{
			"species": "leopard",
		},
	}

	tests := []struct {
		path  string
		want  any
		found bool
	}{
		{"location.lat", -1.28, true},
		{"Event_Details.Species", "leopard", true},
		{"location.alt", nil, false},
		{"location.lat.deeper", nil, false},
		{"", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, found := rules.Extract(doc, tt.path)
			if found != tt.found {
				t.Fatalf("Extract(%q) found = %v, want %v", tt.path, found, tt.found)
			}
			if found && got != tt.want {
				t.Errorf("Extract(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestApplyAllLaterRulesOverride(t *testing.T) {
	doc := map[string]any{}
	rules.ApplyAll([]rules.FieldMappingRule{
		{Target: "kind", Default: "first"},
		{Target: "kind", Default: "second"},
	}, doc, nil)

	if doc["kind"] != "second" {
		t.Errorf("kind = %v, want second", doc["kind"])
	}
}
