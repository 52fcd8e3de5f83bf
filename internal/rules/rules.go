// Package rules implements the generic field-mapping rule evaluator. Rules
// are the only generic extensibility point of the transformation engine: new
// per-destination behavior is expressed as rule lists on a route, not code,
// wherever possible.
package rules

import "strings"

// FieldMappingRule sets one field of a transformed document.
//
//   - An empty Source makes it a constant rule: Target is set to Default
//     unconditionally.
//   - Otherwise the value is extracted by walking Source as a dotted,
//     case-insensitive path through the transformed document, falling back to
//     the original document; missing intermediate keys yield no value.
//   - With a Map table present, the extracted value selects an entry, with
//     Default as the fallback. Without one the extracted value is copied.
type FieldMappingRule struct {
	Target  string            `json:"target"`
	Source  string            `json:"source,omitempty"`
	Map     map[string]string `json:"map,omitempty"`
	Default any               `json:"default,omitempty"`
}

// Apply mutates doc according to the rule. original is the source document
// the observation was decoded from; it is consulted when the path is not
// present in doc. Rules are applied in route order, so later rules can
// override earlier ones.
func (r FieldMappingRule) Apply(doc, original map[string]any) {
	if r.Target == "" {
		return
	}
	if r.Source == "" {
		doc[r.Target] = r.Default
		return
	}

	value, found := Extract(doc, r.Source)
	if !found {
		value, found = Extract(original, r.Source)
	}

	if r.Map != nil {
		key, _ := value.(string)
		if mapped, ok := r.Map[key]; found && ok {
			doc[r.Target] = mapped
		} else {
			doc[r.Target] = r.Default
		}
		return
	}

	if found {
		doc[r.Target] = value
	}
}

// ApplyAll runs every rule in order against doc.
func ApplyAll(ruleSet []FieldMappingRule, doc, original map[string]any) {
	for _, rule := range ruleSet {
		rule.Apply(doc, original)
	}
}

// Extract walks a dotted path through nested maps, matching keys
// case-insensitively. The boolean is false when any segment is missing or a
// non-map value is reached before the final segment.
func Extract(doc map[string]any, path string) (any, bool) {
	if doc == nil || path == "" {
		return nil, false
	}

	segments := strings.Split(path, ".")
	var current any = doc
	for _, segment := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		value, ok := lookupFold(m, segment)
		if !ok {
			return nil, false
		}
		current = value
	}
	return current, true
}

func lookupFold(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
