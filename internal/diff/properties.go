package diff

import (
	"regexp"
	"strings"

	"github.com/everstacklabs/pimdoc/internal/jsonv"
)

// EmptyMarker is displayed for fields that are present but null.
const EmptyMarker = "—"

// DefaultPriorityFields are shown first, in this order.
var DefaultPriorityFields = []string{"code", "type", "group", "labels"}

// DefaultSkipFields are structural or mostly-default attribute settings that
// add noise to an entity table.
var DefaultSkipFields = []string{
	"group_labels",
	"attributes",
	"decimal_places",
	"default_value",
	"display_time",
	"is_read_only",
	"max_characters",
	"max_file_size",
	"max_items_count",
	"minimum_input_length",
	"number_max",
	"number_min",
	"reference_data_name",
	"validation_rule",
}

var localeKey = regexp.MustCompile(`^[a-z]{2,3}(_[A-Za-z0-9]+)+$`)

// Property is one display row of an entity.
type Property struct {
	Label string
	Value string
}

// Extractor turns catalog entities into ordered display properties.
type Extractor struct {
	Priority []string
	Skip     []string
}

// DefaultExtractor returns an Extractor with the default field lists.
func DefaultExtractor() *Extractor {
	return &Extractor{
		Priority: append([]string(nil), DefaultPriorityFields...),
		Skip:     append([]string(nil), DefaultSkipFields...),
	}
}

// Extract returns the display properties of entity: priority fields first in
// their configured order, then the remaining fields by ascending key.
func (e *Extractor) Extract(entity Entity) []Property {
	obj, ok := jsonv.Object(entity)
	if !ok {
		return []Property{{Label: "value", Value: jsonv.Display(entity)}}
	}

	seen := make(map[string]bool, len(e.Priority)+len(e.Skip))
	props := make([]Property, 0, len(obj))

	for _, field := range e.Priority {
		if seen[field] {
			continue
		}
		seen[field] = true
		v, ok := obj[field]
		if !ok || jsonv.IsNull(v) {
			continue
		}
		props = append(props, Property{Label: field, Value: displayProperty(v)})
	}

	for _, field := range e.Skip {
		seen[field] = true
	}

	for _, key := range jsonv.Keys(obj) {
		if seen[key] {
			continue
		}
		v := obj[key]
		if isNoise(v) {
			continue
		}
		value := EmptyMarker
		if !jsonv.IsNull(v) {
			value = displayProperty(v)
		}
		props = append(props, Property{Label: key, Value: value})
	}

	return props
}

// isNoise reports values that carry no information in a table: false and
// empty collections.
func isNoise(v any) bool {
	if b, ok := jsonv.Bool(v); ok && !b {
		return true
	}
	return jsonv.IsEmpty(v)
}

func displayProperty(v any) string {
	if labels, ok := labelMap(v); ok {
		return joinLabels(labels)
	}
	return jsonv.Display(v)
}

// labelMap reports whether v is an object keyed by locale with string or null
// values.
func labelMap(v any) (map[string]any, bool) {
	obj, ok := jsonv.Object(v)
	if !ok || len(obj) == 0 {
		return nil, false
	}
	for k, val := range obj {
		if !localeKey.MatchString(k) {
			return nil, false
		}
		if _, isStr := jsonv.String(val); !isStr && !jsonv.IsNull(val) {
			return nil, false
		}
	}
	return obj, true
}

func joinLabels(labels map[string]any) string {
	parts := make([]string, 0, len(labels))
	for _, locale := range jsonv.Keys(labels) {
		s, ok := jsonv.String(labels[locale])
		if !ok {
			continue
		}
		parts = append(parts, locale+": "+s)
	}
	if len(parts) == 0 {
		return EmptyMarker
	}
	return strings.Join(parts, ", ")
}
