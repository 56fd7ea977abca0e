package diff

import (
	"strings"

	"github.com/everstacklabs/pimdoc/internal/jsonv"
)

// Shape classifies one value of a raw changes tree.
type Shape int

const (
	// ShapeUnrecognized is a value that is not a valid change description.
	ShapeUnrecognized Shape = iota
	// ShapeLeaf is {"old": ..., "new": ...}.
	ShapeLeaf
	// ShapeSetDiff is {"added": [...], "removed": [...]} with either key optional.
	ShapeSetDiff
	// ShapeNested is any other object; its keys are classified recursively.
	ShapeNested
)

func (s Shape) String() string {
	switch s {
	case ShapeLeaf:
		return "leaf"
	case ShapeSetDiff:
		return "set-diff"
	case ShapeNested:
		return "nested"
	default:
		return "unrecognized"
	}
}

// Classify returns the shape of v. The checks run in a fixed order and the
// leaf check always wins: an object carrying both "old" and "new" is a leaf
// even when "added" or "removed" are present too.
func Classify(v any) Shape {
	obj, ok := jsonv.Object(v)
	if !ok {
		return ShapeUnrecognized
	}

	_, hasOld := obj["old"]
	_, hasNew := obj["new"]
	if hasOld && hasNew {
		return ShapeLeaf
	}

	if isSetDiff(obj) {
		return ShapeSetDiff
	}

	return ShapeNested
}

// isSetDiff requires at least one of added/removed, no other keys, and list values.
func isSetDiff(obj map[string]any) bool {
	if len(obj) == 0 {
		return false
	}
	for k, v := range obj {
		if k != "added" && k != "removed" {
			return false
		}
		if _, ok := jsonv.Array(v); !ok {
			return false
		}
	}
	return true
}

// Flatten walks a raw changes object and returns its leaf replacements and
// set-valued sub-diffs. Paths are the keys joined by "." starting from prefix;
// a "." or a backslash inside a key is escaped with a backslash.
// Keys are visited in ascending order at every level; values of an
// unrecognized shape are skipped.
func Flatten(node map[string]any, prefix string) ([]FieldChange, []NestedFieldDiff) {
	var w walker
	w.walk(node, prefix)
	return w.changes, w.nested
}

// Unrecognized returns the paths Flatten skips because their value is not a
// valid change shape.
func Unrecognized(node map[string]any, prefix string) []string {
	var w walker
	w.walk(node, prefix)
	return w.skipped
}

type walker struct {
	changes []FieldChange
	nested  []NestedFieldDiff
	skipped []string
}

func (w *walker) walk(node map[string]any, prefix string) {
	for _, key := range jsonv.Keys(node) {
		value := node[key]
		path := joinPath(prefix, key)

		switch Classify(value) {
		case ShapeLeaf:
			obj, _ := jsonv.Object(value)
			w.changes = append(w.changes, FieldChange{
				Path:     path,
				OldValue: obj["old"],
				NewValue: obj["new"],
			})
		case ShapeSetDiff:
			obj, _ := jsonv.Object(value)
			w.nested = append(w.nested, NestedFieldDiff{
				Path:    path,
				Added:   displayList(obj["added"]),
				Removed: displayList(obj["removed"]),
			})
		case ShapeNested:
			obj, _ := jsonv.Object(value)
			w.walk(obj, path)
		default:
			w.skipped = append(w.skipped, path)
		}
	}
}

var segmentEscaper = strings.NewReplacer(`\`, `\\`, ".", `\.`)

func joinPath(prefix, key string) string {
	key = segmentEscaper.Replace(key)
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// displayList renders list elements as strings; a missing list yields an
// empty, non-nil slice.
func displayList(v any) []string {
	arr, _ := jsonv.Array(v)
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		out = append(out, jsonv.Display(el))
	}
	return out
}
