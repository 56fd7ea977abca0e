package diff

import (
	"encoding/json"
	"fmt"

	"github.com/everstacklabs/pimdoc/internal/jsonv"
)

// IdentityField is the key of a changed record that holds its natural key.
const IdentityField = "code"

// MalformedDiffError reports a diff document that violates the minimal
// structure: the root must be an object and every category must be an object.
type MalformedDiffError struct {
	Category string // empty when the root itself is malformed
	Reason   string
}

func (e *MalformedDiffError) Error() string {
	if e.Category == "" {
		return fmt.Sprintf("malformed diff: %s", e.Reason)
	}
	return fmt.Sprintf("malformed diff: category %q: %s", e.Category, e.Reason)
}

// ParseDocument decodes a raw diff document. Number literals are preserved.
func ParseDocument(raw []byte) (any, error) {
	doc, err := jsonv.DecodeBytes(raw)
	if err != nil {
		return nil, &MalformedDiffError{Reason: err.Error()}
	}
	return doc, nil
}

// Normalize converts a decoded diff document into a Report.
//
// Only the document root and the category values are checked; every other
// deviation (non-list added/removed/changed, records without an identity,
// unrecognized change shapes) degrades to empty or skipped content.
func Normalize(doc any) (*Report, error) {
	root, ok := jsonv.Object(doc)
	if !ok {
		return nil, &MalformedDiffError{Reason: fmt.Sprintf("root must be an object, got %s", jsonv.KindOf(doc))}
	}

	report := &Report{Categories: make([]CategoryDiff, 0, len(root))}

	for _, name := range jsonv.Keys(root) {
		cat, ok := jsonv.Object(root[name])
		if !ok {
			return nil, &MalformedDiffError{
				Category: name,
				Reason:   fmt.Sprintf("must be an object, got %s", jsonv.KindOf(root[name])),
			}
		}

		cd := CategoryDiff{
			Name:    name,
			Added:   entityList(cat["added"]),
			Removed: entityList(cat["removed"]),
			Changed: []ChangedItem{},
		}

		records, _ := jsonv.Array(cat["changed"])
		for _, rec := range records {
			item, ok := normalizeChanged(rec)
			if !ok {
				continue
			}
			cd.Changed = append(cd.Changed, item)
		}

		report.Categories = append(report.Categories, cd)
	}

	return report, nil
}

func normalizeChanged(rec any) (ChangedItem, bool) {
	identity, ok := Identity(rec)
	if !ok {
		return ChangedItem{}, false
	}

	item := ChangedItem{
		Identity:     identity,
		FieldChanges: []FieldChange{},
		NestedDiffs:  []NestedFieldDiff{},
	}

	changes, ok := jsonv.Field(rec, "changes")
	if !ok {
		return item, true
	}
	node, ok := jsonv.Object(changes)
	if !ok {
		return item, true
	}

	fc, nd := Flatten(node, "")
	if fc != nil {
		item.FieldChanges = fc
	}
	if nd != nil {
		item.NestedDiffs = nd
	}
	return item, true
}

// Identity extracts the natural key of a raw changed record. String codes are
// used as-is and numeric codes as their literal; anything else, including an
// empty string, has no identity.
func Identity(rec any) (string, bool) {
	v, ok := jsonv.Field(rec, IdentityField)
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, t != ""
	case json.Number:
		return t.String(), true
	}
	return "", false
}

func entityList(v any) []Entity {
	arr, ok := jsonv.Array(v)
	if !ok {
		return []Entity{}
	}
	out := make([]Entity, len(arr))
	copy(out, arr)
	return out
}
