// Package render defines the markup renderers that turn normalized diffs and
// raw snapshots into wiki pages.
package render

import (
	"strings"
	"time"

	"github.com/everstacklabs/pimdoc/internal/diff"
	"github.com/everstacklabs/pimdoc/internal/jsonv"
)

// SnapshotRootTitle is the title of the page that holds the current model.
// It is stable across snapshots so each publish updates the same page tree.
const SnapshotRootTitle = "Current model"

// Page is one rendered document.
type Page struct {
	Title string
	Body  string
}

// PageTree is a root page plus child pages published beneath it.
type PageTree struct {
	Root     Page
	Children []Page
}

// DiffInput is everything a renderer needs for a diff page.
type DiffInput struct {
	BeforeLabel string
	AfterLabel  string
	Report      *diff.Report
	Extractor   *diff.Extractor
}

// SnapshotInput is everything a renderer needs for a snapshot page tree.
type SnapshotInput struct {
	Label       string
	CompletedAt time.Time
	Data        any
	Extractor   *diff.Extractor
}

// Renderer produces markup in one wiki representation.
type Renderer interface {
	// Name returns the registry name (e.g., "storage").
	Name() string
	// Representation is the body representation the wiki expects for this markup.
	Representation() string
	RenderDiff(in DiffInput) Page
	RenderSnapshot(in SnapshotInput) PageTree
}

// DiffTitle returns the page title of a diff between two snapshots.
func DiffTitle(before, after string) string {
	return "Changes: " + before + " → " + after
}

// ChildTitle returns the title of the snapshot child page for a category.
func ChildTitle(category string) string {
	return SnapshotRootTitle + ": " + DisplayName(category)
}

// DisplayName turns a category key such as "association_types" into
// "Association types".
func DisplayName(key string) string {
	s := strings.ReplaceAll(key, "_", " ")
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// SnapshotCategory is one category of a snapshot with its entities in
// source order.
type SnapshotCategory struct {
	Name     string
	Entities []diff.Entity
}

// SnapshotCategories extracts categories from snapshot data. A category value
// may be a list of entities or an object of entities keyed by code; other
// values are ignored. Categories are returned by ascending name.
func SnapshotCategories(data any) []SnapshotCategory {
	root, ok := jsonv.Object(data)
	if !ok {
		return nil
	}

	var cats []SnapshotCategory
	for _, name := range jsonv.Keys(root) {
		switch v := root[name].(type) {
		case []any:
			cats = append(cats, SnapshotCategory{Name: name, Entities: v})
		case map[string]any:
			entities := make([]diff.Entity, 0, len(v))
			for _, code := range jsonv.Keys(v) {
				entities = append(entities, v[code])
			}
			cats = append(cats, SnapshotCategory{Name: name, Entities: entities})
		}
	}
	return cats
}

// Table is the column layout of an entity table.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// EntityTable extracts properties from every entity and merges their labels
// into one column list, keeping first-seen order.
func EntityTable(ex *diff.Extractor, entities []diff.Entity) Table {
	if ex == nil {
		ex = diff.DefaultExtractor()
	}

	var t Table
	seen := make(map[string]bool)
	for _, e := range entities {
		props := ex.Extract(e)
		row := make(map[string]string, len(props))
		for _, p := range props {
			if !seen[p.Label] {
				seen[p.Label] = true
				t.Columns = append(t.Columns, p.Label)
			}
			row[p.Label] = p.Value
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Cell returns the value of col in row, or the empty marker.
func (t Table) Cell(row map[string]string, col string) string {
	if v, ok := row[col]; ok {
		return v
	}
	return diff.EmptyMarker
}

// ChangeRow is one line of a changed-records table.
type ChangeRow struct {
	Path string
	Old  string
	New  string
}

// ChangeRows lists the display rows of a changed item: field changes first,
// then set-valued diffs with their removed and added members.
func ChangeRows(it diff.ChangedItem) []ChangeRow {
	rows := make([]ChangeRow, 0, len(it.FieldChanges)+len(it.NestedDiffs))
	for _, fc := range it.FieldChanges {
		rows = append(rows, ChangeRow{
			Path: fc.Path,
			Old:  jsonv.Display(fc.OldValue),
			New:  jsonv.Display(fc.NewValue),
		})
	}
	for _, nd := range it.NestedDiffs {
		rows = append(rows, ChangeRow{
			Path: nd.Path,
			Old:  joinMembers("removed", nd.Removed),
			New:  joinMembers("added", nd.Added),
		})
	}
	return rows
}

func joinMembers(verb string, members []string) string {
	if len(members) == 0 {
		return diff.EmptyMarker
	}
	return verb + ": " + strings.Join(members, ", ")
}
