package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everstacklabs/pimdoc/internal/diff"
	"github.com/everstacklabs/pimdoc/internal/htmlutil"
	"github.com/everstacklabs/pimdoc/internal/render"
)

func sampleReport() *diff.Report {
	return &diff.Report{Categories: []diff.CategoryDiff{
		{
			Name:    "attributes",
			Added:   []diff.Entity{map[string]any{"code": "weight", "labels": map[string]any{"en_US": "Weight <kg>"}}},
			Removed: []diff.Entity{},
			Changed: []diff.ChangedItem{
				{
					Identity: "sku",
					FieldChanges: []diff.FieldChange{
						{Path: "labels.en_GB", OldValue: "SKU", NewValue: "Stock Code"},
					},
					NestedDiffs: []diff.NestedFieldDiff{
						{Path: "available_locales", Added: []string{"fr_FR"}, Removed: []string{}},
					},
				},
				{Identity: "ean"},
			},
		},
		{Name: "families", Added: []diff.Entity{}, Removed: []diff.Entity{}, Changed: []diff.ChangedItem{}},
	}}
}

func TestRenderDiff(t *testing.T) {
	page := (&Storage{}).RenderDiff(render.DiffInput{
		BeforeLabel: "Spring & Summer",
		AfterLabel:  "Autumn",
		Report:      sampleReport(),
		Extractor:   diff.DefaultExtractor(),
	})

	assert.Equal(t, "Changes: Spring & Summer → Autumn", page.Title)
	body := page.Body

	assert.Contains(t, body, "<p><strong>Before:</strong> Spring &amp; Summer</p>")
	assert.Contains(t, body, `<ac:parameter ac:name="title">Added: 1</ac:parameter><ac:parameter ac:name="colour">Green</ac:parameter>`)
	assert.Contains(t, body, `<ac:parameter ac:name="title">Removed: 0</ac:parameter><ac:parameter ac:name="colour">Grey</ac:parameter>`)
	assert.Contains(t, body, "<td>en_US: Weight &lt;kg&gt;</td>")
	assert.Contains(t, body, `<td rowspan="2"><code>sku</code></td>`)
	assert.Contains(t, body, `<span style="color: #36b37e;">added: fr_FR</span>`)
	assert.Contains(t, body, `<td><code>ean</code></td><td colspan="3"><em>No field-level changes.</em></td>`)
	assert.Contains(t, body, "<p><em>No removals.</em></p>")
	assert.Contains(t, body, "<h2>Families</h2>")

	assert.Less(t, strings.Index(body, "<h2>Attributes</h2>"), strings.Index(body, "<h2>Families</h2>"))
}

func TestRenderDiffChangedTable(t *testing.T) {
	page := (&Storage{}).RenderDiff(render.DiffInput{BeforeLabel: "a", AfterLabel: "b", Report: sampleReport()})

	doc, err := htmlutil.Parse(page.Body)
	require.NoError(t, err)
	tables := htmlutil.Tables(doc)
	require.NotEmpty(t, tables)

	rows := htmlutil.TableRows(tables[len(tables)-1])
	require.Len(t, rows, 3)
	assert.Equal(t, map[string]string{"code": "sku", "field": "labels.en_GB", "old value": "SKU", "new value": "Stock Code"}, rows[0])
	assert.Equal(t, "sku", rows[1]["code"])
	assert.Equal(t, "available_locales", rows[1]["field"])
	assert.Equal(t, "ean", rows[2]["code"])
	assert.Equal(t, "No field-level changes.", rows[2]["new value"])

	summary := htmlutil.TableRows(tables[0])
	require.Len(t, summary, 2)
	assert.Equal(t, "Attributes", summary[0]["category"])
	assert.Equal(t, "Families", summary[1]["category"])
}

func TestRenderDiffIsDeterministic(t *testing.T) {
	in := render.DiffInput{BeforeLabel: "a", AfterLabel: "b", Report: sampleReport()}
	s := &Storage{}
	assert.Equal(t, s.RenderDiff(in), s.RenderDiff(in))
}

func TestRenderSnapshot(t *testing.T) {
	data := map[string]any{
		"families": map[string]any{
			"shoes": map[string]any{"code": "shoes"},
			"hats":  map[string]any{"code": "hats"},
		},
		"channels": []any{},
	}

	tree := (&Storage{}).RenderSnapshot(render.SnapshotInput{
		Label:       "nightly",
		CompletedAt: time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC),
		Data:        data,
	})

	assert.Equal(t, "Current model", tree.Root.Title)
	assert.Contains(t, tree.Root.Body, "<p><strong>Completed:</strong> 2024-06-01 10:30 UTC</p>")
	assert.Contains(t, tree.Root.Body, "<tr><td>Families</td><td>2</td></tr>")
	assert.Contains(t, tree.Root.Body, `ac:name="children"`)

	require.Len(t, tree.Children, 2)
	assert.Equal(t, "Current model: Channels", tree.Children[0].Title)
	assert.Contains(t, tree.Children[0].Body, "<p><em>No entries.</em></p>")

	fam := tree.Children[1].Body
	assert.Less(t, strings.Index(fam, "<code>hats</code>"), strings.Index(fam, "<code>shoes</code>"))
}

func TestRegistered(t *testing.T) {
	r, err := render.Get("storage")
	require.NoError(t, err)
	assert.Equal(t, "storage", r.Name())
}
