package wikimarkup

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everstacklabs/pimdoc/internal/diff"
	"github.com/everstacklabs/pimdoc/internal/render"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestRenderDiffGolden(t *testing.T) {
	report := &diff.Report{Categories: []diff.CategoryDiff{{
		Name:    "attributes",
		Added:   []diff.Entity{map[string]any{"code": "weight", "type": "pim_catalog_metric"}},
		Removed: []diff.Entity{},
		Changed: []diff.ChangedItem{
			{
				Identity:     "sku",
				FieldChanges: []diff.FieldChange{{Path: "labels.en_GB", OldValue: "SKU", NewValue: "Stock Code"}},
			},
			{Identity: "ean"},
		},
	}}}

	page := (&WikiMarkup{}).RenderDiff(render.DiffInput{
		BeforeLabel: "v1",
		AfterLabel:  "v2",
		Report:      report,
		Extractor:   diff.DefaultExtractor(),
	})

	assert.Equal(t, "Changes: v1 → v2", page.Title)
	newGoldie(t).Assert(t, "diff_page", []byte(page.Body))
}

func TestRenderSnapshotGolden(t *testing.T) {
	data := map[string]any{
		"channels": []any{map[string]any{"code": "ecommerce", "category_tree": "master"}},
		"locales":  map[string]any{"en_US": map[string]any{"code": "en_US", "enabled": true}},
		"version":  "7.0",
	}

	tree := (&WikiMarkup{}).RenderSnapshot(render.SnapshotInput{Label: "2024-06-01", Data: data})

	assert.Equal(t, render.SnapshotRootTitle, tree.Root.Title)
	require.Len(t, tree.Children, 2)
	assert.Equal(t, "Current model: Channels", tree.Children[0].Title)
	assert.Equal(t, "Current model: Locales", tree.Children[1].Title)

	g := newGoldie(t)
	g.Assert(t, "snapshot_root", []byte(tree.Root.Body))
	g.Assert(t, "snapshot_channels", []byte(tree.Children[0].Body))
	assert.Contains(t, tree.Children[1].Body, `|{{en\_US}}|true|`)
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `a\|b \{x\} \[l\] \*s\* \_u\_ \\`, esc(`a|b {x} [l] *s* _u_ \`))
	assert.Equal(t, "one two", esc("one\ntwo"))
}

func TestRegistered(t *testing.T) {
	r, err := render.Get("wiki")
	require.NoError(t, err)
	assert.Equal(t, "wiki", r.Representation())
}
