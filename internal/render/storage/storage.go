// Package storage renders pages in Confluence storage format (XHTML with
// ac: macros).
package storage

import (
	"fmt"
	"html"
	"strings"

	"github.com/everstacklabs/pimdoc/internal/diff"
	"github.com/everstacklabs/pimdoc/internal/render"
)

func init() {
	render.Register(&Storage{})
}

// Storage is the storage-format renderer.
type Storage struct{}

func (s *Storage) Name() string           { return "storage" }
func (s *Storage) Representation() string { return "storage" }

// RenderDiff renders one page for a normalized diff.
func (s *Storage) RenderDiff(in render.DiffInput) render.Page {
	var b strings.Builder

	b.WriteString(`<ac:structured-macro ac:name="info"><ac:rich-text-body>`)
	fmt.Fprintf(&b, "<p><strong>Before:</strong> %s</p>", esc(in.BeforeLabel))
	fmt.Fprintf(&b, "<p><strong>After:</strong> %s</p>", esc(in.AfterLabel))
	b.WriteString("</ac:rich-text-body></ac:structured-macro>")

	b.WriteString("<h2>Summary</h2>")
	b.WriteString("<table><thead><tr><th>Category</th><th>Added</th><th>Removed</th><th>Changed</th></tr></thead><tbody>")
	for _, c := range in.Report.Categories {
		fmt.Fprintf(&b, "<tr><td><strong>%s</strong></td><td>%s</td><td>%s</td><td>%s</td></tr>",
			esc(render.DisplayName(c.Name)),
			badge("Added", len(c.Added), "Green"),
			badge("Removed", len(c.Removed), "Red"),
			badge("Changed", len(c.Changed), "Yellow"))
	}
	b.WriteString("</tbody></table>")

	for _, c := range in.Report.Categories {
		fmt.Fprintf(&b, "<h2>%s</h2>", esc(render.DisplayName(c.Name)))

		fmt.Fprintf(&b, "<h3>%s Added</h3>", lozenge(len(c.Added), "Green"))
		writeEntities(&b, in.Extractor, c.Added, "No additions.")

		fmt.Fprintf(&b, "<h3>%s Removed</h3>", lozenge(len(c.Removed), "Red"))
		writeEntities(&b, in.Extractor, c.Removed, "No removals.")

		fmt.Fprintf(&b, "<h3>%s Changed</h3>", lozenge(len(c.Changed), "Yellow"))
		writeChanged(&b, c.Changed)
	}

	return render.Page{
		Title: render.DiffTitle(in.BeforeLabel, in.AfterLabel),
		Body:  b.String(),
	}
}

// RenderSnapshot renders the current-model root page and one child page per category.
func (s *Storage) RenderSnapshot(in render.SnapshotInput) render.PageTree {
	cats := render.SnapshotCategories(in.Data)

	var root strings.Builder
	root.WriteString(`<ac:structured-macro ac:name="info"><ac:rich-text-body>`)
	fmt.Fprintf(&root, "<p><strong>Snapshot:</strong> %s</p>", esc(in.Label))
	if !in.CompletedAt.IsZero() {
		fmt.Fprintf(&root, "<p><strong>Completed:</strong> %s</p>", esc(in.CompletedAt.UTC().Format("2006-01-02 15:04 MST")))
	}
	root.WriteString("</ac:rich-text-body></ac:structured-macro>")
	root.WriteString("<table><thead><tr><th>Category</th><th>Entries</th></tr></thead><tbody>")
	for _, c := range cats {
		fmt.Fprintf(&root, "<tr><td>%s</td><td>%d</td></tr>", esc(render.DisplayName(c.Name)), len(c.Entities))
	}
	root.WriteString("</tbody></table>")
	root.WriteString(`<ac:structured-macro ac:name="children" />`)

	tree := render.PageTree{
		Root:     render.Page{Title: render.SnapshotRootTitle, Body: root.String()},
		Children: make([]render.Page, 0, len(cats)),
	}

	for _, c := range cats {
		var b strings.Builder
		fmt.Fprintf(&b, "<h2>%s</h2>", esc(render.DisplayName(c.Name)))
		fmt.Fprintf(&b, "<p>%d entries in snapshot %s.</p>", len(c.Entities), esc(in.Label))
		writeEntities(&b, in.Extractor, c.Entities, "No entries.")
		tree.Children = append(tree.Children, render.Page{Title: render.ChildTitle(c.Name), Body: b.String()})
	}

	return tree
}

func writeEntities(b *strings.Builder, ex *diff.Extractor, entities []diff.Entity, empty string) {
	if len(entities) == 0 {
		fmt.Fprintf(b, "<p><em>%s</em></p>", esc(empty))
		return
	}

	t := render.EntityTable(ex, entities)
	b.WriteString("<table><thead><tr>")
	for _, col := range t.Columns {
		fmt.Fprintf(b, "<th>%s</th>", esc(render.DisplayName(col)))
	}
	b.WriteString("</tr></thead><tbody>")
	for _, row := range t.Rows {
		b.WriteString("<tr>")
		for _, col := range t.Columns {
			v := t.Cell(row, col)
			if col == diff.IdentityField {
				fmt.Fprintf(b, "<td>%s</td>", code(v))
			} else {
				fmt.Fprintf(b, "<td>%s</td>", esc(v))
			}
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")
}

func writeChanged(b *strings.Builder, items []diff.ChangedItem) {
	if len(items) == 0 {
		b.WriteString("<p><em>No changes.</em></p>")
		return
	}

	b.WriteString("<table><thead><tr><th>Code</th><th>Field</th><th>Old value</th><th>New value</th></tr></thead><tbody>")
	for _, it := range items {
		rows := render.ChangeRows(it)
		if len(rows) == 0 {
			fmt.Fprintf(b, `<tr><td>%s</td><td colspan="3"><em>No field-level changes.</em></td></tr>`, code(it.Identity))
			continue
		}
		for i, r := range rows {
			b.WriteString("<tr>")
			if i == 0 {
				if len(rows) > 1 {
					fmt.Fprintf(b, `<td rowspan="%d">%s</td>`, len(rows), code(it.Identity))
				} else {
					fmt.Fprintf(b, "<td>%s</td>", code(it.Identity))
				}
			}
			fmt.Fprintf(b, "<td>%s</td>", code(r.Path))
			fmt.Fprintf(b, `<td><span style="color: #de350b;">%s</span></td>`, esc(r.Old))
			fmt.Fprintf(b, `<td><span style="color: #36b37e;">%s</span></td>`, esc(r.New))
			b.WriteString("</tr>")
		}
	}
	b.WriteString("</tbody></table>")
}

func badge(label string, count int, colour string) string {
	if count == 0 {
		colour = "Grey"
	}
	return status(fmt.Sprintf("%s: %d", label, count), colour)
}

func lozenge(count int, colour string) string {
	return status(fmt.Sprintf("%d", count), colour)
}

func status(title, colour string) string {
	return `<ac:structured-macro ac:name="status"><ac:parameter ac:name="title">` + esc(title) +
		`</ac:parameter><ac:parameter ac:name="colour">` + colour + `</ac:parameter></ac:structured-macro>`
}

func code(s string) string {
	return "<code>" + esc(s) + "</code>"
}

func esc(s string) string {
	return html.EscapeString(s)
}
