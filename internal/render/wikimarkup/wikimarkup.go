// Package wikimarkup renders pages in Confluence wiki markup.
package wikimarkup

import (
	"fmt"
	"strings"

	"github.com/everstacklabs/pimdoc/internal/diff"
	"github.com/everstacklabs/pimdoc/internal/render"
)

func init() {
	render.Register(&WikiMarkup{})
}

// WikiMarkup is the wiki markup renderer. Confluence converts it to storage
// format on submit.
type WikiMarkup struct{}

func (w *WikiMarkup) Name() string           { return "wiki" }
func (w *WikiMarkup) Representation() string { return "wiki" }

var escaper = strings.NewReplacer(
	`\`, `\\`,
	"|", `\|`,
	"{", `\{`,
	"}", `\}`,
	"[", `\[`,
	"]", `\]`,
	"*", `\*`,
	"_", `\_`,
	"\n", " ",
)

// RenderDiff renders one page for a normalized diff.
func (w *WikiMarkup) RenderDiff(in render.DiffInput) render.Page {
	var b strings.Builder

	b.WriteString("{info}\n")
	fmt.Fprintf(&b, "*Before:* %s\n", esc(in.BeforeLabel))
	fmt.Fprintf(&b, "*After:* %s\n", esc(in.AfterLabel))
	b.WriteString("{info}\n\n")

	b.WriteString("h2. Summary\n\n")
	b.WriteString("||Category||Added||Removed||Changed||\n")
	for _, c := range in.Report.Categories {
		fmt.Fprintf(&b, "|%s|%s|%s|%s|\n",
			esc(render.DisplayName(c.Name)),
			status("Added", len(c.Added), "Green"),
			status("Removed", len(c.Removed), "Red"),
			status("Changed", len(c.Changed), "Yellow"))
	}

	for _, c := range in.Report.Categories {
		fmt.Fprintf(&b, "\nh2. %s\n", esc(render.DisplayName(c.Name)))

		fmt.Fprintf(&b, "\nh3. Added (%d)\n\n", len(c.Added))
		writeEntities(&b, in.Extractor, c.Added, "No additions.")

		fmt.Fprintf(&b, "\nh3. Removed (%d)\n\n", len(c.Removed))
		writeEntities(&b, in.Extractor, c.Removed, "No removals.")

		fmt.Fprintf(&b, "\nh3. Changed (%d)\n\n", len(c.Changed))
		writeChanged(&b, c.Changed)
	}

	return render.Page{
		Title: render.DiffTitle(in.BeforeLabel, in.AfterLabel),
		Body:  b.String(),
	}
}

// RenderSnapshot renders the current-model root page and one child page per category.
func (w *WikiMarkup) RenderSnapshot(in render.SnapshotInput) render.PageTree {
	cats := render.SnapshotCategories(in.Data)

	var root strings.Builder
	root.WriteString("{info}\n")
	fmt.Fprintf(&root, "*Snapshot:* %s\n", esc(in.Label))
	if !in.CompletedAt.IsZero() {
		fmt.Fprintf(&root, "*Completed:* %s\n", in.CompletedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	root.WriteString("{info}\n\n")
	root.WriteString("||Category||Entries||\n")
	for _, c := range cats {
		fmt.Fprintf(&root, "|%s|%d|\n", esc(render.DisplayName(c.Name)), len(c.Entities))
	}
	root.WriteString("\n{children}\n")

	tree := render.PageTree{
		Root:     render.Page{Title: render.SnapshotRootTitle, Body: root.String()},
		Children: make([]render.Page, 0, len(cats)),
	}

	for _, c := range cats {
		var b strings.Builder
		fmt.Fprintf(&b, "h2. %s\n\n", esc(render.DisplayName(c.Name)))
		fmt.Fprintf(&b, "%d entries in snapshot %s.\n\n", len(c.Entities), esc(in.Label))
		writeEntities(&b, in.Extractor, c.Entities, "No entries.")
		tree.Children = append(tree.Children, render.Page{Title: render.ChildTitle(c.Name), Body: b.String()})
	}

	return tree
}

func writeEntities(b *strings.Builder, ex *diff.Extractor, entities []diff.Entity, empty string) {
	if len(entities) == 0 {
		fmt.Fprintf(b, "_%s_\n", empty)
		return
	}

	t := render.EntityTable(ex, entities)
	b.WriteString("||")
	for _, col := range t.Columns {
		b.WriteString(esc(render.DisplayName(col)))
		b.WriteString("||")
	}
	b.WriteString("\n")
	for _, row := range t.Rows {
		b.WriteString("|")
		for _, col := range t.Columns {
			v := t.Cell(row, col)
			if col == diff.IdentityField {
				b.WriteString(code(v))
			} else {
				b.WriteString(cell(v))
			}
			b.WriteString("|")
		}
		b.WriteString("\n")
	}
}

func writeChanged(b *strings.Builder, items []diff.ChangedItem) {
	if len(items) == 0 {
		b.WriteString("_No changes._\n")
		return
	}

	b.WriteString("||Code||Field||Old value||New value||\n")
	for _, it := range items {
		rows := render.ChangeRows(it)
		if len(rows) == 0 {
			fmt.Fprintf(b, "|%s|_No field-level changes._| | |\n", code(it.Identity))
			continue
		}
		for _, r := range rows {
			fmt.Fprintf(b, "|%s|%s|{color:#de350b}%s{color}|{color:#36b37e}%s{color}|\n",
				code(it.Identity), code(r.Path), esc(r.Old), esc(r.New))
		}
	}
}

func status(label string, count int, colour string) string {
	if count == 0 {
		colour = "Grey"
	}
	return fmt.Sprintf("{status:colour=%s|title=%s: %d}", colour, label, count)
}

func code(s string) string {
	return "{{" + esc(s) + "}}"
}

// cell keeps empty cells from collapsing the table row.
func cell(s string) string {
	if s == "" {
		return " "
	}
	return esc(s)
}

func esc(s string) string {
	return escaper.Replace(s)
}
