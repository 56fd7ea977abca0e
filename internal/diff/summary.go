package diff

import (
	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderSummary renders the per-category counts of a report as a plain-text table.
func RenderSummary(r *Report) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Category", "Added", "Removed", "Changed"})

	var added, removed, changed int
	for _, c := range r.Categories {
		tbl.AppendRow(table.Row{c.Name, len(c.Added), len(c.Removed), len(c.Changed)})
		added += len(c.Added)
		removed += len(c.Removed)
		changed += len(c.Changed)
	}

	tbl.AppendFooter(table.Row{"Total", added, removed, changed})
	return tbl.Render()
}
