package htmlutil

import (
	"testing"
)

func TestTableRowsSpans(t *testing.T) {
	doc, err := Parse(`<h2>Changed</h2><table><thead><tr><th>Code</th><th>Field</th><th>Old</th></tr></thead><tbody>` +
		`<tr><td rowspan="2"><code>sku</code></td><td>labels.en_US</td><td>SKU</td></tr>` +
		`<tr><td>sort_order</td><td>1</td></tr>` +
		`<tr><td>ean</td><td colspan="2">No field-level changes.</td></tr>` +
		`</tbody></table>`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tables := Tables(doc)
	if len(tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(tables))
	}
	rows := TableRows(tables[0])
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d: %v", len(rows), rows)
	}

	if rows[1]["code"] != "sku" || rows[1]["field"] != "sort_order" {
		t.Errorf("rowspan not carried: %v", rows[1])
	}
	if rows[2]["field"] != "No field-level changes." || rows[2]["old"] != "No field-level changes." {
		t.Errorf("colspan not filled: %v", rows[2])
	}
	if got := TextOf(doc, "h2"); got != "Changed" {
		t.Errorf("TextOf = %q", got)
	}
}

func TestTableRowsWithoutHeader(t *testing.T) {
	doc, err := Parse(`<table><tbody><tr><td>x</td></tr></tbody></table>`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rows := TableRows(Tables(doc)[0]); rows != nil {
		t.Errorf("expected nil, got %v", rows)
	}
}
