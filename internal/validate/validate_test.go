package validate

import (
	"strings"
	"testing"

	"github.com/everstacklabs/pimdoc/internal/diff"
)

func mustParse(t *testing.T, raw string) any {
	t.Helper()
	doc, err := diff.ParseDocument([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestValidDocumentHasNoIssues(t *testing.T) {
	doc := mustParse(t, `{
		"attributes": {
			"added": [{"code": "weight"}],
			"removed": [],
			"changed": [
				{"code": "sku", "changes": {"labels": {"en_GB": {"old": "SKU", "new": "Stock"}}}},
				{"code": 42, "changes": {"options": {"added": ["a"]}}}
			]
		},
		"families": {}
	}`)

	r, err := Document(doc)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if len(r.Issues) > 0 {
		t.Errorf("expected no issues, got: %v", r.Issues)
	}
}

func TestStructuralErrors(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		category string
	}{
		{"root is a list", `[]`, ""},
		{"category is a string", `{"attributes": "oops"}`, "attributes"},
		{"category is a list", `{"attributes": [1]}`, "attributes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Document(mustParse(t, tt.raw))
			if err != nil {
				t.Fatalf("Document: %v", err)
			}
			if !r.HasErrors() {
				t.Fatal("expected errors")
			}
			if got := r.Errors()[0].Category; got != tt.category {
				t.Errorf("category = %q, want %q", got, tt.category)
			}
		})
	}
}

func TestDegradedContentWarns(t *testing.T) {
	doc := mustParse(t, `{
		"attributes": {
			"added": {"code": "x"},
			"changed": [
				{"changes": {"type": {"old": "a", "new": "b"}}},
				{"code": "sku", "changes": {"sort_order": 3, "labels": {"en_US": {"old": "a", "new": "b"}}}},
				{"code": true}
			]
		}
	}`)

	r, err := Document(doc)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if r.HasErrors() {
		t.Fatalf("expected only warnings, got errors: %v", r.Errors())
	}

	want := map[string]bool{
		"added":          false,
		"changed.0":      false,
		"changed.2":      false,
		"changed.2.code": false,
		"sort_order":     false,
	}
	for _, w := range r.Warnings() {
		if w.Category != "attributes" {
			t.Errorf("unexpected category %q in %s", w.Category, w)
		}
		if _, ok := want[w.Path]; ok {
			want[w.Path] = true
		}
	}
	for path, seen := range want {
		if !seen {
			t.Errorf("missing warning for %s; got %v", path, r.Warnings())
		}
	}
}

func TestUnrecognizedWarningNamesRecord(t *testing.T) {
	r, err := Document(mustParse(t, `{"channels": {"changed": [{"code": "web", "changes": {"meta": {"x": "y"}}}]}}`))
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	w := r.Warnings()
	if len(w) != 1 {
		t.Fatalf("expected 1 warning, got %v", w)
	}
	if w[0].Path != "meta.x" || !strings.Contains(w[0].Message, "record web") {
		t.Errorf("unexpected warning: %s", w[0])
	}
}

func TestFormatResultNoIssues(t *testing.T) {
	got := FormatResult(&Result{})
	if got != "Validation passed: no issues found." {
		t.Errorf("unexpected output: %q", got)
	}
}

func TestFormatResultGroupsBySeverity(t *testing.T) {
	r := &Result{Issues: []Issue{
		{Severity: SeverityWarning, Category: "attributes", Path: "added", Message: "Invalid type"},
		{Severity: SeverityError, Message: "Invalid type. Expected: object, given: array"},
	}}

	got := FormatResult(r)
	if !strings.Contains(got, "Errors (1):\n  [ERROR] (document): Invalid type") {
		t.Errorf("missing error section: %q", got)
	}
	if !strings.Contains(got, "Warnings (1):\n  [WARN] attributes added: Invalid type") {
		t.Errorf("missing warning section: %q", got)
	}
}
