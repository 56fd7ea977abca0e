package validate

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/everstacklabs/pimdoc/internal/diff"
	"github.com/everstacklabs/pimdoc/internal/jsonv"
)

// Severity classifies validation issues.
type Severity int

const (
	SeverityError   Severity = iota // Normalization will reject the document
	SeverityWarning                 // Content is skipped or degraded, not rejected
)

// Issue represents a single validation problem.
type Issue struct {
	Severity Severity `json:"severity"`
	Category string   `json:"category,omitempty"`
	Path     string   `json:"path,omitempty"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	sev := "ERROR"
	if i.Severity == SeverityWarning {
		sev = "WARN"
	}
	loc := i.Category
	if i.Path != "" {
		if loc != "" {
			loc += " "
		}
		loc += i.Path
	}
	if loc == "" {
		loc = "(document)"
	}
	return fmt.Sprintf("[%s] %s: %s", sev, loc, i.Message)
}

// Result holds all validation issues.
type Result struct {
	Issues []Issue
}

// HasErrors returns true if there are any blocking errors.
func (r *Result) HasErrors() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only error-severity issues.
func (r *Result) Errors() []Issue {
	var errs []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			errs = append(errs, i)
		}
	}
	return errs
}

// Warnings returns only warning-severity issues.
func (r *Result) Warnings() []Issue {
	var warns []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityWarning {
			warns = append(warns, i)
		}
	}
	return warns
}

//go:embed schema/diff.schema.json
var diffSchema []byte

var schemaLoader = gojsonschema.NewBytesLoader(diffSchema)

// Document checks a decoded diff document. Structural problems come from the
// JSON schema; skipped records and unrecognized change shapes are reported
// as warnings.
func Document(doc any) (*Result, error) {
	r := &Result{}

	res, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}
	for _, e := range res.Errors() {
		r.Issues = append(r.Issues, schemaIssue(e))
	}

	root, ok := jsonv.Object(doc)
	if !ok {
		return r, nil
	}
	for _, name := range jsonv.Keys(root) {
		changed, ok := jsonv.Field(root[name], "changed")
		if !ok {
			continue
		}
		records, _ := jsonv.Array(changed)
		for i, rec := range records {
			r.Issues = append(r.Issues, recordIssues(name, i, rec)...)
		}
	}
	return r, nil
}

// schemaIssue maps a schema error to an issue. Errors on the document or a
// category node block normalization; anything deeper is degraded.
func schemaIssue(e gojsonschema.ResultError) Issue {
	field := e.Field()
	if field == "(root)" {
		return Issue{Severity: SeverityError, Message: e.Description()}
	}
	category, path, _ := strings.Cut(field, ".")
	sev := SeverityWarning
	if path == "" {
		sev = SeverityError
	}
	return Issue{Severity: sev, Category: category, Path: path, Message: e.Description()}
}

func recordIssues(category string, index int, rec any) []Issue {
	id, ok := diff.Identity(rec)
	if !ok {
		return []Issue{{
			Severity: SeverityWarning,
			Category: category,
			Path:     "changed." + strconv.Itoa(index),
			Message:  "record has no code and is skipped",
		}}
	}

	changes, _ := jsonv.Field(rec, "changes")
	node, ok := jsonv.Object(changes)
	if !ok {
		return nil
	}

	var issues []Issue
	for _, p := range diff.Unrecognized(node, "") {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Category: category,
			Path:     p,
			Message:  fmt.Sprintf("record %s: value is neither a change nor a nested object and is skipped", id),
		})
	}
	return issues
}

// FormatResult formats validation results for display.
func FormatResult(r *Result) string {
	if len(r.Issues) == 0 {
		return "Validation passed: no issues found."
	}

	var b strings.Builder
	errors := r.Errors()
	warnings := r.Warnings()

	if len(errors) > 0 {
		b.WriteString(fmt.Sprintf("Errors (%d):\n", len(errors)))
		for _, e := range errors {
			b.WriteString(fmt.Sprintf("  %s\n", e))
		}
	}

	if len(warnings) > 0 {
		b.WriteString(fmt.Sprintf("Warnings (%d):\n", len(warnings)))
		for _, w := range warnings {
			b.WriteString(fmt.Sprintf("  %s\n", w))
		}
	}

	return b.String()
}
