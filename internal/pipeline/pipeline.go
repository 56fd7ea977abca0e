package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/everstacklabs/pimdoc/internal/config"
	"github.com/everstacklabs/pimdoc/internal/diff"
	"github.com/everstacklabs/pimdoc/internal/render"
	"github.com/everstacklabs/pimdoc/internal/store"
	"github.com/everstacklabs/pimdoc/internal/validate"
	"github.com/everstacklabs/pimdoc/internal/wiki"
)

// ExitCode constants for CLI.
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitChanges     = 2 // Changes detected (diff --exit-code)
	ExitNotFound    = 3 // Diff, snapshot or wiki config missing
	ExitMalformed   = 4 // Diff document rejected
	ExitConflict    = 5 // Ambiguous title or concurrent modification
	ExitUnavailable = 6 // Wiki unreachable, throttled or failing
)

// ExitError asks the CLI to exit with Code once deferred cleanup has run.
// The outcome has already been reported, so no message is printed.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Records is the read side of the snapshot database.
type Records interface {
	Snapshot(ctx context.Context, id uuid.UUID) (*store.Snapshot, error)
	Diff(ctx context.Context, id uuid.UUID) (*store.DiffRecord, error)
	WikiConfig(ctx context.Context, serverID uuid.UUID) (*wiki.Config, error)
}

// Publisher writes pages to the wiki.
type Publisher interface {
	Upsert(ctx context.Context, title, body, parent string) (*wiki.Location, error)
	PublishTree(ctx context.Context, root wiki.Page, children []wiki.Page, parent string, limit int) (*wiki.TreeResult, error)
}

// PublisherFactory builds a Publisher for one wiki location.
type PublisherFactory func(cfg wiki.Config) Publisher

// Pipeline orchestrates fetch, normalize, render and publish.
type Pipeline struct {
	cfg          *config.Config
	records      Records
	renderer     render.Renderer
	extractor    *diff.Extractor
	locker       wiki.Locker
	newPublisher PublisherFactory
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithLocker serializes page upserts through l.
func WithLocker(l wiki.Locker) Option {
	return func(p *Pipeline) { p.locker = l }
}

// WithPublisherFactory replaces the wiki client constructor.
func WithPublisherFactory(f PublisherFactory) Option {
	return func(p *Pipeline) { p.newPublisher = f }
}

// New creates a new Pipeline.
func New(cfg *config.Config, records Records, opts ...Option) (*Pipeline, error) {
	r, err := render.Get(cfg.Renderer)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:       cfg,
		records:   records,
		renderer:  r,
		extractor: cfg.Display.Extractor(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.newPublisher == nil {
		p.newPublisher = p.wikiClient
	}
	return p, nil
}

func (p *Pipeline) wikiClient(wc wiki.Config) Publisher {
	opts := []wiki.Option{
		wiki.WithRateLimit(p.cfg.Publish.RateLimit),
		wiki.WithTimeout(p.cfg.Publish.Timeout),
		wiki.WithUpdateAttempts(p.cfg.Publish.UpdateAttempts),
		wiki.WithPageSize(p.cfg.Publish.PageSize),
		wiki.WithRepresentation(p.renderer.Representation()),
	}
	if p.locker != nil {
		opts = append(opts, wiki.WithLocker(p.locker))
	}
	return wiki.New(wc, opts...)
}

// DiffResult is the outcome of processing one stored diff.
type DiffResult struct {
	DiffID   uuid.UUID        `json:"diff_id" yaml:"diff_id"`
	Before   string           `json:"before" yaml:"before"`
	After    string           `json:"after" yaml:"after"`
	Report   *diff.Report     `json:"report" yaml:"report"`
	Warnings []validate.Issue `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Page     render.Page      `json:"-" yaml:"-"`
	Location *wiki.Location   `json:"location,omitempty" yaml:"location,omitempty"`
}

// SnapshotResult is the outcome of processing one stored snapshot.
type SnapshotResult struct {
	SnapshotID  uuid.UUID        `json:"snapshot_id" yaml:"snapshot_id"`
	Label       string           `json:"label" yaml:"label"`
	CompletedAt time.Time        `json:"completed_at" yaml:"completed_at"`
	Tree        render.PageTree  `json:"-" yaml:"-"`
	Published   *wiki.TreeResult `json:"published,omitempty" yaml:"published,omitempty"`
}

// Diff renders the diff page for id and publishes it when publish is set.
func (p *Pipeline) Diff(ctx context.Context, id uuid.UUID, publish bool) (*DiffResult, error) {
	rec, err := p.records.Diff(ctx, id)
	if err != nil {
		return nil, err
	}

	report, warnings, err := Inspect(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", id, err)
	}
	for _, w := range warnings {
		slog.Warn("diff content degraded", "diff", id, "issue", w.String())
	}

	res := &DiffResult{
		DiffID:   id,
		Before:   rec.Before.DisplayLabel(),
		After:    rec.After.DisplayLabel(),
		Report:   report,
		Warnings: warnings,
	}
	res.Page = p.renderer.RenderDiff(render.DiffInput{
		BeforeLabel: res.Before,
		AfterLabel:  res.After,
		Report:      report,
		Extractor:   p.extractor,
	})

	for _, c := range report.Categories {
		slog.Info("category",
			"name", c.Name,
			"added", len(c.Added),
			"removed", len(c.Removed),
			"changed", len(c.Changed))
	}

	if !publish {
		return res, nil
	}

	wc, err := p.wikiConfig(ctx, rec.After.ServerID)
	if err != nil {
		return res, err
	}
	loc, err := p.newPublisher(*wc).Upsert(ctx, res.Page.Title, res.Page.Body, "")
	if err != nil {
		return res, fmt.Errorf("publishing diff %s: %w", id, err)
	}
	res.Location = loc
	slog.Info("diff published", "diff", id, "page", loc.PageID, "version", loc.Version, "created", loc.Created)
	return res, nil
}

// Snapshot renders the current-model page tree for id and publishes it when
// publish is set.
func (p *Pipeline) Snapshot(ctx context.Context, id uuid.UUID, publish bool) (*SnapshotResult, error) {
	snap, err := p.records.Snapshot(ctx, id)
	if err != nil {
		return nil, err
	}

	res := &SnapshotResult{SnapshotID: id, Label: snap.DisplayLabel(), CompletedAt: snap.CompletedAt}
	res.Tree = p.renderer.RenderSnapshot(render.SnapshotInput{
		Label:       res.Label,
		CompletedAt: snap.CompletedAt,
		Data:        snap.Data,
		Extractor:   p.extractor,
	})
	slog.Info("snapshot rendered", "snapshot", id, "pages", len(res.Tree.Children)+1)

	if !publish {
		return res, nil
	}

	wc, err := p.wikiConfig(ctx, snap.ServerID)
	if err != nil {
		return res, err
	}

	children := make([]wiki.Page, len(res.Tree.Children))
	for i, c := range res.Tree.Children {
		children[i] = wiki.Page{Title: c.Title, Body: c.Body}
	}
	root := wiki.Page{Title: res.Tree.Root.Title, Body: res.Tree.Root.Body}

	tree, err := p.newPublisher(*wc).PublishTree(ctx, root, children, "", p.cfg.Publish.Concurrency)
	res.Published = tree
	if err != nil {
		return res, fmt.Errorf("publishing snapshot %s: %w", id, err)
	}
	slog.Info("snapshot published", "snapshot", id, "root", tree.Root.PageID, "children", len(tree.Children))
	return res, nil
}

// wikiConfig resolves the wiki location of a catalog server, falling back
// to the configured one when the server has none.
func (p *Pipeline) wikiConfig(ctx context.Context, serverID uuid.UUID) (*wiki.Config, error) {
	wc, err := p.records.WikiConfig(ctx, serverID)
	var nf *store.NotFoundError
	if errors.As(err, &nf) {
		if fb, ok := p.cfg.Wiki.Fallback(); ok {
			slog.Info("no stored wiki config, using configured fallback", "server", serverID)
			return fb, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return wc, nil
}

// Inspect normalizes a raw diff document and returns its report together
// with non-blocking validation warnings.
func Inspect(raw []byte) (*diff.Report, []validate.Issue, error) {
	doc, err := diff.ParseDocument(raw)
	if err != nil {
		return nil, nil, err
	}

	var warnings []validate.Issue
	if vr, err := validate.Document(doc); err != nil {
		slog.Warn("diff validation unavailable", "error", err)
	} else {
		warnings = vr.Warnings()
	}

	report, err := diff.Normalize(doc)
	if err != nil {
		return nil, nil, err
	}
	return report, warnings, nil
}

// ExitCode maps an error to the CLI exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		exit        *ExitError
		notFound    *store.NotFoundError
		malformed   *diff.MalformedDiffError
		ambiguous   *wiki.AmbiguousTargetError
		concurrent  *wiki.ConcurrentModificationError
		unavailable *wiki.RemoteUnavailableError
	)
	switch {
	case errors.As(err, &exit):
		return exit.Code
	case errors.As(err, &notFound):
		return ExitNotFound
	case errors.As(err, &malformed):
		return ExitMalformed
	case errors.As(err, &ambiguous), errors.As(err, &concurrent):
		return ExitConflict
	case errors.As(err, &unavailable):
		return ExitUnavailable
	}
	return ExitFailure
}
