package wiki

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Page is one page to publish.
type Page struct {
	Title string
	Body  string
}

// TreeResult holds the locations of a published page tree. Children is
// index-aligned with the input; a child that failed to publish is nil.
type TreeResult struct {
	Root     *Location   `json:"root" yaml:"root"`
	Children []*Location `json:"children" yaml:"children"`
}

// Published returns every location that was written, root first.
func (r *TreeResult) Published() []*Location {
	if r == nil || r.Root == nil {
		return nil
	}
	out := []*Location{r.Root}
	for _, c := range r.Children {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// PublishTree upserts root below parent and then every child below root,
// at most limit children at a time. On a child failure the first error is
// returned together with whatever was published; nothing is rolled back.
func (c *Client) PublishTree(ctx context.Context, root Page, children []Page, parent string, limit int) (*TreeResult, error) {
	rootLoc, err := c.Upsert(ctx, root.Title, root.Body, parent)
	if err != nil {
		return nil, fmt.Errorf("publishing %q: %w", root.Title, err)
	}

	res := &TreeResult{Root: rootLoc, Children: make([]*Location, len(children))}
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, child := range children {
		g.Go(func() error {
			loc, err := c.Upsert(ctx, child.Title, child.Body, rootLoc.PageID)
			if err != nil {
				return fmt.Errorf("publishing %q: %w", child.Title, err)
			}
			res.Children[i] = loc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}
