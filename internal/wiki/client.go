// Package wiki publishes pages to Confluence with title-based upserts.
package wiki

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/everstacklabs/pimdoc/internal/httpclient"
)

const contentPath = "/wiki/rest/api/content"

// Config is the wiki location and credential of one request. With a Username
// the token is sent as basic auth (Cloud API token); without one it is sent
// as a bearer personal access token.
type Config struct {
	BaseURL    string `json:"base_url"`
	Username   string `json:"username"`
	APIToken   string `json:"-"`
	SpaceKey   string `json:"space_key"`
	ParentPage string `json:"parent_page,omitempty"`
}

// Locker serializes upserts of one title across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// Location identifies a published page.
type Location struct {
	PageID  string `json:"page_id" yaml:"page_id"`
	Title   string `json:"title" yaml:"title"`
	Version int    `json:"version" yaml:"version"`
	URL     string `json:"url" yaml:"url"`
	Created bool   `json:"created" yaml:"created"`
}

// Client talks to the Confluence REST content API.
type Client struct {
	cfg            Config
	http           *http.Client
	rps            float64
	timeout        time.Duration
	attempts       int
	pageSize       int
	representation string
	locker         Locker

	hc *httpclient.Client
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithUpdateAttempts bounds the fetch-and-resubmit cycles of an update.
func WithUpdateAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithLocker runs every upsert under a lock keyed by space and title.
func WithLocker(l Locker) Option {
	return func(c *Client) { c.locker = l }
}

// WithPageSize sets the page size of title searches.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRateLimit caps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) { c.rps = rps }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRepresentation sets the body representation of submitted pages
// ("storage" or "wiki").
func WithRepresentation(r string) Option {
	return func(c *Client) {
		if r != "" {
			c.representation = r
		}
	}
}

// New creates a Client for cfg.
func New(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		cfg:            cfg,
		timeout:        30 * time.Second,
		attempts:       3,
		pageSize:       25,
		representation: "storage",
	}
	for _, opt := range opts {
		opt(c)
	}

	hopts := []httpclient.Option{
		httpclient.WithRateLimit(c.rps),
		httpclient.WithTimeout(c.timeout),
	}
	if c.http != nil {
		hopts = append(hopts, httpclient.WithHTTPClient(c.http))
	}
	if cfg.Username == "" && cfg.APIToken != "" {
		hopts = append(hopts, httpclient.WithBearerToken(cfg.APIToken))
	}
	c.hc = httpclient.New(hopts...)
	return c
}

// Space returns the configured space key.
func (c *Client) Space() string { return c.cfg.SpaceKey }

type version struct {
	Number int `json:"number"`
}

type ancestor struct {
	ID string `json:"id"`
}

type links struct {
	Base  string `json:"base,omitempty"`
	WebUI string `json:"webui,omitempty"`
	Next  string `json:"next,omitempty"`
}

type content struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Version   *version   `json:"version"`
	Ancestors []ancestor `json:"ancestors"`
	Links     links      `json:"_links"`
}

type searchResponse struct {
	Results []content `json:"results"`
	Links   links     `json:"_links"`
}

type spaceRef struct {
	Key string `json:"key"`
}

type bodyValue struct {
	Value          string `json:"value"`
	Representation string `json:"representation"`
}

type pageBody struct {
	Storage bodyValue `json:"storage"`
}

type pageRequest struct {
	ID        string     `json:"id,omitempty"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Space     spaceRef   `json:"space"`
	Ancestors []ancestor `json:"ancestors,omitempty"`
	Body      pageBody   `json:"body"`
	Version   *version   `json:"version,omitempty"`
}

// Upsert publishes body under title. An existing page with that exact title
// (below parent, when given) is updated in place; otherwise a page is created.
// Repeating the call with the same title never creates a second page.
func (c *Client) Upsert(ctx context.Context, title, body, parent string) (*Location, error) {
	if c.locker != nil {
		release, err := c.locker.Acquire(ctx, LockKey(c.cfg.SpaceKey, title))
		if err != nil {
			return nil, fmt.Errorf("locking %q: %w", title, err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("releasing page lock", "title", title, "error", err)
			}
		}()
	}

	matches, base, err := c.search(ctx, title, parent)
	if err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return c.create(ctx, title, body, parent)
	case 1:
		return c.update(ctx, matches[0].ID, title, body, base)
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return nil, &AmbiguousTargetError{Title: title, Space: c.cfg.SpaceKey, PageIDs: ids}
	}
}

// LockKey is the lock name of a page title within a space.
func LockKey(space, title string) string {
	return "pimdoc:page:" + space + ":" + title
}

// search lists every page of the space whose title equals title exactly.
func (c *Client) search(ctx context.Context, title, parent string) ([]content, string, error) {
	var (
		matches []content
		base    string
	)
	for start := 0; ; {
		q := url.Values{}
		q.Set("type", "page")
		q.Set("spaceKey", c.cfg.SpaceKey)
		q.Set("title", title)
		q.Set("expand", "version,ancestors")
		q.Set("start", strconv.Itoa(start))
		q.Set("limit", strconv.Itoa(c.pageSize))

		var page searchResponse
		if err := c.call(ctx, "search "+strconv.Quote(title), http.MethodGet, contentPath+"?"+q.Encode(), nil, &page); err != nil {
			return nil, "", err
		}
		if page.Links.Base != "" {
			base = page.Links.Base
		}

		for _, r := range page.Results {
			if r.Title != title {
				continue
			}
			if parent != "" && !hasAncestor(r, parent) {
				continue
			}
			matches = append(matches, r)
		}

		if page.Links.Next == "" || len(page.Results) == 0 {
			break
		}
		start += len(page.Results)
	}
	return matches, base, nil
}

func hasAncestor(p content, id string) bool {
	for _, a := range p.Ancestors {
		if a.ID == id {
			return true
		}
	}
	return false
}

func (c *Client) create(ctx context.Context, title, body, parent string) (*Location, error) {
	if parent == "" {
		parent = c.cfg.ParentPage
	}
	req := pageRequest{
		Type:  "page",
		Title: title,
		Space: spaceRef{Key: c.cfg.SpaceKey},
		Body:  c.body(body),
	}
	if parent != "" {
		req.Ancestors = []ancestor{{ID: parent}}
	}

	var created content
	if err := c.call(ctx, "create "+strconv.Quote(title), http.MethodPost, contentPath, req, &created); err != nil {
		return nil, err
	}

	slog.Info("page created", "title", title, "id", created.ID, "space", c.cfg.SpaceKey)
	loc := c.location(created, "")
	loc.Created = true
	return loc, nil
}

// update re-reads the current version before every submit. A conflict
// restarts the cycle until attempts run out.
func (c *Client) update(ctx context.Context, pageID, title, body, base string) (*Location, error) {
	op := "update " + strconv.Quote(title)
	for attempt := 1; attempt <= c.attempts; attempt++ {
		var cur content
		err := c.call(ctx, op, http.MethodGet, contentPath+"/"+url.PathEscape(pageID)+"?expand=version", nil, &cur)
		if err != nil {
			if isStatus(err, http.StatusNotFound) {
				return nil, &ConcurrentModificationError{Title: title, PageID: pageID}
			}
			return nil, err
		}

		next := 1
		if cur.Version != nil {
			next = cur.Version.Number + 1
		}
		req := pageRequest{
			ID:      pageID,
			Type:    "page",
			Title:   title,
			Space:   spaceRef{Key: c.cfg.SpaceKey},
			Body:    c.body(body),
			Version: &version{Number: next},
		}

		var updated content
		err = c.call(ctx, op, http.MethodPut, contentPath+"/"+url.PathEscape(pageID), req, &updated)
		if isStatus(err, http.StatusConflict) {
			slog.Warn("version conflict, retrying", "title", title, "id", pageID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		slog.Info("page updated", "title", title, "id", pageID, "version", next)
		if updated.ID == "" {
			updated.ID = pageID
		}
		if updated.Version == nil {
			updated.Version = &version{Number: next}
		}
		return c.location(updated, base), nil
	}
	return nil, &ConcurrentModificationError{Title: title, PageID: pageID, Attempts: c.attempts}
}

func (c *Client) body(value string) pageBody {
	return pageBody{Storage: bodyValue{Value: value, Representation: c.representation}}
}

func (c *Client) location(p content, base string) *Location {
	loc := &Location{PageID: p.ID, Title: p.Title}
	if p.Version != nil {
		loc.Version = p.Version.Number
	}
	if p.Links.Base != "" {
		base = p.Links.Base
	}
	if base != "" && p.Links.WebUI != "" {
		loc.URL = base + p.Links.WebUI
	} else {
		loc.URL = fmt.Sprintf("%s/wiki/spaces/%s/pages/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.SpaceKey), p.ID)
	}
	return loc
}

// call sends one JSON request and decodes a successful response into out.
func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	headers := map[string]string{"Accept": "application/json"}
	if c.cfg.Username != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(c.cfg.Username + ":" + c.cfg.APIToken))
		headers["Authorization"] = "Basic " + cred
	}

	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", op, err)
		}
		headers["Content-Type"] = "application/json"
	}

	resp, err := c.hc.Do(ctx, method, c.cfg.BaseURL+path, headers, payload)
	if err != nil {
		return &RemoteUnavailableError{Op: op, Err: err}
	}
	if !resp.OK() {
		return statusError(op, resp.StatusCode, resp.Body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

func isStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
