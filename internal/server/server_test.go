package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everstacklabs/pimdoc/internal/diff"
	"github.com/everstacklabs/pimdoc/internal/pipeline"
	"github.com/everstacklabs/pimdoc/internal/store"
	"github.com/everstacklabs/pimdoc/internal/wiki"
)

type fakeProcessor struct {
	err       error
	published []uuid.UUID
}

func (f *fakeProcessor) Diff(_ context.Context, id uuid.UUID, publish bool) (*pipeline.DiffResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	res := &pipeline.DiffResult{
		DiffID: id,
		Before: "a",
		After:  "b",
		Report: &diff.Report{Categories: []diff.CategoryDiff{{Name: "attributes"}}},
	}
	if publish {
		f.published = append(f.published, id)
		res.Location = &wiki.Location{PageID: "42", Version: 3}
	}
	return res, nil
}

func (f *fakeProcessor) Snapshot(_ context.Context, id uuid.UUID, publish bool) (*pipeline.SnapshotResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.published = append(f.published, id)
	return &pipeline.SnapshotResult{
		SnapshotID: id,
		Published:  &wiki.TreeResult{Root: &wiki.Location{PageID: "1"}},
	}, nil
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestServer(t *testing.T, proc Processor, opts ...Option) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(New(proc, append([]Option{WithLogger(logger)}, opts...)...).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestPublishDiff(t *testing.T) {
	proc := &fakeProcessor{}
	srv := newTestServer(t, proc)
	id := uuid.New()

	status, body := do(t, http.MethodPost, srv.URL+"/diffs/"+id.String()+"/publish")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, id.String(), body["diff_id"])
	assert.Equal(t, "42", body["location"].(map[string]any)["page_id"])
	assert.Equal(t, []uuid.UUID{id}, proc.published)
}

func TestDiffReportDoesNotPublish(t *testing.T) {
	proc := &fakeProcessor{}
	srv := newTestServer(t, proc)

	status, body := do(t, http.MethodGet, srv.URL+"/diffs/"+uuid.NewString()+"/report")
	assert.Equal(t, http.StatusOK, status)
	assert.NotContains(t, body, "location")
	assert.Contains(t, body, "report")
	assert.Empty(t, proc.published)
}

func TestPublishSnapshot(t *testing.T) {
	srv := newTestServer(t, &fakeProcessor{})

	status, body := do(t, http.MethodPost, srv.URL+"/snapshots/"+uuid.NewString()+"/publish")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "published")
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", &store.NotFoundError{Kind: "diff", ID: "x"}, http.StatusNotFound, "not_found"},
		{"malformed", &diff.MalformedDiffError{Reason: "root must be an object"}, http.StatusUnprocessableEntity, "malformed_diff"},
		{"ambiguous", &wiki.AmbiguousTargetError{Title: "t", Space: "PIM", PageIDs: []string{"1", "2"}}, http.StatusConflict, "conflict"},
		{"concurrent", &wiki.ConcurrentModificationError{Title: "t", PageID: "1", Attempts: 3}, http.StatusConflict, "conflict"},
		{"unavailable", &wiki.RemoteUnavailableError{Op: "search", StatusCode: 503}, http.StatusBadGateway, "wiki_unavailable"},
		{"internal", errors.New("db password is hunter2"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeProcessor{err: tt.err})

			status, body := do(t, http.MethodPost, srv.URL+"/diffs/"+uuid.NewString()+"/publish")
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body["error"])
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, body, "error_description")
			} else {
				assert.Equal(t, tt.err.Error(), body["error_description"])
			}
		})
	}
}

func TestInvalidID(t *testing.T) {
	srv := newTestServer(t, &fakeProcessor{})

	status, body := do(t, http.MethodPost, srv.URL+"/diffs/not-a-uuid/publish")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_request", body["error"])
}

func TestHealthz(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	srv := newTestServer(t, &fakeProcessor{}, WithHealthCheck("database", ok))
	status, body := do(t, http.MethodGet, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["checks"].(map[string]any)["database"])

	srv = newTestServer(t, &fakeProcessor{}, WithHealthCheck("redis", down))
	status, body = do(t, http.MethodGet, srv.URL+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "connection refused", body["checks"].(map[string]any)["redis"])
}
