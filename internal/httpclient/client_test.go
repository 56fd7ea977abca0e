package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDoReturnsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "yes" {
			t.Errorf("header not forwarded")
		}
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"stale"}`))
	}))
	defer srv.Close()

	c := New(WithHTTPClient(srv.Client()), WithRateLimit(0))
	resp, err := c.Do(context.Background(), http.MethodPut, srv.URL, map[string]string{"X-Test": "yes"}, []byte("{}"))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.OK() {
		t.Error("409 reported as OK")
	}
	if resp.StatusCode != http.StatusConflict || string(resp.Body) != `{"message":"stale"}` {
		t.Errorf("got %d %q", resp.StatusCode, resp.Body)
	}
}

func TestNewLeavesCallerClientUntouched(t *testing.T) {
	shared := &http.Client{}
	New(WithHTTPClient(shared), WithTimeout(5*time.Second))
	if shared.Timeout != 0 {
		t.Errorf("caller client timeout changed to %v", shared.Timeout)
	}
}

func TestBearerToken(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	c := New(WithHTTPClient(srv.Client()), WithBearerToken("pat-123"))
	if _, err := c.Get(context.Background(), srv.URL, nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "Bearer pat-123" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestRateLimitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := New(WithHTTPClient(srv.Client()), WithRateLimit(0.001))
	if _, err := c.Get(context.Background(), srv.URL, nil); err != nil {
		t.Fatalf("first request: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Get(ctx, srv.URL, nil); err == nil {
		t.Fatal("expected rate limit wait to fail on a cancelled context")
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	if _, err := New().Get(context.Background(), url, nil); err == nil {
		t.Fatal("expected error from closed server")
	}
}
