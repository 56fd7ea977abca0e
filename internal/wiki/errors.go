package wiki

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// AmbiguousTargetError is returned when more than one page in the space
// matches the title, so the target of an upsert cannot be decided.
type AmbiguousTargetError struct {
	Title   string
	Space   string
	PageIDs []string
}

func (e *AmbiguousTargetError) Error() string {
	return fmt.Sprintf("title %q is ambiguous in space %s: pages %s",
		e.Title, e.Space, strings.Join(e.PageIDs, ", "))
}

// ConcurrentModificationError is returned when a page kept changing under an
// update, or vanished between search and update.
type ConcurrentModificationError struct {
	Title    string
	PageID   string
	Attempts int
}

func (e *ConcurrentModificationError) Error() string {
	if e.Attempts == 0 {
		return fmt.Sprintf("page %s (%q) disappeared during update", e.PageID, e.Title)
	}
	return fmt.Sprintf("page %s (%q) modified concurrently, gave up after %d attempts",
		e.PageID, e.Title, e.Attempts)
}

// RemoteUnavailableError covers transport failures, throttling and server
// errors from the wiki.
type RemoteUnavailableError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *RemoteUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: wiki unavailable: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: wiki unavailable: status %d", e.Op, e.StatusCode)
}

func (e *RemoteUnavailableError) Unwrap() error { return e.Err }

// APIError is any other non-success response.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, truncate(e.Body, 512))
}

func statusError(op string, status int, body []byte) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return &RemoteUnavailableError{Op: op, StatusCode: status}
	}
	return &APIError{Op: op, StatusCode: status, Body: string(body)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
