package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDisplayLabel(t *testing.T) {
	s := &Snapshot{CompletedAt: time.Date(2024, 3, 9, 18, 5, 0, 0, time.FixedZone("CET", 3600))}
	assert.Equal(t, "2024-03-09 17:05", s.DisplayLabel())

	s.Label = "spring release"
	assert.Equal(t, "spring release", s.DisplayLabel())
}

func TestNotFoundErrorUnwraps(t *testing.T) {
	err := fmt.Errorf("diff 1: %w", &NotFoundError{Kind: "snapshot", ID: "abc"})

	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
	assert.Equal(t, "snapshot", nf.Kind)
	assert.Equal(t, "diff 1: snapshot not found: abc", err.Error())
}
