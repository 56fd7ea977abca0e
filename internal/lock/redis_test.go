package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	l, err := NewRedisLocker("redis://"+s.Addr(), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	l.retry = 5 * time.Millisecond
	return l, s
}

func TestAcquireRelease(t *testing.T) {
	l, s := setupLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "pimdoc:page:PIM:Current model")
	require.NoError(t, err)
	assert.True(t, s.Exists("pimdoc:page:PIM:Current model"))
	assert.Equal(t, time.Minute, s.TTL("pimdoc:page:PIM:Current model"))

	require.NoError(t, release(ctx))
	assert.False(t, s.Exists("pimdoc:page:PIM:Current model"))
}

func TestAcquireWaitsForHolder(t *testing.T) {
	l, _ := setupLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(short, "k")
	assert.True(t, errors.Is(err, ErrNotAcquired))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	done := make(chan error, 1)
	go func() {
		r, err := l.Acquire(ctx, "k")
		if err == nil {
			err = r(ctx)
		}
		done <- err
	}()

	require.NoError(t, release(ctx))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second acquire never succeeded")
	}
}

func TestReleaseAfterExpiryKeepsNewOwner(t *testing.T) {
	l, s := setupLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k")
	require.NoError(t, err)

	s.FastForward(2 * time.Minute)
	require.False(t, s.Exists("k"))

	_, err = l.Acquire(ctx, "k")
	require.NoError(t, err)
	owner, err := s.Get("k")
	require.NoError(t, err)

	require.NoError(t, release(ctx))
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, owner, got)
}

func TestHeldLockIsRenewed(t *testing.T) {
	l, s := setupLocker(t)
	l.renew = 5 * time.Millisecond
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k")
	require.NoError(t, err)

	s.FastForward(50 * time.Second)
	assert.Eventually(t, func() bool {
		return s.TTL("k") == time.Minute
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, release(ctx))
	assert.False(t, s.Exists("k"))
}

func TestRenewalStopsWhenLockIsLost(t *testing.T) {
	l, s := setupLocker(t)
	l.renew = 5 * time.Millisecond
	ctx := context.Background()

	release, err := l.Acquire(ctx, "k")
	require.NoError(t, err)

	require.NoError(t, s.Set("k", "someone-else"))
	time.Sleep(30 * time.Millisecond)

	require.NoError(t, release(ctx))
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestNewRedisLockerBadURL(t *testing.T) {
	_, err := NewRedisLocker("not a url", time.Second)
	assert.Error(t, err)
}
