package scraper

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
)

func TestLeaserAcquireConflictAndExpiry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := NewLeaser(time.Minute, clock, &seqIDs{})

	first, err := l.Acquire("squid-1", "user-a")
	require.NoError(t, err)
	require.NotEmpty(t, first.Token)

	_, err = l.Acquire("squid-1", "user-b")
	require.True(t, errors.Is(err, apperr.ErrConflict))
	require.Error(t, l.Check("squid-1", "user-b", ""))
	require.NoError(t, l.Check("squid-1", "user-a", ""))

	clock.Advance(30 * time.Second)
	renewed, err := l.Acquire("squid-1", "user-a")
	require.NoError(t, err)
	require.Equal(t, first.Token, renewed.Token)
	require.True(t, renewed.ExpiresAt.After(first.ExpiresAt))

	clock.Advance(2 * time.Minute)
	_, ok := l.Current("squid-1")
	require.False(t, ok)
	taken, err := l.Acquire("squid-1", "user-b")
	require.NoError(t, err)
	require.Equal(t, "user-b", taken.Holder)
}

func TestLeaserRelease(t *testing.T) {
	t.Parallel()

	l := NewLeaser(0, newFakeClock(), &seqIDs{})
	_, err := l.Acquire("squid-1", "user-a")
	require.NoError(t, err)

	require.False(t, l.Release("squid-1", "user-b"))
	require.True(t, l.Release("squid-1", "user-a"))
	require.False(t, l.Release("squid-1", "user-a"))
	_, err = l.Acquire("squid-1", "user-b")
	require.NoError(t, err)
}

func TestLeaserCheckVerifiesToken(t *testing.T) {
	t.Parallel()

	l := NewLeaser(time.Minute, newFakeClock(), &seqIDs{})
	lease, err := l.Acquire("squid-1", "user-a")
	require.NoError(t, err)

	require.NoError(t, l.Check("squid-1", "user-a", lease.Token))
	err = l.Check("squid-1", "user-a", "stale-token")
	require.True(t, errors.Is(err, apperr.ErrConflict))
	require.True(t, errors.Is(l.Check("squid-1", "user-b", lease.Token), apperr.ErrConflict))

	require.True(t, l.Release("squid-1", "user-a"))
	require.NoError(t, l.Check("squid-1", "user-a", "stale-token"))
}
