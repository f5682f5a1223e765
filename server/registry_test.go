package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/legamerdc/epollhttp/poller"
)

func TestRegistryInsertRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Insert(newConnection(7, nil, 64)))
	require.ErrorIs(t, r.Insert(newConnection(7, nil, 64)), ErrDuplicateConn)
	require.Equal(t, 1, r.Len())
}

func TestRegistryTakeIsIdempotent(t *testing.T) {
	r := NewRegistry()
	c := newConnection(3, nil, 64)
	require.NoError(t, r.Insert(c))

	got, ok := r.Take(3)
	require.True(t, ok)
	require.Same(t, c, got)

	_, ok = r.Take(3)
	require.False(t, ok)
	_, ok = r.Get(3)
	require.False(t, ok)
	require.Zero(t, r.Len())
}

func TestRegistryFDsSorted(t *testing.T) {
	r := NewRegistry()
	for _, fd := range []int{9, 4, 12, 5} {
		require.NoError(t, r.Insert(newConnection(fd, nil, 64)))
	}
	require.Equal(t, []int{4, 5, 9, 12}, r.FDs())
}

func TestRegistryCheck(t *testing.T) {
	r := NewRegistry()
	c := newConnection(5, nil, 64)
	require.NoError(t, r.Insert(c))
	require.NoError(t, r.Check())

	c.Phase = PhaseWriting
	require.ErrorIs(t, r.Check(), ErrInconsistent)

	c.Interest = poller.Writable
	require.NoError(t, r.Check())

	c.Phase = Phase(0)
	require.ErrorIs(t, r.Check(), ErrInconsistent)
}

func TestNewConnectionStartsReading(t *testing.T) {
	c := newConnection(11, nil, 100)
	require.Equal(t, PhaseReading, c.Phase)
	require.Equal(t, poller.Readable, c.Interest)
	require.Zero(t, c.Buffered())
	require.Empty(t, c.Request())
	require.False(t, c.Accepted.IsZero())
}

func TestPhase(t *testing.T) {
	require.Equal(t, "reading", PhaseReading.String())
	require.Equal(t, "writing", PhaseWriting.String())
	require.Equal(t, "phase(9)", Phase(9).String())

	require.Equal(t, poller.Readable, PhaseReading.Interest())
	require.Equal(t, poller.Writable, PhaseWriting.Interest())
	require.Equal(t, poller.Interest(0), Phase(0).Interest())
}
