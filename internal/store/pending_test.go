package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingInputFIFO(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.EnqueuePendingInput("wake up", "heartbeat"))
	require.NoError(t, s.EnqueuePendingInput("write your journal", "heartbeat"))

	first, ok, err := s.DequeuePendingInput()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "wake up", first.Content)
	assert.Equal(t, "heartbeat", first.Source)

	second, ok, err := s.DequeuePendingInput()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "write your journal", second.Content)

	_, ok, err = s.DequeuePendingInput()
	require.NoError(t, err)
	assert.False(t, ok, "queue should be empty after both dequeues")
}

func TestPendingInputDequeueConsumesOnce(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.EnqueuePendingInput("only once", "system"))

	_, ok, err := s.DequeuePendingInput()
	require.NoError(t, err)
	require.True(t, ok)

	n, err := s.CountPendingInputs()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, s.HasPendingInput())
}

func TestPendingInputEmptyQueue(t *testing.T) {
	s := newTestStore(t)

	p, ok, err := s.DequeuePendingInput()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, p)
}
