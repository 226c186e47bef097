package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/isomorph/pkg/protocol"
)

func waitClosed(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("%s did not close", s)
	}
}

func TestManagerIPLimit(t *testing.T) {
	m := NewManager(ManagerConfig{MaxSessionsPerIP: 1})

	a := newTestSession("10.0.0.1", "counter")
	require.NoError(t, m.Add(a))
	assert.ErrorIs(t, m.CheckIPLimit("10.0.0.1"), ErrTooManySessionsFromIP)
	assert.ErrorIs(t, m.Add(newTestSession("10.0.0.1", "counter")), ErrTooManySessionsFromIP)
	require.NoError(t, m.Add(newTestSession("10.0.0.2", "counter")))
	assert.ErrorIs(t, m.Add(a), ErrDuplicateSession)
	assert.Equal(t, 2, m.Count())

	a.Close(protocol.CloseNormal, "")
	waitClosed(t, a)
	assert.Nil(t, m.Get(a.ID()))
	assert.NoError(t, m.CheckIPLimit("10.0.0.1"))
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, uint64(2), m.Total())
}

func TestManagerBroadcast(t *testing.T) {
	m := NewManager(ManagerConfig{})
	counter1 := newTestSession("10.0.0.1", "counter")
	counter2 := newTestSession("10.0.0.2", "counter")
	race := newTestSession("10.0.0.3", "race")
	for _, s := range []*Session{counter1, counter2, race} {
		require.NoError(t, m.Add(s))
		s.Start()
	}

	assert.Equal(t, 2, m.Broadcast("counter", &protocol.Ping{Timestamp: 1}))
	assert.Equal(t, 3, m.Broadcast("", &protocol.Ping{Timestamp: 2}))

	assert.Len(t, m.Sessions(), 3)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, 0, m.Count())
	assert.ErrorIs(t, m.Add(newTestSession("10.0.0.4", "counter")), ErrManagerStopped)
}
