package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"raftkv/internal/config"
	"raftkv/internal/raft/message"
	"raftkv/internal/raft/statemachine"
	"raftkv/internal/raft/transport"
)

// newTestReplica builds a Replica wired to a fresh endpoint on net, with a
// real in-memory state machine, for tests that exercise handlers directly
// without running the event loop. It returns the replica and the same
// endpoint handed to it, so the test can recv whatever the replica sends.
func newTestReplica(t *testing.T, net *transport.Network, id message.ReplicaID, peers []message.ReplicaID) (*Replica, *transport.MemoryTransport) {
	t.Helper()
	ep := net.Endpoint(id)
	sm := statemachine.New(string(id), nil)
	r := New(id, peers, sm, ep, nil, config.Default(), nil)
	return r, ep
}

func recvOne(t *testing.T, ep *transport.MemoryTransport) message.Envelope {
	t.Helper()
	env, ok, err := ep.Recv(time.Now().Add(100 * time.Millisecond))
	require.NoError(t, err)
	require.True(t, ok, "expected a pending message")
	return env
}

func recvNone(t *testing.T, ep *transport.MemoryTransport) {
	t.Helper()
	_, ok, err := ep.Recv(time.Now().Add(10 * time.Millisecond))
	require.NoError(t, err)
	require.False(t, ok, "expected no pending message")
}
