package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"raftkv/internal/raft/message"
	"raftkv/internal/raft/transport"
)

func TestDispatchRoutesByMessageType(t *testing.T) {
	net := transport.NewNetwork()
	r, _ := newTestReplica(t, net, "0002", []message.ReplicaID{"0001"})
	_, ep1 := newTestReplica(t, net, "0001", nil)

	r.dispatch(message.Envelope{Type: message.TypeRequestVote, Src: "0001", Term: 1, CandidateID: "0001"})

	resp := recvOne(t, ep1)
	assert.Equal(t, message.TypeRequestVoteResponse, resp.Type)
}

func TestFireExpiredTimerIgnoresStaleElectionDeadlineWhileLeader(t *testing.T) {
	net := transport.NewNetwork()
	r, _ := newTestReplica(t, net, "0001", []message.ReplicaID{"0002"})
	_, peerEp := newTestReplica(t, net, "0002", nil)
	makeLeader(t, r, []message.ReplicaID{"0002"})
	r.electionDeadline = time.Now().Add(-time.Second)
	r.leaderSt.lastHeartbeatSent = time.Now().Add(-time.Second)

	r.fireExpiredTimer()

	assert.Equal(t, RoleLeader, r.Role(), "a leader never acts on its own stale election deadline; that's the partition detector's job")
	env := recvOne(t, peerEp)
	assert.Equal(t, message.TypeAppendEntries, env.Type)
}

func TestFireExpiredTimerSendsHeartbeatWhenDue(t *testing.T) {
	net := transport.NewNetwork()
	r, _ := newTestReplica(t, net, "0001", []message.ReplicaID{"0002"})
	_, peerEp := newTestReplica(t, net, "0002", nil)
	makeLeader(t, r, []message.ReplicaID{"0002"})
	r.electionDeadline = time.Now().Add(time.Hour)
	r.leaderSt.lastHeartbeatSent = time.Now().Add(-time.Second)

	r.fireExpiredTimer()

	env := recvOne(t, peerEp)
	assert.Equal(t, message.TypeAppendEntries, env.Type)
}

func TestNextDeadlineIgnoresElectionTimerWhileLeader(t *testing.T) {
	net := transport.NewNetwork()
	r, _ := newTestReplica(t, net, "0001", []message.ReplicaID{"0002"})
	makeLeader(t, r, []message.ReplicaID{"0002"})
	r.electionDeadline = time.Now().Add(time.Hour)
	r.leaderSt.lastHeartbeatSent = time.Now().Add(-time.Hour)
	r.leaderSt.quorumWindowStart = time.Now()

	deadline := r.nextDeadline()

	assert.True(t, deadline.Before(time.Now()), "an overdue heartbeat must win over a far-future election deadline")
}

// TestNextDeadlineIsNotStuckInThePastWhileLeader guards against the
// electionDeadline that stopped advancing once this replica won its
// election (it is only ever refreshed for a Follower/Candidate) leaking
// into the Leader's deadline computation: if nextDeadline ever returned
// that stale past time again, Recv would be given an already-elapsed
// deadline on every iteration and the loop would busy-spin instead of
// blocking.
func TestNextDeadlineIsNotStuckInThePastWhileLeader(t *testing.T) {
	net := transport.NewNetwork()
	r, _ := newTestReplica(t, net, "0001", []message.ReplicaID{"0002"})
	makeLeader(t, r, []message.ReplicaID{"0002"})
	r.electionDeadline = time.Now().Add(-time.Hour)
	r.leaderSt.lastHeartbeatSent = time.Now()
	r.leaderSt.quorumWindowStart = time.Now()

	deadline := r.nextDeadline()

	assert.True(t, deadline.After(time.Now()), "a stale electionDeadline must never leak into the leader's next deadline")
}
