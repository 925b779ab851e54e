package server

import (
	"time"

	"raftkv/internal/raft/message"
)

// Role is the three-valued tag a replica carries, as per Section 5.1 from
// the Raft paper. Role-specific bookkeeping (candidate/leader) is reached
// only through the tag so that illegal combinations, such as a leader that
// still holds an election vote tally, cannot be represented.
type Role uint8

const (
	RoleFollower Role = iota
	RoleCandidate
	RoleLeader
)

func (r Role) String() string {
	switch r {
	case RoleFollower:
		return "Follower"
	case RoleCandidate:
		return "Candidate"
	case RoleLeader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// clientRequest is one buffered get/put awaiting a leader, a commit, or
// both. A put carries Value; a get does not.
type clientRequest struct {
	Type   message.Type
	Key    string
	Value  string
	Client message.ReplicaID
	MID    string
}

// candidateState exists only while role == RoleCandidate.
type candidateState struct {
	votesReceived map[message.ReplicaID]bool
}

// leaderState exists only while role == RoleLeader.
type leaderState struct {
	nextIndex  map[message.ReplicaID]int64
	matchIndex map[message.ReplicaID]int64

	pendingBatch []clientRequest

	followersResponded  map[message.ReplicaID]bool
	inMinorityPartition bool

	lastHeartbeatSent time.Time
	lastBatchFlush    time.Time
	quorumWindowStart time.Time

	// answeredMIDs deduplicates replies for a client request that has
	// already been answered once this leadership term, so a retransmitted
	// MID does not re-apply anything, only re-sends the same ok.
	answeredMIDs map[string]clientReply

	// enqueuedAt records when a put was first enqueued, keyed by
	// dedupKey(client, mid), so the commit latency metric measures from
	// first receipt rather than from the most recent retransmission.
	enqueuedAt map[string]time.Time
}

type clientReply struct {
	Value    string
	HasValue bool
}
