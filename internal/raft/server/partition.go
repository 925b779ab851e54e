package server

import (
	"time"

	"raftkv/internal/raft/message"
)

// checkQuorumWindow is driven by the event loop when the quorum window
// (T_quorum) expires. It is only meaningful for a leader: if the peers that
// responded since the window opened, plus this replica itself, fall short
// of a cluster majority, this replica is isolated in a minority, so it logs
// a warning and steps down by starting a new election. It does not set
// leaderState.inMinorityPartition; beginElection discards the leader state.
func (r *Replica) checkQuorumWindow() {
	if r.role != RoleLeader || r.leaderSt == nil {
		return
	}

	if len(r.leaderSt.followersResponded)+1 < r.majority() {
		r.logger.WithField("term", r.currentTerm).Warn("quorum window expired without majority, stepping down")
		r.beginElection()
		return
	}

	r.leaderSt.followersResponded = map[message.ReplicaID]bool{}
	r.leaderSt.quorumWindowStart = time.Now()
}

func (r *Replica) quorumWindowDeadline() time.Time {
	if r.leaderSt == nil {
		return time.Time{}
	}
	return r.leaderSt.quorumWindowStart.Add(r.cfg.QuorumWindow())
}
