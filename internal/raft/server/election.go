package server

import (
	"time"

	"raftkv/internal/raft/message"
)

// beginElection fires on election-timeout expiry while Follower or
// Candidate, per Section 5.2 from the Raft paper.
func (r *Replica) beginElection() {
	r.currentTerm++
	r.role = RoleCandidate
	self := r.id
	r.votedFor = &self
	r.leader = message.Broadcast
	r.candidate = &candidateState{votesReceived: map[message.ReplicaID]bool{r.id: true}}
	r.leaderSt = nil
	r.electionStartedAt = time.Now()

	r.metrics.RecordElection()
	r.logger.WithField("term", r.currentTerm).Info("starting election")

	lastIndex := r.log.LastIndex()
	lastTerm := r.log.LastTerm()
	r.broadcast(func(message.ReplicaID) message.Envelope {
		return message.Envelope{
			Type:         message.TypeRequestVote,
			Term:         r.currentTerm,
			CandidateID:  string(r.id),
			LastLogIndex: lastIndex,
			LastLogTerm:  lastTerm,
		}
	})

	r.resetElectionDeadline()
}

// handleRequestVote answers a candidate's solicitation. Granting requires
// all three conditions from Section 5.2/5.4 of the Raft paper: term
// currency, a vote not already cast elsewhere this term, and a log that is
// at least as up to date as ours.
func (r *Replica) handleRequestVote(env message.Envelope) {
	if env.Term > r.currentTerm {
		r.stepDown(env.Term)
	}

	granted := false
	if env.Term >= r.currentTerm {
		candidateID := message.ReplicaID(env.CandidateID)
		votedOK := r.votedFor == nil || *r.votedFor == candidateID
		upToDate := env.LastLogTerm > r.log.LastTerm() ||
			(env.LastLogTerm == r.log.LastTerm() && env.LastLogIndex >= r.log.LastIndex())

		if votedOK && upToDate {
			r.votedFor = &candidateID
			r.resetElectionDeadline()
			granted = true
		}
	}

	r.metrics.RecordRequestVote()
	r.send(message.ReplicaID(env.CandidateID), message.Envelope{
		Type:    message.TypeRequestVoteResponse,
		Term:    r.currentTerm,
		Granted: granted,
	})
}

// handleRequestVoteResponse only has effect while still Candidate in the
// term the vote was solicited for.
func (r *Replica) handleRequestVoteResponse(env message.Envelope) {
	if env.Term > r.currentTerm {
		r.stepDown(env.Term)
		return
	}
	if r.role != RoleCandidate || env.Term != r.currentTerm || !env.Granted {
		return
	}

	r.candidate.votesReceived[env.Src] = true
	if len(r.candidate.votesReceived) >= r.majority() {
		r.becomeLeader()
	}
}

// becomeLeader initializes per-peer tracking per Section 5.3 of the Raft
// paper and immediately asserts authority with an empty AppendEntries,
// since a just-elected leader must not wait for the next heartbeat tick to
// announce itself.
func (r *Replica) becomeLeader() {
	r.role = RoleLeader
	r.leader = r.id
	r.candidate = nil

	next := make(map[message.ReplicaID]int64, len(r.peers))
	match := make(map[message.ReplicaID]int64, len(r.peers))
	for _, p := range r.peers {
		next[p] = r.log.LastIndex() + 1
		match[p] = -1
	}

	r.leaderSt = &leaderState{
		nextIndex:          next,
		matchIndex:         match,
		followersResponded: map[message.ReplicaID]bool{},
		answeredMIDs:       map[string]clientReply{},
		enqueuedAt:         map[string]time.Time{},
		lastHeartbeatSent:  time.Now(),
		lastBatchFlush:     time.Now(),
		quorumWindowStart:  time.Now(),
	}

	if !r.electionStartedAt.IsZero() {
		r.metrics.RecordElectionDuration(time.Since(r.electionStartedAt))
	}

	r.logger.WithField("term", r.currentTerm).Info("elected leader")

	r.sendAppendEntriesToAll()
	r.flushBuffer()
}

// stepDownOnHigherTermAppend is called from the AppendEntries handler. A
// strictly higher term always forces a step-down (term monotonicity). A
// Candidate that sees any AppendEntries in its own term recognizes the
// sender as the legitimate winner of that term's election and steps down,
// per Section 5.2 of the Raft paper. A Leader seeing one in its own term
// from someone else would mean two leaders in the same term, which
// violates election safety and can only mean a bug, not a reachable
// protocol state.
func (r *Replica) stepDownOnHigherTermAppend(env message.Envelope) {
	if env.Term > r.currentTerm {
		r.stepDown(env.Term)
		return
	}
	if r.role == RoleCandidate {
		r.role = RoleFollower
		r.candidate = nil
	}
	if r.role == RoleLeader && env.Src != r.id {
		r.fatalf("election safety violated: two leaders in term %d (%s and %s)", r.currentTerm, r.id, env.Src)
	}
}
