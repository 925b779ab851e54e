package server

import (
	"time"

	"raftkv/internal/raft/message"
)

// sendAppendEntriesToAll sends every peer the suffix starting at its own
// nextIndex — whatever that peer hasn't been confirmed to hold yet. It is
// used both for the periodic heartbeat and for pushing a freshly appended
// put batch out immediately.
func (r *Replica) sendAppendEntriesToAll() {
	r.broadcast(func(peer message.ReplicaID) message.Envelope {
		return r.appendEntriesFor(peer)
	})
	r.leaderSt.lastHeartbeatSent = time.Now()
}

func (r *Replica) appendEntriesFor(peer message.ReplicaID) message.Envelope {
	next := r.leaderSt.nextIndex[peer]
	prevIndex := next - 1
	prevTerm := r.log.TermAt(prevIndex)

	return message.Envelope{
		Type:         message.TypeAppendEntries,
		Term:         r.currentTerm,
		Leader:       r.id,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      r.log.Slice(next),
		LeaderCommit: r.log.CommitIndex(),
	}
}

// handleAppendEntries implements the seven-step follower procedure from
// Section 5.3 of the Raft paper, including the fast-conflict hint from the
// extended Raft dissertation that lets a leader skip the single-entry
// nextIndex backoff.
func (r *Replica) handleAppendEntries(env message.Envelope) {
	if env.Term < r.currentTerm {
		r.send(env.Src, message.Envelope{
			Type: message.TypeAppendEntriesResponse,
			Term: r.currentTerm,
		})
		return
	}

	r.stepDownOnHigherTermAppend(env)
	r.metrics.RecordAppendEntries()
	if len(env.Entries) == 0 {
		r.metrics.RecordHeartbeat()
	}

	r.leader = env.Leader
	r.resetElectionDeadline()
	r.redirectBuffer()

	if !r.log.MatchesAt(env.PrevLogIndex, env.PrevLogTerm) {
		conflictTerm, conflictIndex := r.conflictHint(env.PrevLogIndex)
		r.send(env.Src, message.Envelope{
			Type:                  message.TypeAppendEntriesResponse,
			Term:                  r.currentTerm,
			Success:               false,
			ConflictingTerm:       conflictTerm,
			ConflictingFirstIndex: conflictIndex,
		})
		return
	}

	r.log.ReconcileSuffix(env.PrevLogIndex, env.Entries)

	if env.LeaderCommit > r.log.CommitIndex() {
		newCommit := env.LeaderCommit
		if r.log.LastIndex() < newCommit {
			newCommit = r.log.LastIndex()
		}
		r.log.SetCommitIndex(newCommit)
		r.log.ApplyUpTo(newCommit)
	}

	r.send(env.Src, message.Envelope{
		Type:       message.TypeAppendEntriesResponse,
		Term:       r.currentTerm,
		Success:    true,
		MatchIndex: r.log.LastIndex(),
	})
}

// conflictHint computes the fast-conflict-recovery pair a follower returns
// when prevLogIndex/prevLogTerm does not match its own log.
func (r *Replica) conflictHint(prevLogIndex int64) (conflictingTerm, conflictingFirstIndex int64) {
	if prevLogIndex >= r.log.Len() {
		return -1, r.log.Len()
	}
	term := r.log.TermAt(prevLogIndex)
	return int64(term), r.log.FirstIndexOfTerm(term)
}

// handleAppendEntriesResponse is leader-only logic: update peer tracking on
// success, or recompute nextIndex from the fast-conflict hint on rejection.
func (r *Replica) handleAppendEntriesResponse(env message.Envelope) {
	if env.Term > r.currentTerm {
		r.stepDown(env.Term)
		return
	}
	if r.role != RoleLeader || r.leaderSt == nil {
		return
	}

	r.leaderSt.followersResponded[env.Src] = true

	if env.Success {
		if env.MatchIndex > r.leaderSt.matchIndex[env.Src] {
			r.leaderSt.matchIndex[env.Src] = env.MatchIndex
		}
		r.leaderSt.nextIndex[env.Src] = r.leaderSt.matchIndex[env.Src] + 1
		r.advanceCommitIndex()
		return
	}

	next := r.nextIndexAfterReject(env.ConflictingTerm, env.ConflictingFirstIndex)
	if next < 0 {
		next = 0
	}
	r.leaderSt.nextIndex[env.Src] = next
	r.send(env.Src, r.appendEntriesFor(env.Src))
}

func (r *Replica) nextIndexAfterReject(conflictingTerm, conflictingFirstIndex int64) int64 {
	if conflictingTerm == -1 {
		return conflictingFirstIndex
	}
	if last := r.log.LastIndexOfTerm(uint64(conflictingTerm)); last != -1 {
		candidate := last + 1
		if candidate < conflictingFirstIndex {
			return candidate
		}
		return conflictingFirstIndex
	}
	return conflictingFirstIndex
}

// advanceCommitIndex enforces the commit-only-in-own-term rule from Section
// 5.4.2 of the Raft paper: an index is only ever committed by counting
// replicas that hold an entry from the leader's current term. Once that
// entry commits, every prior uncommitted index is implicitly carried
// forward with it.
func (r *Replica) advanceCommitIndex() {
	newCommit := r.log.CommitIndex()
	for n := r.log.CommitIndex() + 1; n <= r.log.LastIndex(); n++ {
		if r.log.TermAt(n) != r.currentTerm {
			continue
		}
		count := 1
		for _, p := range r.peers {
			if r.leaderSt.matchIndex[p] >= n {
				count++
			}
		}
		if count >= r.majority() {
			newCommit = n
		}
	}

	if newCommit <= r.log.CommitIndex() {
		return
	}

	r.log.SetCommitIndex(newCommit)
	applied := r.log.ApplyUpTo(newCommit)
	for range applied {
		r.metrics.RecordCommandCommitted()
	}
	r.replyToCommittedClients(applied)
}
