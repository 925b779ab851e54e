package server

import (
	"time"

	"raftkv/internal/raft/message"
)

// Run is the single-threaded event loop: each iteration computes the
// nearest timer deadline, blocks on the transport with that deadline, and
// dispatches whatever fired first, in strict priority order: election
// timeout, heartbeat, batch flush, quorum window. It returns only when Stop
// is called or the transport reports a fatal error; a detected invariant
// breach panics rather than returning, so the caller (cmd/raftkv) can
// recover it into a non-zero exit code.
func (r *Replica) Run() error {
	for !r.stopped {
		deadline := r.nextDeadline()

		env, ok, err := r.transport.Recv(deadline)
		if err != nil {
			return err
		}
		if !ok {
			r.fireExpiredTimer()
			continue
		}
		r.dispatch(env)
	}
	return nil
}

// Stop asks the loop to exit after its current iteration.
func (r *Replica) Stop() { r.stopped = true }

// nextDeadline is the earliest of the four timers that applies to the
// replica's current role; a timer that does not apply in this role (e.g.
// the election timeout while Leader) is simply excluded from the min.
func (r *Replica) nextDeadline() time.Time {
	if r.role == RoleLeader && r.leaderSt != nil {
		deadline := r.leaderSt.lastHeartbeatSent.Add(r.cfg.HeartbeatInterval())
		if len(r.leaderSt.pendingBatch) > 0 {
			deadline = earliest(deadline, r.leaderSt.lastBatchFlush.Add(r.cfg.BatchFlushInterval()))
		}
		deadline = earliest(deadline, r.quorumWindowDeadline())
		return deadline
	}

	return r.electionDeadline
}

func earliest(a, b time.Time) time.Time {
	if b.IsZero() {
		return a
	}
	if a.IsZero() || b.Before(a) {
		return b
	}
	return a
}

// fireExpiredTimer is called when Recv times out with no datagram; it
// re-checks every timer actually due (several can expire in the same
// instant, e.g. batch flush and heartbeat both overdue) in priority order:
// election timeout, heartbeat, batch flush, quorum window.
func (r *Replica) fireExpiredTimer() {
	now := time.Now()

	if (r.role == RoleFollower || r.role == RoleCandidate) && !now.Before(r.electionDeadline) {
		r.beginElection()
		return
	}

	if r.role != RoleLeader || r.leaderSt == nil {
		return
	}

	if !now.Before(r.leaderSt.lastHeartbeatSent.Add(r.cfg.HeartbeatInterval())) {
		r.sendAppendEntriesToAll()
		return
	}
	if len(r.leaderSt.pendingBatch) > 0 && !now.Before(r.leaderSt.lastBatchFlush.Add(r.cfg.BatchFlushInterval())) {
		r.flushPutBatch()
		return
	}
	if qd := r.quorumWindowDeadline(); !qd.IsZero() && !now.Before(qd) {
		r.checkQuorumWindow()
		return
	}
}

func (r *Replica) dispatch(env message.Envelope) {
	switch env.Type {
	case message.TypeRequestVote:
		r.handleRequestVote(env)
	case message.TypeRequestVoteResponse:
		r.handleRequestVoteResponse(env)
	case message.TypeAppendEntries:
		r.handleAppendEntries(env)
	case message.TypeAppendEntriesResponse:
		r.handleAppendEntriesResponse(env)
	case message.TypeGet, message.TypePut:
		r.handleClientRequest(env)
	default:
		r.logger.WithField("type", env.Type).Debug("unrecognized message type discarded")
	}
}
