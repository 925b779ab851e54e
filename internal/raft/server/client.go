package server

import (
	"time"

	"raftkv/internal/raft/message"
)

// handleClientRequest is the ingress for get/put: a follower/candidate
// redirects or buffers, a leader whose inMinorityPartition flag is set
// fails fast, and any other leader batches puts and answers or defers gets.
// checkQuorumWindow does not set that flag: a leader that loses its quorum
// steps down instead, and then answers as a Candidate (redirect or buffer).
func (r *Replica) handleClientRequest(env message.Envelope) {
	req := clientRequest{Type: env.Type, Key: env.Key, Value: env.Value, Client: env.Src, MID: env.MID}

	if r.role != RoleLeader {
		r.redirectOrBuffer(req)
		return
	}

	if r.leaderSt.inMinorityPartition {
		r.send(req.Client, message.Envelope{
			Type:   message.TypeFail,
			MID:    req.MID,
			Leader: message.Broadcast,
		})
		return
	}

	switch req.Type {
	case message.TypePut:
		r.enqueuePut(req)
	case message.TypeGet:
		r.serveGet(req)
	}
}

func (r *Replica) redirectOrBuffer(req clientRequest) {
	if r.leader != message.Broadcast {
		r.send(req.Client, message.Envelope{
			Type:   message.TypeRedirect,
			MID:    req.MID,
			Leader: r.leader,
		})
		return
	}
	r.buffer = append(r.buffer, req)
}

// redirectBuffer drains requests accumulated while no leader was known, now
// that one has just been recognized (called on learning of a leader via
// AppendEntries).
func (r *Replica) redirectBuffer() {
	if len(r.buffer) == 0 || r.leader == message.Broadcast {
		return
	}
	pending := r.buffer
	r.buffer = nil
	for _, req := range pending {
		r.send(req.Client, message.Envelope{
			Type:   message.TypeRedirect,
			MID:    req.MID,
			Leader: r.leader,
		})
	}
}

// flushBuffer is called right after becoming leader: requests buffered
// while this replica was a follower/candidate with no leader are now
// servable directly.
func (r *Replica) flushBuffer() {
	pending := r.buffer
	r.buffer = nil
	for _, req := range pending {
		if req.Type == message.TypePut {
			r.enqueuePut(req)
		} else {
			r.serveGet(req)
		}
	}
}

func (r *Replica) enqueuePut(req clientRequest) {
	if reply, answered := r.leaderSt.answeredMIDs[dedupKey(req.Client, req.MID)]; answered {
		r.replyOK(req.Client, req.MID, reply)
		return
	}
	if r.putAlreadyOutstanding(req.Client, req.MID) {
		// Already appended (or batched) from an earlier copy of this same
		// retransmitted request; the reply will arrive once it commits.
		return
	}
	key := dedupKey(req.Client, req.MID)
	if _, tracked := r.leaderSt.enqueuedAt[key]; !tracked {
		r.leaderSt.enqueuedAt[key] = time.Now()
	}
	r.leaderSt.pendingBatch = append(r.leaderSt.pendingBatch, req)
	if len(r.leaderSt.pendingBatch) >= r.cfg.BatchSizeThreshold {
		r.flushPutBatch()
	}
}

func (r *Replica) putAlreadyOutstanding(client message.ReplicaID, mid string) bool {
	for _, req := range r.leaderSt.pendingBatch {
		if req.Client == client && req.MID == mid {
			return true
		}
	}
	return r.log.HasUncommittedEntryFor(client, mid)
}

// flushPutBatch builds one LogEntry per buffered put, appends them all, and
// broadcasts the new suffix immediately rather than waiting for the next
// heartbeat tick.
func (r *Replica) flushPutBatch() {
	batch := r.leaderSt.pendingBatch
	r.leaderSt.pendingBatch = nil
	if len(batch) == 0 {
		return
	}

	for _, req := range batch {
		r.log.Append(message.Entry{
			Term:   r.currentTerm,
			Key:    req.Key,
			Value:  req.Value,
			Client: req.Client,
			MID:    req.MID,
		})
	}
	r.leaderSt.lastBatchFlush = time.Now()
	r.sendAppendEntriesToAll()
	// A lone leader (no peers) or one whose peers already match this far
	// can commit immediately; advanceCommitIndex always counts self, so it
	// must not wait for the next AppendEntriesResponse to discover that.
	r.advanceCommitIndex()
}

func (r *Replica) serveGet(req clientRequest) {
	if r.log.HasUncommittedWriteTo(req.Key) {
		r.buffer = append(r.buffer, req)
		return
	}
	value := r.log.Get(req.Key)
	r.replyOK(req.Client, req.MID, clientReply{Value: value, HasValue: true})
}

// replyToCommittedClients answers the originating client of every just-
// applied entry exactly once, and wakes any buffered get that was waiting
// on one of those keys to commit.
func (r *Replica) replyToCommittedClients(applied []message.Entry) {
	for _, e := range applied {
		r.recordCommitLatency(e.Client, e.MID)
		r.replyOK(e.Client, e.MID, clientReply{})
	}
	r.retryBufferedGets()
}

// recordCommitLatency reports how long a put sat between first receipt and
// commit, if this leader was the one that enqueued it.
func (r *Replica) recordCommitLatency(client message.ReplicaID, mid string) {
	key := dedupKey(client, mid)
	start, ok := r.leaderSt.enqueuedAt[key]
	if !ok {
		return
	}
	delete(r.leaderSt.enqueuedAt, key)
	r.metrics.RecordCommandLatency(time.Since(start))
}

func (r *Replica) retryBufferedGets() {
	var stillPending []clientRequest
	for _, req := range r.buffer {
		if req.Type == message.TypeGet && !r.log.HasUncommittedWriteTo(req.Key) {
			r.serveGet(req)
			continue
		}
		stillPending = append(stillPending, req)
	}
	r.buffer = stillPending
}

// replyOK sends ok and records the reply under (client, MID), so a retried
// put gets the same ok again each time it is resent while the state machine
// is never re-applied for it.
func (r *Replica) replyOK(client message.ReplicaID, mid string, reply clientReply) {
	r.leaderSt.answeredMIDs[dedupKey(client, mid)] = reply
	env := message.Envelope{Type: message.TypeOk, MID: mid, Leader: r.id}
	if reply.HasValue {
		env.Value = reply.Value
	}
	r.send(client, env)
}

func dedupKey(client message.ReplicaID, mid string) string {
	return string(client) + "/" + mid
}
