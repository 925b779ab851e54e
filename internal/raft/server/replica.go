// Package server implements one replica of the replicated key-value store:
// the single-threaded event loop and the election, replication, client-
// request, and partition-detection logic it drives. There is exactly one
// goroutine per Replica and no mutex anywhere in the package — every field
// below is touched only from that goroutine's Run loop, matching Section 5
// of the Raft paper's description of a server as a sequential state
// machine advanced one RPC or timeout at a time.
package server

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"raftkv/internal/config"
	"raftkv/internal/raft/memlog"
	"raftkv/internal/raft/message"
	"raftkv/internal/raft/metrics"
	"raftkv/internal/raft/statemachine"
	"raftkv/internal/raft/transport"
)

// Replica is one participant in the cluster. Zero value is not usable; use
// New.
type Replica struct {
	id    message.ReplicaID
	peers []message.ReplicaID

	log       *memlog.Log
	sm        statemachine.StateMachine
	transport transport.Transport
	metrics   metrics.Collector
	cfg       config.Config
	logger    *logrus.Entry
	rng       *rand.Rand

	currentTerm uint64
	votedFor    *message.ReplicaID
	role        Role
	leader      message.ReplicaID

	electionDeadline  time.Time
	electionStartedAt time.Time

	candidate *candidateState
	leaderSt  *leaderState

	// buffer holds requests this replica cannot yet answer: a
	// follower/candidate with no known leader, or a leader awaiting commit
	// of an entry a pending get depends on.
	buffer []clientRequest

	stopped bool
}

// New constructs a Replica in the initial Follower state with an empty log,
// as required at process start by the data model's lifecycle rule.
func New(
	id message.ReplicaID,
	peers []message.ReplicaID,
	sm statemachine.StateMachine,
	tr transport.Transport,
	mc metrics.Collector,
	cfg config.Config,
	logger *logrus.Entry,
) *Replica {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if mc == nil {
		mc = metrics.New()
	}

	r := &Replica{
		id:        id,
		peers:     append([]message.ReplicaID(nil), peers...),
		log:       memlog.New(sm),
		sm:        sm,
		transport: tr,
		metrics:   mc,
		cfg:       cfg,
		logger:    logger.WithField("replica", string(id)),
		rng:       rand.New(rand.NewSource(int64(seedFromID(id)))),
		role:      RoleFollower,
		leader:    message.Broadcast,
	}
	r.resetElectionDeadline()
	return r
}

// seedFromID derives a deterministic-but-distinct rand seed per replica so
// election timeouts do not all land on the same instant in a test run with
// a fixed wall clock.
func seedFromID(id message.ReplicaID) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(id); i++ {
		h ^= uint32(id[i])
		h *= 16777619
	}
	return h
}

// ID returns the replica's own identifier.
func (r *Replica) ID() message.ReplicaID { return r.id }

// Role reports the current role tag, chiefly for tests and diagnostics.
func (r *Replica) Role() Role { return r.role }

// CurrentTerm reports the current term, chiefly for tests and diagnostics.
func (r *Replica) CurrentTerm() uint64 { return r.currentTerm }

// Leader reports the replica id currently recognized as leader, or
// message.Broadcast if none is known.
func (r *Replica) Leader() message.ReplicaID { return r.leader }

func (r *Replica) majority() int {
	return (len(r.peers)+1)/2 + 1
}

// stepDown enforces Invariant 1 (term monotonicity): any message carrying a
// higher term forces an immediate transition to Follower.
func (r *Replica) stepDown(term uint64) {
	r.currentTerm = term
	r.votedFor = nil
	r.role = RoleFollower
	r.leader = message.Broadcast
	r.candidate = nil
	r.leaderSt = nil
	r.resetElectionDeadline()
}

func (r *Replica) resetElectionDeadline() {
	lo := r.cfg.ElectionTimeoutLow()
	hi := r.cfg.ElectionTimeoutHigh()
	span := hi - lo
	jitter := time.Duration(0)
	if span > 0 {
		jitter = time.Duration(r.rng.Int63n(int64(span)))
	}
	r.electionDeadline = time.Now().Add(lo + jitter)
}

// send stamps the envelope's addressing fields and hands it to the
// transport. Leader is left to the caller: it means different things on
// different message types (the sending leader's own id on AppendEntries,
// the recognized leader on a client reply, explicitly FFFF on a minority-
// partition fail) and so is never defaulted here.
func (r *Replica) send(dst message.ReplicaID, env message.Envelope) {
	env.Src = r.id
	env.Dst = dst
	if err := r.transport.Send(dst, env); err != nil {
		r.logger.WithError(err).WithField("dst", dst).Debug("send failed")
	}
}

func (r *Replica) broadcast(build func(peer message.ReplicaID) message.Envelope) {
	for _, p := range r.peers {
		r.send(p, build(p))
	}
}

func (r *Replica) fatalf(format string, args ...interface{}) {
	r.logger.Errorf(format, args...)
	panic(fmt.Sprintf(format, args...))
}
