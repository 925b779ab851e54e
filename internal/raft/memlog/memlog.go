// Package memlog implements the replicated log: an in-memory, 0-indexed
// sequence of message.Entry values plus its commit and apply indices.
// Committed entries are applied in order to a statemachine.StateMachine,
// which holds the key-value map. The log lives only for one process
// lifetime — there is no on-disk persistence.
package memlog

import (
	"fmt"

	"raftkv/internal/raft/message"
	"raftkv/internal/raft/statemachine"
)

// Log is the leader/follower-shared log. Applying committed entries is
// delegated to a statemachine.StateMachine so the log itself stays a pure
// sequence, and so the state machine can be swapped for a mock in tests.
// It is owned exclusively by the replica's event loop; it has no internal
// locking because nothing else may touch it concurrently.
type Log struct {
	entries     []message.Entry
	commitIndex int64
	lastApplied int64
	sm          statemachine.StateMachine
}

// New returns an empty log with commitIndex and lastApplied at -1, as
// required for a freshly started replica, applying committed entries to
// sm.
func New(sm statemachine.StateMachine) *Log {
	return &Log{
		commitIndex: -1,
		lastApplied: -1,
		sm:          sm,
	}
}

// Len returns the number of entries in the log.
func (l *Log) Len() int64 { return int64(len(l.entries)) }

// LastIndex returns the index of the last entry, or -1 if the log is empty.
func (l *Log) LastIndex() int64 { return l.Len() - 1 }

// LastTerm returns the term of the last entry, or 0 if the log is empty.
func (l *Log) LastTerm() uint64 {
	if l.Len() == 0 {
		return 0
	}
	return l.entries[l.Len()-1].Term
}

// EntryAt returns the entry at index i. It panics on an out-of-range index;
// callers must check bounds first (the protocol never asks for an index
// that hasn't been validated against Len()).
func (l *Log) EntryAt(i int64) message.Entry {
	return l.entries[i]
}

// TermAt returns the term of the entry at index i, or 0 if i is out of
// range.
func (l *Log) TermAt(i int64) uint64 {
	if i < 0 || i >= l.Len() {
		return 0
	}
	return l.entries[i].Term
}

// Append appends entry at the end of the log and returns its index.
// Leader-only per the leader append-only invariant.
func (l *Log) Append(entry message.Entry) int64 {
	l.entries = append(l.entries, entry)
	return l.LastIndex()
}

// TruncateFrom erases entries at index and beyond. Followers only, and only
// in response to a detected conflict.
func (l *Log) TruncateFrom(index int64) {
	if index < 0 {
		index = 0
	}
	if index >= l.Len() {
		return
	}
	l.entries = l.entries[:index]
}

// MatchesAt reports whether the log agrees with a leader's claim that the
// entry immediately preceding a new batch sits at prevIndex with prevTerm.
// An empty prefix (prevIndex == -1) always matches.
func (l *Log) MatchesAt(prevIndex int64, prevTerm uint64) bool {
	if prevIndex == -1 {
		return true
	}
	if prevIndex >= l.Len() {
		return false
	}
	return l.entries[prevIndex].Term == prevTerm
}

// FirstIndexOfTerm returns the lowest index whose entry has term t, or -1
// if no entry has that term. Used by the fast-conflict hint machinery.
func (l *Log) FirstIndexOfTerm(t uint64) int64 {
	for i, e := range l.entries {
		if e.Term == t {
			return int64(i)
		}
	}
	return -1
}

// LastIndexOfTerm returns the highest index whose entry has term t, or -1
// if no entry has that term.
func (l *Log) LastIndexOfTerm(t uint64) int64 {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Term == t {
			return int64(i)
		}
	}
	return -1
}

// CommitIndex returns the highest index known to be safe to apply.
func (l *Log) CommitIndex() int64 { return l.commitIndex }

// LastApplied returns the highest index applied to the state machine.
func (l *Log) LastApplied() int64 { return l.lastApplied }

// SetCommitIndex advances the commit index. It never moves it backwards;
// callers (commit advancement, AppendEntries handling) are expected to pass
// only values computed to be an advance.
func (l *Log) SetCommitIndex(index int64) {
	if index > l.commitIndex {
		l.commitIndex = index
	}
}

// ApplyUpTo applies every entry in (lastApplied, commitIdx] to the
// key-value map, in order, and returns the applied entries so the caller
// (the leader) can reply to their originating clients. It panics if
// commitIdx exceeds the log length — that would be a fatal invariant
// breach (an index applied that was never durably appended).
func (l *Log) ApplyUpTo(commitIdx int64) []message.Entry {
	if commitIdx > l.LastIndex() {
		panic(fmt.Sprintf("memlog: ApplyUpTo(%d) exceeds log length %d", commitIdx, l.Len()))
	}
	var applied []message.Entry
	for i := l.lastApplied + 1; i <= commitIdx; i++ {
		applied = append(applied, l.entries[i])
	}
	if len(applied) > 0 {
		l.sm.Apply(applied)
	}
	l.lastApplied = commitIdx
	return applied
}

// Get returns the value most recently assigned by a committed put, or ""
// if the key was never put (every key is considered defined; absent keys
// read as the empty string).
func (l *Log) Get(key string) string {
	return l.sm.Get(key)
}

// HasUncommittedWriteTo reports whether some entry beyond commitIndex
// writes to key — used by the client handler to decide whether a get must
// be buffered until that write commits.
func (l *Log) HasUncommittedWriteTo(key string) bool {
	for i := l.commitIndex + 1; i < l.Len(); i++ {
		if l.entries[i].Key == key {
			return true
		}
	}
	return false
}

// HasUncommittedEntryFor reports whether some entry beyond commitIndex
// originated from the given client request, so a leader re-batching a
// retransmitted put can recognize one already appended but not yet
// committed instead of appending it twice.
func (l *Log) HasUncommittedEntryFor(client message.ReplicaID, mid string) bool {
	for i := l.commitIndex + 1; i < l.Len(); i++ {
		if l.entries[i].Client == client && l.entries[i].MID == mid {
			return true
		}
	}
	return false
}

// ReconcileSuffix merges an incoming AppendEntries payload into the log,
// starting at prevIndex+1: existing entries that conflict (same index,
// different term) truncate the suffix from that point; entries not yet
// present are appended. Already-present, matching entries are left
// untouched, making replayed AppendEntries idempotent.
func (l *Log) ReconcileSuffix(prevIndex int64, entries []message.Entry) {
	for i, e := range entries {
		idx := prevIndex + 1 + int64(i)
		switch {
		case idx < l.Len() && l.entries[idx].Term != e.Term:
			l.TruncateFrom(idx)
			l.entries = append(l.entries, e)
		case idx >= l.Len():
			l.entries = append(l.entries, e)
		}
	}
}

// Slice returns entries[from:], or nil if from is beyond the log.
func (l *Log) Slice(from int64) []message.Entry {
	if from < 0 {
		from = 0
	}
	if from >= l.Len() {
		return nil
	}
	out := make([]message.Entry, l.Len()-from)
	copy(out, l.entries[from:])
	return out
}
