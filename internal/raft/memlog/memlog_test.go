package memlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raftkv/internal/raft/message"
	"raftkv/internal/raft/mocks"
	"raftkv/internal/raft/statemachine"
)

func entry(term uint64, key, value string) message.Entry {
	return message.Entry{Term: term, Key: key, Value: value}
}

func newTestLog() *Log {
	return New(statemachine.New("test", nil))
}

func TestNewLogStartsEmpty(t *testing.T) {
	l := newTestLog()
	assert.EqualValues(t, -1, l.LastIndex())
	assert.EqualValues(t, 0, l.LastTerm())
	assert.EqualValues(t, -1, l.CommitIndex())
	assert.EqualValues(t, -1, l.LastApplied())
	assert.Equal(t, "", l.Get("missing"))
}

func TestAppendAndMatchesAt(t *testing.T) {
	l := newTestLog()
	idx := l.Append(entry(1, "k1", "v1"))
	assert.EqualValues(t, 0, idx)

	assert.True(t, l.MatchesAt(-1, 0))
	assert.True(t, l.MatchesAt(0, 1))
	assert.False(t, l.MatchesAt(0, 2))
	assert.False(t, l.MatchesAt(5, 1))
}

func TestTruncateFrom(t *testing.T) {
	l := newTestLog()
	l.Append(entry(1, "a", "1"))
	l.Append(entry(1, "b", "2"))
	l.Append(entry(2, "c", "3"))

	l.TruncateFrom(1)
	assert.EqualValues(t, 0, l.LastIndex())
	assert.EqualValues(t, 1, l.LastTerm())
}

func TestApplyUpToAppliesInOrderAndIsMonotonic(t *testing.T) {
	l := newTestLog()
	l.Append(entry(1, "k", "v1"))
	l.Append(entry(1, "k", "v2"))
	l.SetCommitIndex(1)

	applied := l.ApplyUpTo(1)
	require.Len(t, applied, 2)
	assert.Equal(t, "v2", l.Get("k"))
	assert.EqualValues(t, 1, l.LastApplied())

	// Re-applying the same commit index is a no-op (idempotent).
	applied = l.ApplyUpTo(1)
	assert.Empty(t, applied)
}

func TestApplyUpToPanicsBeyondLog(t *testing.T) {
	l := newTestLog()
	assert.Panics(t, func() { l.ApplyUpTo(0) })
}

func TestFirstAndLastIndexOfTerm(t *testing.T) {
	l := newTestLog()
	l.Append(entry(1, "a", "1"))
	l.Append(entry(1, "b", "2"))
	l.Append(entry(2, "c", "3"))
	l.Append(entry(2, "d", "4"))

	assert.EqualValues(t, 0, l.FirstIndexOfTerm(1))
	assert.EqualValues(t, 1, l.LastIndexOfTerm(1))
	assert.EqualValues(t, 2, l.FirstIndexOfTerm(2))
	assert.EqualValues(t, 3, l.LastIndexOfTerm(2))
	assert.EqualValues(t, -1, l.FirstIndexOfTerm(99))
}

func TestReconcileSuffixAppendsNewEntries(t *testing.T) {
	l := newTestLog()
	l.Append(entry(1, "a", "1"))

	l.ReconcileSuffix(0, []message.Entry{entry(1, "b", "2"), entry(1, "c", "3")})
	assert.EqualValues(t, 2, l.LastIndex())
	assert.Equal(t, "b", l.EntryAt(1).Key)
	assert.Equal(t, "c", l.EntryAt(2).Key)
}

func TestReconcileSuffixTruncatesOnConflict(t *testing.T) {
	l := newTestLog()
	l.Append(entry(1, "a", "1"))
	l.Append(entry(1, "stale", "old")) // index 1, term 1: will conflict

	l.ReconcileSuffix(0, []message.Entry{entry(2, "fresh", "new")})
	require.EqualValues(t, 1, l.LastIndex())
	assert.Equal(t, "fresh", l.EntryAt(1).Key)
	assert.EqualValues(t, 2, l.EntryAt(1).Term)
}

func TestReconcileSuffixIsIdempotentOnReplay(t *testing.T) {
	l := newTestLog()
	batch := []message.Entry{entry(1, "a", "1"), entry(1, "b", "2")}
	l.ReconcileSuffix(-1, batch)
	l.SetCommitIndex(1)
	l.ApplyUpTo(1)

	// Replaying the exact same AppendEntries must not change the committed prefix.
	l.ReconcileSuffix(-1, batch)
	assert.EqualValues(t, 1, l.LastIndex())
	assert.Equal(t, "2", l.Get("b"))
}

func TestHasUncommittedWriteTo(t *testing.T) {
	l := newTestLog()
	l.Append(entry(1, "k", "v1"))
	assert.True(t, l.HasUncommittedWriteTo("k"))

	l.SetCommitIndex(0)
	l.ApplyUpTo(0)
	assert.False(t, l.HasUncommittedWriteTo("k"))
}

func TestHasUncommittedEntryFor(t *testing.T) {
	l := newTestLog()
	l.Append(message.Entry{Term: 1, Key: "k", Value: "v", Client: "c1", MID: "m1"})
	assert.True(t, l.HasUncommittedEntryFor("c1", "m1"))
	assert.False(t, l.HasUncommittedEntryFor("c1", "m2"))

	l.SetCommitIndex(0)
	assert.False(t, l.HasUncommittedEntryFor("c1", "m1"), "once committed it is no longer outstanding")
}

func TestApplyUpToCallsStateMachineWithExactAppliedEntries(t *testing.T) {
	sm := new(mocks.StateMachine)
	l := New(sm)
	e1 := entry(1, "a", "1")
	e2 := entry(1, "b", "2")
	l.Append(e1)
	l.Append(e2)
	l.SetCommitIndex(1)

	sm.On("Apply", []message.Entry{e1, e2}).Return()

	l.ApplyUpTo(1)

	sm.AssertExpectations(t)
}
