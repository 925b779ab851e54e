// Package statemachine defines the key-value state machine applied by
// committed log entries, mirroring the FSM interface shape common to
// Raft implementations (e.g. Hashicorp's Raft FSM).
package statemachine

import "raftkv/internal/raft/message"

// StateMachine is the interface the replica drives when entries commit.
// It intentionally has no Snapshot/Restore methods — snapshotting is out
// of scope for this implementation.
type StateMachine interface {
	// Apply applies committed entries, in order, to the store.
	Apply(entries []message.Entry)
	// Get returns the value for key, or "" if it was never put.
	Get(key string) string
}
