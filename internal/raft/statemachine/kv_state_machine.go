package statemachine

import (
	"github.com/sirupsen/logrus"

	"raftkv/internal/raft/message"
)

// KV is a simple key-value store implementing StateMachine. Entries carry
// a structured Key/Value, so Apply just assigns — every applied key is
// considered defined, unset keys read as "".
type KV struct {
	store map[string]string
	id    string
	log   *logrus.Entry
}

// New creates a key-value state machine for the replica identified by id,
// used only to tag log lines.
func New(id string, log *logrus.Entry) *KV {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &KV{
		store: make(map[string]string),
		id:    id,
		log:   log,
	}
}

// Apply assigns kv[e.Key] = e.Value for every entry, in order.
func (kv *KV) Apply(entries []message.Entry) {
	for _, e := range entries {
		kv.store[e.Key] = e.Value
		kv.log.WithFields(logrus.Fields{
			"replica": kv.id,
			"key":     e.Key,
		}).Debug("applied put to state machine")
	}
}

// Get returns the value for key, or "" if it was never put.
func (kv *KV) Get(key string) string {
	return kv.store[key]
}
