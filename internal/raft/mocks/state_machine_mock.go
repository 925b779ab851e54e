package mocks

import (
	"github.com/stretchr/testify/mock"

	"raftkv/internal/raft/message"
)

// StateMachine is a testify mock of statemachine.StateMachine, for tests
// that need to assert on what was applied without a real key-value map.
type StateMachine struct {
	mock.Mock
}

func (m *StateMachine) Apply(entries []message.Entry) {
	m.Called(entries)
}

func (m *StateMachine) Get(key string) string {
	return m.Called(key).String(0)
}
