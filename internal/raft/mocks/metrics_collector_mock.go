package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MetricsCollector is a testify mock of metrics.Collector, for tests that
// want to assert which events were recorded without a real Metrics value.
type MetricsCollector struct {
	mock.Mock
}

func (m *MetricsCollector) RecordCommandLatency(latency time.Duration) { m.Called(latency) }
func (m *MetricsCollector) RecordCommandCommitted()                   { m.Called() }
func (m *MetricsCollector) RecordAppendEntries()                      { m.Called() }
func (m *MetricsCollector) RecordRequestVote()                        { m.Called() }
func (m *MetricsCollector) RecordHeartbeat()                          { m.Called() }
func (m *MetricsCollector) RecordElection()                           { m.Called() }
func (m *MetricsCollector) RecordElectionDuration(duration time.Duration) {
	m.Called(duration)
}
