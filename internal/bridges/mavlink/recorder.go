package mavlink

import "time"

// MetricsRecorder receives bridge counters and gauges.
// The Prometheus implementation lives in infrastructure/metrics.
type MetricsRecorder interface {
	RecordReceived(msgType string)
	RecordDiscarded()
	RecordListenerError()
	RecordPublish(msgType string, took time.Duration, err error)
	SetCacheEntries(n int)
	SetListening(listening bool)
	SetBrokerConnected(connected bool)
}

type noopMetrics struct{}

func (noopMetrics) RecordReceived(string)                     {}
func (noopMetrics) RecordDiscarded()                          {}
func (noopMetrics) RecordListenerError()                      {}
func (noopMetrics) RecordPublish(string, time.Duration, error) {}
func (noopMetrics) SetCacheEntries(int)                       {}
func (noopMetrics) SetListening(bool)                         {}
func (noopMetrics) SetBrokerConnected(bool)                   {}
