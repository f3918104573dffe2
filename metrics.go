package saga

import "time"

// MetricsRecorder receives execution-time records and run outcomes.
type MetricsRecorder interface {
	RecordDuration(name string, duration time.Duration)
	RecordError(name string)
	RecordSuccess(name string)
}

type nopMetrics struct{}

func (nopMetrics) RecordDuration(string, time.Duration) {}
func (nopMetrics) RecordError(string)                   {}
func (nopMetrics) RecordSuccess(string)                 {}

func normalizeMetrics(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
