// Package metrics records delta build and apply activity. Components take a
// Recorder and default to NoopRecorder, so metrics cost nothing unless a
// real implementation is injected.
package metrics

import "time"

// Operation labels.
const (
	OperationCreate = "create"
	OperationApply  = "apply"
)

// Recorder receives build and apply events. Implementations must be safe
// for concurrent use.
type Recorder interface {
	// IncFiles counts one file handled by strategy during operation.
	IncFiles(operation, strategy string)
	// IncFallback counts one failed attempt of strategy that fell back.
	IncFallback(strategy, status string)
	// IncChecksumMismatch counts one failed verification.
	IncChecksumMismatch()
	// ObserveDuration records the duration of a whole operation.
	ObserveDuration(operation string, d time.Duration, success bool)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) IncFiles(string, string)                     {}
func (NoopRecorder) IncFallback(string, string)                  {}
func (NoopRecorder) IncChecksumMismatch()                        {}
func (NoopRecorder) ObserveDuration(string, time.Duration, bool) {}
