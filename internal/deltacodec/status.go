package deltacodec

import (
	"errors"
	"fmt"
)

// ErrUnknownStrategy is returned for a Strategy outside the closed set.
var ErrUnknownStrategy = errors.New("deltacodec: unknown strategy")

// Status is the outcome of one encode or decode attempt.
type Status uint8

const (
	StatusOK Status = iota
	// StatusTooLarge means an input exceeded the strategy's size limit.
	StatusTooLarge
	// StatusBadHeader means a delta stream did not start with the
	// strategy's header.
	StatusBadHeader
	// StatusFailed means the codec itself reported an error.
	StatusFailed
	// StatusIOError means reading inputs or writing output failed.
	StatusIOError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTooLarge:
		return "too-large"
	case StatusBadHeader:
		return "bad-header"
	case StatusFailed:
		return "failed"
	case StatusIOError:
		return "io-error"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Result reports one attempt. Err is nil only when Status is StatusOK.
type Result struct {
	Strategy Strategy
	Status   Status
	Err      error
}

// OK reports whether the attempt succeeded.
func (r Result) OK() bool {
	return r.Status == StatusOK
}

func ok(s Strategy) Result {
	return Result{Strategy: s, Status: StatusOK}
}

func fail(s Strategy, status Status, err error) Result {
	return Result{Strategy: s, Status: status, Err: err}
}
