package native

import "fmt"

// Result is the outcome of a native call that either succeeds or fails.
type Result int32

// Result values.
const (
	ResultSucceeded Result = iota
	ResultFailed
)

// Succeeded reports whether the call succeeded.
func (r Result) Succeeded() bool {
	return r == ResultSucceeded
}

func (r Result) String() string {
	switch r {
	case ResultSucceeded:
		return "succeeded"
	case ResultFailed:
		return "failed"
	default:
		return fmt.Sprintf("Result(%d)", int32(r))
	}
}

// BufferResult is the outcome of a native call that writes into a caller buffer.
// BufferResultTooSmall is an expected step: the call reports the size it needs.
type BufferResult int32

// BufferResult values.
const (
	BufferResultSucceeded BufferResult = iota
	BufferResultFailed
	BufferResultTooSmall
)

func (r BufferResult) String() string {
	switch r {
	case BufferResultSucceeded:
		return "succeeded"
	case BufferResultFailed:
		return "failed"
	case BufferResultTooSmall:
		return "too small"
	default:
		return fmt.Sprintf("BufferResult(%d)", int32(r))
	}
}

// WaitResult is the outcome of a blocking native call.
type WaitResult int32

// WaitResult values.
const (
	WaitResultSucceeded WaitResult = iota
	WaitResultFailed
	WaitResultTimeout
)

func (r WaitResult) String() string {
	switch r {
	case WaitResultSucceeded:
		return "succeeded"
	case WaitResultFailed:
		return "failed"
	case WaitResultTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("WaitResult(%d)", int32(r))
	}
}
