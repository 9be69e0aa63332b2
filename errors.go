// Package k4a exposes a depth camera's color, depth, infrared and motion streams together with
// its calibration and the geometry needed to map between its cameras.
//
// Every type here owns native resources and must be closed. Images, captures and devices are
// owned by exactly one Go value at a time; CloneShared hands out a second owner of the same
// native resource and CloneIndependent copies it.
package k4a

import (
	"github.com/pkg/errors"

	"go.viam.com/k4a/handle"
	"go.viam.com/k4a/native"
)

var (
	// ErrFailed is wrapped by errors reporting that the native library failed a call.
	ErrFailed = errors.New("native call failed")
	// ErrTimeout is returned by blocking reads that gave up waiting. It is not a failure; the
	// stream is still running.
	ErrTimeout = errors.New("timed out waiting for data")
	// ErrClosed is returned when a closed resource is used.
	ErrClosed = handle.ErrClosed
)

func failed(format string, args ...interface{}) error {
	return errors.Wrapf(ErrFailed, format, args...)
}

func checkResult(res native.Result, format string, args ...interface{}) error {
	if res.Succeeded() {
		return nil
	}
	return failed(format, args...)
}

// library resolves an explicit library or falls back to the process-wide one.
func library(lib native.Library) (native.Library, error) {
	if lib != nil {
		return lib, nil
	}
	return native.Default()
}
