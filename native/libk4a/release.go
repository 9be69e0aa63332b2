//go:build k4a && cgo

package libk4a

import "C"

import (
	"runtime"
	"runtime/cgo"
	"unsafe"
)

// k4aGoReleaseBuffer is called by the library when the last reference to an image created
// from a Go buffer goes away.
//
//export k4aGoReleaseBuffer
func k4aGoReleaseBuffer(_, context unsafe.Pointer) {
	h := cgo.Handle(uintptr(context))
	h.Value().(*runtime.Pinner).Unpin()
	h.Delete()
}
