// Package fake is a pure Go implementation of the native call surface. It simulates a
// streaming depth camera with real projection math, and exposes reference count probes so
// tests can verify how handles are shared and released.
package fake

import (
	"sync"

	"github.com/benbjohnson/clock"

	"go.viam.com/k4a/logging"
	"go.viam.com/k4a/native"
)

// Options configure a simulated library.
type Options struct {
	// Devices is the number of installed devices. Zero means one.
	Devices int
	// Clock paces frames and IMU samples. Nil means the wall clock.
	Clock clock.Clock
	// Logger receives warnings about misuse such as releasing unknown handles.
	Logger logging.Logger
	// SyncIn and SyncOut are the reported states of the sync jacks.
	SyncIn, SyncOut bool
}

// Library is a simulated native library. Its zero value is not usable; use New.
type Library struct {
	devices int
	clock   clock.Clock
	logger  logging.Logger
	syncIn  bool
	syncOut bool

	mu         sync.Mutex
	nextHandle uintptr
	images     map[native.ImageHandle]*fakeImage
	captures   map[native.CaptureHandle]*fakeCapture
	opened     map[native.DeviceHandle]*fakeDevice
	transforms map[native.TransformationHandle]*fakeTransformation
}

var _ native.Library = (*Library)(nil)

// New returns a simulated library.
func New(opts Options) *Library {
	l := &Library{
		devices:    opts.Devices,
		clock:      opts.Clock,
		logger:     opts.Logger,
		syncIn:     opts.SyncIn,
		syncOut:    opts.SyncOut,
		images:     map[native.ImageHandle]*fakeImage{},
		captures:   map[native.CaptureHandle]*fakeCapture{},
		opened:     map[native.DeviceHandle]*fakeDevice{},
		transforms: map[native.TransformationHandle]*fakeTransformation{},
	}
	if l.devices <= 0 {
		l.devices = 1
	}
	if l.clock == nil {
		l.clock = clock.New()
	}
	if l.logger == nil {
		l.logger = logging.NewLogger("k4a.fake")
	}
	return l
}

// Register makes native.Default load a simulated library built with opts.
func Register(opts Options) {
	native.RegisterLoader(func() (native.Library, error) {
		return New(opts), nil
	})
}

// allocHandle must be called with mu held.
func (l *Library) allocHandle() uintptr {
	// handles look like aligned pointers so they print like the real thing
	l.nextHandle += 0x10
	return 0x1000 + l.nextHandle
}

// ImageRefCount returns the number of outstanding references to an image, zero once freed.
func (l *Library) ImageRefCount(h native.ImageHandle) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if img, ok := l.images[h]; ok {
		return img.refs
	}
	return 0
}

// CaptureRefCount returns the number of outstanding references to a capture, zero once freed.
func (l *Library) CaptureRefCount(h native.CaptureHandle) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.captures[h]; ok {
		return c.refs
	}
	return 0
}

// LiveImages returns the number of images not yet freed.
func (l *Library) LiveImages() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.images)
}

// LiveCaptures returns the number of captures not yet freed.
func (l *Library) LiveCaptures() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.captures)
}

// LiveTransformations returns the number of transformations not yet destroyed.
func (l *Library) LiveTransformations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.transforms)
}
