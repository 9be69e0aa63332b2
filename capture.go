package k4a

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/k4a/handle"
	"go.viam.com/k4a/native"
)

// Channel names one of the images a capture can hold.
type Channel int

// Channels of a capture.
const (
	ColorChannel Channel = iota
	DepthChannel
	IRChannel
	numChannels
)

func (c Channel) String() string {
	switch c {
	case ColorChannel:
		return "color"
	case DepthChannel:
		return "depth"
	case IRChannel:
		return "ir"
	case numChannels:
	}
	return "unknown"
}

// Capture owns one reference to a native capture, a set of images taken together.
type Capture struct {
	lib native.Library
	ref *handle.Ref[native.CaptureHandle]

	mu     sync.Mutex
	images [numChannels]*Image
}

func captureKind(lib native.Library) *handle.Kind[native.CaptureHandle] {
	return &handle.Kind[native.CaptureHandle]{
		Name:      "capture",
		Reference: lib.CaptureReference,
		Release:   lib.CaptureRelease,
	}
}

func wrapCapture(lib native.Library, h native.CaptureHandle) (*Capture, error) {
	ref, err := handle.New(captureKind(lib), h)
	if err != nil {
		return nil, err
	}
	return &Capture{lib: lib, ref: ref}, nil
}

// NewCapture creates an empty capture.
func NewCapture(lib native.Library) (*Capture, error) {
	lib, err := library(lib)
	if err != nil {
		return nil, err
	}
	h, res := lib.CaptureCreate()
	if !res.Succeeded() {
		return nil, failed("cannot create capture")
	}
	return wrapCapture(lib, h)
}

// Handle returns the native handle, zero once closed.
func (c *Capture) Handle() native.CaptureHandle {
	if c == nil {
		return 0
	}
	return c.ref.Handle()
}

// Valid reports whether the capture is still open.
func (c *Capture) Valid() bool {
	return c != nil && c.ref.Valid()
}

// Image returns the image held on a channel, or nil when there is none. The image is owned by
// the capture and closed with it; use Image.CloneShared to keep it longer.
func (c *Capture) Image(ch Channel) (*Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.Valid() {
		return nil, errors.Wrapf(ErrClosed, "cannot get %v image", ch)
	}
	if ch < 0 || ch >= numChannels {
		return nil, errors.Errorf("unknown capture channel %d", ch)
	}
	// Another owner of the native capture may have replaced the image since it was cached.
	var h native.ImageHandle
	switch ch {
	case ColorChannel:
		h = c.lib.CaptureGetColorImage(c.Handle())
	case DepthChannel:
		h = c.lib.CaptureGetDepthImage(c.Handle())
	case IRChannel, numChannels:
		h = c.lib.CaptureGetIRImage(c.Handle())
	}
	cached := c.images[ch]
	if h != 0 && h == cached.Handle() {
		c.lib.ImageRelease(h)
		return cached, nil
	}
	c.images[ch] = nil
	if err := cached.Close(); err != nil {
		if h != 0 {
			c.lib.ImageRelease(h)
		}
		return nil, err
	}
	if h == 0 {
		return nil, nil
	}
	img, err := wrapImage(c.lib, h)
	if err != nil {
		return nil, err
	}
	c.images[ch] = img
	return img, nil
}

// Color returns the color image, or nil.
func (c *Capture) Color() (*Image, error) {
	return c.Image(ColorChannel)
}

// Depth returns the depth image, or nil.
func (c *Capture) Depth() (*Image, error) {
	return c.Image(DepthChannel)
}

// IR returns the infrared image, or nil.
func (c *Capture) IR() (*Image, error) {
	return c.Image(IRChannel)
}

// SetImage puts img on a channel, replacing the image held there. The capture takes its own
// reference; the caller still owns img. A nil img clears the channel.
func (c *Capture) SetImage(ch Channel, img *Image) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.Valid() {
		return errors.Wrapf(ErrClosed, "cannot set %v image", ch)
	}
	if ch < 0 || ch >= numChannels {
		return errors.Errorf("unknown capture channel %d", ch)
	}
	if img != nil && !img.Valid() {
		return errors.Wrapf(ErrClosed, "cannot set %v image", ch)
	}
	h := img.Handle()
	switch ch {
	case ColorChannel:
		c.lib.CaptureSetColorImage(c.Handle(), h)
	case DepthChannel:
		c.lib.CaptureSetDepthImage(c.Handle(), h)
	case IRChannel, numChannels:
		c.lib.CaptureSetIRImage(c.Handle(), h)
	}
	cached := c.images[ch]
	if cached == img {
		return nil
	}
	c.images[ch] = nil
	return cached.Close()
}

// SetColor puts img on the color channel.
func (c *Capture) SetColor(img *Image) error {
	return c.SetImage(ColorChannel, img)
}

// SetDepth puts img on the depth channel.
func (c *Capture) SetDepth(img *Image) error {
	return c.SetImage(DepthChannel, img)
}

// SetIR puts img on the infrared channel.
func (c *Capture) SetIR(img *Image) error {
	return c.SetImage(IRChannel, img)
}

// Temperature returns the device temperature in Celsius when the capture was taken, NaN when
// unknown.
func (c *Capture) Temperature() float64 {
	if !c.Valid() {
		return math.NaN()
	}
	return float64(c.lib.CaptureGetTemperatureC(c.Handle()))
}

// SetTemperature sets the capture temperature.
func (c *Capture) SetTemperature(celsius float64) {
	c.lib.CaptureSetTemperatureC(c.Handle(), float32(celsius))
}

// CloneShared returns a second owner of the same native capture. Images set through either
// owner are seen by both.
func (c *Capture) CloneShared() (*Capture, error) {
	if !c.Valid() {
		return nil, errors.Wrap(ErrClosed, "cannot clone capture")
	}
	ref, err := c.ref.Clone()
	if err != nil {
		return nil, err
	}
	return &Capture{lib: c.lib, ref: ref}, nil
}

// CloneIndependent copies the capture and every image it holds.
func (c *Capture) CloneIndependent() (_ *Capture, err error) {
	if !c.Valid() {
		return nil, errors.Wrap(ErrClosed, "cannot copy capture")
	}
	out, err := NewCapture(c.lib)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, out.Close())
		}
	}()
	for ch := ColorChannel; ch < numChannels; ch++ {
		img, imgErr := c.Image(ch)
		if imgErr != nil {
			return nil, imgErr
		}
		if img == nil {
			continue
		}
		cp, cpErr := img.CloneIndependent()
		if cpErr != nil {
			return nil, errors.Wrapf(cpErr, "cannot copy %v image", ch)
		}
		if setErr := multierr.Combine(out.SetImage(ch, cp), cp.Close()); setErr != nil {
			return nil, setErr
		}
	}
	out.SetTemperature(c.Temperature())
	return out, nil
}

// Close releases the images the capture handed out and then the capture itself.
func (c *Capture) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	var err error
	for i, img := range c.images {
		err = multierr.Combine(err, img.Close())
		c.images[i] = nil
	}
	c.mu.Unlock()
	return multierr.Combine(err, c.ref.Close())
}
