package k4a

import (
	"fmt"
	"image"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/k4a/handle"
	"go.viam.com/k4a/native"
	"go.viam.com/k4a/view"
)

// Image owns one reference to a native image.
type Image struct {
	lib native.Library
	ref *handle.Ref[native.ImageHandle]
	// backing keeps caller-provided memory reachable for as long as the image can use it.
	backing []byte

	mu   sync.Mutex
	view *view.View
}

func imageKind(lib native.Library) *handle.Kind[native.ImageHandle] {
	return &handle.Kind[native.ImageHandle]{
		Name:      "image",
		Reference: lib.ImageReference,
		Release:   lib.ImageRelease,
	}
}

// wrapImage adopts a reference returned by the native library.
func wrapImage(lib native.Library, h native.ImageHandle) (*Image, error) {
	ref, err := handle.New(imageKind(lib), h)
	if err != nil {
		return nil, err
	}
	return &Image{lib: lib, ref: ref}, nil
}

// NewImage allocates an image in native memory. A stride of zero lets the library pick the
// tightest stride. MJPG images cannot be allocated this way since their rows have no fixed
// size; use NewImageFromBuffer.
func NewImage(lib native.Library, format native.ImageFormat, width, height, stride int) (*Image, error) {
	lib, err := library(lib)
	if err != nil {
		return nil, err
	}
	if format == native.ImageFormatColorMJPG {
		return nil, errors.New("mjpg images have no fixed stride and must be created from a buffer")
	}
	h, res := lib.ImageCreate(format, int32(width), int32(height), int32(stride))
	if !res.Succeeded() {
		return nil, failed("cannot create %v image %dx%d with stride %d", format, width, height, stride)
	}
	return wrapImage(lib, h)
}

// NewImageFromBuffer wraps caller-owned memory without copying it. The native library never
// frees buf; it stays referenced by the image until the last owner closes.
func NewImageFromBuffer(
	lib native.Library, format native.ImageFormat, width, height, stride int, buf []byte,
) (*Image, error) {
	lib, err := library(lib)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, errors.New("cannot create an image from an empty buffer")
	}
	h, res := lib.ImageCreateFromBuffer(format, int32(width), int32(height), int32(stride), buf)
	if !res.Succeeded() {
		return nil, failed("cannot wrap %d byte buffer as %v image %dx%d", len(buf), format, width, height)
	}
	img, err := wrapImage(lib, h)
	if err != nil {
		return nil, err
	}
	img.backing = buf
	return img, nil
}

// Handle returns the native handle, zero once closed.
func (im *Image) Handle() native.ImageHandle {
	if im == nil {
		return 0
	}
	return im.ref.Handle()
}

// Valid reports whether the image is still open.
func (im *Image) Valid() bool {
	return im != nil && im.ref.Valid()
}

// Format returns the pixel format.
func (im *Image) Format() native.ImageFormat {
	return im.lib.ImageGetFormat(im.Handle())
}

// Width returns the width in pixels.
func (im *Image) Width() int {
	return int(im.lib.ImageGetWidthPixels(im.Handle()))
}

// Height returns the height in pixels.
func (im *Image) Height() int {
	return int(im.lib.ImageGetHeightPixels(im.Handle()))
}

// Stride returns the size of a buffer row in bytes, zero for compressed images.
func (im *Image) Stride() int {
	return int(im.lib.ImageGetStrideBytes(im.Handle()))
}

// Size returns the size of the buffer in bytes.
func (im *Image) Size() int {
	return im.lib.ImageGetSize(im.Handle())
}

// Bytes aliases the image memory. The slice is only valid while the image has an open owner.
func (im *Image) Bytes() []byte {
	if !im.Valid() {
		return nil
	}
	return im.lib.ImageGetBuffer(im.Handle())
}

// DeviceTimestampUsec is the device time of the middle of the exposure, in microseconds.
func (im *Image) DeviceTimestampUsec() uint64 {
	return im.lib.ImageGetDeviceTimestampUsec(im.Handle())
}

// SetDeviceTimestampUsec sets the device timestamp.
func (im *Image) SetDeviceTimestampUsec(usec uint64) {
	im.lib.ImageSetDeviceTimestampUsec(im.Handle(), usec)
}

// SystemTimestampNsec is the host time the image was received, in nanoseconds.
func (im *Image) SystemTimestampNsec() uint64 {
	return im.lib.ImageGetSystemTimestampNsec(im.Handle())
}

// SetSystemTimestampNsec sets the system timestamp.
func (im *Image) SetSystemTimestampNsec(nsec uint64) {
	im.lib.ImageSetSystemTimestampNsec(im.Handle(), nsec)
}

// ExposureUsec is the exposure time in microseconds.
func (im *Image) ExposureUsec() uint64 {
	return im.lib.ImageGetExposureUsec(im.Handle())
}

// SetExposureUsec sets the exposure time.
func (im *Image) SetExposureUsec(usec uint64) {
	im.lib.ImageSetExposureUsec(im.Handle(), usec)
}

// WhiteBalance is the white balance in kelvin. Only color images have one.
func (im *Image) WhiteBalance() uint32 {
	return im.lib.ImageGetWhiteBalance(im.Handle())
}

// SetWhiteBalance sets the white balance.
func (im *Image) SetWhiteBalance(kelvin uint32) {
	im.lib.ImageSetWhiteBalance(im.Handle(), kelvin)
}

// ISOSpeed is the ISO speed. Only color images have one.
func (im *Image) ISOSpeed() uint32 {
	return im.lib.ImageGetISOSpeed(im.Handle())
}

// SetISOSpeed sets the ISO speed.
func (im *Image) SetISOSpeed(iso uint32) {
	im.lib.ImageSetISOSpeed(im.Handle(), iso)
}

// View returns a typed view of the image memory. The view is built on first use and dropped
// on Close; it must not be used after that.
func (im *Image) View() (*view.View, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	if !im.Valid() {
		return nil, errors.Wrap(ErrClosed, "cannot view image")
	}
	if im.view != nil {
		return im.view, nil
	}
	v, err := view.New(im.Format(), im.Bytes(), im.Width(), im.Height(), im.Stride())
	if err != nil {
		return nil, err
	}
	im.view = v
	return v, nil
}

// Image returns an image.Image over the image memory. See view.View.Image.
func (im *Image) Image() (image.Image, error) {
	v, err := im.View()
	if err != nil {
		return nil, err
	}
	return v.Image()
}

// CloneShared returns a second owner of the same native image. Changes to pixels or metadata
// through either owner are seen by both.
func (im *Image) CloneShared() (*Image, error) {
	if !im.Valid() {
		return nil, errors.Wrap(ErrClosed, "cannot clone image")
	}
	ref, err := im.ref.Clone()
	if err != nil {
		return nil, err
	}
	return &Image{lib: im.lib, ref: ref, backing: im.backing}, nil
}

// CloneIndependent copies the image, pixels and metadata, into a new native image. Compressed
// and custom images are copied into Go memory since the library cannot allocate them by size.
func (im *Image) CloneIndependent() (*Image, error) {
	if !im.Valid() {
		return nil, errors.Wrap(ErrClosed, "cannot copy image")
	}
	format := im.Format()
	desc, err := view.Describe(format)
	if err != nil {
		return nil, err
	}
	var out *Image
	if desc.Flat {
		buf := make([]byte, im.Size())
		copy(buf, im.Bytes())
		out, err = NewImageFromBuffer(im.lib, format, im.Width(), im.Height(), im.Stride(), buf)
	} else {
		out, err = NewImage(im.lib, format, im.Width(), im.Height(), im.Stride())
		if err == nil {
			copy(out.Bytes(), im.Bytes())
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "cannot copy image")
	}
	out.SetDeviceTimestampUsec(im.DeviceTimestampUsec())
	out.SetSystemTimestampNsec(im.SystemTimestampNsec())
	out.SetExposureUsec(im.ExposureUsec())
	out.SetWhiteBalance(im.WhiteBalance())
	out.SetISOSpeed(im.ISOSpeed())
	return out, nil
}

// Close releases this owner's reference. Closing twice does nothing.
func (im *Image) Close() error {
	if im == nil {
		return nil
	}
	im.mu.Lock()
	im.view = nil
	im.mu.Unlock()
	return im.ref.Close()
}

func (im *Image) String() string {
	if !im.Valid() {
		return "image(closed)"
	}
	return fmt.Sprintf("image(%v %dx%d)", im.Format(), im.Width(), im.Height())
}
