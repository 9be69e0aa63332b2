package fake

import (
	"go.viam.com/k4a/native"
	"go.viam.com/k4a/view"
)

type fakeImage struct {
	format native.ImageFormat
	width  int32
	height int32
	stride int32
	buf    []byte
	refs   int

	deviceTimestampUsec uint64
	systemTimestampNsec uint64
	exposureUsec        uint64
	whiteBalance        uint32
	isoSpeed            uint32
}

// layout checks an image shape and returns its stride and buffer size. A zero stride is
// replaced by the tightest one; MJPG and CUSTOM have no implied stride.
func layout(format native.ImageFormat, width, height, stride int32) (int32, int, bool) {
	desc, err := view.Describe(format)
	if err != nil || width < 0 || height < 0 || stride < 0 {
		return 0, 0, false
	}
	if desc.Flat {
		return stride, int(stride) * int(height), true
	}
	minStride := int32(desc.MinStride(int(width)))
	if stride == 0 {
		stride = minStride
	}
	if stride < minStride {
		return 0, 0, false
	}
	return stride, int(stride) * desc.Rows(int(height)), true
}

func (l *Library) addImage(img *fakeImage) native.ImageHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addImageLocked(img)
}

func (l *Library) addImageLocked(img *fakeImage) native.ImageHandle {
	img.refs = 1
	h := native.ImageHandle(l.allocHandle())
	l.images[h] = img
	return h
}

// ImageCreate allocates an image. MJPG is refused because its size is not implied by its shape,
// and CUSTOM images need an explicit stride.
func (l *Library) ImageCreate(format native.ImageFormat, width, height, stride int32) (native.ImageHandle, native.Result) {
	if format == native.ImageFormatColorMJPG {
		return 0, native.ResultFailed
	}
	stride, size, ok := layout(format, width, height, stride)
	if !ok || size == 0 {
		return 0, native.ResultFailed
	}
	return l.addImage(&fakeImage{
		format: format, width: width, height: height, stride: stride, buf: make([]byte, size),
	}), native.ResultSucceeded
}

// ImageCreateFromBuffer wraps buf without copying it.
func (l *Library) ImageCreateFromBuffer(
	format native.ImageFormat, width, height, stride int32, buf []byte,
) (native.ImageHandle, native.Result) {
	if len(buf) == 0 {
		return 0, native.ResultFailed
	}
	stride, size, ok := layout(format, width, height, stride)
	if !ok || len(buf) < size {
		return 0, native.ResultFailed
	}
	return l.addImage(&fakeImage{
		format: format, width: width, height: height, stride: stride, buf: buf,
	}), native.ResultSucceeded
}

// ImageReference adds a reference.
func (l *Library) ImageReference(h native.ImageHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	img, ok := l.images[h]
	if !ok {
		l.logger.Warnw("reference to unknown image", "handle", h)
		return
	}
	img.refs++
}

// ImageRelease drops a reference and frees the image with the last one.
func (l *Library) ImageRelease(h native.ImageHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releaseImageLocked(h)
}

func (l *Library) releaseImageLocked(h native.ImageHandle) {
	if h == 0 {
		return
	}
	img, ok := l.images[h]
	if !ok {
		l.logger.Warnw("release of unknown image", "handle", h)
		return
	}
	img.refs--
	if img.refs <= 0 {
		delete(l.images, h)
	}
}

func (l *Library) image(h native.ImageHandle) *fakeImage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.images[h]
}

// withImage runs f on the image under the library lock. Unknown handles are skipped.
func (l *Library) withImage(h native.ImageHandle, f func(img *fakeImage)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if img, ok := l.images[h]; ok {
		f(img)
	}
}

// ImageGetBuffer aliases the image memory.
func (l *Library) ImageGetBuffer(h native.ImageHandle) []byte {
	if img := l.image(h); img != nil {
		return img.buf
	}
	return nil
}

// ImageGetSize returns the buffer size in bytes.
func (l *Library) ImageGetSize(h native.ImageHandle) int {
	if img := l.image(h); img != nil {
		return len(img.buf)
	}
	return 0
}

// ImageGetFormat returns the pixel format.
func (l *Library) ImageGetFormat(h native.ImageHandle) native.ImageFormat {
	if img := l.image(h); img != nil {
		return img.format
	}
	return native.ImageFormatCustom
}

// ImageGetWidthPixels returns the width.
func (l *Library) ImageGetWidthPixels(h native.ImageHandle) int32 {
	if img := l.image(h); img != nil {
		return img.width
	}
	return 0
}

// ImageGetHeightPixels returns the height.
func (l *Library) ImageGetHeightPixels(h native.ImageHandle) int32 {
	if img := l.image(h); img != nil {
		return img.height
	}
	return 0
}

// ImageGetStrideBytes returns the stride.
func (l *Library) ImageGetStrideBytes(h native.ImageHandle) int32 {
	if img := l.image(h); img != nil {
		return img.stride
	}
	return 0
}

// ImageGetDeviceTimestampUsec returns the device timestamp.
func (l *Library) ImageGetDeviceTimestampUsec(h native.ImageHandle) (v uint64) {
	l.withImage(h, func(img *fakeImage) { v = img.deviceTimestampUsec })
	return v
}

// ImageSetDeviceTimestampUsec sets the device timestamp.
func (l *Library) ImageSetDeviceTimestampUsec(h native.ImageHandle, usec uint64) {
	l.withImage(h, func(img *fakeImage) { img.deviceTimestampUsec = usec })
}

// ImageGetSystemTimestampNsec returns the host timestamp.
func (l *Library) ImageGetSystemTimestampNsec(h native.ImageHandle) (v uint64) {
	l.withImage(h, func(img *fakeImage) { v = img.systemTimestampNsec })
	return v
}

// ImageSetSystemTimestampNsec sets the host timestamp.
func (l *Library) ImageSetSystemTimestampNsec(h native.ImageHandle, nsec uint64) {
	l.withImage(h, func(img *fakeImage) { img.systemTimestampNsec = nsec })
}

// ImageGetExposureUsec returns the exposure time.
func (l *Library) ImageGetExposureUsec(h native.ImageHandle) (v uint64) {
	l.withImage(h, func(img *fakeImage) { v = img.exposureUsec })
	return v
}

// ImageSetExposureUsec sets the exposure time.
func (l *Library) ImageSetExposureUsec(h native.ImageHandle, usec uint64) {
	l.withImage(h, func(img *fakeImage) { img.exposureUsec = usec })
}

// ImageGetWhiteBalance returns the white balance in kelvin.
func (l *Library) ImageGetWhiteBalance(h native.ImageHandle) (v uint32) {
	l.withImage(h, func(img *fakeImage) { v = img.whiteBalance })
	return v
}

// ImageSetWhiteBalance sets the white balance.
func (l *Library) ImageSetWhiteBalance(h native.ImageHandle, kelvin uint32) {
	l.withImage(h, func(img *fakeImage) { img.whiteBalance = kelvin })
}

// ImageGetISOSpeed returns the ISO speed.
func (l *Library) ImageGetISOSpeed(h native.ImageHandle) (v uint32) {
	l.withImage(h, func(img *fakeImage) { v = img.isoSpeed })
	return v
}

// ImageSetISOSpeed sets the ISO speed.
func (l *Library) ImageSetISOSpeed(h native.ImageHandle, iso uint32) {
	l.withImage(h, func(img *fakeImage) { img.isoSpeed = iso })
}

// imageView is a view over an image for the fake's own processing.
func (l *Library) imageView(h native.ImageHandle) (*fakeImage, *view.View, bool) {
	img := l.image(h)
	if img == nil {
		return nil, nil, false
	}
	v, err := view.New(img.format, img.buf, int(img.width), int(img.height), int(img.stride))
	if err != nil {
		return nil, nil, false
	}
	return img, v, true
}
