package fake

import (
	"math"

	"go.viam.com/k4a/native"
)

type channel int

const (
	colorChannel channel = iota
	depthChannel
	irChannel
	numChannels
)

type fakeCapture struct {
	images       [numChannels]native.ImageHandle
	temperatureC float32
	refs         int
}

// CaptureCreate creates an empty capture with an unknown temperature.
func (l *Library) CaptureCreate() (native.CaptureHandle, native.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.createCaptureLocked(), native.ResultSucceeded
}

func (l *Library) createCaptureLocked() native.CaptureHandle {
	h := native.CaptureHandle(l.allocHandle())
	l.captures[h] = &fakeCapture{temperatureC: float32(math.NaN()), refs: 1}
	return h
}

// CaptureReference adds a reference.
func (l *Library) CaptureReference(h native.CaptureHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.captures[h]
	if !ok {
		l.logger.Warnw("reference to unknown capture", "handle", h)
		return
	}
	c.refs++
}

// CaptureRelease drops a reference. The last one frees the capture and releases its images.
func (l *Library) CaptureRelease(h native.CaptureHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releaseCaptureLocked(h)
}

func (l *Library) releaseCaptureLocked(h native.CaptureHandle) {
	c, ok := l.captures[h]
	if !ok {
		l.logger.Warnw("release of unknown capture", "handle", h)
		return
	}
	c.refs--
	if c.refs > 0 {
		return
	}
	delete(l.captures, h)
	for _, img := range c.images {
		l.releaseImageLocked(img)
	}
}

func (l *Library) getImage(h native.CaptureHandle, ch channel) native.ImageHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.captures[h]
	if !ok {
		return 0
	}
	img := c.images[ch]
	if img == 0 {
		return 0
	}
	if i, ok := l.images[img]; ok {
		i.refs++
	}
	return img
}

func (l *Library) setImage(h native.CaptureHandle, ch channel, img native.ImageHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setImageLocked(h, ch, img)
}

func (l *Library) setImageLocked(h native.CaptureHandle, ch channel, img native.ImageHandle) {
	c, ok := l.captures[h]
	if !ok {
		l.logger.Warnw("set image on unknown capture", "handle", h)
		return
	}
	if img != 0 {
		i, ok := l.images[img]
		if !ok {
			l.logger.Warnw("unknown image set on capture", "capture", h, "image", img)
			return
		}
		i.refs++
	}
	old := c.images[ch]
	c.images[ch] = img
	l.releaseImageLocked(old)
}

// CaptureGetColorImage returns a new reference to the color image, or zero.
func (l *Library) CaptureGetColorImage(h native.CaptureHandle) native.ImageHandle {
	return l.getImage(h, colorChannel)
}

// CaptureGetDepthImage returns a new reference to the depth image, or zero.
func (l *Library) CaptureGetDepthImage(h native.CaptureHandle) native.ImageHandle {
	return l.getImage(h, depthChannel)
}

// CaptureGetIRImage returns a new reference to the IR image, or zero.
func (l *Library) CaptureGetIRImage(h native.CaptureHandle) native.ImageHandle {
	return l.getImage(h, irChannel)
}

// CaptureSetColorImage replaces the color image.
func (l *Library) CaptureSetColorImage(h native.CaptureHandle, img native.ImageHandle) {
	l.setImage(h, colorChannel, img)
}

// CaptureSetDepthImage replaces the depth image.
func (l *Library) CaptureSetDepthImage(h native.CaptureHandle, img native.ImageHandle) {
	l.setImage(h, depthChannel, img)
}

// CaptureSetIRImage replaces the IR image.
func (l *Library) CaptureSetIRImage(h native.CaptureHandle, img native.ImageHandle) {
	l.setImage(h, irChannel, img)
}

// CaptureGetTemperatureC returns the temperature, NaN when unknown.
func (l *Library) CaptureGetTemperatureC(h native.CaptureHandle) float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.captures[h]; ok {
		return c.temperatureC
	}
	return float32(math.NaN())
}

// CaptureSetTemperatureC sets the temperature.
func (l *Library) CaptureSetTemperatureC(h native.CaptureHandle, temperatureC float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.captures[h]; ok {
		c.temperatureC = temperatureC
	}
}
