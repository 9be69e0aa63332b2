package k4a

import (
	"math"
	"testing"

	"go.viam.com/test"

	"go.viam.com/k4a/native"
)

func newTestCapture(t *testing.T, lib native.Library) *Capture {
	t.Helper()
	c, err := NewCapture(lib)
	test.That(t, err, test.ShouldBeNil)
	for _, ch := range []struct {
		ch     Channel
		format native.ImageFormat
		w, h   int
	}{
		{ColorChannel, native.ImageFormatColorBGRA32, 16, 9},
		{DepthChannel, native.ImageFormatDepth16, 8, 8},
		{IRChannel, native.ImageFormatIR16, 8, 8},
	} {
		img, err := NewImage(lib, ch.format, ch.w, ch.h, 0)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, c.SetImage(ch.ch, img), test.ShouldBeNil)
		test.That(t, img.Close(), test.ShouldBeNil)
	}
	return c
}

func TestCaptureImages(t *testing.T) {
	lib := newFake(t, nil)
	c, err := NewCapture(lib)
	test.That(t, err, test.ShouldBeNil)

	color, err := c.Color()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, color, test.ShouldBeNil)
	test.That(t, math.IsNaN(c.Temperature()), test.ShouldBeTrue)

	img, err := NewImage(lib, native.ImageFormatDepth16, 8, 8, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.SetDepth(img), test.ShouldBeNil)
	test.That(t, lib.ImageRefCount(img.Handle()), test.ShouldEqual, 2)

	depth, err := c.Depth()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, depth.Handle(), test.ShouldEqual, img.Handle())
	test.That(t, lib.ImageRefCount(img.Handle()), test.ShouldEqual, 3)
	// the wrapper is cached
	again, err := c.Depth()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again, test.ShouldEqual, depth)
	test.That(t, lib.ImageRefCount(img.Handle()), test.ShouldEqual, 3)

	// replacing the image closes the cached wrapper and the capture's reference
	other, err := NewImage(lib, native.ImageFormatDepth16, 8, 8, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.SetDepth(other), test.ShouldBeNil)
	test.That(t, depth.Valid(), test.ShouldBeFalse)
	test.That(t, lib.ImageRefCount(img.Handle()), test.ShouldEqual, 1)
	test.That(t, lib.ImageRefCount(other.Handle()), test.ShouldEqual, 2)

	test.That(t, c.SetDepth(nil), test.ShouldBeNil)
	test.That(t, lib.ImageRefCount(other.Handle()), test.ShouldEqual, 1)
	depth, err = c.Depth()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, depth, test.ShouldBeNil)

	c.SetTemperature(31.5)
	test.That(t, c.Temperature(), test.ShouldAlmostEqual, 31.5)

	test.That(t, img.Close(), test.ShouldBeNil)
	test.That(t, other.Close(), test.ShouldBeNil)
	test.That(t, c.Close(), test.ShouldBeNil)
	test.That(t, lib.LiveImages(), test.ShouldEqual, 0)
	test.That(t, lib.LiveCaptures(), test.ShouldEqual, 0)

	_, err = c.Color()
	test.That(t, err, test.ShouldWrap, ErrClosed)
	test.That(t, c.SetColor(nil), test.ShouldWrap, ErrClosed)
}

func TestCaptureSetClosedImage(t *testing.T) {
	lib := newFake(t, nil)
	c, err := NewCapture(lib)
	test.That(t, err, test.ShouldBeNil)
	defer c.Close()
	img, err := NewImage(lib, native.ImageFormatIR16, 8, 8, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Close(), test.ShouldBeNil)
	test.That(t, c.SetIR(img), test.ShouldWrap, ErrClosed)
	test.That(t, c.SetImage(Channel(7), nil), test.ShouldNotBeNil)
	_, err = c.Image(Channel(-1))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCaptureCloneShared(t *testing.T) {
	lib := newFake(t, nil)
	c := newTestCapture(t, lib)
	shared, err := c.CloneShared()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, shared.Handle(), test.ShouldEqual, c.Handle())
	test.That(t, lib.CaptureRefCount(c.Handle()), test.ShouldEqual, 2)

	// both owners see the same images and the same changes
	img, err := NewImage(lib, native.ImageFormatDepth16, 4, 4, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, shared.SetDepth(img), test.ShouldBeNil)
	depth, err := c.Depth()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, depth.Handle(), test.ShouldEqual, img.Handle())
	shared.SetTemperature(40)
	test.That(t, c.Temperature(), test.ShouldAlmostEqual, 40)

	test.That(t, img.Close(), test.ShouldBeNil)
	test.That(t, c.Close(), test.ShouldBeNil)
	test.That(t, lib.CaptureRefCount(shared.Handle()), test.ShouldEqual, 1)
	test.That(t, shared.Close(), test.ShouldBeNil)
	test.That(t, lib.LiveCaptures(), test.ShouldEqual, 0)
	test.That(t, lib.LiveImages(), test.ShouldEqual, 0)
}

func TestCaptureCloneSharedSeesReplacedImage(t *testing.T) {
	lib := newFake(t, nil)
	c := newTestCapture(t, lib)
	shared, err := c.CloneShared()
	test.That(t, err, test.ShouldBeNil)

	before, err := shared.Depth()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, before, test.ShouldNotBeNil)
	again, err := shared.Depth()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again, test.ShouldEqual, before)
	test.That(t, lib.ImageRefCount(before.Handle()), test.ShouldEqual, 2)

	img, err := NewImage(lib, native.ImageFormatDepth16, 4, 4, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.SetDepth(img), test.ShouldBeNil)
	after, err := shared.Depth()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, after.Handle(), test.ShouldEqual, img.Handle())
	test.That(t, before.Valid(), test.ShouldBeFalse)

	test.That(t, c.SetDepth(nil), test.ShouldBeNil)
	cleared, err := shared.Depth()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cleared, test.ShouldBeNil)
	test.That(t, after.Valid(), test.ShouldBeFalse)

	test.That(t, img.Close(), test.ShouldBeNil)
	test.That(t, c.Close(), test.ShouldBeNil)
	test.That(t, shared.Close(), test.ShouldBeNil)
	test.That(t, lib.LiveCaptures(), test.ShouldEqual, 0)
	test.That(t, lib.LiveImages(), test.ShouldEqual, 0)
}

func TestCaptureCloneIndependent(t *testing.T) {
	lib := newFake(t, nil)
	c := newTestCapture(t, lib)
	defer c.Close()
	c.SetTemperature(25)
	color, err := c.Color()
	test.That(t, err, test.ShouldBeNil)
	color.Bytes()[0] = 10

	cp, err := c.CloneIndependent()
	test.That(t, err, test.ShouldBeNil)
	defer cp.Close()
	test.That(t, lib.CaptureRefCount(c.Handle()), test.ShouldEqual, 1)
	test.That(t, cp.Temperature(), test.ShouldAlmostEqual, 25)

	cpColor, err := cp.Color()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cpColor.Handle(), test.ShouldNotEqual, color.Handle())
	test.That(t, cpColor.Bytes()[0], test.ShouldEqual, 10)
	test.That(t, cpColor.Width(), test.ShouldEqual, 16)

	// changes to the copy stay in the copy
	cpColor.Bytes()[0] = 99
	cp.SetTemperature(60)
	test.That(t, color.Bytes()[0], test.ShouldEqual, 10)
	test.That(t, c.Temperature(), test.ShouldAlmostEqual, 25)
	for _, ch := range []Channel{DepthChannel, IRChannel} {
		orig, err := c.Image(ch)
		test.That(t, err, test.ShouldBeNil)
		dup, err := cp.Image(ch)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dup.Format(), test.ShouldEqual, orig.Format())
		test.That(t, dup.Handle(), test.ShouldNotEqual, orig.Handle())
	}
}
