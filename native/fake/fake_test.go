package fake

import (
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
	"go.viam.com/test"

	"go.viam.com/k4a/logging"
	"go.viam.com/k4a/native"
)

func newTestLibrary(t *testing.T, clk clock.Clock) *Library {
	t.Helper()
	return New(Options{Devices: 2, Clock: clk, Logger: logging.NewTestLogger(t)})
}

func testConfig() native.DeviceConfiguration {
	return native.DeviceConfiguration{
		ColorFormat:            native.ImageFormatColorBGRA32,
		ColorResolution:        native.ColorResolution720P,
		DepthMode:              native.DepthModeNFOVUnbinned,
		CameraFPS:              native.FPS30,
		SynchronizedImagesOnly: true,
	}
}

func TestImageReferences(t *testing.T) {
	lib := newTestLibrary(t, nil)
	h, res := lib.ImageCreate(native.ImageFormatDepth16, 640, 576, 0)
	test.That(t, res, test.ShouldEqual, native.ResultSucceeded)
	test.That(t, lib.ImageGetStrideBytes(h), test.ShouldEqual, 1280)
	test.That(t, lib.ImageGetSize(h), test.ShouldEqual, 640*576*2)
	test.That(t, lib.ImageRefCount(h), test.ShouldEqual, 1)

	lib.ImageReference(h)
	lib.ImageReference(h)
	test.That(t, lib.ImageRefCount(h), test.ShouldEqual, 3)
	lib.ImageRelease(h)
	lib.ImageRelease(h)
	test.That(t, lib.LiveImages(), test.ShouldEqual, 1)
	lib.ImageRelease(h)
	test.That(t, lib.LiveImages(), test.ShouldEqual, 0)
	test.That(t, lib.ImageGetBuffer(h), test.ShouldBeNil)

	_, res = lib.ImageCreate(native.ImageFormatColorMJPG, 10, 10, 0)
	test.That(t, res, test.ShouldEqual, native.ResultFailed)
	_, res = lib.ImageCreate(native.ImageFormatDepth16, 10, 10, 19)
	test.That(t, res, test.ShouldEqual, native.ResultFailed)
	_, res = lib.ImageCreate(native.ImageFormatCustom, 10, 10, 0)
	test.That(t, res, test.ShouldEqual, native.ResultFailed)

	buf := make([]byte, 8)
	h, res = lib.ImageCreateFromBuffer(native.ImageFormatCustom8, 4, 2, 4, buf)
	test.That(t, res, test.ShouldEqual, native.ResultSucceeded)
	lib.ImageGetBuffer(h)[5] = 9
	test.That(t, buf[5], test.ShouldEqual, 9)
	lib.ImageRelease(h)

	_, res = lib.ImageCreateFromBuffer(native.ImageFormatCustom8, 4, 3, 4, buf)
	test.That(t, res, test.ShouldEqual, native.ResultFailed)
}

func TestCaptureImages(t *testing.T) {
	lib := newTestLibrary(t, nil)
	c, res := lib.CaptureCreate()
	test.That(t, res, test.ShouldEqual, native.ResultSucceeded)
	test.That(t, math.IsNaN(float64(lib.CaptureGetTemperatureC(c))), test.ShouldBeTrue)
	test.That(t, lib.CaptureGetDepthImage(c), test.ShouldEqual, native.ImageHandle(0))

	img, _ := lib.ImageCreate(native.ImageFormatDepth16, 4, 4, 0)
	lib.CaptureSetDepthImage(c, img)
	test.That(t, lib.ImageRefCount(img), test.ShouldEqual, 2)

	got := lib.CaptureGetDepthImage(c)
	test.That(t, got, test.ShouldEqual, img)
	test.That(t, lib.ImageRefCount(img), test.ShouldEqual, 3)
	lib.ImageRelease(got)

	other, _ := lib.ImageCreate(native.ImageFormatDepth16, 4, 4, 0)
	lib.CaptureSetDepthImage(c, other)
	test.That(t, lib.ImageRefCount(img), test.ShouldEqual, 1)
	test.That(t, lib.ImageRefCount(other), test.ShouldEqual, 2)

	lib.CaptureSetDepthImage(c, 0)
	test.That(t, lib.ImageRefCount(other), test.ShouldEqual, 1)
	lib.CaptureSetIRImage(c, other)

	lib.CaptureReference(c)
	lib.CaptureRelease(c)
	test.That(t, lib.CaptureRefCount(c), test.ShouldEqual, 1)
	lib.CaptureRelease(c)
	test.That(t, lib.LiveCaptures(), test.ShouldEqual, 0)
	test.That(t, lib.ImageRefCount(other), test.ShouldEqual, 1)

	lib.ImageRelease(img)
	lib.ImageRelease(other)
	test.That(t, lib.LiveImages(), test.ShouldEqual, 0)
}

func TestOpenTwice(t *testing.T) {
	lib := newTestLibrary(t, nil)
	test.That(t, lib.DeviceGetInstalledCount(), test.ShouldEqual, 2)

	first, res := lib.DeviceOpen(0)
	test.That(t, res, test.ShouldEqual, native.ResultSucceeded)
	_, res = lib.DeviceOpen(0)
	test.That(t, res, test.ShouldEqual, native.ResultFailed)
	_, res = lib.DeviceOpen(2)
	test.That(t, res, test.ShouldEqual, native.ResultFailed)

	_, res = lib.DeviceGetVersion(first)
	test.That(t, res, test.ShouldEqual, native.ResultSucceeded)

	second, res := lib.DeviceOpen(1)
	test.That(t, res, test.ShouldEqual, native.ResultSucceeded)

	size, bres := lib.DeviceGetSerialnum(first, nil)
	test.That(t, bres, test.ShouldEqual, native.BufferResultTooSmall)
	test.That(t, size, test.ShouldEqual, 13)
	buf := make([]byte, size)
	_, bres = lib.DeviceGetSerialnum(first, buf)
	test.That(t, bres, test.ShouldEqual, native.BufferResultSucceeded)
	test.That(t, buf[12], test.ShouldEqual, 0)
	test.That(t, string(buf[:12]), test.ShouldEqual, serialNumber(0))
	test.That(t, serialNumber(0), test.ShouldNotEqual, serialNumber(1))

	lib.DeviceClose(first)
	lib.DeviceClose(second)
	_, res = lib.DeviceGetVersion(first)
	test.That(t, res, test.ShouldEqual, native.ResultFailed)
}

func TestCalibrationFromDeviceMatchesRaw(t *testing.T) {
	lib := newTestLibrary(t, nil)
	dev, _ := lib.DeviceOpen(0)
	defer lib.DeviceClose(dev)

	size, bres := lib.DeviceGetRawCalibration(dev, nil)
	test.That(t, bres, test.ShouldEqual, native.BufferResultTooSmall)
	raw := make([]byte, size)
	_, bres = lib.DeviceGetRawCalibration(dev, raw)
	test.That(t, bres, test.ShouldEqual, native.BufferResultSucceeded)

	for _, mode := range native.DepthModes {
		for _, res := range native.ColorResolutions {
			fromDevice, r := lib.DeviceGetCalibration(dev, mode, res)
			test.That(t, r, test.ShouldEqual, native.ResultSucceeded)
			fromRaw, r := lib.CalibrationGetFromRaw(raw, mode, res)
			test.That(t, r, test.ShouldEqual, native.ResultSucceeded)
			test.That(t, cmp.Diff(fromDevice, fromRaw), test.ShouldBeEmpty)

			w, h := res.Dimensions()
			test.That(t, int(fromDevice.ColorCameraCalibration.ResolutionWidth), test.ShouldEqual, w)
			test.That(t, int(fromDevice.ColorCameraCalibration.ResolutionHeight), test.ShouldEqual, h)
			w, h = mode.Dimensions()
			test.That(t, int(fromDevice.DepthCameraCalibration.ResolutionWidth), test.ShouldEqual, w)
			test.That(t, int(fromDevice.DepthCameraCalibration.ResolutionHeight), test.ShouldEqual, h)
		}
	}

	_, r := lib.CalibrationGetFromRaw([]byte("{"), native.DepthModeNFOVUnbinned, native.ColorResolution720P)
	test.That(t, r, test.ShouldEqual, native.ResultFailed)
	_, r = lib.CalibrationGetFromRaw(raw, native.DepthMode(17), native.ColorResolution720P)
	test.That(t, r, test.ShouldEqual, native.ResultFailed)
}

func TestCalibrationMath(t *testing.T) {
	lib := newTestLibrary(t, nil)
	cal, res := parseCalibration(rawCalibrationBlob(0), native.DepthModeNFOVUnbinned, native.ColorResolution720P)
	test.That(t, res, test.ShouldEqual, native.ResultSucceeded)

	p := native.Float3{X: 120, Y: -40, Z: 1500}
	same, res := lib.Calibration3DTo3D(&cal, p, native.CalibrationTypeColor, native.CalibrationTypeColor)
	test.That(t, res, test.ShouldEqual, native.ResultSucceeded)
	test.That(t, same, test.ShouldResemble, p)

	inColor, _ := lib.Calibration3DTo3D(&cal, p, native.CalibrationTypeDepth, native.CalibrationTypeColor)
	back, _ := lib.Calibration3DTo3D(&cal, inColor, native.CalibrationTypeColor, native.CalibrationTypeDepth)
	test.That(t, back.X, test.ShouldAlmostEqual, p.X, 1e-2)
	test.That(t, back.Y, test.ShouldAlmostEqual, p.Y, 1e-2)
	test.That(t, back.Z, test.ShouldAlmostEqual, p.Z, 1e-2)

	_, res = lib.Calibration3DTo3D(&cal, p, native.CalibrationTypeUnknown, native.CalibrationTypeColor)
	test.That(t, res, test.ShouldEqual, native.ResultFailed)

	px := native.Float2{X: 300, Y: 250}
	point, ok, res := lib.Calibration2DTo3D(&cal, px, 1200, native.CalibrationTypeDepth, native.CalibrationTypeDepth)
	test.That(t, res, test.ShouldEqual, native.ResultSucceeded)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, point.Z, test.ShouldAlmostEqual, 1200, 1e-3)
	reprojected, ok, _ := lib.Calibration3DTo2D(&cal, point, native.CalibrationTypeDepth, native.CalibrationTypeDepth)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, reprojected.X, test.ShouldAlmostEqual, px.X, 1e-2)
	test.That(t, reprojected.Y, test.ShouldAlmostEqual, px.Y, 1e-2)

	_, ok, res = lib.Calibration2DTo3D(&cal, px, 0, native.CalibrationTypeDepth, native.CalibrationTypeColor)
	test.That(t, res, test.ShouldEqual, native.ResultSucceeded)
	test.That(t, ok, test.ShouldBeFalse)

	_, ok, res = lib.Calibration3DTo2D(&cal, native.Float3{Z: -100}, native.CalibrationTypeColor, native.CalibrationTypeColor)
	test.That(t, res, test.ShouldEqual, native.ResultSucceeded)
	test.That(t, ok, test.ShouldBeFalse)

	same2, ok, _ := lib.Calibration2DTo2D(&cal, px, 1000, native.CalibrationTypeDepth, native.CalibrationTypeDepth)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, same2, test.ShouldResemble, px)

	inColorPx, ok, _ := lib.Calibration2DTo2D(&cal, px, 1000, native.CalibrationTypeDepth, native.CalibrationTypeColor)
	test.That(t, ok, test.ShouldBeTrue)
	backPx, ok, _ := lib.Calibration2DTo2D(&cal, inColorPx, float32(colorDepth(lib, &cal, px, 1000)),
		native.CalibrationTypeColor, native.CalibrationTypeDepth)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, backPx.X, test.ShouldAlmostEqual, px.X, 0.05)
	test.That(t, backPx.Y, test.ShouldAlmostEqual, px.Y, 0.05)
}

// colorDepth is the depth in the color camera of a depth pixel at depthMm.
func colorDepth(lib *Library, cal *native.Calibration, px native.Float2, depthMm float32) float32 {
	p, _, _ := lib.Calibration2DTo3D(cal, px, depthMm, native.CalibrationTypeDepth, native.CalibrationTypeColor)
	return p.Z
}

func TestStreaming(t *testing.T) {
	mock := clock.NewMock()
	lib := newTestLibrary(t, mock)
	dev, _ := lib.DeviceOpen(0)
	defer lib.DeviceClose(dev)

	_, wres := lib.DeviceGetCapture(dev, 0)
	test.That(t, wres, test.ShouldEqual, native.WaitResultFailed)
	test.That(t, lib.DeviceStartImu(dev), test.ShouldEqual, native.ResultFailed)

	cfg := testConfig()
	test.That(t, lib.DeviceStartCameras(dev, &cfg), test.ShouldEqual, native.ResultSucceeded)
	test.That(t, lib.DeviceStartCameras(dev, &cfg), test.ShouldEqual, native.ResultFailed)

	_, wres = lib.DeviceGetCapture(dev, 0)
	test.That(t, wres, test.ShouldEqual, native.WaitResultTimeout)

	mock.Add(time.Second / 30)
	c, wres := lib.DeviceGetCapture(dev, -1)
	test.That(t, wres, test.ShouldEqual, native.WaitResultSucceeded)
	test.That(t, lib.CaptureRefCount(c), test.ShouldEqual, 1)

	color := lib.CaptureGetColorImage(c)
	test.That(t, lib.ImageGetWidthPixels(color), test.ShouldEqual, 1280)
	test.That(t, lib.ImageGetHeightPixels(color), test.ShouldEqual, 720)
	test.That(t, lib.ImageGetWhiteBalance(color), test.ShouldEqual, 4500)
	depth := lib.CaptureGetDepthImage(c)
	test.That(t, lib.ImageGetFormat(depth), test.ShouldEqual, native.ImageFormatDepth16)
	test.That(t, lib.ImageGetWidthPixels(depth), test.ShouldEqual, 640)
	ir := lib.CaptureGetIRImage(c)
	test.That(t, lib.ImageGetFormat(ir), test.ShouldEqual, native.ImageFormatIR16)
	for _, img := range []native.ImageHandle{color, depth, ir} {
		lib.ImageRelease(img)
	}
	lib.CaptureRelease(c)
	test.That(t, lib.LiveCaptures(), test.ShouldEqual, 0)

	test.That(t, lib.DeviceStartImu(dev), test.ShouldEqual, native.ResultSucceeded)
	mock.Add(time.Second / imuRateHz)
	sample, wres := lib.DeviceGetImuSample(dev, -1)
	test.That(t, wres, test.ShouldEqual, native.WaitResultSucceeded)
	test.That(t, sample.AccSample.Z, test.ShouldAlmostEqual, -9.81, 1e-5)

	// stopping from another goroutine wakes a blocked reader
	done := make(chan native.WaitResult)
	go func() {
		_, wres := lib.DeviceGetCapture(dev, -1)
		done <- wres
	}()
	lib.DeviceStopImu(dev)
	lib.DeviceStopCameras(dev)
	test.That(t, <-done, test.ShouldEqual, native.WaitResultFailed)
	test.That(t, lib.LiveCaptures(), test.ShouldEqual, 0)
	test.That(t, lib.LiveImages(), test.ShouldEqual, 0)
}

func TestStreamingTimeout(t *testing.T) {
	lib := newTestLibrary(t, nil)
	dev, _ := lib.DeviceOpen(0)
	defer lib.DeviceClose(dev)
	cfg := testConfig()
	cfg.CameraFPS = native.FPS5
	test.That(t, lib.DeviceStartCameras(dev, &cfg), test.ShouldEqual, native.ResultSucceeded)

	start := time.Now()
	_, wres := lib.DeviceGetCapture(dev, 10)
	test.That(t, wres, test.ShouldEqual, native.WaitResultTimeout)
	test.That(t, time.Since(start), test.ShouldBeLessThan, 150*time.Millisecond)

	c, wres := lib.DeviceGetCapture(dev, 1000)
	test.That(t, wres, test.ShouldEqual, native.WaitResultSucceeded)
	lib.CaptureRelease(c)
}

func TestConfigurationChecks(t *testing.T) {
	lib := newTestLibrary(t, nil)
	for _, tc := range []struct {
		name   string
		modify func(*native.DeviceConfiguration)
		ok     bool
	}{
		{"valid", func(*native.DeviceConfiguration) {}, true},
		{"all off", func(c *native.DeviceConfiguration) {
			c.ColorResolution, c.DepthMode, c.SynchronizedImagesOnly = native.ColorResolutionOff, native.DepthModeOff, false
		}, false},
		{"sync needs both", func(c *native.DeviceConfiguration) { c.DepthMode = native.DepthModeOff }, false},
		{"depth only", func(c *native.DeviceConfiguration) {
			c.ColorResolution, c.SynchronizedImagesOnly = native.ColorResolutionOff, false
		}, true},
		{"30fps 3072p", func(c *native.DeviceConfiguration) { c.ColorResolution = native.ColorResolution3072P }, false},
		{"30fps wfov", func(c *native.DeviceConfiguration) { c.DepthMode = native.DepthModeWFOVUnbinned }, false},
		{"nv12 1080p", func(c *native.DeviceConfiguration) {
			c.ColorFormat, c.ColorResolution = native.ImageFormatColorNV12, native.ColorResolution1080P
		}, false},
		{"nv12 720p", func(c *native.DeviceConfiguration) { c.ColorFormat = native.ImageFormatColorNV12 }, true},
		{"depth color format", func(c *native.DeviceConfiguration) { c.ColorFormat = native.ImageFormatDepth16 }, false},
		{"subordinate unplugged", func(c *native.DeviceConfiguration) { c.WiredSyncMode = native.WiredSyncModeSubordinate }, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.modify(&cfg)
			test.That(t, lib.checkConfiguration(&cfg), test.ShouldEqual, tc.ok)
		})
	}
}

func TestColorControls(t *testing.T) {
	lib := newTestLibrary(t, nil)
	dev, _ := lib.DeviceOpen(0)
	defer lib.DeviceClose(dev)

	caps, res := lib.DeviceGetColorControlCapabilities(dev, native.ColorControlBrightness)
	test.That(t, res, test.ShouldEqual, native.ResultSucceeded)
	test.That(t, caps.SupportsAuto, test.ShouldBeFalse)

	mode, value, _ := lib.DeviceGetColorControl(dev, native.ColorControlBrightness)
	test.That(t, mode, test.ShouldEqual, native.ColorControlModeManual)
	test.That(t, value, test.ShouldEqual, 128)

	test.That(t, lib.DeviceSetColorControl(dev, native.ColorControlBrightness, native.ColorControlModeManual, 200),
		test.ShouldEqual, native.ResultSucceeded)
	_, value, _ = lib.DeviceGetColorControl(dev, native.ColorControlBrightness)
	test.That(t, value, test.ShouldEqual, 200)

	test.That(t, lib.DeviceSetColorControl(dev, native.ColorControlBrightness, native.ColorControlModeManual, 300),
		test.ShouldEqual, native.ResultFailed)
	test.That(t, lib.DeviceSetColorControl(dev, native.ColorControlBrightness, native.ColorControlModeAuto, 0),
		test.ShouldEqual, native.ResultFailed)
	test.That(t, lib.DeviceSetColorControl(dev, native.ColorControlWhitebalance, native.ColorControlModeManual, 3205),
		test.ShouldEqual, native.ResultFailed)
	test.That(t, lib.DeviceSetColorControl(dev, native.ColorControlWhitebalance, native.ColorControlModeManual, 3200),
		test.ShouldEqual, native.ResultSucceeded)
	test.That(t, lib.DeviceSetColorControl(dev, native.ColorControlWhitebalance, native.ColorControlModeAuto, 0),
		test.ShouldEqual, native.ResultSucceeded)
	mode, value, _ = lib.DeviceGetColorControl(dev, native.ColorControlWhitebalance)
	test.That(t, mode, test.ShouldEqual, native.ColorControlModeAuto)
	test.That(t, value, test.ShouldEqual, 3200)
}

func TestDroppedCapturesWarnOnce(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	lib := New(Options{Devices: 1, Logger: logger})
	dev, _ := lib.DeviceOpen(0)
	defer lib.DeviceClose(dev)
	cfg := testConfig()
	test.That(t, lib.DeviceStartCameras(dev, &cfg), test.ShouldEqual, native.ResultSucceeded)

	// nobody reads, so the queue overflows after a few frames
	deadline := time.Now().Add(5 * time.Second)
	for logs.FilterMessageSnippet("dropped captures").Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)
	test.That(t, logs.FilterMessageSnippet("dropped captures").Len(), test.ShouldEqual, 1)

	lib.DeviceStopCameras(dev)
	test.That(t, lib.LiveCaptures(), test.ShouldEqual, 0)
}
