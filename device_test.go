package k4a

import (
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"go.viam.com/k4a/native"
	"go.viam.com/k4a/native/fake"
)

func TestOpen(t *testing.T) {
	lib := newFake(t, nil)
	count, err := InstalledCount(lib)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, count, test.ShouldEqual, 2)

	dev, err := Open(lib, 0, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dev.Index(), test.ShouldEqual, 0)

	_, err = Open(lib, 0, nil)
	test.That(t, err, test.ShouldWrap, ErrFailed)
	_, err = Open(lib, 2, nil)
	test.That(t, err, test.ShouldWrap, ErrFailed)
	_, err = Open(lib, -1, nil)
	test.That(t, err, test.ShouldNotBeNil)

	// the failed opens did not disturb the first one
	serial, err := dev.SerialNumber()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, regexp.MustCompile(`^\d{12}$`).MatchString(serial), test.ShouldBeTrue)

	other, err := Open(lib, 1, nil)
	test.That(t, err, test.ShouldBeNil)
	otherSerial, err := other.SerialNumber()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, otherSerial, test.ShouldNotEqual, serial)
	test.That(t, other.Close(), test.ShouldBeNil)

	test.That(t, dev.Close(), test.ShouldBeNil)
	test.That(t, dev.Close(), test.ShouldBeNil)
	_, err = dev.SerialNumber()
	test.That(t, err, test.ShouldWrap, ErrClosed)
	_, err = dev.Capture(Poll)
	test.That(t, err, test.ShouldWrap, ErrClosed)
	test.That(t, dev.StartCameras(DefaultConfig()), test.ShouldWrap, ErrClosed)

	again, err := Open(lib, 0, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again.Close(), test.ShouldBeNil)
}

func TestDeviceInfo(t *testing.T) {
	lib := fake.New(fake.Options{SyncIn: true})
	dev, err := Open(lib, 0, nil)
	test.That(t, err, test.ShouldBeNil)
	defer dev.Close()

	version, err := dev.Version()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, version.RGB, test.ShouldResemble, native.Version{Major: 1, Minor: 6, Iteration: 110})

	syncIn, syncOut, err := dev.SyncJack()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, syncIn, test.ShouldBeTrue)
	test.That(t, syncOut, test.ShouldBeFalse)

	raw, err := dev.RawCalibration()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, raw, test.ShouldNotBeEmpty)
}

func TestColorControls(t *testing.T) {
	dev, err := Open(newFake(t, nil), 0, nil)
	test.That(t, err, test.ShouldBeNil)
	defer dev.Close()

	caps, err := dev.ColorControlCapabilities(native.ColorControlBrightness)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, caps.SupportsAuto, test.ShouldBeFalse)
	mode, value, err := dev.ColorControl(native.ColorControlBrightness)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mode, test.ShouldEqual, native.ColorControlModeManual)
	test.That(t, value, test.ShouldEqual, int(caps.Default))

	test.That(t, dev.SetColorControl(native.ColorControlBrightness, native.ColorControlModeManual, 200), test.ShouldBeNil)
	_, value, err = dev.ColorControl(native.ColorControlBrightness)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, value, test.ShouldEqual, 200)

	err = dev.SetColorControl(native.ColorControlBrightness, native.ColorControlModeManual, int(caps.Max)+1)
	test.That(t, err, test.ShouldWrap, ErrFailed)
	err = dev.SetColorControl(native.ColorControlBrightness, native.ColorControlModeAuto, 0)
	test.That(t, err, test.ShouldWrap, ErrFailed)
	err = dev.SetColorControl(native.ColorControlBrightness, native.ColorControlModeManual, 1<<40)
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, dev.SetColorControl(native.ColorControlWhitebalance, native.ColorControlModeAuto, 0), test.ShouldBeNil)
	mode, _, err = dev.ColorControl(native.ColorControlWhitebalance)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mode, test.ShouldEqual, native.ColorControlModeAuto)
}

func TestStreaming(t *testing.T) {
	mock := clock.NewMock()
	lib := newFake(t, mock)
	dev, err := Open(lib, 0, nil)
	test.That(t, err, test.ShouldBeNil)
	defer dev.Close()

	_, err = dev.Capture(Poll)
	test.That(t, err, test.ShouldWrap, ErrFailed)
	test.That(t, dev.StartCameras(nil), test.ShouldNotBeNil)
	test.That(t, dev.StartCameras(&Config{}), test.ShouldNotBeNil)
	test.That(t, dev.StartImu(), test.ShouldNotBeNil)

	cfg := DefaultConfig()
	test.That(t, dev.StartCameras(cfg), test.ShouldBeNil)
	test.That(t, dev.StartCameras(cfg), test.ShouldNotBeNil)
	cameras, imu := dev.Running()
	test.That(t, cameras, test.ShouldBeTrue)
	test.That(t, imu, test.ShouldBeFalse)
	test.That(t, dev.CameraConfiguration().DepthMode, test.ShouldEqual, native.DepthModeNFOVUnbinned)

	_, err = dev.Capture(Poll)
	test.That(t, err, test.ShouldWrap, ErrTimeout)
	test.That(t, errors.Is(err, ErrFailed), test.ShouldBeFalse)

	mock.Add(time.Second / 30)
	c, err := dev.Capture(Forever)
	test.That(t, err, test.ShouldBeNil)
	color, err := c.Color()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, color.Width(), test.ShouldEqual, 1280)
	depth, err := c.Depth()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, depth.Width(), test.ShouldEqual, 640)
	ir, err := c.IR()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ir, test.ShouldNotBeNil)
	test.That(t, c.Close(), test.ShouldBeNil)
	test.That(t, lib.LiveCaptures(), test.ShouldEqual, 0)

	test.That(t, dev.StartImu(), test.ShouldBeNil)
	test.That(t, dev.StartImu(), test.ShouldNotBeNil)
	mock.Add(time.Second / 1600)
	sample, err := dev.ImuSample(Forever)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sample.Acceleration.Z, test.ShouldAlmostEqual, -9.81, 1e-3)
	test.That(t, sample.AccelerationTimestamp, test.ShouldBeGreaterThan, 0)

	// stopping the cameras takes the imu down with them
	test.That(t, dev.StopCameras(), test.ShouldBeNil)
	cameras, imu = dev.Running()
	test.That(t, cameras, test.ShouldBeFalse)
	test.That(t, imu, test.ShouldBeFalse)
	_, err = dev.ImuSample(Poll)
	test.That(t, err, test.ShouldWrap, ErrFailed)
	test.That(t, dev.StopCameras(), test.ShouldBeNil)

	test.That(t, dev.StartCameras(cfg), test.ShouldBeNil)
}

func TestStopUnblocksCapture(t *testing.T) {
	dev, err := Open(newFake(t, clock.NewMock()), 0, nil)
	test.That(t, err, test.ShouldBeNil)
	defer dev.Close()
	test.That(t, dev.StartCameras(DefaultConfig()), test.ShouldBeNil)
	test.That(t, dev.StartImu(), test.ShouldBeNil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = dev.Capture(Forever)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = dev.ImuSample(Forever)
	}()
	// nothing ticks on the mock clock, so both calls block until the stop
	time.Sleep(10 * time.Millisecond)
	test.That(t, dev.StopCameras(), test.ShouldBeNil)
	wg.Wait()
	for _, err := range errs {
		test.That(t, err, test.ShouldWrap, ErrFailed)
	}
}

func TestCloseWhileStreaming(t *testing.T) {
	lib := newFake(t, clock.NewMock())
	dev, err := Open(lib, 1, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dev.StartCameras(DefaultConfig()), test.ShouldBeNil)
	test.That(t, dev.StartImu(), test.ShouldBeNil)
	test.That(t, dev.Close(), test.ShouldBeNil)
	cameras, imu := dev.Running()
	test.That(t, cameras, test.ShouldBeFalse)
	test.That(t, imu, test.ShouldBeFalse)
	test.That(t, dev.StopCameras(), test.ShouldWrap, ErrClosed)
}

// blockingStartLibrary holds DeviceStartCameras until release is closed.
type blockingStartLibrary struct {
	*fake.Library
	entered chan struct{}
	release chan struct{}
}

func (l *blockingStartLibrary) DeviceStartCameras(h native.DeviceHandle, cfg *native.DeviceConfiguration) native.Result {
	close(l.entered)
	<-l.release
	return l.Library.DeviceStartCameras(h, cfg)
}

func TestCloseWaitsForStartCameras(t *testing.T) {
	lib := &blockingStartLibrary{
		Library: newFake(t, clock.NewMock()),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	dev, err := Open(lib, 0, nil)
	test.That(t, err, test.ShouldBeNil)

	startErr := make(chan error, 1)
	go func() { startErr <- dev.StartCameras(DefaultConfig()) }()
	<-lib.entered
	test.That(t, dev.StartCameras(DefaultConfig()), test.ShouldNotBeNil)

	closeErr := make(chan error, 1)
	go func() { closeErr <- dev.Close() }()
	select {
	case <-closeErr:
		t.Fatal("device closed while cameras were starting")
	case <-time.After(50 * time.Millisecond):
	}

	close(lib.release)
	test.That(t, <-startErr, test.ShouldBeNil)
	test.That(t, <-closeErr, test.ShouldBeNil)
	cameras, imu := dev.Running()
	test.That(t, cameras, test.ShouldBeFalse)
	test.That(t, imu, test.ShouldBeFalse)
	_, err = dev.SerialNumber()
	test.That(t, err, test.ShouldWrap, ErrClosed)
}

func TestTimeoutMillis(t *testing.T) {
	test.That(t, timeoutMillis(Forever), test.ShouldEqual, int32(-1))
	test.That(t, timeoutMillis(-time.Hour), test.ShouldEqual, int32(-1))
	test.That(t, timeoutMillis(Poll), test.ShouldEqual, int32(0))
	test.That(t, timeoutMillis(time.Microsecond), test.ShouldEqual, int32(1))
	test.That(t, timeoutMillis(1500*time.Millisecond), test.ShouldEqual, int32(1500))
	test.That(t, timeoutMillis(1000*time.Hour), test.ShouldEqual, int32(1<<31-1))
}

func TestReadBuffer(t *testing.T) {
	t.Run("grows once", func(t *testing.T) {
		var sizes []int
		buf, err := readBuffer("serial", func(buf []byte) (int, native.BufferResult) {
			sizes = append(sizes, len(buf))
			if len(buf) < 4 {
				return 4, native.BufferResultTooSmall
			}
			copy(buf, "abcd")
			return 4, native.BufferResultSucceeded
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, string(buf), test.ShouldEqual, "abcd")
		test.That(t, sizes, test.ShouldResemble, []int{0, 4})
	})

	t.Run("empty", func(t *testing.T) {
		buf, err := readBuffer("serial", func(buf []byte) (int, native.BufferResult) {
			return 0, native.BufferResultSucceeded
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, buf, test.ShouldBeEmpty)
	})

	t.Run("keeps growing", func(t *testing.T) {
		calls := 0
		_, err := readBuffer("calibration", func(buf []byte) (int, native.BufferResult) {
			calls++
			return len(buf) + 10, native.BufferResultTooSmall
		})
		test.That(t, err, test.ShouldWrap, ErrFailed)
		test.That(t, calls, test.ShouldEqual, maxBufferProbes)
	})

	t.Run("too small without growing", func(t *testing.T) {
		_, err := readBuffer("calibration", func(buf []byte) (int, native.BufferResult) {
			return 0, native.BufferResultTooSmall
		})
		test.That(t, err, test.ShouldWrap, ErrFailed)
	})

	t.Run("failure", func(t *testing.T) {
		_, err := readBuffer("calibration", func(buf []byte) (int, native.BufferResult) {
			return 0, native.BufferResultFailed
		})
		test.That(t, err, test.ShouldWrap, ErrFailed)
	})
}
