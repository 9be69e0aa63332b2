package k4a

import (
	"bytes"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/k4a/handle"
	"go.viam.com/k4a/logging"
	"go.viam.com/k4a/native"
)

// maxBufferProbes bounds the size-then-fill loop of calls writing into caller buffers.
const maxBufferProbes = 3

// Wait durations for Capture and ImuSample.
const (
	// Poll returns immediately when no data is queued.
	Poll time.Duration = 0
	// Forever blocks until data arrives or the stream stops.
	Forever time.Duration = -1
)

// ImuSample is one reading of the accelerometer and gyroscope.
type ImuSample struct {
	TemperatureC float64
	// Acceleration in m/s².
	Acceleration          r3.Vector
	AccelerationTimestamp time.Duration
	// AngularVelocity in rad/s.
	AngularVelocity          r3.Vector
	AngularVelocityTimestamp time.Duration
}

func imuSampleFromNative(s native.ImuSample) ImuSample {
	return ImuSample{
		TemperatureC:             float64(s.TemperatureC),
		Acceleration:             fromFloat3(s.AccSample),
		AccelerationTimestamp:    time.Duration(s.AccTimestampUsec) * time.Microsecond,
		AngularVelocity:          fromFloat3(s.GyroSample),
		AngularVelocityTimestamp: time.Duration(s.GyroTimestampUsec) * time.Microsecond,
	}
}

// InstalledCount returns the number of devices connected to the host.
func InstalledCount(lib native.Library) (int, error) {
	lib, err := library(lib)
	if err != nil {
		return 0, err
	}
	return int(lib.DeviceGetInstalledCount()), nil
}

// Device is an opened depth camera. It moves through open, cameras running and IMU running,
// and Close walks back through those states.
type Device struct {
	lib    native.Library
	logger logging.Logger
	index  int
	ref    *handle.Ref[native.DeviceHandle]

	mu sync.Mutex
	// started is signaled when startingCams goes back to false.
	started        *sync.Cond
	startingCams   bool
	camerasRunning bool
	imuRunning     bool
	config         native.DeviceConfiguration
}

// Open opens the device at index. A device can only be opened once at a time, by any process.
func Open(lib native.Library, index int, logger logging.Logger) (*Device, error) {
	lib, err := library(lib)
	if err != nil {
		return nil, err
	}
	if index < 0 || uint64(index) > math.MaxUint32 {
		return nil, errors.Errorf("invalid device index %d", index)
	}
	h, res := lib.DeviceOpen(uint32(index))
	if !res.Succeeded() {
		return nil, failed("cannot open device %d", index)
	}
	ref, err := handle.New(&handle.Kind[native.DeviceHandle]{Name: "device", Release: lib.DeviceClose}, h)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewLogger("k4a")
	}
	dev := &Device{lib: lib, logger: logger.Sublogger(fmt.Sprintf("device%d", index)), index: index, ref: ref}
	dev.started = sync.NewCond(&dev.mu)
	dev.logger.Debug("opened")
	return dev, nil
}

// Index returns the index the device was opened at.
func (d *Device) Index() int {
	return d.index
}

// handle must be called with mu held.
func (d *Device) handle() (native.DeviceHandle, error) {
	h := d.ref.Handle()
	if h == 0 {
		return 0, errors.Wrapf(ErrClosed, "device %d", d.index)
	}
	return h, nil
}

// lockedHandle reads the handle under the lock, for calls that do not change streaming state.
func (d *Device) lockedHandle() (native.DeviceHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle()
}

// StartCameras starts the color and depth cameras. It fails when the cameras are already
// running or being started by another goroutine.
func (d *Device) StartCameras(cfg *Config) error {
	if cfg == nil {
		return errors.New("camera configuration is required")
	}
	if err := cfg.Validate("cameras"); err != nil {
		return err
	}
	nc, err := cfg.Native()
	if err != nil {
		return err
	}
	d.mu.Lock()
	h, err := d.handle()
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if d.camerasRunning || d.startingCams {
		d.mu.Unlock()
		return errors.Errorf("cameras of device %d are already running", d.index)
	}
	d.startingCams = true
	d.mu.Unlock()

	res := d.lib.DeviceStartCameras(h, &nc)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.startingCams = false
	d.started.Broadcast()
	if err := checkResult(res, "cannot start cameras of device %d with %v/%v at %v",
		d.index, nc.DepthMode, nc.ColorResolution, nc.CameraFPS); err != nil {
		return err
	}
	d.camerasRunning = true
	d.config = nc
	d.logger.Debugw("cameras started",
		"color_format", nc.ColorFormat, "color_resolution", nc.ColorResolution,
		"depth_mode", nc.DepthMode, "fps", nc.CameraFPS.Hz())
	return nil
}

// stopImuLocked must be called with mu held.
func (d *Device) stopImuLocked(h native.DeviceHandle) {
	if !d.imuRunning {
		return
	}
	d.lib.DeviceStopImu(h)
	d.imuRunning = false
	d.logger.Debug("imu stopped")
}

// stopCamerasLocked must be called with mu held.
func (d *Device) stopCamerasLocked(h native.DeviceHandle) {
	d.stopImuLocked(h)
	if !d.camerasRunning {
		return
	}
	d.lib.DeviceStopCameras(h)
	d.camerasRunning = false
	d.logger.Debug("cameras stopped")
}

// StopCameras stops the IMU and the cameras. Blocked Capture calls return with an error.
// Stopping cameras that are not running does nothing.
func (d *Device) StopCameras() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.handle()
	if err != nil {
		return err
	}
	d.stopCamerasLocked(h)
	return nil
}

// StartImu starts the motion sensors. The cameras must be running.
func (d *Device) StartImu() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.handle()
	if err != nil {
		return err
	}
	if !d.camerasRunning {
		return errors.Errorf("cannot start imu of device %d before its cameras", d.index)
	}
	if d.imuRunning {
		return errors.Errorf("imu of device %d is already running", d.index)
	}
	if err := checkResult(d.lib.DeviceStartImu(h), "cannot start imu of device %d", d.index); err != nil {
		return err
	}
	d.imuRunning = true
	d.logger.Debug("imu started")
	return nil
}

// StopImu stops the motion sensors. Blocked ImuSample calls return with an error.
func (d *Device) StopImu() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.handle()
	if err != nil {
		return err
	}
	d.stopImuLocked(h)
	return nil
}

// timeoutMillis converts a wait duration to the native convention: -1 forever, 0 poll.
func timeoutMillis(timeout time.Duration) int32 {
	switch {
	case timeout < 0:
		return -1
	case timeout == 0:
		return 0
	}
	ms := (timeout + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(ms)
}

func waitError(res native.WaitResult, what string, timeout time.Duration) error {
	switch res {
	case native.WaitResultSucceeded:
		return nil
	case native.WaitResultTimeout:
		return errors.Wrapf(ErrTimeout, "no %s after %v", what, timeout)
	case native.WaitResultFailed:
		return failed("cannot read %s", what)
	default:
		return failed("cannot read %s: %v", what, res)
	}
}

// Capture waits up to timeout for the next capture. Negative timeouts wait forever and zero
// polls. A timeout is reported with ErrTimeout, distinct from failures such as the cameras
// stopping while waiting. The lock is not held while waiting.
func (d *Device) Capture(timeout time.Duration) (*Capture, error) {
	h, err := d.lockedHandle()
	if err != nil {
		return nil, err
	}
	c, res := d.lib.DeviceGetCapture(h, timeoutMillis(timeout))
	if err := waitError(res, "capture", timeout); err != nil {
		return nil, err
	}
	return wrapCapture(d.lib, c)
}

// ImuSample waits up to timeout for the next motion sample, like Capture.
func (d *Device) ImuSample(timeout time.Duration) (ImuSample, error) {
	h, err := d.lockedHandle()
	if err != nil {
		return ImuSample{}, err
	}
	s, res := d.lib.DeviceGetImuSample(h, timeoutMillis(timeout))
	if err := waitError(res, "imu sample", timeout); err != nil {
		return ImuSample{}, err
	}
	return imuSampleFromNative(s), nil
}

// readBuffer runs a call that fills a caller buffer, growing the buffer to the size the call
// asks for.
func readBuffer(what string, read func(buf []byte) (int, native.BufferResult)) ([]byte, error) {
	var buf []byte
	for probe := 0; probe < maxBufferProbes; probe++ {
		size, res := read(buf)
		switch res {
		case native.BufferResultSucceeded:
			if size > len(buf) {
				return nil, failed("%s reported %d bytes in a %d byte buffer", what, size, len(buf))
			}
			return buf[:size], nil
		case native.BufferResultTooSmall:
			if size <= len(buf) {
				return nil, failed("%s asked for %d bytes with %d available", what, size, len(buf))
			}
			buf = make([]byte, size)
		case native.BufferResultFailed:
			return nil, failed("cannot read %s", what)
		default:
			return nil, failed("cannot read %s: %v", what, res)
		}
	}
	return nil, failed("%s kept growing after %d attempts", what, maxBufferProbes)
}

// SerialNumber returns the device's serial number.
func (d *Device) SerialNumber() (string, error) {
	h, err := d.lockedHandle()
	if err != nil {
		return "", err
	}
	buf, err := readBuffer("serial number", func(buf []byte) (int, native.BufferResult) {
		return d.lib.DeviceGetSerialnum(h, buf)
	})
	if err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf, "\x00")), nil
}

// RawCalibration returns the factory calibration blob, for CalibrationFromRaw or for storing.
func (d *Device) RawCalibration() ([]byte, error) {
	h, err := d.lockedHandle()
	if err != nil {
		return nil, err
	}
	return readBuffer("raw calibration", func(buf []byte) (int, native.BufferResult) {
		return d.lib.DeviceGetRawCalibration(h, buf)
	})
}

// Calibration returns the calibration for a depth mode and color resolution. It is the same
// calibration CalibrationFromRaw produces from RawCalibration.
func (d *Device) Calibration(depthMode native.DepthMode, colorResolution native.ColorResolution) (Calibration, error) {
	h, err := d.lockedHandle()
	if err != nil {
		return Calibration{}, err
	}
	cal, res := d.lib.DeviceGetCalibration(h, depthMode, colorResolution)
	if err := checkResult(res, "cannot get calibration of device %d for %v/%v",
		d.index, depthMode, colorResolution); err != nil {
		return Calibration{}, err
	}
	return Calibration{lib: d.lib, raw: cal}, nil
}

// Version returns the firmware versions of the device.
func (d *Device) Version() (native.HardwareVersion, error) {
	h, err := d.lockedHandle()
	if err != nil {
		return native.HardwareVersion{}, err
	}
	v, res := d.lib.DeviceGetVersion(h)
	if err := checkResult(res, "cannot get version of device %d", d.index); err != nil {
		return native.HardwareVersion{}, err
	}
	return v, nil
}

// SyncJack reports whether cables are plugged into the sync in and sync out jacks.
func (d *Device) SyncJack() (syncIn, syncOut bool, err error) {
	h, err := d.lockedHandle()
	if err != nil {
		return false, false, err
	}
	syncIn, syncOut, res := d.lib.DeviceGetSyncJack(h)
	if err := checkResult(res, "cannot get sync jack state of device %d", d.index); err != nil {
		return false, false, err
	}
	return syncIn, syncOut, nil
}

// ColorControl returns the mode and value of a color camera control.
func (d *Device) ColorControl(cmd native.ColorControlCommand) (native.ColorControlMode, int, error) {
	h, err := d.lockedHandle()
	if err != nil {
		return 0, 0, err
	}
	mode, value, res := d.lib.DeviceGetColorControl(h, cmd)
	if err := checkResult(res, "cannot get %v of device %d", cmd, d.index); err != nil {
		return 0, 0, err
	}
	return mode, int(value), nil
}

// SetColorControl changes a color camera control. In auto mode the value is ignored.
func (d *Device) SetColorControl(cmd native.ColorControlCommand, mode native.ColorControlMode, value int) error {
	h, err := d.lockedHandle()
	if err != nil {
		return err
	}
	if value < math.MinInt32 || value > math.MaxInt32 {
		return errors.Errorf("%v value %d is out of range", cmd, value)
	}
	if err := checkResult(d.lib.DeviceSetColorControl(h, cmd, mode, int32(value)),
		"cannot set %v of device %d to %v %d", cmd, d.index, mode, value); err != nil {
		return err
	}
	d.logger.Debugw("color control set", "command", cmd, "mode", mode, "value", value)
	return nil
}

// ColorControlCapabilities returns the range of a color camera control.
func (d *Device) ColorControlCapabilities(cmd native.ColorControlCommand) (native.ColorControlCapabilities, error) {
	h, err := d.lockedHandle()
	if err != nil {
		return native.ColorControlCapabilities{}, err
	}
	caps, res := d.lib.DeviceGetColorControlCapabilities(h, cmd)
	if err := checkResult(res, "cannot get %v capabilities of device %d", cmd, d.index); err != nil {
		return native.ColorControlCapabilities{}, err
	}
	return caps, nil
}

// CameraConfiguration returns the configuration the cameras were last started with.
func (d *Device) CameraConfiguration() native.DeviceConfiguration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

// Running reports whether the cameras and the IMU are streaming.
func (d *Device) Running() (cameras, imu bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.camerasRunning, d.imuRunning
}

// Close stops the IMU and cameras and closes the device. A StartCameras in progress finishes
// first. Closing twice does nothing.
func (d *Device) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.startingCams {
		d.started.Wait()
	}
	h := d.ref.Handle()
	if h == 0 {
		return nil
	}
	d.stopCamerasLocked(h)
	d.logger.Debug("closing")
	return d.ref.Close()
}
