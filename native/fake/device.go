package fake

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"go.viam.com/k4a/native"
	"go.viam.com/k4a/utils"
)

const (
	frameQueueSize = 2
	imuQueueSize   = 256
	imuRateHz      = 1600
)

type fakeDevice struct {
	index       int
	serial      string
	calibration []byte
	controls    map[native.ColorControlCommand]controlState

	cameras *cameraStream
	imu     *utils.Stream[native.ImuSample]
}

type cameraStream struct {
	config native.DeviceConfiguration
	scene  *scene
	frames *utils.Stream[native.CaptureHandle]

	// owned by the producer
	dropped int
	dropLog rate.Sometimes
}

// serialNumber derives a stable twelve digit serial number from the device index.
func serialNumber(index int) string {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("k4a-fake-device-%d", index)))
	return fmt.Sprintf("%012d", binary.BigEndian.Uint64(id[:8])%1_000_000_000_000)
}

// DeviceGetInstalledCount returns the configured number of devices.
func (l *Library) DeviceGetInstalledCount() uint32 {
	return uint32(l.devices)
}

// DeviceOpen opens a device. A device can only be open once at a time.
func (l *Library) DeviceOpen(index uint32) (native.DeviceHandle, native.Result) {
	if int(index) >= l.devices {
		return 0, native.ResultFailed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, dev := range l.opened {
		if dev.index == int(index) {
			return 0, native.ResultFailed
		}
	}
	h := native.DeviceHandle(l.allocHandle())
	l.opened[h] = &fakeDevice{
		index:       int(index),
		serial:      serialNumber(int(index)),
		calibration: rawCalibrationBlob(int(index)),
		controls:    defaultControls(),
	}
	return h, native.ResultSucceeded
}

// DeviceClose stops any streams and closes the device.
func (l *Library) DeviceClose(h native.DeviceHandle) {
	l.DeviceStopImu(h)
	l.DeviceStopCameras(h)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.opened[h]; !ok {
		l.logger.Warnw("close of unknown device", "handle", h)
		return
	}
	delete(l.opened, h)
}

func (l *Library) device(h native.DeviceHandle) *fakeDevice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opened[h]
}

// checkConfiguration applies the restrictions of the hardware.
func (l *Library) checkConfiguration(config *native.DeviceConfiguration) bool {
	colorOn := config.ColorResolution != native.ColorResolutionOff
	depthOn := config.DepthMode != native.DepthModeOff
	switch {
	case config.ColorResolution < native.ColorResolutionOff || config.ColorResolution > native.ColorResolution3072P,
		config.DepthMode < native.DepthModeOff || config.DepthMode > native.DepthModePassiveIR,
		config.CameraFPS.Hz() == 0,
		!colorOn && !depthOn,
		config.SynchronizedImagesOnly && !(colorOn && depthOn):
		return false
	case config.CameraFPS == native.FPS30 &&
		(config.ColorResolution == native.ColorResolution3072P || config.DepthMode == native.DepthModeWFOVUnbinned):
		return false
	case config.WiredSyncMode == native.WiredSyncModeSubordinate && !l.syncIn,
		config.WiredSyncMode == native.WiredSyncModeMaster && !l.syncOut:
		return false
	}
	if !colorOn {
		return true
	}
	switch config.ColorFormat {
	case native.ImageFormatColorMJPG, native.ImageFormatColorBGRA32:
		return true
	case native.ImageFormatColorNV12, native.ImageFormatColorYUY2:
		return config.ColorResolution == native.ColorResolution720P
	case native.ImageFormatDepth16, native.ImageFormatIR16, native.ImageFormatCustom8,
		native.ImageFormatCustom16, native.ImageFormatCustom:
		return false
	default:
		return false
	}
}

// DeviceStartCameras validates the configuration and starts producing captures at its frame
// rate. Starting twice fails.
func (l *Library) DeviceStartCameras(h native.DeviceHandle, config *native.DeviceConfiguration) native.Result {
	if config == nil || !l.checkConfiguration(config) {
		return native.ResultFailed
	}
	dev := l.device(h)
	if dev == nil {
		return native.ResultFailed
	}
	cal, res := parseCalibration(dev.calibration, config.DepthMode, config.ColorResolution)
	if !res.Succeeded() {
		return res
	}
	sc, err := renderScene(&cal, config.ColorFormat)
	if err != nil {
		l.logger.Errorw("cannot render simulated scene", "error", err)
		return native.ResultFailed
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if dev.cameras != nil {
		return native.ResultFailed
	}
	s := &cameraStream{
		config:  *config,
		scene:   sc,
		dropLog: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
	s.frames = utils.NewStream(utils.StreamConfig[native.CaptureHandle]{
		Clock:     l.clock,
		Period:    time.Second / time.Duration(config.CameraFPS.Hz()),
		QueueSize: frameQueueSize,
		Produce: func(frame uint64, elapsed time.Duration) native.CaptureHandle {
			return l.newCapture(dev, s, frame, elapsed)
		},
		Evicted: func(native.CaptureHandle) {
			s.dropped++
			s.dropLog.Do(func() {
				l.logger.Warnw("dropped captures, frames are not being read fast enough",
					"serial", dev.serial, "dropped", s.dropped)
			})
		},
		Release: l.CaptureRelease,
	})
	dev.cameras = s
	return native.ResultSucceeded
}

// DeviceStopCameras stops the cameras. Blocked DeviceGetCapture calls return failed.
func (l *Library) DeviceStopCameras(h native.DeviceHandle) {
	l.mu.Lock()
	dev := l.opened[h]
	var s *cameraStream
	if dev != nil {
		s, dev.cameras = dev.cameras, nil
	}
	l.mu.Unlock()
	if s != nil {
		s.frames.Stop()
	}
}

// waitFor receives from items, giving up when the stream stops or the timeout passes.
func waitFor[T any](l *Library, stream *utils.Stream[T], timeoutMs int32) (T, native.WaitResult) {
	items, stopped := stream.Items(), stream.Stopped()
	var zero T
	if timeoutMs == 0 {
		select {
		case item := <-items:
			return item, native.WaitResultSucceeded
		case <-stopped:
			return zero, native.WaitResultFailed
		default:
			return zero, native.WaitResultTimeout
		}
	}
	var timeout <-chan time.Time
	if timeoutMs > 0 {
		timer := l.clock.Timer(time.Duration(timeoutMs) * time.Millisecond)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case item := <-items:
		return item, native.WaitResultSucceeded
	case <-stopped:
		return zero, native.WaitResultFailed
	case <-timeout:
		return zero, native.WaitResultTimeout
	}
}

// DeviceGetCapture waits for the next capture.
func (l *Library) DeviceGetCapture(h native.DeviceHandle, timeoutMs int32) (native.CaptureHandle, native.WaitResult) {
	l.mu.Lock()
	var s *cameraStream
	if dev := l.opened[h]; dev != nil {
		s = dev.cameras
	}
	l.mu.Unlock()
	if s == nil {
		return 0, native.WaitResultFailed
	}
	return waitFor(l, s.frames, timeoutMs)
}

// DeviceStartImu starts the motion sensor. The cameras must be running.
func (l *Library) DeviceStartImu(h native.DeviceHandle) native.Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	dev := l.opened[h]
	if dev == nil || dev.cameras == nil || dev.imu != nil {
		return native.ResultFailed
	}
	index := dev.index
	dev.imu = utils.NewStream(utils.StreamConfig[native.ImuSample]{
		Clock:     l.clock,
		Period:    time.Second / imuRateHz,
		QueueSize: imuQueueSize,
		Produce: func(_ uint64, elapsed time.Duration) native.ImuSample {
			return imuSample(index, elapsed)
		},
	})
	return native.ResultSucceeded
}

// DeviceStopImu stops the motion sensor.
func (l *Library) DeviceStopImu(h native.DeviceHandle) {
	l.mu.Lock()
	dev := l.opened[h]
	var s *utils.Stream[native.ImuSample]
	if dev != nil {
		s, dev.imu = dev.imu, nil
	}
	l.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

// DeviceGetImuSample waits for the next motion sample.
func (l *Library) DeviceGetImuSample(h native.DeviceHandle, timeoutMs int32) (native.ImuSample, native.WaitResult) {
	l.mu.Lock()
	var s *utils.Stream[native.ImuSample]
	if dev := l.opened[h]; dev != nil {
		s = dev.imu
	}
	l.mu.Unlock()
	if s == nil {
		return native.ImuSample{}, native.WaitResultFailed
	}
	return waitFor(l, s, timeoutMs)
}

// imuSample simulates a device at rest with a slow wobble.
func imuSample(index int, elapsed time.Duration) native.ImuSample {
	t := elapsed.Seconds()
	usec := uint64(elapsed / time.Microsecond)
	return native.ImuSample{
		TemperatureC:      31.25 + float32(index)/10,
		AccSample:         native.Float3{X: float32(0.02 * math.Sin(t)), Y: 0.01, Z: -9.81},
		AccTimestampUsec:  usec,
		GyroSample:        native.Float3{X: float32(0.001 * math.Cos(t)), Y: -0.0005, Z: 0.0002},
		GyroTimestampUsec: usec,
	}
}

// writeBuffer implements the two step buffer protocol: a short buf reports the size needed.
func writeBuffer(data, buf []byte) (int, native.BufferResult) {
	if len(buf) < len(data) {
		return len(data), native.BufferResultTooSmall
	}
	copy(buf, data)
	return len(data), native.BufferResultSucceeded
}

// DeviceGetSerialnum writes the NUL terminated serial number.
func (l *Library) DeviceGetSerialnum(h native.DeviceHandle, buf []byte) (int, native.BufferResult) {
	dev := l.device(h)
	if dev == nil {
		return 0, native.BufferResultFailed
	}
	return writeBuffer(append([]byte(dev.serial), 0), buf)
}

// DeviceGetRawCalibration writes the raw calibration blob.
func (l *Library) DeviceGetRawCalibration(h native.DeviceHandle, buf []byte) (int, native.BufferResult) {
	dev := l.device(h)
	if dev == nil {
		return 0, native.BufferResultFailed
	}
	return writeBuffer(dev.calibration, buf)
}

// DeviceGetCalibration returns the calibration for a mode pair, parsed from the same blob
// DeviceGetRawCalibration returns.
func (l *Library) DeviceGetCalibration(
	h native.DeviceHandle, depthMode native.DepthMode, colorResolution native.ColorResolution,
) (native.Calibration, native.Result) {
	dev := l.device(h)
	if dev == nil {
		return native.Calibration{}, native.ResultFailed
	}
	return parseCalibration(dev.calibration, depthMode, colorResolution)
}

// DeviceGetVersion returns fixed firmware versions.
func (l *Library) DeviceGetVersion(h native.DeviceHandle) (native.HardwareVersion, native.Result) {
	if l.device(h) == nil {
		return native.HardwareVersion{}, native.ResultFailed
	}
	return native.HardwareVersion{
		RGB:               native.Version{Major: 1, Minor: 6, Iteration: 110},
		Depth:             native.Version{Major: 1, Minor: 6, Iteration: 80},
		Audio:             native.Version{Major: 1, Minor: 6, Iteration: 14},
		DepthSensor:       native.Version{Major: 6109, Minor: 7},
		FirmwareBuild:     0,
		FirmwareSignature: 1,
	}, native.ResultSucceeded
}

// DeviceGetSyncJack reports the configured sync jack states.
func (l *Library) DeviceGetSyncJack(h native.DeviceHandle) (syncIn, syncOut bool, res native.Result) {
	if l.device(h) == nil {
		return false, false, native.ResultFailed
	}
	return l.syncIn, l.syncOut, native.ResultSucceeded
}
