// Package native defines the call surface of the vendor depth-camera library.
//
// Everything above this package treats the vendor library as an opaque collaborator: handles
// returned from it are never dereferenced, only passed back. A Library is implemented either by
// the cgo binding in native/libk4a (build tag "k4a") or by the simulated backend in native/fake.
package native

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrUnavailable is returned by Default when no native backend was compiled into the binary.
var ErrUnavailable = errors.New("native depth camera library is not available in this build")

// DeviceHandle names an opened device.
type DeviceHandle uintptr

// CaptureHandle names a reference-counted capture.
type CaptureHandle uintptr

// ImageHandle names a reference-counted image.
type ImageHandle uintptr

// TransformationHandle names precomputed transformation state.
type TransformationHandle uintptr

// DeviceCalls are the calls operating on an opened device.
type DeviceCalls interface {
	DeviceGetInstalledCount() uint32
	DeviceOpen(index uint32) (DeviceHandle, Result)
	DeviceClose(h DeviceHandle)
	// DeviceGetCapture blocks up to timeoutMs (-1 is forever, 0 polls). The returned capture
	// carries one reference owned by the caller.
	DeviceGetCapture(h DeviceHandle, timeoutMs int32) (CaptureHandle, WaitResult)
	DeviceGetImuSample(h DeviceHandle, timeoutMs int32) (ImuSample, WaitResult)
	DeviceStartCameras(h DeviceHandle, config *DeviceConfiguration) Result
	DeviceStopCameras(h DeviceHandle)
	DeviceStartImu(h DeviceHandle) Result
	DeviceStopImu(h DeviceHandle)
	// DeviceGetSerialnum writes a NUL terminated serial number into buf and reports the size
	// needed. A nil or short buf yields BufferResultTooSmall.
	DeviceGetSerialnum(h DeviceHandle, buf []byte) (int, BufferResult)
	DeviceGetVersion(h DeviceHandle) (HardwareVersion, Result)
	DeviceGetColorControlCapabilities(h DeviceHandle, cmd ColorControlCommand) (ColorControlCapabilities, Result)
	DeviceGetColorControl(h DeviceHandle, cmd ColorControlCommand) (ColorControlMode, int32, Result)
	DeviceSetColorControl(h DeviceHandle, cmd ColorControlCommand, mode ColorControlMode, value int32) Result
	// DeviceGetRawCalibration behaves like DeviceGetSerialnum for the raw calibration blob.
	DeviceGetRawCalibration(h DeviceHandle, buf []byte) (int, BufferResult)
	DeviceGetCalibration(h DeviceHandle, depthMode DepthMode, colorResolution ColorResolution) (Calibration, Result)
	DeviceGetSyncJack(h DeviceHandle) (syncIn, syncOut bool, res Result)
}

// CaptureCalls are the calls operating on captures.
type CaptureCalls interface {
	CaptureCreate() (CaptureHandle, Result)
	CaptureReference(h CaptureHandle)
	CaptureRelease(h CaptureHandle)
	// CaptureGet*Image return a new reference owned by the caller, or zero when the capture
	// holds no image for that channel.
	CaptureGetColorImage(h CaptureHandle) ImageHandle
	CaptureGetDepthImage(h CaptureHandle) ImageHandle
	CaptureGetIRImage(h CaptureHandle) ImageHandle
	// CaptureSet*Image add a reference to img (which may be zero) and drop the capture's
	// reference to the image previously held on that channel.
	CaptureSetColorImage(h CaptureHandle, img ImageHandle)
	CaptureSetDepthImage(h CaptureHandle, img ImageHandle)
	CaptureSetIRImage(h CaptureHandle, img ImageHandle)
	CaptureGetTemperatureC(h CaptureHandle) float32
	CaptureSetTemperatureC(h CaptureHandle, temperatureC float32)
}

// ImageCalls are the calls operating on images.
type ImageCalls interface {
	ImageCreate(format ImageFormat, width, height, stride int32) (ImageHandle, Result)
	// ImageCreateFromBuffer wraps caller-owned memory. The library never frees buf.
	ImageCreateFromBuffer(format ImageFormat, width, height, stride int32, buf []byte) (ImageHandle, Result)
	ImageReference(h ImageHandle)
	ImageRelease(h ImageHandle)
	// ImageGetBuffer aliases the image memory. It is only valid until the last reference
	// to the image is released.
	ImageGetBuffer(h ImageHandle) []byte
	ImageGetSize(h ImageHandle) int
	ImageGetFormat(h ImageHandle) ImageFormat
	ImageGetWidthPixels(h ImageHandle) int32
	ImageGetHeightPixels(h ImageHandle) int32
	ImageGetStrideBytes(h ImageHandle) int32
	ImageGetDeviceTimestampUsec(h ImageHandle) uint64
	ImageSetDeviceTimestampUsec(h ImageHandle, usec uint64)
	ImageGetSystemTimestampNsec(h ImageHandle) uint64
	ImageSetSystemTimestampNsec(h ImageHandle, nsec uint64)
	ImageGetExposureUsec(h ImageHandle) uint64
	ImageSetExposureUsec(h ImageHandle, usec uint64)
	ImageGetWhiteBalance(h ImageHandle) uint32
	ImageSetWhiteBalance(h ImageHandle, kelvin uint32)
	ImageGetISOSpeed(h ImageHandle) uint32
	ImageSetISOSpeed(h ImageHandle, iso uint32)
}

// CalibrationCalls are the stateless calibration calls.
type CalibrationCalls interface {
	CalibrationGetFromRaw(raw []byte, depthMode DepthMode, colorResolution ColorResolution) (Calibration, Result)
	Calibration3DTo3D(cal *Calibration, src Float3, srcCam, dstCam CalibrationType) (Float3, Result)
	Calibration2DTo3D(cal *Calibration, src Float2, depthMm float32, srcCam, dstCam CalibrationType) (Float3, bool, Result)
	Calibration3DTo2D(cal *Calibration, src Float3, srcCam, dstCam CalibrationType) (Float2, bool, Result)
	Calibration2DTo2D(cal *Calibration, src Float2, depthMm float32, srcCam, dstCam CalibrationType) (Float2, bool, Result)
	CalibrationColor2DToDepth2D(cal *Calibration, src Float2, depthImage ImageHandle) (Float2, bool, Result)
}

// TransformationCalls are the calls operating on transformation state. Output images are
// allocated by the caller.
type TransformationCalls interface {
	// TransformationCreate returns zero on failure.
	TransformationCreate(cal *Calibration) TransformationHandle
	TransformationDestroy(h TransformationHandle)
	TransformationDepthImageToColorCamera(h TransformationHandle, depth, out ImageHandle) Result
	TransformationDepthImageToColorCameraCustom(
		h TransformationHandle,
		depth, custom, outDepth, outCustom ImageHandle,
		interpolation TransformationInterpolationType,
		invalidValue uint32,
	) Result
	TransformationColorImageToDepthCamera(h TransformationHandle, depth, color, out ImageHandle) Result
	TransformationDepthImageToPointCloud(h TransformationHandle, depth ImageHandle, camera CalibrationType, out ImageHandle) Result
}

// Library is the complete native call surface.
type Library interface {
	DeviceCalls
	CaptureCalls
	ImageCalls
	CalibrationCalls
	TransformationCalls
}

var (
	loaderMu    sync.Mutex
	loader      func() (Library, error)
	defaultOnce sync.Once
	defaultLib  Library
	defaultErr  error
)

// RegisterLoader installs the function Default uses to load the process-wide library. Backends
// call it from init; the last registration wins.
func RegisterLoader(load func() (Library, error)) {
	loaderMu.Lock()
	defer loaderMu.Unlock()
	loader = load
}

// Default returns the process-wide library, loading it on first use. The load is attempted once;
// later calls return the same library or the same error.
func Default() (Library, error) {
	defaultOnce.Do(func() {
		loaderMu.Lock()
		load := loader
		loaderMu.Unlock()
		if load == nil {
			defaultErr = ErrUnavailable
			return
		}
		defaultLib, defaultErr = load()
		if defaultErr == nil && defaultLib == nil {
			defaultErr = ErrUnavailable
		}
	})
	return defaultLib, defaultErr
}
