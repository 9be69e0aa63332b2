//go:build k4a && cgo

// Package libk4a binds the vendor depth camera library with cgo. Importing it, usually for side
// effects, makes native.Default load the vendor library:
//
//	import _ "go.viam.com/k4a/native/libk4a"
//
// Build with -tags k4a and the vendor headers and shared library installed.
package libk4a

/*
#cgo LDFLAGS: -lk4a
#include <stdint.h>
#include <stdlib.h>
#include <k4a/k4a.h>

extern void k4aGoReleaseBuffer(void *buffer, void *context);

static inline k4a_result_t k4a_go_image_create_from_buffer(
	k4a_image_format_t format, int width, int height, int stride,
	uint8_t *buffer, size_t size, uintptr_t context, k4a_image_t *image
) {
	return k4a_image_create_from_buffer(format, width, height, stride, buffer, size,
		k4aGoReleaseBuffer, (void *)context, image);
}
*/
import "C"

import (
	"runtime"
	"runtime/cgo"
	"unsafe"

	"go.viam.com/k4a/native"
)

func init() {
	native.RegisterLoader(Load)
}

// Library calls the vendor library. It holds no state of its own.
type Library struct{}

var _ native.Library = Library{}

// Load returns the vendor library. The shared library is resolved by the dynamic linker at
// process start, so loading cannot fail once the process runs.
func Load() (native.Library, error) {
	return Library{}, nil
}

func device(h native.DeviceHandle) C.k4a_device_t {
	return C.k4a_device_t(unsafe.Pointer(uintptr(h)))
}

func capture(h native.CaptureHandle) C.k4a_capture_t {
	return C.k4a_capture_t(unsafe.Pointer(uintptr(h)))
}

func image(h native.ImageHandle) C.k4a_image_t {
	return C.k4a_image_t(unsafe.Pointer(uintptr(h)))
}

func transformation(h native.TransformationHandle) C.k4a_transformation_t {
	return C.k4a_transformation_t(unsafe.Pointer(uintptr(h)))
}

func calibration(cal *native.Calibration) *C.k4a_calibration_t {
	return (*C.k4a_calibration_t)(unsafe.Pointer(cal))
}

func float2(p *native.Float2) *C.k4a_float2_t {
	return (*C.k4a_float2_t)(unsafe.Pointer(p))
}

func float3(p *native.Float3) *C.k4a_float3_t {
	return (*C.k4a_float3_t)(unsafe.Pointer(p))
}

func result(r C.k4a_result_t) native.Result {
	if r == C.K4A_RESULT_SUCCEEDED {
		return native.ResultSucceeded
	}
	return native.ResultFailed
}

func waitResult(r C.k4a_wait_result_t) native.WaitResult {
	switch r {
	case C.K4A_WAIT_RESULT_SUCCEEDED:
		return native.WaitResultSucceeded
	case C.K4A_WAIT_RESULT_TIMEOUT:
		return native.WaitResultTimeout
	default:
		return native.WaitResultFailed
	}
}

func bufferResult(r C.k4a_buffer_result_t) native.BufferResult {
	switch r {
	case C.K4A_BUFFER_RESULT_SUCCEEDED:
		return native.BufferResultSucceeded
	case C.K4A_BUFFER_RESULT_TOO_SMALL:
		return native.BufferResultTooSmall
	default:
		return native.BufferResultFailed
	}
}

// bufferArgs returns the pointer and size to hand to a size-then-fill call.
func bufferArgs(buf []byte) (*C.uint8_t, C.size_t) {
	if len(buf) == 0 {
		return nil, 0
	}
	return (*C.uint8_t)(unsafe.Pointer(&buf[0])), C.size_t(len(buf))
}

// DeviceGetInstalledCount implements native.DeviceCalls.
func (Library) DeviceGetInstalledCount() uint32 {
	return uint32(C.k4a_device_get_installed_count())
}

// DeviceOpen implements native.DeviceCalls.
func (Library) DeviceOpen(index uint32) (native.DeviceHandle, native.Result) {
	var h C.k4a_device_t
	res := result(C.k4a_device_open(C.uint32_t(index), &h))
	return native.DeviceHandle(unsafe.Pointer(h)), res
}

// DeviceClose implements native.DeviceCalls.
func (Library) DeviceClose(h native.DeviceHandle) {
	C.k4a_device_close(device(h))
}

// DeviceGetCapture implements native.DeviceCalls.
func (Library) DeviceGetCapture(h native.DeviceHandle, timeoutMs int32) (native.CaptureHandle, native.WaitResult) {
	var c C.k4a_capture_t
	res := waitResult(C.k4a_device_get_capture(device(h), &c, C.int32_t(timeoutMs)))
	return native.CaptureHandle(unsafe.Pointer(c)), res
}

// DeviceGetImuSample implements native.DeviceCalls.
func (Library) DeviceGetImuSample(h native.DeviceHandle, timeoutMs int32) (native.ImuSample, native.WaitResult) {
	var s native.ImuSample
	res := C.k4a_device_get_imu_sample(device(h), (*C.k4a_imu_sample_t)(unsafe.Pointer(&s)), C.int32_t(timeoutMs))
	return s, waitResult(res)
}

// DeviceStartCameras implements native.DeviceCalls.
func (Library) DeviceStartCameras(h native.DeviceHandle, config *native.DeviceConfiguration) native.Result {
	return result(C.k4a_device_start_cameras(device(h), (*C.k4a_device_configuration_t)(unsafe.Pointer(config))))
}

// DeviceStopCameras implements native.DeviceCalls.
func (Library) DeviceStopCameras(h native.DeviceHandle) {
	C.k4a_device_stop_cameras(device(h))
}

// DeviceStartImu implements native.DeviceCalls.
func (Library) DeviceStartImu(h native.DeviceHandle) native.Result {
	return result(C.k4a_device_start_imu(device(h)))
}

// DeviceStopImu implements native.DeviceCalls.
func (Library) DeviceStopImu(h native.DeviceHandle) {
	C.k4a_device_stop_imu(device(h))
}

// DeviceGetSerialnum implements native.DeviceCalls.
func (Library) DeviceGetSerialnum(h native.DeviceHandle, buf []byte) (int, native.BufferResult) {
	ptr, size := bufferArgs(buf)
	res := C.k4a_device_get_serialnum(device(h), (*C.char)(unsafe.Pointer(ptr)), &size)
	return int(size), bufferResult(res)
}

// DeviceGetVersion implements native.DeviceCalls.
func (Library) DeviceGetVersion(h native.DeviceHandle) (native.HardwareVersion, native.Result) {
	var v native.HardwareVersion
	res := C.k4a_device_get_version(device(h), (*C.k4a_hardware_version_t)(unsafe.Pointer(&v)))
	return v, result(res)
}

// DeviceGetColorControlCapabilities implements native.DeviceCalls.
func (Library) DeviceGetColorControlCapabilities(
	h native.DeviceHandle, cmd native.ColorControlCommand,
) (native.ColorControlCapabilities, native.Result) {
	var (
		supportsAuto               C.bool
		minV, maxV, step, defaultV C.int32_t
		defaultMode                C.k4a_color_control_mode_t
	)
	res := C.k4a_device_get_color_control_capabilities(device(h), C.k4a_color_control_command_t(cmd),
		&supportsAuto, &minV, &maxV, &step, &defaultV, &defaultMode)
	return native.ColorControlCapabilities{
		SupportsAuto: bool(supportsAuto),
		Min:          int32(minV),
		Max:          int32(maxV),
		Step:         int32(step),
		Default:      int32(defaultV),
		DefaultMode:  native.ColorControlMode(defaultMode),
	}, result(res)
}

// DeviceGetColorControl implements native.DeviceCalls.
func (Library) DeviceGetColorControl(
	h native.DeviceHandle, cmd native.ColorControlCommand,
) (native.ColorControlMode, int32, native.Result) {
	var (
		mode  C.k4a_color_control_mode_t
		value C.int32_t
	)
	res := C.k4a_device_get_color_control(device(h), C.k4a_color_control_command_t(cmd), &mode, &value)
	return native.ColorControlMode(mode), int32(value), result(res)
}

// DeviceSetColorControl implements native.DeviceCalls.
func (Library) DeviceSetColorControl(
	h native.DeviceHandle, cmd native.ColorControlCommand, mode native.ColorControlMode, value int32,
) native.Result {
	return result(C.k4a_device_set_color_control(device(h), C.k4a_color_control_command_t(cmd),
		C.k4a_color_control_mode_t(mode), C.int32_t(value)))
}

// DeviceGetRawCalibration implements native.DeviceCalls.
func (Library) DeviceGetRawCalibration(h native.DeviceHandle, buf []byte) (int, native.BufferResult) {
	ptr, size := bufferArgs(buf)
	res := C.k4a_device_get_raw_calibration(device(h), ptr, &size)
	return int(size), bufferResult(res)
}

// DeviceGetCalibration implements native.DeviceCalls.
func (Library) DeviceGetCalibration(
	h native.DeviceHandle, depthMode native.DepthMode, colorResolution native.ColorResolution,
) (native.Calibration, native.Result) {
	var cal native.Calibration
	res := C.k4a_device_get_calibration(device(h), C.k4a_depth_mode_t(depthMode),
		C.k4a_color_resolution_t(colorResolution), calibration(&cal))
	return cal, result(res)
}

// DeviceGetSyncJack implements native.DeviceCalls.
func (Library) DeviceGetSyncJack(h native.DeviceHandle) (syncIn, syncOut bool, res native.Result) {
	var in, out C.bool
	r := C.k4a_device_get_sync_jack(device(h), &in, &out)
	return bool(in), bool(out), result(r)
}

// CaptureCreate implements native.CaptureCalls.
func (Library) CaptureCreate() (native.CaptureHandle, native.Result) {
	var c C.k4a_capture_t
	res := result(C.k4a_capture_create(&c))
	return native.CaptureHandle(unsafe.Pointer(c)), res
}

// CaptureReference implements native.CaptureCalls.
func (Library) CaptureReference(h native.CaptureHandle) {
	C.k4a_capture_reference(capture(h))
}

// CaptureRelease implements native.CaptureCalls.
func (Library) CaptureRelease(h native.CaptureHandle) {
	C.k4a_capture_release(capture(h))
}

// CaptureGetColorImage implements native.CaptureCalls.
func (Library) CaptureGetColorImage(h native.CaptureHandle) native.ImageHandle {
	return native.ImageHandle(unsafe.Pointer(C.k4a_capture_get_color_image(capture(h))))
}

// CaptureGetDepthImage implements native.CaptureCalls.
func (Library) CaptureGetDepthImage(h native.CaptureHandle) native.ImageHandle {
	return native.ImageHandle(unsafe.Pointer(C.k4a_capture_get_depth_image(capture(h))))
}

// CaptureGetIRImage implements native.CaptureCalls.
func (Library) CaptureGetIRImage(h native.CaptureHandle) native.ImageHandle {
	return native.ImageHandle(unsafe.Pointer(C.k4a_capture_get_ir_image(capture(h))))
}

// CaptureSetColorImage implements native.CaptureCalls.
func (Library) CaptureSetColorImage(h native.CaptureHandle, img native.ImageHandle) {
	C.k4a_capture_set_color_image(capture(h), image(img))
}

// CaptureSetDepthImage implements native.CaptureCalls.
func (Library) CaptureSetDepthImage(h native.CaptureHandle, img native.ImageHandle) {
	C.k4a_capture_set_depth_image(capture(h), image(img))
}

// CaptureSetIRImage implements native.CaptureCalls.
func (Library) CaptureSetIRImage(h native.CaptureHandle, img native.ImageHandle) {
	C.k4a_capture_set_ir_image(capture(h), image(img))
}

// CaptureGetTemperatureC implements native.CaptureCalls.
func (Library) CaptureGetTemperatureC(h native.CaptureHandle) float32 {
	return float32(C.k4a_capture_get_temperature_c(capture(h)))
}

// CaptureSetTemperatureC implements native.CaptureCalls.
func (Library) CaptureSetTemperatureC(h native.CaptureHandle, temperatureC float32) {
	C.k4a_capture_set_temperature_c(capture(h), C.float(temperatureC))
}

// ImageCreate implements native.ImageCalls.
func (Library) ImageCreate(format native.ImageFormat, width, height, stride int32) (native.ImageHandle, native.Result) {
	var img C.k4a_image_t
	res := C.k4a_image_create(C.k4a_image_format_t(format), C.int(width), C.int(height), C.int(stride), &img)
	return native.ImageHandle(unsafe.Pointer(img)), result(res)
}

// ImageCreateFromBuffer implements native.ImageCalls. buf stays pinned until the library
// releases the image.
func (Library) ImageCreateFromBuffer(
	format native.ImageFormat, width, height, stride int32, buf []byte,
) (native.ImageHandle, native.Result) {
	if len(buf) == 0 {
		return 0, native.ResultFailed
	}
	pinner := &runtime.Pinner{}
	pinner.Pin(&buf[0])
	ctx := cgo.NewHandle(pinner)
	var img C.k4a_image_t
	res := result(C.k4a_go_image_create_from_buffer(C.k4a_image_format_t(format),
		C.int(width), C.int(height), C.int(stride),
		(*C.uint8_t)(unsafe.Pointer(&buf[0])), C.size_t(len(buf)), C.uintptr_t(ctx), &img))
	if !res.Succeeded() {
		// the release callback only runs for images that were created
		pinner.Unpin()
		ctx.Delete()
		return 0, res
	}
	return native.ImageHandle(unsafe.Pointer(img)), res
}

// ImageReference implements native.ImageCalls.
func (Library) ImageReference(h native.ImageHandle) {
	C.k4a_image_reference(image(h))
}

// ImageRelease implements native.ImageCalls.
func (Library) ImageRelease(h native.ImageHandle) {
	C.k4a_image_release(image(h))
}

// ImageGetBuffer implements native.ImageCalls.
func (Library) ImageGetBuffer(h native.ImageHandle) []byte {
	ptr := C.k4a_image_get_buffer(image(h))
	size := int(C.k4a_image_get_size(image(h)))
	if ptr == nil || size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size)
}

// ImageGetSize implements native.ImageCalls.
func (Library) ImageGetSize(h native.ImageHandle) int {
	return int(C.k4a_image_get_size(image(h)))
}

// ImageGetFormat implements native.ImageCalls.
func (Library) ImageGetFormat(h native.ImageHandle) native.ImageFormat {
	return native.ImageFormat(C.k4a_image_get_format(image(h)))
}

// ImageGetWidthPixels implements native.ImageCalls.
func (Library) ImageGetWidthPixels(h native.ImageHandle) int32 {
	return int32(C.k4a_image_get_width_pixels(image(h)))
}

// ImageGetHeightPixels implements native.ImageCalls.
func (Library) ImageGetHeightPixels(h native.ImageHandle) int32 {
	return int32(C.k4a_image_get_height_pixels(image(h)))
}

// ImageGetStrideBytes implements native.ImageCalls.
func (Library) ImageGetStrideBytes(h native.ImageHandle) int32 {
	return int32(C.k4a_image_get_stride_bytes(image(h)))
}

// ImageGetDeviceTimestampUsec implements native.ImageCalls.
func (Library) ImageGetDeviceTimestampUsec(h native.ImageHandle) uint64 {
	return uint64(C.k4a_image_get_device_timestamp_usec(image(h)))
}

// ImageSetDeviceTimestampUsec implements native.ImageCalls.
func (Library) ImageSetDeviceTimestampUsec(h native.ImageHandle, usec uint64) {
	C.k4a_image_set_device_timestamp_usec(image(h), C.uint64_t(usec))
}

// ImageGetSystemTimestampNsec implements native.ImageCalls.
func (Library) ImageGetSystemTimestampNsec(h native.ImageHandle) uint64 {
	return uint64(C.k4a_image_get_system_timestamp_nsec(image(h)))
}

// ImageSetSystemTimestampNsec implements native.ImageCalls.
func (Library) ImageSetSystemTimestampNsec(h native.ImageHandle, nsec uint64) {
	C.k4a_image_set_system_timestamp_nsec(image(h), C.uint64_t(nsec))
}

// ImageGetExposureUsec implements native.ImageCalls.
func (Library) ImageGetExposureUsec(h native.ImageHandle) uint64 {
	return uint64(C.k4a_image_get_exposure_usec(image(h)))
}

// ImageSetExposureUsec implements native.ImageCalls.
func (Library) ImageSetExposureUsec(h native.ImageHandle, usec uint64) {
	C.k4a_image_set_exposure_usec(image(h), C.uint64_t(usec))
}

// ImageGetWhiteBalance implements native.ImageCalls.
func (Library) ImageGetWhiteBalance(h native.ImageHandle) uint32 {
	return uint32(C.k4a_image_get_white_balance(image(h)))
}

// ImageSetWhiteBalance implements native.ImageCalls.
func (Library) ImageSetWhiteBalance(h native.ImageHandle, kelvin uint32) {
	C.k4a_image_set_white_balance(image(h), C.uint32_t(kelvin))
}

// ImageGetISOSpeed implements native.ImageCalls.
func (Library) ImageGetISOSpeed(h native.ImageHandle) uint32 {
	return uint32(C.k4a_image_get_iso_speed(image(h)))
}

// ImageSetISOSpeed implements native.ImageCalls.
func (Library) ImageSetISOSpeed(h native.ImageHandle, iso uint32) {
	C.k4a_image_set_iso_speed(image(h), C.uint32_t(iso))
}

// CalibrationGetFromRaw implements native.CalibrationCalls.
func (Library) CalibrationGetFromRaw(
	raw []byte, depthMode native.DepthMode, colorResolution native.ColorResolution,
) (native.Calibration, native.Result) {
	var cal native.Calibration
	if len(raw) == 0 {
		return cal, native.ResultFailed
	}
	res := C.k4a_calibration_get_from_raw((*C.char)(unsafe.Pointer(&raw[0])), C.size_t(len(raw)),
		C.k4a_depth_mode_t(depthMode), C.k4a_color_resolution_t(colorResolution), calibration(&cal))
	return cal, result(res)
}

// Calibration3DTo3D implements native.CalibrationCalls.
func (Library) Calibration3DTo3D(
	cal *native.Calibration, src native.Float3, srcCam, dstCam native.CalibrationType,
) (native.Float3, native.Result) {
	var out native.Float3
	res := C.k4a_calibration_3d_to_3d(calibration(cal), float3(&src),
		C.k4a_calibration_type_t(srcCam), C.k4a_calibration_type_t(dstCam), float3(&out))
	return out, result(res)
}

// Calibration2DTo3D implements native.CalibrationCalls.
func (Library) Calibration2DTo3D(
	cal *native.Calibration, src native.Float2, depthMm float32, srcCam, dstCam native.CalibrationType,
) (native.Float3, bool, native.Result) {
	var (
		out   native.Float3
		valid C.int
	)
	res := C.k4a_calibration_2d_to_3d(calibration(cal), float2(&src), C.float(depthMm),
		C.k4a_calibration_type_t(srcCam), C.k4a_calibration_type_t(dstCam), float3(&out), &valid)
	return out, valid != 0, result(res)
}

// Calibration3DTo2D implements native.CalibrationCalls.
func (Library) Calibration3DTo2D(
	cal *native.Calibration, src native.Float3, srcCam, dstCam native.CalibrationType,
) (native.Float2, bool, native.Result) {
	var (
		out   native.Float2
		valid C.int
	)
	res := C.k4a_calibration_3d_to_2d(calibration(cal), float3(&src),
		C.k4a_calibration_type_t(srcCam), C.k4a_calibration_type_t(dstCam), float2(&out), &valid)
	return out, valid != 0, result(res)
}

// Calibration2DTo2D implements native.CalibrationCalls.
func (Library) Calibration2DTo2D(
	cal *native.Calibration, src native.Float2, depthMm float32, srcCam, dstCam native.CalibrationType,
) (native.Float2, bool, native.Result) {
	var (
		out   native.Float2
		valid C.int
	)
	res := C.k4a_calibration_2d_to_2d(calibration(cal), float2(&src), C.float(depthMm),
		C.k4a_calibration_type_t(srcCam), C.k4a_calibration_type_t(dstCam), float2(&out), &valid)
	return out, valid != 0, result(res)
}

// CalibrationColor2DToDepth2D implements native.CalibrationCalls.
func (Library) CalibrationColor2DToDepth2D(
	cal *native.Calibration, src native.Float2, depthImage native.ImageHandle,
) (native.Float2, bool, native.Result) {
	var (
		out   native.Float2
		valid C.int
	)
	res := C.k4a_calibration_color_2d_to_depth_2d(calibration(cal), float2(&src), image(depthImage), float2(&out), &valid)
	return out, valid != 0, result(res)
}

// TransformationCreate implements native.TransformationCalls.
func (Library) TransformationCreate(cal *native.Calibration) native.TransformationHandle {
	if cal == nil {
		return 0
	}
	return native.TransformationHandle(unsafe.Pointer(C.k4a_transformation_create(calibration(cal))))
}

// TransformationDestroy implements native.TransformationCalls.
func (Library) TransformationDestroy(h native.TransformationHandle) {
	C.k4a_transformation_destroy(transformation(h))
}

// TransformationDepthImageToColorCamera implements native.TransformationCalls.
func (Library) TransformationDepthImageToColorCamera(h native.TransformationHandle, depth, out native.ImageHandle) native.Result {
	return result(C.k4a_transformation_depth_image_to_color_camera(transformation(h), image(depth), image(out)))
}

// TransformationDepthImageToColorCameraCustom implements native.TransformationCalls.
func (Library) TransformationDepthImageToColorCameraCustom(
	h native.TransformationHandle,
	depth, custom, outDepth, outCustom native.ImageHandle,
	interpolation native.TransformationInterpolationType,
	invalidValue uint32,
) native.Result {
	return result(C.k4a_transformation_depth_image_to_color_camera_custom(transformation(h),
		image(depth), image(custom), image(outDepth), image(outCustom),
		C.k4a_transformation_interpolation_type_t(interpolation), C.uint32_t(invalidValue)))
}

// TransformationColorImageToDepthCamera implements native.TransformationCalls.
func (Library) TransformationColorImageToDepthCamera(
	h native.TransformationHandle, depth, color, out native.ImageHandle,
) native.Result {
	return result(C.k4a_transformation_color_image_to_depth_camera(transformation(h), image(depth), image(color), image(out)))
}

// TransformationDepthImageToPointCloud implements native.TransformationCalls.
func (Library) TransformationDepthImageToPointCloud(
	h native.TransformationHandle, depth native.ImageHandle, camera native.CalibrationType, out native.ImageHandle,
) native.Result {
	return result(C.k4a_transformation_depth_image_to_point_cloud(transformation(h), image(depth),
		C.k4a_calibration_type_t(camera), image(out)))
}
