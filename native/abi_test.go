package native

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"go.viam.com/test"
)

func TestABISizes(t *testing.T) {
	test.That(t, binary.Size(DeviceConfiguration{}), test.ShouldEqual, DeviceConfigurationSize)
	test.That(t, int(unsafe.Sizeof(DeviceConfiguration{})), test.ShouldEqual, DeviceConfigurationSize)

	test.That(t, binary.Size(Calibration{}), test.ShouldEqual, CalibrationSize)
	test.That(t, int(unsafe.Sizeof(Calibration{})), test.ShouldEqual, CalibrationSize)

	test.That(t, binary.Size(ImuSample{}), test.ShouldEqual, ImuSampleSize)
	test.That(t, int(unsafe.Sizeof(ImuSample{})), test.ShouldEqual, ImuSampleSize)

	test.That(t, int(unsafe.Sizeof(HardwareVersion{})), test.ShouldEqual, HardwareVersionSize)
	test.That(t, int(unsafe.Sizeof(CalibrationCamera{})), test.ShouldEqual, 128)
}

func TestDeviceConfigurationLayout(t *testing.T) {
	cfg := DeviceConfiguration{
		ColorFormat:                   ImageFormatColorBGRA32,
		ColorResolution:               ColorResolution1080P,
		DepthMode:                     DepthModeWFOV2x2Binned,
		CameraFPS:                     FPS15,
		SynchronizedImagesOnly:        true,
		DepthDelayOffColorUsec:        -160,
		WiredSyncMode:                 WiredSyncModeSubordinate,
		SubordinateDelayOffMasterUsec: 320,
		DisableStreamingIndicator:     true,
	}
	data, err := cfg.MarshalBinary()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(data), test.ShouldEqual, DeviceConfigurationSize)

	// bool fields occupy one byte followed by three bytes of padding.
	test.That(t, data[16], test.ShouldEqual, byte(1))
	test.That(t, data[17:20], test.ShouldResemble, []byte{0, 0, 0})
	test.That(t, int32(binary.LittleEndian.Uint32(data[20:24])), test.ShouldEqual, int32(-160))
	test.That(t, binary.LittleEndian.Uint32(data[28:32]), test.ShouldEqual, uint32(320))
	test.That(t, data[32], test.ShouldEqual, byte(1))

	var decoded DeviceConfiguration
	test.That(t, decoded.UnmarshalBinary(data), test.ShouldBeNil)
	test.That(t, decoded, test.ShouldResemble, cfg)

	test.That(t, decoded.UnmarshalBinary(data[:20]), test.ShouldNotBeNil)
}

func TestCalibrationLayout(t *testing.T) {
	var cal Calibration
	cal.DepthCameraCalibration.Intrinsics.Parameters.Cx = 321.5
	cal.ColorCameraCalibration.ResolutionWidth = 1280
	cal.Extrinsics[CalibrationTypeDepth][CalibrationTypeColor].Translation[0] = -32
	cal.DepthMode = DepthModeNFOVUnbinned
	cal.ColorResolution = ColorResolution720P

	data, err := cal.MarshalBinary()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(data), test.ShouldEqual, CalibrationSize)
	// mode pair sits at the tail of the structure.
	test.That(t, binary.LittleEndian.Uint32(data[1024:1028]), test.ShouldEqual, uint32(DepthModeNFOVUnbinned))
	test.That(t, binary.LittleEndian.Uint32(data[1028:1032]), test.ShouldEqual, uint32(ColorResolution720P))

	var decoded Calibration
	test.That(t, decoded.UnmarshalBinary(data), test.ShouldBeNil)
	test.That(t, decoded, test.ShouldResemble, cal)

	_, err = decoded.Camera(CalibrationTypeGyro)
	test.That(t, err, test.ShouldNotBeNil)
	color, err := decoded.Camera(CalibrationTypeColor)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, color.ResolutionWidth, test.ShouldEqual, int32(1280))
}

func TestParseEnums(t *testing.T) {
	f, err := ParseImageFormat("BGRA32")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f, test.ShouldEqual, ImageFormatColorBGRA32)

	m, err := ParseDepthMode("wfov_unbinned")
	test.That(t, err, test.ShouldBeNil)
	w, h := m.Dimensions()
	test.That(t, w, test.ShouldEqual, 1024)
	test.That(t, h, test.ShouldEqual, 1024)

	r, err := ParseColorResolution("3072p")
	test.That(t, err, test.ShouldBeNil)
	w, h = r.Dimensions()
	test.That(t, w, test.ShouldEqual, 4096)
	test.That(t, h, test.ShouldEqual, 3072)

	_, err = ParseColorResolution("8k")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "720p")

	fps, err := FPSFromHz(15)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fps, test.ShouldEqual, FPS15)
	_, err = FPSFromHz(60)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDefaultWithoutBackend(t *testing.T) {
	// No backend registers itself in this package's tests.
	lib, err := Default()
	test.That(t, lib, test.ShouldBeNil)
	test.That(t, err, test.ShouldEqual, ErrUnavailable)
}
