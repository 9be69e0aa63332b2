package native

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// The structures in this file cross the native boundary by raw byte layout. Field order, sizes
// and padding match the vendor headers on little-endian targets with natural packing.

// Sizes of the ABI structures in bytes.
const (
	DeviceConfigurationSize = 36
	CalibrationSize         = 1032
	ImuSampleSize           = 48
	HardwareVersionSize     = 56
)

// Float2 is a 2D pixel coordinate.
type Float2 struct {
	X, Y float32
}

// Float3 is a 3D point in millimeters, or an IMU reading.
type Float3 struct {
	X, Y, Z float32
}

// DeviceConfiguration selects the streams started by DeviceStartCameras.
type DeviceConfiguration struct {
	ColorFormat                   ImageFormat
	ColorResolution               ColorResolution
	DepthMode                     DepthMode
	CameraFPS                     FPS
	SynchronizedImagesOnly        bool
	_                             [3]byte
	DepthDelayOffColorUsec        int32
	WiredSyncMode                 WiredSyncMode
	SubordinateDelayOffMasterUsec uint32
	DisableStreamingIndicator     bool
	_                             [3]byte
}

// DisableAllConfiguration has every stream off.
var DisableAllConfiguration = DeviceConfiguration{
	ColorFormat:     ImageFormatColorMJPG,
	ColorResolution: ColorResolutionOff,
	DepthMode:       DepthModeOff,
	CameraFPS:       FPS30,
	WiredSyncMode:   WiredSyncModeStandalone,
}

// MarshalBinary encodes the configuration in its native layout.
func (c DeviceConfiguration) MarshalBinary() ([]byte, error) {
	return marshalLE(&c, DeviceConfigurationSize)
}

// UnmarshalBinary decodes the configuration from its native layout.
func (c *DeviceConfiguration) UnmarshalBinary(data []byte) error {
	return unmarshalLE(data, c, DeviceConfigurationSize)
}

// CalibrationExtrinsics is a rigid transform: p_dst = R * p_src + t. R is row major and
// t is in millimeters.
type CalibrationExtrinsics struct {
	Rotation    [9]float32
	Translation [3]float32
}

// CalibrationIntrinsicParameters are the lens parameters of one camera. The field order is
// the vendor order, including p2 ahead of p1.
type CalibrationIntrinsicParameters struct {
	Cx, Cy       float32
	Fx, Fy       float32
	K1, K2, K3   float32
	K4, K5, K6   float32
	Codx, Cody   float32
	P2, P1       float32
	MetricRadius float32
}

// CalibrationIntrinsics tags the parameters with their distortion model.
type CalibrationIntrinsics struct {
	Type           CalibrationModelType
	ParameterCount uint32
	Parameters     CalibrationIntrinsicParameters
}

// CalibrationCamera is the calibration of one camera at one resolution.
type CalibrationCamera struct {
	Extrinsics       CalibrationExtrinsics
	Intrinsics       CalibrationIntrinsics
	ResolutionWidth  int32
	ResolutionHeight int32
	MetricRadius     float32
}

// Calibration is the calibration of a device for one depth mode and color resolution pair.
// Extrinsics[src][dst] maps points from the src sensor frame to the dst sensor frame.
type Calibration struct {
	DepthCameraCalibration CalibrationCamera
	ColorCameraCalibration CalibrationCamera
	Extrinsics             [CalibrationTypeNum][CalibrationTypeNum]CalibrationExtrinsics
	DepthMode              DepthMode
	ColorResolution        ColorResolution
}

// Camera returns the camera calibration for depth or color.
func (c *Calibration) Camera(cam CalibrationType) (*CalibrationCamera, error) {
	switch cam {
	case CalibrationTypeDepth:
		return &c.DepthCameraCalibration, nil
	case CalibrationTypeColor:
		return &c.ColorCameraCalibration, nil
	case CalibrationTypeUnknown, CalibrationTypeGyro, CalibrationTypeAccel, CalibrationTypeNum:
		return nil, errors.Errorf("%v sensor has no camera calibration", cam)
	default:
		return nil, errors.Errorf("unknown calibration type %d", cam)
	}
}

// MarshalBinary encodes the calibration in its native layout.
func (c Calibration) MarshalBinary() ([]byte, error) {
	return marshalLE(&c, CalibrationSize)
}

// UnmarshalBinary decodes the calibration from its native layout.
func (c *Calibration) UnmarshalBinary(data []byte) error {
	return unmarshalLE(data, c, CalibrationSize)
}

// ImuSample is one accelerometer and gyroscope reading.
type ImuSample struct {
	TemperatureC      float32
	AccSample         Float3 // m/s²
	AccTimestampUsec  uint64
	GyroSample        Float3 // rad/s
	_                 [4]byte
	GyroTimestampUsec uint64
}

// MarshalBinary encodes the sample in its native layout.
func (s ImuSample) MarshalBinary() ([]byte, error) {
	return marshalLE(&s, ImuSampleSize)
}

// UnmarshalBinary decodes the sample from its native layout.
func (s *ImuSample) UnmarshalBinary(data []byte) error {
	return unmarshalLE(data, s, ImuSampleSize)
}

// Version is a firmware version triple.
type Version struct {
	Major, Minor, Iteration uint32
}

// HardwareVersion holds the firmware versions of the device's subsystems.
type HardwareVersion struct {
	RGB               Version
	Depth             Version
	Audio             Version
	DepthSensor       Version
	FirmwareBuild     uint32
	FirmwareSignature uint32
}

// ColorControlCapabilities describes the range of a color control.
type ColorControlCapabilities struct {
	SupportsAuto bool
	Min          int32
	Max          int32
	Step         int32
	Default      int32
	DefaultMode  ColorControlMode
}

func marshalLE(v interface{}, size int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(size)
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return nil, err
	}
	if buf.Len() != size {
		return nil, errors.Errorf("encoded %T is %d bytes, expected %d", v, buf.Len(), size)
	}
	return buf.Bytes(), nil
}

func unmarshalLE(data []byte, v interface{}, size int) error {
	if len(data) != size {
		return errors.Errorf("cannot decode %T from %d bytes, expected %d", v, len(data), size)
	}
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, v)
}
