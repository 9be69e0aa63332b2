package native

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// ImageFormat is the pixel format of an image buffer.
type ImageFormat int32

// ImageFormat values.
const (
	ImageFormatColorMJPG ImageFormat = iota
	ImageFormatColorNV12
	ImageFormatColorYUY2
	ImageFormatColorBGRA32
	ImageFormatDepth16
	ImageFormatIR16
	ImageFormatCustom8
	ImageFormatCustom16
	ImageFormatCustom
)

// ImageFormats lists every known format.
var ImageFormats = []ImageFormat{
	ImageFormatColorMJPG, ImageFormatColorNV12, ImageFormatColorYUY2, ImageFormatColorBGRA32,
	ImageFormatDepth16, ImageFormatIR16, ImageFormatCustom8, ImageFormatCustom16, ImageFormatCustom,
}

func (f ImageFormat) String() string {
	switch f {
	case ImageFormatColorMJPG:
		return "mjpg"
	case ImageFormatColorNV12:
		return "nv12"
	case ImageFormatColorYUY2:
		return "yuy2"
	case ImageFormatColorBGRA32:
		return "bgra32"
	case ImageFormatDepth16:
		return "depth16"
	case ImageFormatIR16:
		return "ir16"
	case ImageFormatCustom8:
		return "custom8"
	case ImageFormatCustom16:
		return "custom16"
	case ImageFormatCustom:
		return "custom"
	default:
		return fmt.Sprintf("ImageFormat(%d)", int32(f))
	}
}

// ParseImageFormat parses the lower case name of a format, e.g. "bgra32".
func ParseImageFormat(s string) (ImageFormat, error) {
	return parseEnum(s, ImageFormats)
}

// ColorResolution is the resolution of the color camera.
type ColorResolution int32

// ColorResolution values.
const (
	ColorResolutionOff ColorResolution = iota
	ColorResolution720P
	ColorResolution1080P
	ColorResolution1440P
	ColorResolution1536P
	ColorResolution2160P
	ColorResolution3072P
)

// ColorResolutions lists every color resolution, including off.
var ColorResolutions = []ColorResolution{
	ColorResolutionOff, ColorResolution720P, ColorResolution1080P, ColorResolution1440P,
	ColorResolution1536P, ColorResolution2160P, ColorResolution3072P,
}

// Dimensions returns the width and height in pixels, zero for off.
func (r ColorResolution) Dimensions() (width, height int) {
	switch r {
	case ColorResolution720P:
		return 1280, 720
	case ColorResolution1080P:
		return 1920, 1080
	case ColorResolution1440P:
		return 2560, 1440
	case ColorResolution1536P:
		return 2048, 1536
	case ColorResolution2160P:
		return 3840, 2160
	case ColorResolution3072P:
		return 4096, 3072
	case ColorResolutionOff:
		return 0, 0
	default:
		return 0, 0
	}
}

func (r ColorResolution) String() string {
	switch r {
	case ColorResolutionOff:
		return "off"
	case ColorResolution720P:
		return "720p"
	case ColorResolution1080P:
		return "1080p"
	case ColorResolution1440P:
		return "1440p"
	case ColorResolution1536P:
		return "1536p"
	case ColorResolution2160P:
		return "2160p"
	case ColorResolution3072P:
		return "3072p"
	default:
		return fmt.Sprintf("ColorResolution(%d)", int32(r))
	}
}

// ParseColorResolution parses e.g. "1080p".
func ParseColorResolution(s string) (ColorResolution, error) {
	return parseEnum(s, ColorResolutions)
}

// DepthMode is the operating mode of the depth camera.
type DepthMode int32

// DepthMode values.
const (
	DepthModeOff DepthMode = iota
	DepthModeNFOV2x2Binned
	DepthModeNFOVUnbinned
	DepthModeWFOV2x2Binned
	DepthModeWFOVUnbinned
	DepthModePassiveIR
)

// DepthModes lists every depth mode, including off.
var DepthModes = []DepthMode{
	DepthModeOff, DepthModeNFOV2x2Binned, DepthModeNFOVUnbinned,
	DepthModeWFOV2x2Binned, DepthModeWFOVUnbinned, DepthModePassiveIR,
}

// Dimensions returns the width and height of depth and IR images in pixels, zero for off.
func (m DepthMode) Dimensions() (width, height int) {
	switch m {
	case DepthModeNFOV2x2Binned:
		return 320, 288
	case DepthModeNFOVUnbinned:
		return 640, 576
	case DepthModeWFOV2x2Binned:
		return 512, 512
	case DepthModeWFOVUnbinned, DepthModePassiveIR:
		return 1024, 1024
	case DepthModeOff:
		return 0, 0
	default:
		return 0, 0
	}
}

// Range returns the nominal operating range of the mode in millimeters.
func (m DepthMode) Range() (minMm, maxMm uint16) {
	switch m {
	case DepthModeNFOV2x2Binned:
		return 500, 5800
	case DepthModeNFOVUnbinned:
		return 500, 4000
	case DepthModeWFOV2x2Binned:
		return 250, 3000
	case DepthModeWFOVUnbinned:
		return 250, 2500
	case DepthModeOff, DepthModePassiveIR:
		return 0, 0
	default:
		return 0, 0
	}
}

func (m DepthMode) String() string {
	switch m {
	case DepthModeOff:
		return "off"
	case DepthModeNFOV2x2Binned:
		return "nfov_2x2binned"
	case DepthModeNFOVUnbinned:
		return "nfov_unbinned"
	case DepthModeWFOV2x2Binned:
		return "wfov_2x2binned"
	case DepthModeWFOVUnbinned:
		return "wfov_unbinned"
	case DepthModePassiveIR:
		return "passive_ir"
	default:
		return fmt.Sprintf("DepthMode(%d)", int32(m))
	}
}

// ParseDepthMode parses e.g. "nfov_unbinned".
func ParseDepthMode(s string) (DepthMode, error) {
	return parseEnum(s, DepthModes)
}

// FPS is the camera frame rate.
type FPS int32

// FPS values.
const (
	FPS5 FPS = iota
	FPS15
	FPS30
)

// Hz returns the frame rate in frames per second.
func (f FPS) Hz() int {
	switch f {
	case FPS5:
		return 5
	case FPS15:
		return 15
	case FPS30:
		return 30
	default:
		return 0
	}
}

func (f FPS) String() string {
	return fmt.Sprintf("%dfps", f.Hz())
}

// FPSFromHz maps 5, 15 or 30 to an FPS value.
func FPSFromHz(hz int) (FPS, error) {
	switch hz {
	case 5:
		return FPS5, nil
	case 15:
		return FPS15, nil
	case 30:
		return FPS30, nil
	default:
		return FPS30, errors.Errorf("unsupported frame rate %d, expected one of 5, 15 or 30", hz)
	}
}

// WiredSyncMode is the role of the device on the sync cable.
type WiredSyncMode int32

// WiredSyncMode values.
const (
	WiredSyncModeStandalone WiredSyncMode = iota
	WiredSyncModeMaster
	WiredSyncModeSubordinate
)

var wiredSyncModes = []WiredSyncMode{WiredSyncModeStandalone, WiredSyncModeMaster, WiredSyncModeSubordinate}

func (m WiredSyncMode) String() string {
	switch m {
	case WiredSyncModeStandalone:
		return "standalone"
	case WiredSyncModeMaster:
		return "master"
	case WiredSyncModeSubordinate:
		return "subordinate"
	default:
		return fmt.Sprintf("WiredSyncMode(%d)", int32(m))
	}
}

// ParseWiredSyncMode parses e.g. "master".
func ParseWiredSyncMode(s string) (WiredSyncMode, error) {
	return parseEnum(s, wiredSyncModes)
}

// CalibrationType names a sensor with its own coordinate system.
type CalibrationType int32

// CalibrationType values.
const (
	CalibrationTypeUnknown CalibrationType = iota - 1
	CalibrationTypeDepth
	CalibrationTypeColor
	CalibrationTypeGyro
	CalibrationTypeAccel
	CalibrationTypeNum
)

// CalibrationTypes lists the sensors that carry extrinsics.
var CalibrationTypes = []CalibrationType{
	CalibrationTypeDepth, CalibrationTypeColor, CalibrationTypeGyro, CalibrationTypeAccel,
}

// Valid reports whether t names one of the four sensors.
func (t CalibrationType) Valid() bool {
	return t >= CalibrationTypeDepth && t < CalibrationTypeNum
}

func (t CalibrationType) String() string {
	switch t {
	case CalibrationTypeDepth:
		return "depth"
	case CalibrationTypeColor:
		return "color"
	case CalibrationTypeGyro:
		return "gyro"
	case CalibrationTypeAccel:
		return "accel"
	case CalibrationTypeUnknown, CalibrationTypeNum:
		return "unknown"
	default:
		return fmt.Sprintf("CalibrationType(%d)", int32(t))
	}
}

// ParseCalibrationType parses "depth", "color", "gyro" or "accel".
func ParseCalibrationType(s string) (CalibrationType, error) {
	return parseEnum(s, CalibrationTypes)
}

// CalibrationModelType is the lens distortion model of a camera.
type CalibrationModelType int32

// CalibrationModelType values.
const (
	CalibrationModelUnknown CalibrationModelType = iota
	CalibrationModelTheta
	CalibrationModelPolynomial3K
	CalibrationModelRational6KT
	CalibrationModelBrownConrady
)

func (t CalibrationModelType) String() string {
	switch t {
	case CalibrationModelUnknown:
		return "unknown"
	case CalibrationModelTheta:
		return "theta"
	case CalibrationModelPolynomial3K:
		return "polynomial_3k"
	case CalibrationModelRational6KT:
		return "rational_6kt"
	case CalibrationModelBrownConrady:
		return "brown_conrady"
	default:
		return fmt.Sprintf("CalibrationModelType(%d)", int32(t))
	}
}

// TransformationInterpolationType selects how custom images are resampled.
type TransformationInterpolationType int32

// TransformationInterpolationType values.
const (
	InterpolationNearest TransformationInterpolationType = iota
	InterpolationLinear
)

func (t TransformationInterpolationType) String() string {
	if t == InterpolationLinear {
		return "linear"
	}
	return "nearest"
}

// ColorControlCommand names a color sensor control.
type ColorControlCommand int32

// ColorControlCommand values.
const (
	ColorControlExposureTimeAbsolute ColorControlCommand = iota
	ColorControlAutoExposurePriority
	ColorControlBrightness
	ColorControlContrast
	ColorControlSaturation
	ColorControlSharpness
	ColorControlWhitebalance
	ColorControlBacklightCompensation
	ColorControlGain
	ColorControlPowerlineFrequency
)

// ColorControlCommands lists every color control.
var ColorControlCommands = []ColorControlCommand{
	ColorControlExposureTimeAbsolute, ColorControlAutoExposurePriority, ColorControlBrightness,
	ColorControlContrast, ColorControlSaturation, ColorControlSharpness, ColorControlWhitebalance,
	ColorControlBacklightCompensation, ColorControlGain, ColorControlPowerlineFrequency,
}

func (c ColorControlCommand) String() string {
	switch c {
	case ColorControlExposureTimeAbsolute:
		return "exposure_time_absolute"
	case ColorControlAutoExposurePriority:
		return "auto_exposure_priority"
	case ColorControlBrightness:
		return "brightness"
	case ColorControlContrast:
		return "contrast"
	case ColorControlSaturation:
		return "saturation"
	case ColorControlSharpness:
		return "sharpness"
	case ColorControlWhitebalance:
		return "whitebalance"
	case ColorControlBacklightCompensation:
		return "backlight_compensation"
	case ColorControlGain:
		return "gain"
	case ColorControlPowerlineFrequency:
		return "powerline_frequency"
	default:
		return fmt.Sprintf("ColorControlCommand(%d)", int32(c))
	}
}

// ParseColorControlCommand parses e.g. "brightness".
func ParseColorControlCommand(s string) (ColorControlCommand, error) {
	return parseEnum(s, ColorControlCommands)
}

// ColorControlMode is automatic or manual control.
type ColorControlMode int32

// ColorControlMode values.
const (
	ColorControlModeAuto ColorControlMode = iota
	ColorControlModeManual
)

func (m ColorControlMode) String() string {
	if m == ColorControlModeAuto {
		return "auto"
	}
	return "manual"
}

func parseEnum[T fmt.Stringer](s string, all []T) (T, error) {
	v, ok := lo.Find(all, func(v T) bool {
		return strings.EqualFold(v.String(), strings.TrimSpace(s))
	})
	if !ok {
		var zero T
		return zero, errors.Errorf("unknown %T %q, expected one of %v", zero, s,
			lo.Map(all, func(v T, _ int) string { return v.String() }))
	}
	return v, nil
}
