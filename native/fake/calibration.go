package fake

import (
	"encoding/json"
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/k4a/geometry"
	"go.viam.com/k4a/native"
)

// The raw calibration blob mirrors the factory JSON of real devices: intrinsics normalized to
// the full sensor, extrinsics taking points from the depth camera frame to each sensor frame,
// translations in meters.
type rawCalibration struct {
	CalibrationInformation struct {
		Cameras         []rawCamera   `json:"Cameras"`
		InertialSensors []rawInertial `json:"InertialSensors"`
	} `json:"CalibrationInformation"`
}

type rawCamera struct {
	Location     string        `json:"Location"`
	Intrinsics   rawIntrinsics `json:"Intrinsics"`
	Rt           rawRt         `json:"Rt"`
	SensorWidth  int           `json:"SensorWidth"`
	SensorHeight int           `json:"SensorHeight"`
	MetricRadius float64       `json:"MetricRadius"`
}

type rawIntrinsics struct {
	ModelType           string    `json:"ModelType"`
	ModelParameterCount int       `json:"ModelParameterCount"`
	ModelParameters     []float64 `json:"ModelParameters"`
}

type rawRt struct {
	Rotation    []float64 `json:"Rotation"`
	Translation []float64 `json:"Translation"`
}

type rawInertial struct {
	SensorType string `json:"SensorType"`
	Rt         rawRt  `json:"Rt"`
}

const (
	locationDepth   = "CALIBRATION_CameraLocationD0"
	locationColor   = "CALIBRATION_CameraLocationPV0"
	sensorTypeGyro  = "CALIBRATION_InertialSensorType_Gyro"
	sensorTypeAccel = "CALIBRATION_InertialSensorType_Accelerometer"
	modelRational   = "CALIBRATION_LensDistortionModelRational6KT"

	depthSensorSize    = 1024
	colorSensorWidth   = 4096
	colorSensorHeight  = 3072
	intrinsicParamsLen = 14
)

func toRawRt(e geometry.Extrinsics) rawRt {
	return rawRt{
		Rotation:    e.Rotation[:],
		Translation: []float64{e.Translation.X / 1000, e.Translation.Y / 1000, e.Translation.Z / 1000},
	}
}

func (rt rawRt) extrinsics() (geometry.Extrinsics, bool) {
	var e geometry.Extrinsics
	if len(rt.Rotation) != 9 || len(rt.Translation) != 3 {
		return e, false
	}
	copy(e.Rotation[:], rt.Rotation)
	e.Translation = r3.Vector{X: rt.Translation[0] * 1000, Y: rt.Translation[1] * 1000, Z: rt.Translation[2] * 1000}
	return e, true
}

// factoryCalibration makes up a plausible calibration. Every device index gets slightly
// different values so that calibrations of two devices never compare equal.
func factoryCalibration(index int) rawCalibration {
	jitter := float64(index) * 0.0007
	var raw rawCalibration
	info := &raw.CalibrationInformation
	info.Cameras = []rawCamera{
		{
			Location: locationDepth,
			Intrinsics: rawIntrinsics{
				ModelType:           modelRational,
				ModelParameterCount: intrinsicParamsLen,
				// cx cy fx fy k1..k6 codx cody p2 p1
				ModelParameters: []float64{
					0.5017 + jitter, 0.5063 - jitter, 0.4927, 0.4928 + jitter,
					0.52, -0.0098, -0.0011, 0.86, 0.109, -0.0117,
					0, 0, -0.00007, 0.00003,
				},
			},
			Rt:           toRawRt(geometry.IdentityExtrinsics()),
			SensorWidth:  depthSensorSize,
			SensorHeight: depthSensorSize,
			MetricRadius: 1.74,
		},
		{
			Location: locationColor,
			Intrinsics: rawIntrinsics{
				ModelType:           modelRational,
				ModelParameterCount: intrinsicParamsLen,
				ModelParameters: []float64{
					0.4993 - jitter, 0.5011 + jitter, 0.4727, 0.6302,
					0.078, -0.052, 0.021, 0, 0, 0,
					0, 0, 0.0004, -0.0002,
				},
			},
			Rt: toRawRt(geometry.Extrinsics{
				Rotation:    geometry.RotationAboutAxis(r3.Vector{X: 1}, -6*math.Pi/180+jitter),
				Translation: r3.Vector{X: -32.1, Y: -1.9, Z: 3.8},
			}),
			SensorWidth:  colorSensorWidth,
			SensorHeight: colorSensorHeight,
			MetricRadius: 1.7,
		},
	}
	imuRotation := geometry.RotationAboutAxis(r3.Vector{X: 1, Y: -1, Z: 0.5}, 2.1)
	info.InertialSensors = []rawInertial{
		{
			SensorType: sensorTypeGyro,
			Rt:         toRawRt(geometry.Extrinsics{Rotation: imuRotation, Translation: r3.Vector{X: -51, Y: 3.2, Z: 1.4}}),
		},
		{
			SensorType: sensorTypeAccel,
			Rt:         toRawRt(geometry.Extrinsics{Rotation: imuRotation, Translation: r3.Vector{X: -50.5, Y: 3.6, Z: 1.1}}),
		},
	}
	return raw
}

func rawCalibrationBlob(index int) []byte {
	blob, err := json.Marshal(factoryCalibration(index))
	if err != nil {
		// only plain numbers and strings are marshaled
		panic(err)
	}
	return append(blob, 0)
}

// depthCrop returns where the region a mode reads starts on the sensor, and how that region is
// scaled to the image.
func depthCrop(mode native.DepthMode) (offX, offY, scale float64) {
	switch mode {
	case native.DepthModeNFOV2x2Binned:
		return (depthSensorSize - 640) / 2, (depthSensorSize - 576) / 2, 0.5
	case native.DepthModeNFOVUnbinned:
		return (depthSensorSize - 640) / 2, (depthSensorSize - 576) / 2, 1
	case native.DepthModeWFOV2x2Binned:
		return 0, 0, 0.5
	case native.DepthModeOff, native.DepthModeWFOVUnbinned, native.DepthModePassiveIR:
		return 0, 0, 1
	default:
		return 0, 0, 1
	}
}

func colorCrop(res native.ColorResolution) (offX, offY, scale float64) {
	width, height := res.Dimensions()
	if width == 0 {
		return 0, 0, 1
	}
	scale = float64(width) / colorSensorWidth
	if width*3 == height*4 {
		return 0, 0, scale
	}
	// 16:9 modes read a centered band of the 4:3 sensor
	return 0, (colorSensorHeight - colorSensorWidth*9/16) / 2, scale
}

func (cam rawCamera) calibrationCamera(offX, offY, scale float64, width, height int) (native.CalibrationCamera, bool) {
	p := cam.Intrinsics.ModelParameters
	if len(p) < intrinsicParamsLen || cam.SensorWidth <= 0 || cam.SensorHeight <= 0 {
		return native.CalibrationCamera{}, false
	}
	ext, ok := cam.Rt.extrinsics()
	if !ok {
		return native.CalibrationCamera{}, false
	}
	sw, sh := float64(cam.SensorWidth), float64(cam.SensorHeight)
	var out native.CalibrationCamera
	out.Extrinsics = ext.ToNative()
	out.Intrinsics.Type = native.CalibrationModelRational6KT
	out.Intrinsics.ParameterCount = intrinsicParamsLen
	out.Intrinsics.Parameters = native.CalibrationIntrinsicParameters{
		Cx:           float32((p[0]*sw-offX+0.5)*scale - 0.5),
		Cy:           float32((p[1]*sh-offY+0.5)*scale - 0.5),
		Fx:           float32(p[2] * sw * scale),
		Fy:           float32(p[3] * sh * scale),
		K1:           float32(p[4]),
		K2:           float32(p[5]),
		K3:           float32(p[6]),
		K4:           float32(p[7]),
		K5:           float32(p[8]),
		K6:           float32(p[9]),
		Codx:         float32(p[10]),
		Cody:         float32(p[11]),
		P2:           float32(p[12]),
		P1:           float32(p[13]),
		MetricRadius: float32(cam.MetricRadius),
	}
	out.ResolutionWidth = int32(width)
	out.ResolutionHeight = int32(height)
	out.MetricRadius = float32(cam.MetricRadius)
	return out, true
}

func validModes(depthMode native.DepthMode, colorResolution native.ColorResolution) bool {
	return depthMode >= native.DepthModeOff && depthMode <= native.DepthModePassiveIR &&
		colorResolution >= native.ColorResolutionOff && colorResolution <= native.ColorResolution3072P
}

// parseCalibration is the single path from a raw blob to a calibration, shared by the device
// and raw entry points so that both produce identical values.
func parseCalibration(
	blob []byte, depthMode native.DepthMode, colorResolution native.ColorResolution,
) (native.Calibration, native.Result) {
	var cal native.Calibration
	if !validModes(depthMode, colorResolution) {
		return cal, native.ResultFailed
	}
	// blobs read from devices carry a trailing NUL
	for len(blob) > 0 && blob[len(blob)-1] == 0 {
		blob = blob[:len(blob)-1]
	}
	var raw rawCalibration
	if err := json.Unmarshal(blob, &raw); err != nil {
		return cal, native.ResultFailed
	}

	// sensor frames relative to the depth camera, in CalibrationType order
	var frames [native.CalibrationTypeNum]geometry.Extrinsics
	var found [native.CalibrationTypeNum]bool
	for _, cam := range raw.CalibrationInformation.Cameras {
		if cam.Intrinsics.ModelType != modelRational {
			continue
		}
		var ok bool
		switch cam.Location {
		case locationDepth:
			offX, offY, scale := depthCrop(depthMode)
			w, h := depthMode.Dimensions()
			cal.DepthCameraCalibration, ok = cam.calibrationCamera(offX, offY, scale, w, h)
			frames[native.CalibrationTypeDepth], _ = cam.Rt.extrinsics()
			found[native.CalibrationTypeDepth] = ok
		case locationColor:
			offX, offY, scale := colorCrop(colorResolution)
			w, h := colorResolution.Dimensions()
			cal.ColorCameraCalibration, ok = cam.calibrationCamera(offX, offY, scale, w, h)
			frames[native.CalibrationTypeColor], _ = cam.Rt.extrinsics()
			found[native.CalibrationTypeColor] = ok
		}
	}
	for _, imu := range raw.CalibrationInformation.InertialSensors {
		e, ok := imu.Rt.extrinsics()
		switch imu.SensorType {
		case sensorTypeGyro:
			frames[native.CalibrationTypeGyro], found[native.CalibrationTypeGyro] = e, ok
		case sensorTypeAccel:
			frames[native.CalibrationTypeAccel], found[native.CalibrationTypeAccel] = e, ok
		}
	}
	for _, ok := range found {
		if !ok {
			return native.Calibration{}, native.ResultFailed
		}
	}
	for src := range frames {
		for dst := range frames {
			cal.Extrinsics[src][dst] = geometry.Between(frames[src], frames[dst]).ToNative()
		}
	}
	cal.DepthMode = depthMode
	cal.ColorResolution = colorResolution
	return cal, native.ResultSucceeded
}

// CalibrationGetFromRaw parses a raw calibration blob for a mode pair.
func (l *Library) CalibrationGetFromRaw(
	raw []byte, depthMode native.DepthMode, colorResolution native.ColorResolution,
) (native.Calibration, native.Result) {
	return parseCalibration(raw, depthMode, colorResolution)
}
