package k4a

import (
	"encoding/json"

	"github.com/pkg/errors"

	"go.viam.com/k4a/geometry"
	"go.viam.com/k4a/native"
)

// Calibration describes a device's cameras and motion sensors for one pair of depth mode and
// color resolution. It is a plain value; copying it is cheap and safe.
type Calibration struct {
	lib native.Library
	raw native.Calibration
}

// CameraCalibration is the calibration of one camera.
type CameraCalibration struct {
	Width        int                                   `json:"width_px"`
	Height       int                                   `json:"height_px"`
	Model        native.CalibrationModelType           `json:"-"`
	Intrinsics   native.CalibrationIntrinsicParameters `json:"intrinsics"`
	MetricRadius float64                               `json:"metric_radius"`
	// Extrinsics maps points from the camera to the depth camera.
	Extrinsics geometry.Extrinsics `json:"extrinsics"`
}

// CalibrationFromRaw parses a raw calibration blob, as returned by Device.RawCalibration, for a
// depth mode and color resolution.
func CalibrationFromRaw(
	lib native.Library, raw []byte, depthMode native.DepthMode, colorResolution native.ColorResolution,
) (Calibration, error) {
	lib, err := library(lib)
	if err != nil {
		return Calibration{}, err
	}
	cal, res := lib.CalibrationGetFromRaw(raw, depthMode, colorResolution)
	if err := checkResult(res, "cannot parse %d byte calibration for %v and %v", len(raw), depthMode, colorResolution); err != nil {
		return Calibration{}, err
	}
	return Calibration{lib: lib, raw: cal}, nil
}

// CalibrationFromDevice reads the calibration of an open device.
func CalibrationFromDevice(
	dev *Device, depthMode native.DepthMode, colorResolution native.ColorResolution,
) (Calibration, error) {
	return dev.Calibration(depthMode, colorResolution)
}

// CalibrationFromNative wraps a calibration produced elsewhere, e.g. decoded from its binary
// layout.
func CalibrationFromNative(lib native.Library, cal native.Calibration) (Calibration, error) {
	lib, err := library(lib)
	if err != nil {
		return Calibration{}, err
	}
	return Calibration{lib: lib, raw: cal}, nil
}

// DepthMode returns the depth mode the calibration is for.
func (c Calibration) DepthMode() native.DepthMode {
	return c.raw.DepthMode
}

// ColorResolution returns the color resolution the calibration is for.
func (c Calibration) ColorResolution() native.ColorResolution {
	return c.raw.ColorResolution
}

// Native returns the calibration in its native layout.
func (c Calibration) Native() native.Calibration {
	return c.raw
}

// Camera returns the calibration of the depth or color camera.
func (c Calibration) Camera(cam native.CalibrationType) (CameraCalibration, error) {
	nc, err := c.raw.Camera(cam)
	if err != nil {
		return CameraCalibration{}, err
	}
	return CameraCalibration{
		Width:        int(nc.ResolutionWidth),
		Height:       int(nc.ResolutionHeight),
		Model:        nc.Intrinsics.Type,
		Intrinsics:   nc.Intrinsics.Parameters,
		MetricRadius: float64(nc.MetricRadius),
		Extrinsics:   geometry.ExtrinsicsFromNative(nc.Extrinsics),
	}, nil
}

// Extrinsics returns the rigid transform from the src sensor frame to the dst sensor frame.
func (c Calibration) Extrinsics(src, dst native.CalibrationType) (geometry.Extrinsics, error) {
	if !src.Valid() || !dst.Valid() {
		return geometry.Extrinsics{}, errors.Errorf("no extrinsics from %v to %v", src, dst)
	}
	return geometry.ExtrinsicsFromNative(c.raw.Extrinsics[src][dst]), nil
}

// Pinhole returns the lens model of the depth or color camera. It fails for cameras that are
// off in this calibration's modes.
func (c Calibration) Pinhole(cam native.CalibrationType) (*geometry.PinholeCameraModel, error) {
	nc, err := c.raw.Camera(cam)
	if err != nil {
		return nil, err
	}
	model := geometry.CameraModelFromNative(nc)
	if err := model.CheckValid(); err != nil {
		return nil, errors.Wrapf(err, "%v camera is not calibrated in %v/%v", cam, c.raw.DepthMode, c.raw.ColorResolution)
	}
	return model, nil
}

type calibrationJSON struct {
	DepthMode       string                        `json:"depth_mode"`
	ColorResolution string                        `json:"color_resolution"`
	Depth           cameraJSON                    `json:"depth_camera"`
	Color           cameraJSON                    `json:"color_camera"`
	Extrinsics      map[string]map[string]extJSON `json:"extrinsics"`
}

type cameraJSON struct {
	CameraCalibration
	Model string `json:"model"`
}

type extJSON struct {
	Rotation    [9]float64 `json:"rotation"`
	Translation [3]float64 `json:"translation_mm"`
}

// MarshalJSON renders the calibration in a human readable form for dumps.
func (c Calibration) MarshalJSON() ([]byte, error) {
	out := calibrationJSON{
		DepthMode:       c.raw.DepthMode.String(),
		ColorResolution: c.raw.ColorResolution.String(),
		Extrinsics:      map[string]map[string]extJSON{},
	}
	for _, cam := range []struct {
		typ native.CalibrationType
		dst *cameraJSON
	}{
		{native.CalibrationTypeDepth, &out.Depth},
		{native.CalibrationTypeColor, &out.Color},
	} {
		cc, err := c.Camera(cam.typ)
		if err != nil {
			return nil, err
		}
		*cam.dst = cameraJSON{CameraCalibration: cc, Model: cc.Model.String()}
	}
	for src := native.CalibrationTypeDepth; src < native.CalibrationTypeNum; src++ {
		row := map[string]extJSON{}
		for dst := native.CalibrationTypeDepth; dst < native.CalibrationTypeNum; dst++ {
			e := geometry.ExtrinsicsFromNative(c.raw.Extrinsics[src][dst])
			row[dst.String()] = extJSON{
				Rotation:    e.Rotation,
				Translation: [3]float64{e.Translation.X, e.Translation.Y, e.Translation.Z},
			}
		}
		out.Extrinsics[src.String()] = row
	}
	return json.Marshal(out)
}
