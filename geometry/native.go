package geometry

import (
	"github.com/golang/geo/r3"

	"go.viam.com/k4a/native"
)

// CameraModelFromNative builds the model of a calibrated camera. Brown-Conrady calibrations
// keep their five coefficients; every other model is evaluated as rational 6KT, which the
// vendor uses for both of the device's cameras.
func CameraModelFromNative(cam *native.CalibrationCamera) *PinholeCameraModel {
	p := cam.Intrinsics.Parameters
	model := &PinholeCameraModel{
		PinholeCameraIntrinsics: &PinholeCameraIntrinsics{
			Width:  int(cam.ResolutionWidth),
			Height: int(cam.ResolutionHeight),
			Fx:     float64(p.Fx),
			Fy:     float64(p.Fy),
			Ppx:    float64(p.Cx),
			Ppy:    float64(p.Cy),
		},
	}
	if cam.Intrinsics.Type == native.CalibrationModelBrownConrady {
		model.Distortion = &BrownConrady{
			RadialK1:     float64(p.K1),
			RadialK2:     float64(p.K2),
			RadialK3:     float64(p.K3),
			TangentialP1: float64(p.P1),
			TangentialP2: float64(p.P2),
		}
		return model
	}
	model.Distortion = &Rational6KT{
		K1: float64(p.K1), K2: float64(p.K2), K3: float64(p.K3),
		K4: float64(p.K4), K5: float64(p.K5), K6: float64(p.K6),
		Codx: float64(p.Codx), Cody: float64(p.Cody),
		P1: float64(p.P1), P2: float64(p.P2),
		MetricRadius: float64(p.MetricRadius),
	}
	return model
}

// ExtrinsicsFromNative widens a native rigid transform.
func ExtrinsicsFromNative(e native.CalibrationExtrinsics) Extrinsics {
	var out Extrinsics
	for i, v := range e.Rotation {
		out.Rotation[i] = float64(v)
	}
	out.Translation = r3.Vector{X: float64(e.Translation[0]), Y: float64(e.Translation[1]), Z: float64(e.Translation[2])}
	return out
}

// ToNative narrows e to the native layout.
func (e Extrinsics) ToNative() native.CalibrationExtrinsics {
	var out native.CalibrationExtrinsics
	for i, v := range e.Rotation {
		out.Rotation[i] = float32(v)
	}
	out.Translation = [3]float32{float32(e.Translation.X), float32(e.Translation.Y), float32(e.Translation.Z)}
	return out
}
