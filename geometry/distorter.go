package geometry

import (
	"math"

	"github.com/pkg/errors"
)

// DistortionType is the name of the distortion model.
type DistortionType string

const (
	// BrownConradyDistortionType is for simple lenses of narrow field easily modeled as a pinhole camera.
	BrownConradyDistortionType = DistortionType("brown_conrady")
	// Rational6KTDistortionType is the rational radial model with six coefficients and two tangential
	// terms, used by depth cameras with a wide field of view.
	Rational6KTDistortionType = DistortionType("rational_6kt")
)

// Distorter maps a normalized undistorted point to its distorted position.
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	Parameters() []float64
	Transform(x, y float64) (float64, float64)
}

// InvalidDistortionError is used when the distortion_parameters are invalid.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(errors.New("invalid distortion_parameters"), msg)
}

// NewDistorter returns a Distorter given a valid DistortionType and its parameters.
func NewDistorter(distortionType DistortionType, parameters []float64) (Distorter, error) {
	switch distortionType {
	case BrownConradyDistortionType:
		return NewBrownConrady(parameters)
	case Rational6KTDistortionType:
		return NewRational6KT(parameters)
	default:
		return nil, errors.Errorf("do not know how to parse %q distortion model", distortionType)
	}
}

const (
	undistortMaxIterations = 20
	undistortTolerance     = 1e-10
	jacobianStep           = 1e-7
)

// Undistort inverts a distortion model with Newton-Raphson iterations, starting from the
// distorted point. The Jacobian is estimated with central differences so any model works.
// ok is false when the iteration does not converge.
func Undistort(d Distorter, xd, yd float64) (xu, yu float64, ok bool) {
	xu, yu = xd, yd
	for i := 0; i < undistortMaxIterations; i++ {
		xe, ye := d.Transform(xu, yu)
		errX, errY := xe-xd, ye-yd
		if errX*errX+errY*errY < undistortTolerance*undistortTolerance {
			return xu, yu, true
		}

		x1, y1 := d.Transform(xu+jacobianStep, yu)
		x0, y0 := d.Transform(xu-jacobianStep, yu)
		dxdXu, dydXu := (x1-x0)/(2*jacobianStep), (y1-y0)/(2*jacobianStep)
		x1, y1 = d.Transform(xu, yu+jacobianStep)
		x0, y0 = d.Transform(xu, yu-jacobianStep)
		dxdYu, dydYu := (x1-x0)/(2*jacobianStep), (y1-y0)/(2*jacobianStep)

		det := dxdXu*dydYu - dxdYu*dydXu
		if det == 0 || math.IsNaN(det) {
			return xu, yu, false
		}
		xu -= (dydYu*errX - dxdYu*errY) / det
		yu -= (-dydXu*errX + dxdXu*errY) / det
	}
	xe, ye := d.Transform(xu, yu)
	// close enough for pixel work even if the tight tolerance was missed
	return xu, yu, math.Hypot(xe-xd, ye-yd) < 1e-6
}

// BrownConrady is the classic polynomial radial and tangential distortion model.
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// NewBrownConrady takes in a slice of floats that will be passed into the struct in order.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	if len(inp) > 5 {
		return nil, errors.Errorf("list of parameters too long, expected max 5, got %d", len(inp))
	}
	p := make([]float64, 5)
	copy(p, inp)
	return &BrownConrady{p[0], p[1], p[2], p[3], p[4]}, nil
}

// CheckValid checks if the fields for BrownConrady have valid inputs.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return InvalidDistortionError("BrownConrady shaped distortion_parameters not provided")
	}
	return nil
}

// ModelType returns the type of distortion model.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// Parameters returns the parameters of the distortion model as a list of floats.
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	return []float64{bc.RadialK1, bc.RadialK2, bc.RadialK3, bc.TangentialP1, bc.TangentialP2}
}

// Transform distorts a normalized point:
//
//	x_d = x_u * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p1*x_u*y_u + p2*(r² + 2*x_u²)
//	y_d = y_u * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p2*x_u*y_u + p1*(r² + 2*y_u²)
func (bc *BrownConrady) Transform(x, y float64) (float64, float64) {
	if bc == nil {
		return x, y
	}
	r2 := x*x + y*y
	radDist := 1 + bc.RadialK1*r2 + bc.RadialK2*r2*r2 + bc.RadialK3*r2*r2*r2
	xd := x*radDist + 2*bc.TangentialP1*x*y + bc.TangentialP2*(r2+2*x*x)
	yd := y*radDist + 2*bc.TangentialP2*x*y + bc.TangentialP1*(r2+2*y*y)
	return xd, yd
}

// Rational6KT is the rational radial model (k1..k3 over k4..k6) with tangential terms and a
// center of distortion offset. MetricRadius bounds the normalized radius the model was fit
// over; zero means unbounded.
type Rational6KT struct {
	K1           float64 `json:"k1"`
	K2           float64 `json:"k2"`
	K3           float64 `json:"k3"`
	K4           float64 `json:"k4"`
	K5           float64 `json:"k5"`
	K6           float64 `json:"k6"`
	Codx         float64 `json:"codx"`
	Cody         float64 `json:"cody"`
	P1           float64 `json:"p1"`
	P2           float64 `json:"p2"`
	MetricRadius float64 `json:"metric_radius"`
}

// NewRational6KT takes k1..k6, codx, cody, p1, p2 and metric radius in that order.
func NewRational6KT(inp []float64) (*Rational6KT, error) {
	if len(inp) > 11 {
		return nil, errors.Errorf("list of parameters too long, expected max 11, got %d", len(inp))
	}
	p := make([]float64, 11)
	copy(p, inp)
	return &Rational6KT{p[0], p[1], p[2], p[3], p[4], p[5], p[6], p[7], p[8], p[9], p[10]}, nil
}

// CheckValid checks if the fields for Rational6KT have valid inputs.
func (rt *Rational6KT) CheckValid() error {
	if rt == nil {
		return InvalidDistortionError("Rational6KT shaped distortion_parameters not provided")
	}
	if rt.MetricRadius < 0 {
		return InvalidDistortionError("metric_radius must not be negative")
	}
	return nil
}

// ModelType returns the type of distortion model.
func (rt *Rational6KT) ModelType() DistortionType {
	return Rational6KTDistortionType
}

// Parameters returns the parameters of the distortion model as a list of floats.
func (rt *Rational6KT) Parameters() []float64 {
	if rt == nil {
		return []float64{}
	}
	return []float64{rt.K1, rt.K2, rt.K3, rt.K4, rt.K5, rt.K6, rt.Codx, rt.Cody, rt.P1, rt.P2, rt.MetricRadius}
}

// InRange reports whether a normalized undistorted point is inside the metric radius.
func (rt *Rational6KT) InRange(x, y float64) bool {
	if rt == nil || rt.MetricRadius == 0 {
		return true
	}
	xp, yp := x-rt.Codx, y-rt.Cody
	return xp*xp+yp*yp <= rt.MetricRadius*rt.MetricRadius
}

// Transform distorts a normalized point.
func (rt *Rational6KT) Transform(x, y float64) (float64, float64) {
	if rt == nil {
		return x, y
	}
	xp, yp := x-rt.Codx, y-rt.Cody
	xp2, yp2, xyp := xp*xp, yp*yp, xp*yp
	rs := xp2 + yp2
	rss := rs * rs
	rsc := rss * rs
	a := 1 + rt.K1*rs + rt.K2*rss + rt.K3*rsc
	b := 1 + rt.K4*rs + rt.K5*rss + rt.K6*rsc
	bi := 1.0
	if b != 0 {
		bi = 1 / b
	}
	d := a * bi
	xd := xp*d + (rs+2*xp2)*rt.P2 + 2*xyp*rt.P1
	yd := yp*d + (rs+2*yp2)*rt.P1 + 2*xyp*rt.P2
	return xd + rt.Codx, yd + rt.Cody
}
