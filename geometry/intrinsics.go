// Package geometry holds the camera models used to map between pixels and 3D points.
package geometry

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intrinsics are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("invalid size (%d, %d)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("invalid focal length Fx = %v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("invalid focal length Fy = %v", params.Fy))
	}
	return nil
}

// PixelToPoint unprojects a pixel with depth z, ignoring distortion.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	if params == nil {
		return 0, 0, 0
	}
	return (x - params.Ppx) / params.Fx * z, (y - params.Ppy) / params.Fy * z, z
}

// PointToPixel projects a 3D point onto the image plane, ignoring distortion. Points at z = 0
// land at (-1, -1) so that bounds checks filter them out.
func (params *PinholeCameraIntrinsics) PointToPixel(x, y, z float64) (float64, float64) {
	if z == 0 {
		return -1, -1
	}
	return (x/z)*params.Fx + params.Ppx, (y/z)*params.Fy + params.Ppy
}

// Normalize maps a pixel to the normalized image plane, where z = 1.
func (params *PinholeCameraIntrinsics) Normalize(p r2.Point) r2.Point {
	return r2.Point{X: (p.X - params.Ppx) / params.Fx, Y: (p.Y - params.Ppy) / params.Fy}
}

// Denormalize maps a point on the normalized image plane to a pixel.
func (params *PinholeCameraIntrinsics) Denormalize(p r2.Point) r2.Point {
	return r2.Point{X: p.X*params.Fx + params.Ppx, Y: p.Y*params.Fy + params.Ppy}
}

// Contains reports whether a pixel center lies on the image.
func (params *PinholeCameraIntrinsics) Contains(p r2.Point) bool {
	return p.X >= -0.5 && p.Y >= -0.5 &&
		p.X < float64(params.Width)-0.5 && p.Y < float64(params.Height)-0.5
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}

// PinholeCameraModel is a pinhole camera with lens distortion.
type PinholeCameraModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               Distorter `json:"distortion"`
}

// CheckValid checks the intrinsics and the distortion model, if any.
func (params *PinholeCameraModel) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("camera model does not exist")
	}
	if err := params.PinholeCameraIntrinsics.CheckValid(); err != nil {
		return err
	}
	if params.Distortion != nil {
		return params.Distortion.CheckValid()
	}
	return nil
}

// Project maps a point in the camera frame to a distorted pixel. ok is false when the point is
// behind the camera, outside the range the distortion model is valid in, or off the image.
func (params *PinholeCameraModel) Project(p r3.Vector) (px r2.Point, ok bool) {
	if p.Z <= 0 {
		return r2.Point{}, false
	}
	x, y := p.X/p.Z, p.Y/p.Z
	if params.Distortion != nil {
		if !inRange(params.Distortion, x, y) {
			return r2.Point{}, false
		}
		x, y = params.Distortion.Transform(x, y)
	}
	px = params.Denormalize(r2.Point{X: x, Y: y})
	return px, params.Contains(px)
}

// Unproject maps a distorted pixel at the given depth to a point in the camera frame. ok is
// false when the undistortion does not converge or lands outside the model's valid range.
func (params *PinholeCameraModel) Unproject(px r2.Point, depth float64) (p r3.Vector, ok bool) {
	n := params.Normalize(px)
	x, y := n.X, n.Y
	if params.Distortion != nil {
		x, y, ok = Undistort(params.Distortion, x, y)
		if !ok || !inRange(params.Distortion, x, y) {
			return r3.Vector{}, false
		}
	}
	return r3.Vector{X: x * depth, Y: y * depth, Z: depth}, true
}

// Ray returns the undistorted normalized ray through a pixel, the point at depth 1.
func (params *PinholeCameraModel) Ray(px r2.Point) (r2.Point, bool) {
	p, ok := params.Unproject(px, 1)
	return r2.Point{X: p.X, Y: p.Y}, ok
}

func inRange(d Distorter, x, y float64) bool {
	if l, ok := d.(interface{ InRange(x, y float64) bool }); ok {
		return l.InRange(x, y)
	}
	return true
}
