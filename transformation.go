package k4a

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/k4a/handle"
	"go.viam.com/k4a/native"
)

// pointCloudPixelSize is the size of one X, Y, Z point of int16 millimeters.
const pointCloudPixelSize = 3 * 2

// Transformation maps points and whole images between the cameras of one calibration.
type Transformation struct {
	lib native.Library
	cal Calibration
	ref *handle.Ref[native.TransformationHandle]
}

// NewTransformation precomputes the lookup state for cal. Point mappings work without it, but
// image mappings need it.
func NewTransformation(cal Calibration) (*Transformation, error) {
	lib, err := library(cal.lib)
	if err != nil {
		return nil, err
	}
	raw := cal.raw
	h := lib.TransformationCreate(&raw)
	if h == 0 {
		return nil, failed("cannot create transformation for %v/%v", cal.raw.DepthMode, cal.raw.ColorResolution)
	}
	ref, err := handle.New(&handle.Kind[native.TransformationHandle]{
		Name:    "transformation",
		Release: lib.TransformationDestroy,
	}, h)
	if err != nil {
		return nil, err
	}
	cal.lib = lib
	return &Transformation{lib: lib, cal: cal, ref: ref}, nil
}

// Calibration returns the calibration the transformation was built from.
func (t *Transformation) Calibration() Calibration {
	return t.cal
}

func toFloat3(p r3.Vector) native.Float3 {
	return native.Float3{X: float32(p.X), Y: float32(p.Y), Z: float32(p.Z)}
}

func fromFloat3(p native.Float3) r3.Vector {
	return r3.Vector{X: float64(p.X), Y: float64(p.Y), Z: float64(p.Z)}
}

func toFloat2(p r2.Point) native.Float2 {
	return native.Float2{X: float32(p.X), Y: float32(p.Y)}
}

func fromFloat2(p native.Float2) r2.Point {
	return r2.Point{X: float64(p.X), Y: float64(p.Y)}
}

// Point3DTo3D moves a point in millimeters from the src sensor frame to the dst sensor frame.
// Like every mapping, it fails once the transformation is closed.
func (t *Transformation) Point3DTo3D(p r3.Vector, src, dst native.CalibrationType) (r3.Vector, error) {
	if _, err := t.handle(); err != nil {
		return r3.Vector{}, err
	}
	if src == dst {
		return p, nil
	}
	out, res := t.lib.Calibration3DTo3D(&t.cal.raw, toFloat3(p), src, dst)
	if err := checkResult(res, "cannot map point from %v to %v", src, dst); err != nil {
		return r3.Vector{}, err
	}
	return fromFloat3(out), nil
}

// Pixel2DTo3D unprojects a pixel of camera src, seen at depthMm, into the dst frame. ok is
// false when the pixel has no valid unprojection; that is not an error.
func (t *Transformation) Pixel2DTo3D(
	p r2.Point, depthMm float64, src, dst native.CalibrationType,
) (point r3.Vector, ok bool, err error) {
	if _, err := t.handle(); err != nil {
		return r3.Vector{}, false, err
	}
	out, ok, res := t.lib.Calibration2DTo3D(&t.cal.raw, toFloat2(p), float32(depthMm), src, dst)
	if err := checkResult(res, "cannot unproject %v pixel %v", src, p); err != nil {
		return r3.Vector{}, false, err
	}
	return fromFloat3(out), ok, nil
}

// Point3DTo2D projects a point in the src frame onto camera dst. ok is false when the point is
// behind the camera or outside its lens model.
func (t *Transformation) Point3DTo2D(
	p r3.Vector, src, dst native.CalibrationType,
) (pixel r2.Point, ok bool, err error) {
	if _, err := t.handle(); err != nil {
		return r2.Point{}, false, err
	}
	out, ok, res := t.lib.Calibration3DTo2D(&t.cal.raw, toFloat3(p), src, dst)
	if err := checkResult(res, "cannot project point onto %v camera", dst); err != nil {
		return r2.Point{}, false, err
	}
	return fromFloat2(out), ok, nil
}

// Pixel2DTo2D maps a pixel of camera src seen at depthMm to the pixel of camera dst.
func (t *Transformation) Pixel2DTo2D(
	p r2.Point, depthMm float64, src, dst native.CalibrationType,
) (pixel r2.Point, ok bool, err error) {
	if _, err := t.handle(); err != nil {
		return r2.Point{}, false, err
	}
	out, ok, res := t.lib.Calibration2DTo2D(&t.cal.raw, toFloat2(p), float32(depthMm), src, dst)
	if err := checkResult(res, "cannot map %v pixel %v to %v", src, p, dst); err != nil {
		return r2.Point{}, false, err
	}
	return fromFloat2(out), ok, nil
}

// Color2DToDepth2D finds the depth pixel that sees the same surface as color pixel p by
// searching along p's epipolar line in depth.
func (t *Transformation) Color2DToDepth2D(p r2.Point, depth *Image) (pixel r2.Point, ok bool, err error) {
	if _, err := t.handle(); err != nil {
		return r2.Point{}, false, err
	}
	if !depth.Valid() {
		return r2.Point{}, false, errors.Wrap(ErrClosed, "depth image")
	}
	out, ok, res := t.lib.CalibrationColor2DToDepth2D(&t.cal.raw, toFloat2(p), depth.Handle())
	if err := checkResult(res, "cannot find depth pixel for color pixel %v", p); err != nil {
		return r2.Point{}, false, err
	}
	return fromFloat2(out), ok, nil
}

func (t *Transformation) handle() (native.TransformationHandle, error) {
	h := t.ref.Handle()
	if h == 0 {
		return 0, errors.Wrap(ErrClosed, "transformation")
	}
	return h, nil
}

func (t *Transformation) cameraSize(cam native.CalibrationType) (int, int, error) {
	cc, err := t.cal.Camera(cam)
	if err != nil {
		return 0, 0, err
	}
	if cc.Width <= 0 || cc.Height <= 0 {
		return 0, 0, errors.Errorf("%v camera is off in this calibration", cam)
	}
	return cc.Width, cc.Height, nil
}

// newOutput allocates an output image and hands it to fill. The image is closed when fill
// fails.
func (t *Transformation) newOutput(
	format native.ImageFormat, width, height, stride int, fill func(out native.ImageHandle) native.Result, what string,
) (*Image, error) {
	out, err := NewImage(t.lib, format, width, height, stride)
	if err != nil {
		return nil, err
	}
	if err := checkResult(fill(out.Handle()), "cannot %s", what); err != nil {
		return nil, multierr.Combine(err, out.Close())
	}
	return out, nil
}

// DepthImageToColorCamera renders a depth image as seen from the color camera. The output has
// the color camera's resolution.
func (t *Transformation) DepthImageToColorCamera(depth *Image) (*Image, error) {
	h, err := t.handle()
	if err != nil {
		return nil, err
	}
	w, ht, err := t.cameraSize(native.CalibrationTypeColor)
	if err != nil {
		return nil, err
	}
	return t.newOutput(native.ImageFormatDepth16, w, ht, w*2, func(out native.ImageHandle) native.Result {
		return t.lib.TransformationDepthImageToColorCamera(h, depth.Handle(), out)
	}, "transform depth image to color camera")
}

// DepthImageToColorCameraCustom renders a depth image and a custom 8 or 16 bit image aligned
// with it as seen from the color camera. Color pixels no depth pixel lands on get invalidValue
// in the custom output.
func (t *Transformation) DepthImageToColorCameraCustom(
	depth, custom *Image, interpolation native.TransformationInterpolationType, invalidValue uint32,
) (outDepth, outCustom *Image, err error) {
	h, err := t.handle()
	if err != nil {
		return nil, nil, err
	}
	if !custom.Valid() {
		return nil, nil, errors.Wrap(ErrClosed, "custom image")
	}
	format := custom.Format()
	bytesPerPixel := 1
	switch format {
	case native.ImageFormatCustom8:
	case native.ImageFormatCustom16:
		bytesPerPixel = 2
	default:
		return nil, nil, errors.Errorf("custom image must be custom8 or custom16, not %v", format)
	}
	w, ht, err := t.cameraSize(native.CalibrationTypeColor)
	if err != nil {
		return nil, nil, err
	}
	outDepth, err = NewImage(t.lib, native.ImageFormatDepth16, w, ht, w*2)
	if err != nil {
		return nil, nil, err
	}
	outCustom, err = NewImage(t.lib, format, w, ht, w*bytesPerPixel)
	if err != nil {
		return nil, nil, multierr.Combine(err, outDepth.Close())
	}
	res := t.lib.TransformationDepthImageToColorCameraCustom(
		h, depth.Handle(), custom.Handle(), outDepth.Handle(), outCustom.Handle(), interpolation, invalidValue)
	if err := checkResult(res, "cannot transform depth and %v images to color camera", format); err != nil {
		return nil, nil, multierr.Combine(err, outDepth.Close(), outCustom.Close())
	}
	return outDepth, outCustom, nil
}

// ColorImageToDepthCamera samples a BGRA color image for every pixel of a depth image from the
// same capture. The output is BGRA at the depth camera's resolution; depth pixels the color
// camera cannot see are transparent.
func (t *Transformation) ColorImageToDepthCamera(depth, color *Image) (*Image, error) {
	h, err := t.handle()
	if err != nil {
		return nil, err
	}
	w, ht, err := t.cameraSize(native.CalibrationTypeDepth)
	if err != nil {
		return nil, err
	}
	return t.newOutput(native.ImageFormatColorBGRA32, w, ht, w*4, func(out native.ImageHandle) native.Result {
		return t.lib.TransformationColorImageToDepthCamera(h, depth.Handle(), color.Handle(), out)
	}, "transform color image to depth camera")
}

// DepthImageToPointCloud unprojects every pixel of a depth image taken in the geometry of cam.
// The output is a custom image of interleaved int16 X, Y, Z millimeters in cam's frame, the
// size of the depth image. Read it with view.PointCloudDescriptor.
func (t *Transformation) DepthImageToPointCloud(depth *Image, cam native.CalibrationType) (*Image, error) {
	h, err := t.handle()
	if err != nil {
		return nil, err
	}
	if !depth.Valid() {
		return nil, errors.Wrap(ErrClosed, "depth image")
	}
	w, ht := depth.Width(), depth.Height()
	return t.newOutput(native.ImageFormatCustom, w, ht, w*pointCloudPixelSize, func(out native.ImageHandle) native.Result {
		return t.lib.TransformationDepthImageToPointCloud(h, depth.Handle(), cam, out)
	}, "transform depth image to point cloud")
}

// Close destroys the native transformation.
func (t *Transformation) Close() error {
	if t == nil {
		return nil
	}
	return t.ref.Close()
}
