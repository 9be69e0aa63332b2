package fake

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"go.viam.com/k4a/geometry"
	"go.viam.com/k4a/native"
)

// calibratedCamera returns the model of a depth or color camera that is in use.
func calibratedCamera(cal *native.Calibration, cam native.CalibrationType) (*geometry.PinholeCameraModel, bool) {
	c, err := cal.Camera(cam)
	if err != nil || c.ResolutionWidth <= 0 || c.ResolutionHeight <= 0 {
		return nil, false
	}
	return geometry.CameraModelFromNative(c), true
}

func extrinsics(cal *native.Calibration, src, dst native.CalibrationType) geometry.Extrinsics {
	return geometry.ExtrinsicsFromNative(cal.Extrinsics[src][dst])
}

func vec3(p native.Float3) r3.Vector {
	return r3.Vector{X: float64(p.X), Y: float64(p.Y), Z: float64(p.Z)}
}

func float3(p r3.Vector) native.Float3 {
	return native.Float3{X: float32(p.X), Y: float32(p.Y), Z: float32(p.Z)}
}

func vec2(p native.Float2) r2.Point {
	return r2.Point{X: float64(p.X), Y: float64(p.Y)}
}

func float2(p r2.Point) native.Float2 {
	return native.Float2{X: float32(p.X), Y: float32(p.Y)}
}

func point3DTo3D(cal *native.Calibration, p r3.Vector, src, dst native.CalibrationType) r3.Vector {
	if src == dst {
		return p
	}
	return extrinsics(cal, src, dst).Apply(p)
}

// Calibration3DTo3D moves a point between sensor frames.
func (l *Library) Calibration3DTo3D(
	cal *native.Calibration, src native.Float3, srcCam, dstCam native.CalibrationType,
) (native.Float3, native.Result) {
	if cal == nil || !srcCam.Valid() || !dstCam.Valid() {
		return native.Float3{}, native.ResultFailed
	}
	if srcCam == dstCam {
		return src, native.ResultSucceeded
	}
	return float3(point3DTo3D(cal, vec3(src), srcCam, dstCam)), native.ResultSucceeded
}

func pixel2DTo3D(
	cal *native.Calibration, src r2.Point, depthMm float64, srcCam, dstCam native.CalibrationType,
) (r3.Vector, bool, native.Result) {
	if cal == nil || !dstCam.Valid() {
		return r3.Vector{}, false, native.ResultFailed
	}
	model, ok := calibratedCamera(cal, srcCam)
	if !ok {
		return r3.Vector{}, false, native.ResultFailed
	}
	if depthMm <= 0 {
		return r3.Vector{}, false, native.ResultSucceeded
	}
	p, ok := model.Unproject(src, depthMm)
	if !ok {
		return r3.Vector{}, false, native.ResultSucceeded
	}
	return point3DTo3D(cal, p, srcCam, dstCam), true, native.ResultSucceeded
}

func point3DTo2D(cal *native.Calibration, src r3.Vector, srcCam, dstCam native.CalibrationType) (r2.Point, bool, native.Result) {
	if cal == nil || !srcCam.Valid() {
		return r2.Point{}, false, native.ResultFailed
	}
	model, ok := calibratedCamera(cal, dstCam)
	if !ok {
		return r2.Point{}, false, native.ResultFailed
	}
	px, ok := model.Project(point3DTo3D(cal, src, srcCam, dstCam))
	return px, ok, native.ResultSucceeded
}

// Calibration2DTo3D unprojects a pixel with a depth and moves the point to dstCam's frame.
func (l *Library) Calibration2DTo3D(
	cal *native.Calibration, src native.Float2, depthMm float32, srcCam, dstCam native.CalibrationType,
) (native.Float3, bool, native.Result) {
	p, ok, res := pixel2DTo3D(cal, vec2(src), float64(depthMm), srcCam, dstCam)
	return float3(p), ok, res
}

// Calibration3DTo2D moves a point to dstCam's frame and projects it.
func (l *Library) Calibration3DTo2D(
	cal *native.Calibration, src native.Float3, srcCam, dstCam native.CalibrationType,
) (native.Float2, bool, native.Result) {
	px, ok, res := point3DTo2D(cal, vec3(src), srcCam, dstCam)
	return float2(px), ok, res
}

// Calibration2DTo2D maps a pixel with a depth from one camera to another.
func (l *Library) Calibration2DTo2D(
	cal *native.Calibration, src native.Float2, depthMm float32, srcCam, dstCam native.CalibrationType,
) (native.Float2, bool, native.Result) {
	if cal == nil {
		return native.Float2{}, false, native.ResultFailed
	}
	if srcCam == dstCam {
		if _, ok := calibratedCamera(cal, srcCam); !ok {
			return native.Float2{}, false, native.ResultFailed
		}
		return src, true, native.ResultSucceeded
	}
	p, ok, res := pixel2DTo3D(cal, vec2(src), float64(depthMm), srcCam, dstCam)
	if !ok || !res.Succeeded() {
		return native.Float2{}, false, res
	}
	px, ok, res := point3DTo2D(cal, p, dstCam, dstCam)
	return float2(px), ok, res
}

// searchRange is used for modes without a nominal range, such as passive IR.
const (
	searchMinMm = 250
	searchMaxMm = 5800
	// matches further than this from the color pixel are rejected
	searchMaxErrorPx = 2.5
)

// CalibrationColor2DToDepth2D finds the depth pixel seen by a color pixel. It walks the color
// pixel's ray through the depth mode's range, reads the depth image where the ray lands, and
// keeps the depth pixel whose measured point reprojects closest to the color pixel.
func (l *Library) CalibrationColor2DToDepth2D(
	cal *native.Calibration, src native.Float2, depthImage native.ImageHandle,
) (native.Float2, bool, native.Result) {
	if cal == nil {
		return native.Float2{}, false, native.ResultFailed
	}
	depthModel, ok := calibratedCamera(cal, native.CalibrationTypeDepth)
	if !ok {
		return native.Float2{}, false, native.ResultFailed
	}
	colorModel, ok := calibratedCamera(cal, native.CalibrationTypeColor)
	if !ok {
		return native.Float2{}, false, native.ResultFailed
	}
	img, depth, ok := l.imageView(depthImage)
	if !ok || img.format != native.ImageFormatDepth16 ||
		int(img.width) != depthModel.Width || int(img.height) != depthModel.Height {
		return native.Float2{}, false, native.ResultFailed
	}

	target := vec2(src)
	ray, ok := colorModel.Ray(target)
	if !ok {
		return native.Float2{}, false, native.ResultSucceeded
	}
	minMm, maxMm := cal.DepthMode.Range()
	if maxMm == 0 {
		minMm, maxMm = searchMinMm, searchMaxMm
	}
	colorToDepth := extrinsics(cal, native.CalibrationTypeColor, native.CalibrationTypeDepth)
	depthToColor := extrinsics(cal, native.CalibrationTypeDepth, native.CalibrationTypeColor)

	// sample in inverse depth so that steps are roughly even in pixels
	steps := 2 * (depthModel.Width + depthModel.Height)
	invNear, invFar := 1/float64(minMm), 1/float64(maxMm)
	best := math.Inf(1)
	var bestPx r2.Point
	lastX, lastY := -1, -1
	for i := 0; i <= steps; i++ {
		z := 1 / (invNear + (invFar-invNear)*float64(i)/float64(steps))
		px, ok := depthModel.Project(colorToDepth.Apply(r3.Vector{X: ray.X * z, Y: ray.Y * z, Z: z}))
		if !ok {
			continue
		}
		x, y := int(math.Round(px.X)), int(math.Round(px.Y))
		if (x == lastX && y == lastY) || x < 0 || y < 0 || x >= depthModel.Width || y >= depthModel.Height {
			continue
		}
		lastX, lastY = x, y
		d := depth.Uint16At(x, y, 0)
		if d == 0 {
			continue
		}
		p, ok := depthModel.Unproject(r2.Point{X: float64(x), Y: float64(y)}, float64(d))
		if !ok {
			continue
		}
		c, ok := colorModel.Project(depthToColor.Apply(p))
		if !ok {
			continue
		}
		if dist := c.Sub(target).Norm(); dist < best {
			best = dist
			bestPx = r2.Point{X: float64(x), Y: float64(y)}
		}
	}
	if best > searchMaxErrorPx {
		return native.Float2{}, false, native.ResultSucceeded
	}
	return float2(bestPx), true, native.ResultSucceeded
}
