package fake

import (
	"context"
	"math"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.uber.org/atomic"

	"go.viam.com/k4a/geometry"
	"go.viam.com/k4a/native"
	"go.viam.com/k4a/utils"
	"go.viam.com/k4a/view"
)

type fakeTransformation struct {
	cal          native.Calibration
	depth        *geometry.PinholeCameraModel
	color        *geometry.PinholeCameraModel
	depthToColor geometry.Extrinsics

	tableOnce [2]sync.Once
	tables    [2][]r2.Point
	tableErr  [2]error
}

// TransformationCreate precomputes what it can from a calibration. At least one camera must
// be in use.
func (l *Library) TransformationCreate(cal *native.Calibration) native.TransformationHandle {
	if cal == nil {
		return 0
	}
	t := &fakeTransformation{cal: *cal}
	t.depth, _ = calibratedCamera(&t.cal, native.CalibrationTypeDepth)
	t.color, _ = calibratedCamera(&t.cal, native.CalibrationTypeColor)
	if t.depth == nil && t.color == nil {
		return 0
	}
	t.depthToColor = extrinsics(&t.cal, native.CalibrationTypeDepth, native.CalibrationTypeColor)

	l.mu.Lock()
	defer l.mu.Unlock()
	h := native.TransformationHandle(l.allocHandle())
	l.transforms[h] = t
	return h
}

// TransformationDestroy frees a transformation.
func (l *Library) TransformationDestroy(h native.TransformationHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.transforms[h]; !ok {
		l.logger.Warnw("destroy of unknown transformation", "handle", h)
		return
	}
	delete(l.transforms, h)
}

func (l *Library) transformation(h native.TransformationHandle) *fakeTransformation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transforms[h]
}

func (t *fakeTransformation) model(cam native.CalibrationType) *geometry.PinholeCameraModel {
	if cam == native.CalibrationTypeColor {
		return t.color
	}
	return t.depth
}

// rays returns the undistorted normalized ray of every pixel of a camera, NaN where the lens
// model is not valid. The table is built on first use.
func (t *fakeTransformation) rays(cam native.CalibrationType) ([]r2.Point, error) {
	i := 0
	if cam == native.CalibrationTypeColor {
		i = 1
	}
	t.tableOnce[i].Do(func() {
		model := t.model(cam)
		table := make([]r2.Point, model.Width*model.Height)
		t.tableErr[i] = utils.ParallelForEachPixel(context.Background(), model.Width, model.Height, func(x, y int) {
			ray, ok := model.Ray(r2.Point{X: float64(x), Y: float64(y)})
			if !ok {
				ray = r2.Point{X: math.NaN(), Y: math.NaN()}
			}
			table[y*model.Width+x] = ray
		})
		t.tables[i] = table
	})
	return t.tables[i], t.tableErr[i]
}

// matches reports whether an image has the given format and the resolution of a camera.
func matches(img *fakeImage, format native.ImageFormat, model *geometry.PinholeCameraModel) bool {
	return img != nil && model != nil && img.format == format &&
		int(img.width) == model.Width && int(img.height) == model.Height
}

const noSplat = math.MaxUint64

// splat renders a depth image into the color camera. Each depth pixel covers the footprint its
// area projects to, and the nearest surface wins. The result packs the color camera depth in
// the high 32 bits and the winning source pixel index in the low 32 bits.
func (t *fakeTransformation) splat(depth *view.View, rays []r2.Point) ([]atomic.Uint64, error) {
	out := make([]atomic.Uint64, t.color.Width*t.color.Height)
	for i := range out {
		out[i].Store(noSplat)
	}
	scaleX, scaleY := t.color.Fx/t.depth.Fx, t.color.Fy/t.depth.Fy
	width := depth.Width()
	err := utils.ParallelForEachPixel(context.Background(), width, depth.Height(), func(x, y int) {
		d := float64(depth.Uint16At(x, y, 0))
		ray := rays[y*width+x]
		if d == 0 || math.IsNaN(ray.X) {
			return
		}
		q := t.depthToColor.Apply(r3.Vector{X: ray.X * d, Y: ray.Y * d, Z: d})
		px, ok := t.color.Project(q)
		if !ok || q.Z > math.MaxUint16 {
			return
		}
		key := uint64(math.Round(q.Z))<<32 | uint64(y*width+x)
		halfX, halfY := scaleX*d/q.Z/2, scaleY*d/q.Z/2
		x0, x1 := footprint(px.X, halfX, t.color.Width)
		y0, y1 := footprint(px.Y, halfY, t.color.Height)
		for v := y0; v < y1; v++ {
			for u := x0; u < x1; u++ {
				cell := &out[v*t.color.Width+u]
				for {
					old := cell.Load()
					if old <= key || cell.CompareAndSwap(old, key) {
						break
					}
				}
			}
		}
	})
	return out, err
}

// footprint returns the pixel range [from, to) covered by center ± half, at least one pixel.
func footprint(center, half float64, limit int) (int, int) {
	from := int(math.Round(center - half))
	to := int(math.Round(center + half))
	if to <= from {
		to = from + 1
	}
	if from < 0 {
		from = 0
	}
	if to > limit {
		to = limit
	}
	return from, to
}

func (l *Library) depthToColorCamera(
	h native.TransformationHandle,
	depth, custom, outDepth, outCustom native.ImageHandle,
	interpolation native.TransformationInterpolationType,
	invalidValue uint32,
) native.Result {
	t := l.transformation(h)
	if t == nil || t.depth == nil || t.color == nil {
		return native.ResultFailed
	}
	depthImg, depthView, ok := l.imageView(depth)
	if !ok || !matches(depthImg, native.ImageFormatDepth16, t.depth) {
		return native.ResultFailed
	}
	outImg, outView, ok := l.imageView(outDepth)
	if !ok || !matches(outImg, native.ImageFormatDepth16, t.color) {
		return native.ResultFailed
	}
	var customView, outCustomView *view.View
	if custom != 0 {
		customImg, v, ok := l.imageView(custom)
		if !ok || (customImg.format != native.ImageFormatCustom8 && customImg.format != native.ImageFormatCustom16) ||
			!matches(customImg, customImg.format, t.depth) {
			return native.ResultFailed
		}
		outCustomImg, ov, ok := l.imageView(outCustom)
		if !ok || !matches(outCustomImg, customImg.format, t.color) {
			return native.ResultFailed
		}
		customView, outCustomView = v, ov
	}

	rays, err := t.rays(native.CalibrationTypeDepth)
	if err != nil {
		l.logger.Warnw("cannot build depth ray table", "error", err)
		return native.ResultFailed
	}
	splat, err := t.splat(depthView, rays)
	if err != nil {
		l.logger.Warnw("cannot render depth into color camera", "error", err)
		return native.ResultFailed
	}
	width := depthView.Width()
	err = utils.ParallelForEachPixel(context.Background(), t.color.Width, t.color.Height, func(u, v int) {
		key := splat[v*t.color.Width+u].Load()
		if key == noSplat {
			outView.SetUint16At(u, v, 0, 0)
			if customView != nil {
				setCustom(outCustomView, u, v, invalidValue)
			}
			return
		}
		outView.SetUint16At(u, v, 0, uint16(key>>32))
		if customView == nil {
			return
		}
		src := int(key & math.MaxUint32)
		sx, sy := src%width, src/width
		value := getCustom(customView, sx, sy)
		if interpolation == native.InterpolationLinear {
			value = t.interpolateCustom(depthView, customView, rays, sx, sy, u, v, value, invalidValue)
		}
		setCustom(outCustomView, u, v, value)
	})
	if err != nil {
		l.logger.Warnw("cannot transform depth image to color camera", "error", err)
		return native.ResultFailed
	}
	return native.ResultSucceeded
}

// interpolateCustom blends the custom values around source pixel (sx, sy), weighting each
// neighbor by how close output pixel (u, v) lands to it. Neighbors on a different surface or
// holding the invalid value are left out.
func (t *fakeTransformation) interpolateCustom(
	depth, custom *view.View, rays []r2.Point, sx, sy, u, v int, nearest, invalidValue uint32,
) uint32 {
	d := float64(depth.Uint16At(sx, sy, 0))
	ray := rays[sy*depth.Width()+sx]
	q := t.depthToColor.Apply(r3.Vector{X: ray.X * d, Y: ray.Y * d, Z: d})
	px, ok := t.color.Project(q)
	if !ok {
		return nearest
	}
	pixelsPerSourceX := t.color.Fx / t.depth.Fx * d / q.Z
	pixelsPerSourceY := t.color.Fy / t.depth.Fy * d / q.Z
	fx := float64(sx) + (float64(u)-px.X)/pixelsPerSourceX
	fy := float64(sy) + (float64(v)-px.Y)/pixelsPerSourceY

	x0, y0 := int(math.Floor(fx)), int(math.Floor(fy))
	ax, ay := fx-float64(x0), fy-float64(y0)
	var sum, weights float64
	for _, n := range [4]struct {
		x, y int
		w    float64
	}{
		{x0, y0, (1 - ax) * (1 - ay)},
		{x0 + 1, y0, ax * (1 - ay)},
		{x0, y0 + 1, (1 - ax) * ay},
		{x0 + 1, y0 + 1, ax * ay},
	} {
		if n.w == 0 || n.x < 0 || n.y < 0 || n.x >= depth.Width() || n.y >= depth.Height() {
			continue
		}
		nd := float64(depth.Uint16At(n.x, n.y, 0))
		if nd == 0 || math.Abs(nd-d) > 0.05*d {
			continue
		}
		c := getCustom(custom, n.x, n.y)
		if c == invalidValue {
			continue
		}
		sum += n.w * float64(c)
		weights += n.w
	}
	if weights == 0 {
		return nearest
	}
	return uint32(math.Round(sum / weights))
}

func getCustom(v *view.View, x, y int) uint32 {
	if v.Descriptor().ElementSize == 2 {
		return uint32(v.Uint16At(x, y, 0))
	}
	return uint32(v.Uint8At(x, y, 0))
}

func setCustom(v *view.View, x, y int, value uint32) {
	if v.Descriptor().ElementSize == 2 {
		v.SetUint16At(x, y, 0, uint16(value))
		return
	}
	v.SetUint8At(x, y, 0, uint8(value))
}

// TransformationDepthImageToColorCamera renders depth into the color camera's geometry.
func (l *Library) TransformationDepthImageToColorCamera(h native.TransformationHandle, depth, out native.ImageHandle) native.Result {
	return l.depthToColorCamera(h, depth, 0, out, 0, native.InterpolationNearest, 0)
}

// TransformationDepthImageToColorCameraCustom renders depth and a custom image aligned with it
// into the color camera's geometry.
func (l *Library) TransformationDepthImageToColorCameraCustom(
	h native.TransformationHandle,
	depth, custom, outDepth, outCustom native.ImageHandle,
	interpolation native.TransformationInterpolationType,
	invalidValue uint32,
) native.Result {
	if custom == 0 || outCustom == 0 {
		return native.ResultFailed
	}
	return l.depthToColorCamera(h, depth, custom, outDepth, outCustom, interpolation, invalidValue)
}

// occlusionToleranceMm is how far behind the nearest surface a depth pixel may be and still
// see the color camera.
const occlusionToleranceMm = 10

// TransformationColorImageToDepthCamera samples the color image for every depth pixel. Depth
// pixels that are invalid or hidden from the color camera get a transparent black pixel.
func (l *Library) TransformationColorImageToDepthCamera(
	h native.TransformationHandle, depth, color, out native.ImageHandle,
) native.Result {
	t := l.transformation(h)
	if t == nil || t.depth == nil || t.color == nil {
		return native.ResultFailed
	}
	depthImg, depthView, ok := l.imageView(depth)
	if !ok || !matches(depthImg, native.ImageFormatDepth16, t.depth) {
		return native.ResultFailed
	}
	colorImg, colorView, ok := l.imageView(color)
	if !ok || !matches(colorImg, native.ImageFormatColorBGRA32, t.color) {
		return native.ResultFailed
	}
	outImg, outView, ok := l.imageView(out)
	if !ok || !matches(outImg, native.ImageFormatColorBGRA32, t.depth) {
		return native.ResultFailed
	}

	rays, err := t.rays(native.CalibrationTypeDepth)
	if err != nil {
		l.logger.Warnw("cannot build depth ray table", "error", err)
		return native.ResultFailed
	}
	splat, err := t.splat(depthView, rays)
	if err != nil {
		l.logger.Warnw("cannot render depth into color camera", "error", err)
		return native.ResultFailed
	}
	width := depthView.Width()
	err = utils.ParallelForEachPixel(context.Background(), width, depthView.Height(), func(x, y int) {
		for c := 0; c < 4; c++ {
			outView.SetUint8At(x, y, c, 0)
		}
		d := float64(depthView.Uint16At(x, y, 0))
		ray := rays[y*width+x]
		if d == 0 || math.IsNaN(ray.X) {
			return
		}
		q := t.depthToColor.Apply(r3.Vector{X: ray.X * d, Y: ray.Y * d, Z: d})
		px, ok := t.color.Project(q)
		if !ok {
			return
		}
		u, v := int(math.Round(px.X)), int(math.Round(px.Y))
		if u < 0 || v < 0 || u >= t.color.Width || v >= t.color.Height {
			return
		}
		if nearest := splat[v*t.color.Width+u].Load(); nearest != noSplat &&
			q.Z-float64(nearest>>32) > occlusionToleranceMm {
			return
		}
		for c := 0; c < 4; c++ {
			outView.SetUint8At(x, y, c, colorView.Uint8At(u, v, c))
		}
	})
	if err != nil {
		l.logger.Warnw("cannot transform color image to depth camera", "error", err)
		return native.ResultFailed
	}
	return native.ResultSucceeded
}

// TransformationDepthImageToPointCloud unprojects every pixel of a depth image taken in the
// geometry of camera. Invalid pixels become the origin.
func (l *Library) TransformationDepthImageToPointCloud(
	h native.TransformationHandle, depth native.ImageHandle, camera native.CalibrationType, out native.ImageHandle,
) native.Result {
	t := l.transformation(h)
	if t == nil || (camera != native.CalibrationTypeDepth && camera != native.CalibrationTypeColor) {
		return native.ResultFailed
	}
	model := t.model(camera)
	depthImg, depthView, ok := l.imageView(depth)
	if !ok || !matches(depthImg, native.ImageFormatDepth16, model) {
		return native.ResultFailed
	}
	outImg := l.image(out)
	if outImg == nil || outImg.format != native.ImageFormatCustom ||
		outImg.width != depthImg.width || outImg.height != depthImg.height {
		return native.ResultFailed
	}
	cloud, err := view.NewWithDescriptor(view.PointCloudDescriptor, outImg.buf,
		int(outImg.width), int(outImg.height), int(outImg.stride))
	if err != nil {
		return native.ResultFailed
	}

	rays, err := t.rays(camera)
	if err != nil {
		l.logger.Warnw("cannot build ray table", "camera", camera, "error", err)
		return native.ResultFailed
	}
	width := depthView.Width()
	err = utils.ParallelForEachPixel(context.Background(), width, depthView.Height(), func(x, y int) {
		d := float64(depthView.Uint16At(x, y, 0))
		ray := rays[y*width+x]
		var p r3.Vector
		if d != 0 && !math.IsNaN(ray.X) {
			p = r3.Vector{X: ray.X * d, Y: ray.Y * d, Z: d}
		}
		cloud.SetUint16At(x, y, 0, uint16(clampInt16(p.X)))
		cloud.SetUint16At(x, y, 1, uint16(clampInt16(p.Y)))
		cloud.SetUint16At(x, y, 2, uint16(clampInt16(p.Z)))
	})
	if err != nil {
		l.logger.Warnw("cannot transform depth image to point cloud", "error", err)
		return native.ResultFailed
	}
	return native.ResultSucceeded
}

func clampInt16(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
