package fake

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/k4a/native"
	"go.viam.com/k4a/utils"
)

// scene holds the pre-rendered images of a static scene in the formats a stream produces.
type scene struct {
	depthWidth  int
	depthHeight int
	depth       []byte
	ir          []byte

	colorFormat native.ImageFormat
	colorWidth  int
	colorHeight int
	colorStride int
	color       []byte
}

// The simulated room: a wall 1.6 m away tilted towards the floor, with a box floating in front
// of it.
var (
	wallNormal   = r3.Vector{Y: -0.25, Z: 1}.Normalize()
	wallDistance = 1600.0
	boxCenter    = r2.Point{X: 0.12, Y: 0.05}
	boxHalfSize  = 0.14
	boxDepth     = 1050.0
)

func sceneDepth(ray r2.Point) float64 {
	if math.Abs(ray.X-boxCenter.X) < boxHalfSize && math.Abs(ray.Y-boxCenter.Y) < boxHalfSize {
		return boxDepth
	}
	return wallDistance / wallNormal.Dot(r3.Vector{X: ray.X, Y: ray.Y, Z: 1})
}

func renderScene(cal *native.Calibration, colorFormat native.ImageFormat) (*scene, error) {
	sc := &scene{colorFormat: colorFormat}
	if model, ok := calibratedCamera(cal, native.CalibrationTypeDepth); ok {
		w, h := model.Width, model.Height
		sc.depthWidth, sc.depthHeight = w, h
		sc.ir = make([]byte, w*h*2)
		active := cal.DepthMode != native.DepthModePassiveIR
		if active {
			sc.depth = make([]byte, w*h*2)
		}
		minMm, maxMm := cal.DepthMode.Range()
		err := utils.ParallelForEachPixel(context.Background(), w, h, func(x, y int) {
			i := 2 * (y*w + x)
			ray, ok := model.Ray(r2.Point{X: float64(x), Y: float64(y)})
			if !ok {
				return
			}
			z := sceneDepth(ray)
			if !active {
				// ambient light only, a soft texture
				ir := 300 + 200*math.Sin(float64(x)/9)*math.Cos(float64(y)/7)
				binary.LittleEndian.PutUint16(sc.ir[i:], uint16(ir))
				return
			}
			if z < float64(minMm) || z > float64(maxMm) {
				return
			}
			binary.LittleEndian.PutUint16(sc.depth[i:], uint16(math.Round(z)))
			binary.LittleEndian.PutUint16(sc.ir[i:], uint16(math.Min(65535, 3e9/(z*z))))
		})
		if err != nil {
			return nil, err
		}
	}
	if w, h := cal.ColorResolution.Dimensions(); w > 0 {
		sc.colorWidth, sc.colorHeight = w, h
		var err error
		sc.color, sc.colorStride, err = encodeColor(testPattern(w, h), colorFormat)
		if err != nil {
			return nil, err
		}
	}
	return sc, nil
}

// testPattern is a color gradient with a checkerboard overlay.
func testPattern(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	cell := width / 16
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBA{R: uint8(x * 255 / width), G: uint8(y * 255 / height), B: 128, A: 255}
			if (x/cell+y/cell)%2 == 0 {
				c.B = 200
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func encodeColor(img *image.NRGBA, format native.ImageFormat) ([]byte, int, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	switch format {
	case native.ImageFormatColorBGRA32:
		buf := make([]byte, w*h*4)
		for i := 0; i < w*h; i++ {
			p := img.Pix[4*i : 4*i+4]
			buf[4*i], buf[4*i+1], buf[4*i+2], buf[4*i+3] = p[2], p[1], p[0], p[3]
		}
		return buf, w * 4, nil
	case native.ImageFormatColorMJPG:
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
			return nil, 0, errors.Wrap(err, "cannot encode simulated color frame")
		}
		return buf.Bytes(), 0, nil
	case native.ImageFormatColorNV12:
		buf := make([]byte, w*h*3/2)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				p := img.NRGBAAt(x, y)
				yy, cb, cr := color.RGBToYCbCr(p.R, p.G, p.B)
				buf[y*w+x] = yy
				if x%2 == 0 && y%2 == 0 {
					i := w*h + (y/2)*w + x
					buf[i], buf[i+1] = cb, cr
				}
			}
		}
		return buf, w, nil
	case native.ImageFormatColorYUY2:
		buf := make([]byte, w*h*2)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x += 2 {
				p0, p1 := img.NRGBAAt(x, y), img.NRGBAAt(x+1, y)
				y0, cb, cr := color.RGBToYCbCr(p0.R, p0.G, p0.B)
				y1, _, _ := color.RGBToYCbCr(p1.R, p1.G, p1.B)
				i := y*w*2 + x*2
				buf[i], buf[i+1], buf[i+2], buf[i+3] = y0, cb, y1, cr
			}
		}
		return buf, w * 2, nil
	case native.ImageFormatDepth16, native.ImageFormatIR16, native.ImageFormatCustom8,
		native.ImageFormatCustom16, native.ImageFormatCustom:
		return nil, 0, errors.Errorf("%v is not a color format", format)
	default:
		return nil, 0, errors.Errorf("unknown image format %v", format)
	}
}

// newCapture copies the scene into fresh images and stamps them for the given frame.
func (l *Library) newCapture(dev *fakeDevice, s *cameraStream, frame uint64, elapsed time.Duration) native.CaptureHandle {
	sc := s.scene
	period := time.Second / time.Duration(s.config.CameraFPS.Hz())
	deviceUsec := uint64(frame) * uint64(period/time.Microsecond)
	systemNsec := uint64(l.clock.Now().UnixNano())

	l.mu.Lock()
	defer l.mu.Unlock()
	h := l.createCaptureLocked()
	c := l.captures[h]
	c.temperatureC = 30.5 + float32(dev.index)/10 + float32(math.Sin(elapsed.Minutes()))/4

	if sc.color != nil {
		exposure := dev.controls[native.ColorControlExposureTimeAbsolute]
		whiteBalance := dev.controls[native.ColorControlWhitebalance]
		gain := dev.controls[native.ColorControlGain]
		img := &fakeImage{
			format:              sc.colorFormat,
			width:               int32(sc.colorWidth),
			height:              int32(sc.colorHeight),
			stride:              int32(sc.colorStride),
			buf:                 append([]byte(nil), sc.color...),
			deviceTimestampUsec: deviceUsec,
			systemTimestampNsec: systemNsec,
			exposureUsec:        uint64(exposure.value),
			whiteBalance:        uint32(whiteBalance.value),
			isoSpeed:            uint32(100 + gain.value*8),
		}
		c.images[colorChannel] = l.addImageLocked(img)
	}
	depthUsec := deviceUsec
	if delay := int64(s.config.DepthDelayOffColorUsec); delay >= 0 || uint64(-delay) <= deviceUsec {
		depthUsec = uint64(int64(deviceUsec) + delay)
	}
	if sc.depth != nil {
		c.images[depthChannel] = l.addImageLocked(&fakeImage{
			format:              native.ImageFormatDepth16,
			width:               int32(sc.depthWidth),
			height:              int32(sc.depthHeight),
			stride:              int32(sc.depthWidth * 2),
			buf:                 append([]byte(nil), sc.depth...),
			deviceTimestampUsec: depthUsec,
			systemTimestampNsec: systemNsec,
		})
	}
	if sc.ir != nil {
		c.images[irChannel] = l.addImageLocked(&fakeImage{
			format:              native.ImageFormatIR16,
			width:               int32(sc.depthWidth),
			height:              int32(sc.depthHeight),
			stride:              int32(sc.depthWidth * 2),
			buf:                 append([]byte(nil), sc.ir...),
			deviceTimestampUsec: depthUsec,
			systemTimestampNsec: systemNsec,
		})
	}
	return h
}
