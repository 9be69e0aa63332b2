package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/docker/go-units"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/lmittmann/ppm"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"github.com/xfmoulet/qoi"
	"go.uber.org/multierr"
	"golang.org/x/image/draw"

	"go.viam.com/k4a"
	"go.viam.com/k4a/native"
	"go.viam.com/k4a/view"
)

func openDevice(c *cli.Context) (*k4a.Device, error) {
	return k4a.Open(nil, c.Int(generalFlagDevice), loggerFrom(c))
}

func versionString(v native.Version) string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Iteration)
}

// DevicesAction lists the connected devices. Devices open in another process show as busy.
func DevicesAction(c *cli.Context) error {
	count, err := k4a.InstalledCount(nil)
	if err != nil {
		return err
	}
	if count == 0 {
		printf(c.App.Writer, "no devices found")
		return nil
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Serial", "Color firmware", "Depth firmware", "Calibration", "Sync in", "Sync out"})
	for i := 0; i < count; i++ {
		row, err := describeDevice(i, c)
		if err != nil {
			loggerFrom(c).Debugw("cannot open device", "index", i, "error", err)
			row = table.Row{i, "(busy)"}
		}
		t.AppendRow(row)
	}
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

func describeDevice(index int, c *cli.Context) (_ table.Row, err error) {
	dev, err := k4a.Open(nil, index, loggerFrom(c))
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, dev.Close())
	}()
	serial, err := dev.SerialNumber()
	if err != nil {
		return nil, err
	}
	version, err := dev.Version()
	if err != nil {
		return nil, err
	}
	raw, err := dev.RawCalibration()
	if err != nil {
		return nil, err
	}
	syncIn, syncOut, err := dev.SyncJack()
	if err != nil {
		return nil, err
	}
	return table.Row{
		index, serial, versionString(version.RGB), versionString(version.Depth),
		units.HumanSize(float64(len(raw))), syncIn, syncOut,
	}, nil
}

// CalibrationAction prints the calibration of a device as JSON, or writes its raw blob.
func CalibrationAction(c *cli.Context) (err error) {
	depthMode, err := native.ParseDepthMode(c.String(calibrationFlagDepthMode))
	if err != nil {
		return err
	}
	colorResolution, err := native.ParseColorResolution(c.String(calibrationFlagColorResolution))
	if err != nil {
		return err
	}
	dev, err := openDevice(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, dev.Close())
	}()

	if c.Bool(calibrationFlagRaw) {
		raw, err := dev.RawCalibration()
		if err != nil {
			return err
		}
		_, err = c.App.Writer.Write(raw)
		return err
	}
	cal, err := k4a.CalibrationFromDevice(dev, depthMode, colorResolution)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(cal, "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", out)
	return nil
}

// CaptureAction records captures and writes each image to a file.
func CaptureAction(c *cli.Context) (err error) {
	cfg := k4a.DefaultConfig()
	if path := c.Path(captureFlagConfig); path != "" {
		if cfg, err = k4a.ReadConfig(path); err != nil {
			return err
		}
	}
	pcdType, err := view.ParsePCDType(c.String(captureFlagPCDType))
	if err != nil {
		return err
	}
	outDir := c.Path(captureFlagOutDir)
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return errors.Wrapf(err, "cannot create %q", outDir)
	}

	dev, err := openDevice(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, dev.Close())
	}()
	if err := dev.StartCameras(cfg); err != nil {
		return err
	}
	nc := dev.CameraConfiguration()

	var tr *k4a.Transformation
	if c.Bool(captureFlagPCD) {
		var cal k4a.Calibration
		if cal, err = dev.Calibration(nc.DepthMode, nc.ColorResolution); err != nil {
			return err
		}
		if tr, err = k4a.NewTransformation(cal); err != nil {
			return err
		}
		defer func() {
			err = multierr.Combine(err, tr.Close())
		}()
	}

	w := &captureWriter{
		dir:            outDir,
		out:            c,
		depthMode:      nc.DepthMode,
		transformation: tr,
		pcdType:        pcdType,
		qoi:            c.Bool(captureFlagQOI),
		flip:           c.Bool(captureFlagFlip),
		width:          c.Int(captureFlagWidth),
	}
	if w.width < 0 {
		return errors.Errorf("--%s must not be negative", captureFlagWidth)
	}
	for i := 0; i < c.Int(captureFlagCount); i++ {
		capture, err := dev.Capture(c.Duration(captureFlagTimeout))
		if err != nil {
			return err
		}
		w.index = i
		err = multierr.Combine(w.write(capture), capture.Close())
		if err != nil {
			return err
		}
	}
	return nil
}

type captureWriter struct {
	dir            string
	out            *cli.Context
	index          int
	depthMode      native.DepthMode
	transformation *k4a.Transformation
	pcdType        view.PCDType
	qoi            bool
	flip           bool
	width          int
}

// preview applies the rotation and scaling asked for on the command line to a decoded frame.
func (w *captureWriter) preview(img image.Image) image.Image {
	if w.flip {
		img = imaging.Rotate180(img)
	}
	b := img.Bounds()
	if w.width == 0 || w.width == b.Dx() {
		return img
	}
	height := (b.Dy()*w.width + b.Dx()/2) / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w.width, height))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func (w *captureWriter) write(capture *k4a.Capture) error {
	printf(w.out.App.Writer, "capture %d at %.1f°C", w.index, capture.Temperature())
	color, err := capture.Color()
	if err != nil {
		return err
	}
	if color != nil {
		if err := w.writeColor(color); err != nil {
			return err
		}
	}
	depth, err := capture.Depth()
	if err != nil {
		return err
	}
	if depth != nil {
		if err := w.writeDepth(depth); err != nil {
			return err
		}
	}
	ir, err := capture.IR()
	if err != nil {
		return err
	}
	if ir != nil {
		img, err := ir.Image()
		if err != nil {
			return err
		}
		img = w.preview(img)
		if err := w.writeLossless("ir", ir, img); err != nil {
			return err
		}
	}
	if w.transformation != nil && depth != nil {
		return w.writePointCloud(depth, color)
	}
	return nil
}

func (w *captureWriter) writeColor(color *k4a.Image) error {
	if color.Format() == native.ImageFormatColorMJPG {
		return w.writeFile("color.jpg", color, func(f *bufio.Writer) error {
			_, err := f.Write(color.Bytes())
			return err
		})
	}
	img, err := color.Image()
	if err != nil {
		return err
	}
	img = w.preview(img)
	return w.writeFile("color.ppm", color, func(f *bufio.Writer) error { return ppm.Encode(f, img) })
}

func (w *captureWriter) writeDepth(depth *k4a.Image) error {
	v, err := depth.View()
	if err != nil {
		return err
	}
	minMm, maxMm := w.depthMode.Range()
	if maxMm == 0 {
		minMm, maxMm = 250, 5800
	}
	colorized, err := view.ColorizeDepth(v, uint16(minMm), uint16(maxMm))
	if err != nil {
		return err
	}
	return w.writeLossless("depth", depth, w.preview(colorized))
}

// writeLossless writes img as png or qoi.
func (w *captureWriter) writeLossless(name string, src *k4a.Image, img image.Image) error {
	if w.qoi {
		return w.writeFile(name+".qoi", src, func(f *bufio.Writer) error { return qoi.Encode(f, img) })
	}
	return w.writeFile(name+".png", src, func(f *bufio.Writer) error { return png.Encode(f, img) })
}

func (w *captureWriter) writePointCloud(depth, color *k4a.Image) (err error) {
	cloud, err := w.transformation.DepthImageToPointCloud(depth, native.CalibrationTypeDepth)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, cloud.Close())
	}()
	points, err := view.NewWithDescriptor(view.PointCloudDescriptor, cloud.Bytes(), cloud.Width(), cloud.Height(), cloud.Stride())
	if err != nil {
		return err
	}
	var colors *view.View
	if color != nil && color.Format() == native.ImageFormatColorBGRA32 {
		var aligned *k4a.Image
		if aligned, err = w.transformation.ColorImageToDepthCamera(depth, color); err != nil {
			return err
		}
		defer func() {
			err = multierr.Combine(err, aligned.Close())
		}()
		if colors, err = aligned.View(); err != nil {
			return err
		}
	}
	return w.writeFile("points.pcd", cloud, func(f *bufio.Writer) error {
		return view.WritePCD(f, points, colors, w.pcdType)
	})
}

func (w *captureWriter) writeFile(suffix string, src *k4a.Image, encode func(f *bufio.Writer) error) (err error) {
	path := filepath.Join(w.dir, fmt.Sprintf("capture-%03d-%s", w.index, suffix))
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "cannot create %q", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	buf := bufio.NewWriter(f)
	if err := encode(buf); err != nil {
		return errors.Wrapf(err, "cannot write %q", path)
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	printf(w.out.App.Writer, "  %-28s %v %dx%d, %s native", filepath.Base(path),
		src.Format(), src.Width(), src.Height(), units.HumanSize(float64(src.Size())))
	return nil
}

// ConfigSchemaAction prints the JSON schema of the files accepted by capture --config.
func ConfigSchemaAction(c *cli.Context) error {
	out, err := json.MarshalIndent(k4a.ConfigSchema(), "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", out)
	return nil
}

// ImuAction prints motion samples. The IMU only runs while the cameras do, so the cameras
// are started with the default configuration.
func ImuAction(c *cli.Context) (err error) {
	dev, err := openDevice(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, dev.Close())
	}()
	if err := dev.StartCameras(k4a.DefaultConfig()); err != nil {
		return err
	}
	if err := dev.StartImu(); err != nil {
		return err
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Time", "Temp °C", "Accel m/s²", "Gyro rad/s"})
	var gravity, rotation stats.Float64Data
	for i := 0; i < c.Int(imuFlagCount); i++ {
		if err := c.Context.Err(); err != nil {
			return err
		}
		s, err := dev.ImuSample(k4a.Forever)
		if err != nil {
			return err
		}
		t.AppendRow(table.Row{
			s.AccelerationTimestamp,
			fmt.Sprintf("%.2f", s.TemperatureC),
			fmt.Sprintf("%+.3f %+.3f %+.3f", s.Acceleration.X, s.Acceleration.Y, s.Acceleration.Z),
			fmt.Sprintf("%+.4f %+.4f %+.4f", s.AngularVelocity.X, s.AngularVelocity.Y, s.AngularVelocity.Z),
		})
		gravity = append(gravity, s.Acceleration.Norm())
		rotation = append(rotation, s.AngularVelocity.Norm())
	}
	printf(c.App.Writer, "%s", t.Render())
	if len(gravity) == 0 {
		return nil
	}
	// errors are only returned for empty input
	//nolint:errcheck
	gMean, _ := gravity.Mean()
	//nolint:errcheck
	gStd, _ := gravity.StandardDeviation()
	//nolint:errcheck
	rMax, _ := rotation.Max()
	printf(c.App.Writer, "|accel| %.3f ± %.3f m/s², max |gyro| %.4f rad/s", gMean, gStd, rMax)
	return nil
}

// ListControlsAction prints every color control with its current setting and range.
func ListControlsAction(c *cli.Context) (err error) {
	dev, err := openDevice(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, dev.Close())
	}()
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Control", "Mode", "Value", "Min", "Max", "Step", "Default", "Auto"})
	for _, cmd := range native.ColorControlCommands {
		caps, err := dev.ColorControlCapabilities(cmd)
		if err != nil {
			return err
		}
		mode, value, err := dev.ColorControl(cmd)
		if err != nil {
			return err
		}
		t.AppendRow(table.Row{cmd, mode, value, caps.Min, caps.Max, caps.Step, caps.Default, caps.SupportsAuto})
	}
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

// SetControlAction sets one color control.
func SetControlAction(c *cli.Context) (err error) {
	if c.NArg() != 2 {
		return errors.Errorf("expected a control and a value, got %d arguments", c.NArg())
	}
	cmd, err := native.ParseColorControlCommand(c.Args().Get(0))
	if err != nil {
		return err
	}
	mode := native.ColorControlModeManual
	value := 0
	if arg := c.Args().Get(1); strings.EqualFold(arg, "auto") {
		mode = native.ColorControlModeAuto
	} else if value, err = strconv.Atoi(arg); err != nil {
		return errors.Wrapf(err, "invalid %v value", cmd)
	}

	dev, err := openDevice(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, dev.Close())
	}()
	if err := dev.SetColorControl(cmd, mode, value); err != nil {
		return err
	}
	mode, value, err = dev.ColorControl(cmd)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%v is %v %d", cmd, mode, value)
	return nil
}
