package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/lmittmann/ppm"
	"github.com/xfmoulet/qoi"
	"go.viam.com/test"

	"go.viam.com/k4a/logging"
)

// runApp runs the tool against two simulated devices. The process-wide library is loaded
// once, so every test shares it.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp(logging.NewBlankLogger("k4a"))
	app.Writer = &out
	app.ErrWriter = &out
	err := app.RunContext(context.Background(), append([]string{"k4a", "--fake", "--fake-devices", "2"}, args...))
	return out.String(), err
}

func TestDevices(t *testing.T) {
	out, err := runApp(t, "devices")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, regexp.MustCompile(`\d{12}`).FindAllString(out, -1), test.ShouldHaveLength, 2)
	test.That(t, out, test.ShouldContainSubstring, "1.6.110")
}

func TestCalibration(t *testing.T) {
	out, err := runApp(t, "calibration", "--device", "1", "--depth-mode", "wfov_2x2binned", "--color-resolution", "1080p")
	test.That(t, err, test.ShouldBeNil)
	var decoded struct {
		DepthMode string `json:"depth_mode"`
		Depth     struct {
			Width int `json:"width_px"`
		} `json:"depth_camera"`
	}
	test.That(t, json.Unmarshal([]byte(out), &decoded), test.ShouldBeNil)
	test.That(t, decoded.DepthMode, test.ShouldEqual, "wfov_2x2binned")
	test.That(t, decoded.Depth.Width, test.ShouldEqual, 512)

	raw, err := runApp(t, "calibration", "--raw")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, raw, test.ShouldNotBeEmpty)

	_, err = runApp(t, "calibration", "--depth-mode", "sideways")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCapture(t *testing.T) {
	dir := t.TempDir()
	out, err := runApp(t, "capture", "--out-dir", dir, "--pcd")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "capture-000-color.ppm")

	for _, name := range []string{"color.ppm", "depth.png", "ir.png", "points.pcd"} {
		info, err := os.Stat(filepath.Join(dir, "capture-000-"+name))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, info.Size(), test.ShouldBeGreaterThan, 0)
	}
	f, err := os.Open(filepath.Join(dir, "capture-000-color.ppm"))
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()
	cfg, err := ppm.DecodeConfig(f)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Width, test.ShouldEqual, 1280)
	test.That(t, cfg.Height, test.ShouldEqual, 720)

	config := filepath.Join(dir, "mjpg.json")
	test.That(t, os.WriteFile(config, []byte(`{"color_format": "mjpg", "color_resolution": "1080p"}`), 0o600), test.ShouldBeNil)
	_, err = runApp(t, "capture", "--out-dir", dir, "--config", config, "--count", "2")
	test.That(t, err, test.ShouldBeNil)
	_, err = os.Stat(filepath.Join(dir, "capture-001-color.jpg"))
	test.That(t, err, test.ShouldBeNil)
}

func TestCapturePreview(t *testing.T) {
	dir := t.TempDir()
	_, err := runApp(t, "capture", "--out-dir", dir, "--flip", "--preview-width", "320")
	test.That(t, err, test.ShouldBeNil)

	f, err := os.Open(filepath.Join(dir, "capture-000-color.ppm"))
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()
	cfg, err := ppm.DecodeConfig(f)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Width, test.ShouldEqual, 320)
	test.That(t, cfg.Height, test.ShouldEqual, 180)

	d, err := os.Open(filepath.Join(dir, "capture-000-depth.png"))
	test.That(t, err, test.ShouldBeNil)
	defer d.Close()
	depthCfg, err := png.DecodeConfig(d)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, depthCfg.Width, test.ShouldEqual, 320)
	test.That(t, depthCfg.Height, test.ShouldEqual, 288)

	_, err = runApp(t, "capture", "--out-dir", dir, "--preview-width", "-1")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = runApp(t, "capture", "--out-dir", dir, "--pcd", "--pcd-type", "zip")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCaptureQOI(t *testing.T) {
	dir := t.TempDir()
	_, err := runApp(t, "capture", "--out-dir", dir, "--qoi")
	test.That(t, err, test.ShouldBeNil)
	for _, name := range []string{"depth", "ir"} {
		f, err := os.Open(filepath.Join(dir, "capture-000-"+name+".qoi"))
		test.That(t, err, test.ShouldBeNil)
		cfg, err := qoi.DecodeConfig(f)
		f.Close()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg.Width, test.ShouldEqual, 640)
		test.That(t, cfg.Height, test.ShouldEqual, 576)
	}
}

func TestConfigSchema(t *testing.T) {
	out, err := runApp(t, "config-schema")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, json.Valid([]byte(out)), test.ShouldBeTrue)
	test.That(t, out, test.ShouldContainSubstring, "wfov_unbinned")
}

func TestImu(t *testing.T) {
	out, err := runApp(t, "imu", "--count", "3")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "-9.810")
	test.That(t, out, test.ShouldContainSubstring, "|accel| 9.810")
}

func TestLogLevel(t *testing.T) {
	_, err := runApp(t, "--log-level", "loud", "devices")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown log level")
}

func TestLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "k4a.log")
	_, err := runApp(t, "--debug", "--log-file", path, "controls", "set", "gain", "10")
	test.That(t, err, test.ShouldBeNil)
	contents, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(contents), test.ShouldContainSubstring, "color control set")
}

func TestControls(t *testing.T) {
	out, err := runApp(t, "controls", "list")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "whitebalance")

	out, err = runApp(t, "controls", "set", "brightness", "200")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "brightness is manual 200")

	out, err = runApp(t, "controls", "set", "whitebalance", "auto")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "whitebalance is auto")

	_, err = runApp(t, "controls", "set", "brightness")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = runApp(t, "controls", "set", "brightness", "bright")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = runApp(t, "controls", "set", "brightness", "1000")
	test.That(t, err, test.ShouldNotBeNil)
}
