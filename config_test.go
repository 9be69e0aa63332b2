package k4a

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/k4a/native"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	test.That(t, cfg.Validate("cameras"), test.ShouldBeNil)
	nc, err := cfg.Native()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, nc, test.ShouldResemble, native.DeviceConfiguration{
		ColorFormat:            native.ImageFormatColorBGRA32,
		ColorResolution:        native.ColorResolution720P,
		DepthMode:              native.DepthModeNFOVUnbinned,
		CameraFPS:              native.FPS30,
		SynchronizedImagesOnly: true,
		WiredSyncMode:          native.WiredSyncModeStandalone,
	})
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "camera.json")
	t.Setenv("K4A_TEST_DEPTH_MODE", "wfov_2x2binned")
	err := os.WriteFile(path, []byte(`{
		"color_resolution": "1080p",
		"depth_mode": "${K4A_TEST_DEPTH_MODE}",
		"fps": 15,
		"depth_delay_off_color_usec": -200,
		"wired_sync_mode": "Subordinate",
		"subordinate_delay_off_master_usec": 160
	}`), 0o600)
	test.That(t, err, test.ShouldBeNil)

	cfg, err := ReadConfig(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.DepthMode, test.ShouldEqual, "wfov_2x2binned")
	test.That(t, cfg.Validate("cameras"), test.ShouldBeNil)
	nc, err := cfg.Native()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, nc, test.ShouldResemble, native.DeviceConfiguration{
		ColorFormat:                   native.ImageFormatColorBGRA32,
		ColorResolution:               native.ColorResolution1080P,
		DepthMode:                     native.DepthModeWFOV2x2Binned,
		CameraFPS:                     native.FPS15,
		DepthDelayOffColorUsec:        -200,
		WiredSyncMode:                 native.WiredSyncModeSubordinate,
		SubordinateDelayOffMasterUsec: 160,
	})

	bad := filepath.Join(dir, "bad.json")
	test.That(t, os.WriteFile(bad, []byte(`{"depth_mode": "nfov_unbinned", "frame_rate": 30}`), 0o600), test.ShouldBeNil)
	_, err = ReadConfig(bad)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "frame_rate")

	_, err = ReadConfig(filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestConfigFromAttributes(t *testing.T) {
	cfg, err := ConfigFromAttributes(map[string]interface{}{
		"color_format":     "mjpg",
		"color_resolution": "3072p",
		"depth_mode":       "off",
		"fps":              "15",
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.FPS, test.ShouldEqual, 15)
	test.That(t, cfg.Validate("cameras"), test.ShouldBeNil)

	_, err = ConfigFromAttributes(map[string]interface{}{"depth_mode": "off", "exposure": 10})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "exposure")
}

func TestConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  Config
		msg  string
	}{
		{"nothing on", Config{}, "at least one"},
		{"unknown depth mode", Config{DepthMode: "nfov"}, "depth_mode"},
		{"unknown fps", Config{DepthMode: "nfov_unbinned", FPS: 60}, "fps"},
		{"depth format for color", Config{ColorFormat: "depth16", ColorResolution: "720p"}, "not a color format"},
		{"nv12 above 720p", Config{ColorFormat: "nv12", ColorResolution: "1080p"}, "only available at 720p"},
		{"3072p at 30 fps", Config{ColorResolution: "3072p", FPS: 30}, "15 fps"},
		{"wfov unbinned at 30 fps", Config{DepthMode: "wfov_unbinned"}, "15 fps"},
		{"synchronized without color", Config{DepthMode: "nfov_unbinned", SynchronizedImagesOnly: true}, "synchronized"},
		{"subordinate delay when standalone", Config{DepthMode: "nfov_unbinned", SubordinateDelayOffMasterUsec: 10}, "subordinate"},
		{"negative subordinate delay", Config{
			DepthMode: "nfov_unbinned", WiredSyncMode: "subordinate", SubordinateDelayOffMasterUsec: -1,
		}, "negative"},
		{"depth delay past a frame", Config{
			ColorResolution: "720p", DepthMode: "nfov_unbinned", FPS: 30, DepthDelayOffColorUsec: 40000,
		}, "within one frame"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate("cameras")
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.msg)
			test.That(t, err.Error(), test.ShouldContainSubstring, "cameras")
		})
	}

	ok := Config{ColorFormat: "yuy2", ColorResolution: "720p", DepthMode: "passive_ir", FPS: 5, DepthDelayOffColorUsec: 199999}
	test.That(t, ok.Validate("cameras"), test.ShouldBeNil)
}

func TestConfigSchema(t *testing.T) {
	out, err := json.Marshal(ConfigSchema())
	test.That(t, err, test.ShouldBeNil)
	schema := string(out)
	test.That(t, schema, test.ShouldContainSubstring, `"color_format"`)
	test.That(t, schema, test.ShouldContainSubstring, `"nfov_unbinned"`)
	test.That(t, schema, test.ShouldContainSubstring, `"subordinate"`)
	test.That(t, schema, test.ShouldNotContainSubstring, `"ColorFormat"`)
}
