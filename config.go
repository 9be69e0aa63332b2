package k4a

import (
	"bytes"
	"encoding/json"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	goutils "go.viam.com/utils"

	"go.viam.com/k4a/native"
)

// Config is a human readable camera configuration, e.g.
//
//	{"color_format": "bgra32", "color_resolution": "720p", "depth_mode": "nfov_unbinned", "fps": 30}
//
// Empty fields take the defaults of DefaultConfig.
//
//nolint:lll
type Config struct {
	ColorFormat                   string `json:"color_format,omitempty" jsonschema:"enum=mjpg,enum=nv12,enum=yuy2,enum=bgra32"`
	ColorResolution               string `json:"color_resolution,omitempty" jsonschema:"enum=off,enum=720p,enum=1080p,enum=1440p,enum=1536p,enum=2160p,enum=3072p"`
	DepthMode                     string `json:"depth_mode,omitempty" jsonschema:"enum=off,enum=nfov_2x2binned,enum=nfov_unbinned,enum=wfov_2x2binned,enum=wfov_unbinned,enum=passive_ir"`
	FPS                           int    `json:"fps,omitempty" jsonschema:"enum=5,enum=15,enum=30"`
	SynchronizedImagesOnly        bool   `json:"synchronized_images_only,omitempty"`
	DepthDelayOffColorUsec        int    `json:"depth_delay_off_color_usec,omitempty"`
	WiredSyncMode                 string `json:"wired_sync_mode,omitempty" jsonschema:"enum=standalone,enum=master,enum=subordinate"`
	SubordinateDelayOffMasterUsec int    `json:"subordinate_delay_off_master_usec,omitempty" jsonschema:"minimum=0"`
	DisableStreamingIndicator     bool   `json:"disable_streaming_indicator,omitempty"`
}

// ConfigSchema describes Config as a JSON schema, for editors and config tooling.
func ConfigSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&Config{})
}

// DefaultConfig streams 720p BGRA color and unbinned narrow field of view depth at 30 fps,
// with synchronized images.
func DefaultConfig() *Config {
	return &Config{
		ColorFormat:            native.ImageFormatColorBGRA32.String(),
		ColorResolution:        native.ColorResolution720P.String(),
		DepthMode:              native.DepthModeNFOVUnbinned.String(),
		FPS:                    30,
		SynchronizedImagesOnly: true,
		WiredSyncMode:          native.WiredSyncModeStandalone.String(),
	}
}

var colorFormats = []native.ImageFormat{
	native.ImageFormatColorMJPG, native.ImageFormatColorNV12, native.ImageFormatColorYUY2, native.ImageFormatColorBGRA32,
}

// ReadConfig reads a JSON config file, expanding environment variables such as ${HOME} first.
func ReadConfig(path string) (*Config, error) {
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config %q", path)
	}
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot decode config %q", path)
	}
	return &cfg, nil
}

// ConfigFromAttributes decodes a config from an attribute map keyed by the JSON field names.
// Unknown keys are an error.
func ConfigFromAttributes(attributes map[string]interface{}) (*Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &cfg,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "cannot decode camera attributes")
	}
	return &cfg, nil
}

// withDefaults fills empty fields.
func (cfg *Config) withDefaults() Config {
	out := *cfg
	if out.ColorFormat == "" {
		out.ColorFormat = native.ImageFormatColorBGRA32.String()
	}
	if out.ColorResolution == "" {
		out.ColorResolution = native.ColorResolutionOff.String()
	}
	if out.DepthMode == "" {
		out.DepthMode = native.DepthModeOff.String()
	}
	if out.FPS == 0 {
		out.FPS = 30
	}
	if out.WiredSyncMode == "" {
		out.WiredSyncMode = native.WiredSyncModeStandalone.String()
	}
	return out
}

// Native lowers the config to the native layout. It only checks that the fields parse; use
// Validate for the combinations the device accepts.
func (cfg *Config) Native() (native.DeviceConfiguration, error) {
	c := cfg.withDefaults()
	var out native.DeviceConfiguration
	var err error
	if out.ColorFormat, err = native.ParseImageFormat(c.ColorFormat); err != nil {
		return out, errors.Wrap(err, "color_format")
	}
	if out.ColorResolution, err = native.ParseColorResolution(c.ColorResolution); err != nil {
		return out, errors.Wrap(err, "color_resolution")
	}
	if out.DepthMode, err = native.ParseDepthMode(c.DepthMode); err != nil {
		return out, errors.Wrap(err, "depth_mode")
	}
	if out.CameraFPS, err = native.FPSFromHz(c.FPS); err != nil {
		return out, errors.Wrap(err, "fps")
	}
	if out.WiredSyncMode, err = native.ParseWiredSyncMode(c.WiredSyncMode); err != nil {
		return out, errors.Wrap(err, "wired_sync_mode")
	}
	if c.SubordinateDelayOffMasterUsec < 0 {
		return out, errors.Errorf("subordinate_delay_off_master_usec must not be negative, got %d", c.SubordinateDelayOffMasterUsec)
	}
	out.SynchronizedImagesOnly = c.SynchronizedImagesOnly
	out.DepthDelayOffColorUsec = int32(c.DepthDelayOffColorUsec)
	out.SubordinateDelayOffMasterUsec = uint32(c.SubordinateDelayOffMasterUsec)
	out.DisableStreamingIndicator = c.DisableStreamingIndicator
	return out, nil
}

// Validate checks that the device can stream the configured combination.
func (cfg *Config) Validate(path string) error {
	c, err := cfg.Native()
	if err != nil {
		return goutils.NewConfigValidationError(path, err)
	}
	colorOn := c.ColorResolution != native.ColorResolutionOff
	depthOn := c.DepthMode != native.DepthModeOff
	switch {
	case !colorOn && !depthOn:
		return goutils.NewConfigValidationError(path, errors.New("at least one of color_resolution and depth_mode must be on"))
	case !lo.Contains(colorFormats, c.ColorFormat):
		return goutils.NewConfigValidationError(path, errors.Errorf("color_format %v is not a color format", c.ColorFormat))
	case colorOn && (c.ColorFormat == native.ImageFormatColorNV12 || c.ColorFormat == native.ImageFormatColorYUY2) &&
		c.ColorResolution != native.ColorResolution720P:
		return goutils.NewConfigValidationError(path,
			errors.Errorf("color_format %v is only available at 720p, not %v", c.ColorFormat, c.ColorResolution))
	case c.CameraFPS == native.FPS30 && c.ColorResolution == native.ColorResolution3072P:
		return goutils.NewConfigValidationError(path, errors.New("3072p color is limited to 15 fps"))
	case c.CameraFPS == native.FPS30 && c.DepthMode == native.DepthModeWFOVUnbinned:
		return goutils.NewConfigValidationError(path, errors.New("wfov_unbinned depth is limited to 15 fps"))
	case c.SynchronizedImagesOnly && !(colorOn && depthOn):
		return goutils.NewConfigValidationError(path, errors.New("synchronized_images_only needs both color and depth"))
	case c.SubordinateDelayOffMasterUsec != 0 && c.WiredSyncMode != native.WiredSyncModeSubordinate:
		return goutils.NewConfigValidationError(path,
			errors.New("subordinate_delay_off_master_usec is only used in subordinate wired_sync_mode"))
	}
	period := 1_000_000 / c.CameraFPS.Hz()
	if d := int(c.DepthDelayOffColorUsec); d <= -period || d >= period {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("depth_delay_off_color_usec %d must be within one frame (%d usec)", d, period))
	}
	return nil
}
