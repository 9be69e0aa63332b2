package main

import (
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	"go.viam.com/k4a/logging"
	"go.viam.com/k4a/native"
	"go.viam.com/k4a/native/fake"
	"go.viam.com/k4a/view"
)

const (
	generalFlagDebug       = "debug"
	generalFlagFake        = "fake"
	generalFlagFakeDevices = "fake-devices"
	generalFlagDevice      = "device"
	generalFlagLogFile     = "log-file"
	generalFlagLogLevel    = "log-level"

	calibrationFlagDepthMode       = "depth-mode"
	calibrationFlagColorResolution = "color-resolution"
	calibrationFlagRaw             = "raw"

	captureFlagConfig  = "config"
	captureFlagOutDir  = "out-dir"
	captureFlagCount   = "count"
	captureFlagTimeout = "timeout"
	captureFlagPCD     = "pcd"
	captureFlagPCDType = "pcd-type"
	captureFlagQOI     = "qoi"
	captureFlagFlip    = "flip"
	captureFlagWidth   = "preview-width"

	imuFlagCount = "count"
)

func newApp(logger logging.Logger) *cli.App {
	deviceFlag := &cli.IntFlag{
		Name:    generalFlagDevice,
		Aliases: []string{"d"},
		Usage:   "index of the device to open",
	}
	var logFile *logging.FileAppender
	return &cli.App{
		Name:            "k4a",
		Usage:           "list, configure and record depth cameras",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  generalFlagFake,
				Usage: "use simulated devices instead of the native library",
			},
			&cli.IntFlag{
				Name:  generalFlagFakeDevices,
				Value: 1,
				Usage: "number of simulated devices",
			},
			&cli.StringFlag{
				Name:  generalFlagLogLevel,
				Value: logging.INFO.String(),
				Usage: "one of debug, info, warn or error",
			},
			&cli.PathFlag{
				Name:  generalFlagLogFile,
				Usage: "also write logs to `FILE`, rotated every 10MB",
			},
		},
		Before: func(c *cli.Context) error {
			level, err := logging.LevelFromString(c.String(generalFlagLogLevel))
			if err != nil {
				return err
			}
			if c.Bool(generalFlagDebug) {
				level = logging.DEBUG
			}
			logger.SetLevel(level)
			if path := c.Path(generalFlagLogFile); path != "" {
				logFile = logging.NewFileAppender(path, 10)
				logger.AddAppender(logFile)
			}
			if c.Bool(generalFlagFake) {
				fake.Register(fake.Options{Devices: c.Int(generalFlagFakeDevices), Logger: logger.Sublogger("fake")})
			}
			c.App.Metadata = map[string]interface{}{"logger": logger}
			return nil
		},
		After: func(c *cli.Context) error {
			if logFile == nil {
				return nil
			}
			return logFile.Close()
		},
		Commands: []*cli.Command{
			{
				Name:   "devices",
				Usage:  "list connected devices",
				Action: DevicesAction,
			},
			{
				Name:  "calibration",
				Usage: "print the calibration of a device",
				Flags: []cli.Flag{
					deviceFlag,
					&cli.StringFlag{
						Name:  calibrationFlagDepthMode,
						Value: native.DepthModeNFOVUnbinned.String(),
						Usage: "depth mode to calibrate for",
					},
					&cli.StringFlag{
						Name:  calibrationFlagColorResolution,
						Value: native.ColorResolution720P.String(),
						Usage: "color resolution to calibrate for",
					},
					&cli.BoolFlag{
						Name:  calibrationFlagRaw,
						Usage: "write the raw factory calibration blob instead of JSON",
					},
				},
				Action: CalibrationAction,
			},
			{
				Name:  "capture",
				Usage: "record captures to files",
				Flags: []cli.Flag{
					deviceFlag,
					&cli.PathFlag{
						Name:    captureFlagConfig,
						Aliases: []string{"c"},
						Usage:   "camera configuration `FILE`; 720p color and unbinned narrow depth by default",
					},
					&cli.PathFlag{
						Name:  captureFlagOutDir,
						Value: ".",
						Usage: "directory to write files to",
					},
					&cli.IntFlag{
						Name:  captureFlagCount,
						Value: 1,
						Usage: "number of captures to record",
					},
					&cli.DurationFlag{
						Name:  captureFlagTimeout,
						Value: 5 * time.Second,
						Usage: "how long to wait for each capture",
					},
					&cli.BoolFlag{
						Name:  captureFlagPCD,
						Usage: "also write a colored point cloud of each capture",
					},
					&cli.StringFlag{
						Name:  captureFlagPCDType,
						Value: view.PCDCompressed.String(),
						Usage: "point cloud encoding, one of ascii, binary or binary_compressed",
					},
					&cli.BoolFlag{
						Name:  captureFlagQOI,
						Usage: "write depth and infrared images as qoi instead of png",
					},
					&cli.BoolFlag{
						Name:  captureFlagFlip,
						Usage: "rotate image files by 180 degrees, for upside down mounts",
					},
					&cli.IntFlag{
						Name:  captureFlagWidth,
						Usage: "scale image files to this width, keeping the aspect ratio",
					},
				},
				Action: CaptureAction,
			},
			{
				Name:   "config-schema",
				Usage:  "print the JSON schema of capture configuration files",
				Action: ConfigSchemaAction,
			},
			{
				Name:  "imu",
				Usage: "print motion sensor samples",
				Flags: []cli.Flag{
					deviceFlag,
					&cli.IntFlag{
						Name:  imuFlagCount,
						Value: 10,
						Usage: "number of samples to print",
					},
				},
				Action: ImuAction,
			},
			{
				Name:            "controls",
				Usage:           "work with color camera controls",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "list color camera controls and their ranges",
						Flags:  []cli.Flag{deviceFlag},
						Action: ListControlsAction,
					},
					{
						Name:      "set",
						Usage:     "set a color camera control to a value or to auto",
						ArgsUsage: "<control> <value|auto>",
						Flags:     []cli.Flag{deviceFlag},
						Action:    SetControlAction,
					},
				},
			},
		},
	}
}

func loggerFrom(c *cli.Context) logging.Logger {
	if logger, ok := c.App.Metadata["logger"].(logging.Logger); ok {
		return logger
	}
	return logging.NewLogger("k4a")
}

// printf prints a message with no decoration.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}
