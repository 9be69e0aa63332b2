package fake

import "go.viam.com/k4a/native"

type controlState struct {
	mode  native.ColorControlMode
	value int32
}

var colorControlCapabilities = map[native.ColorControlCommand]native.ColorControlCapabilities{
	native.ColorControlExposureTimeAbsolute: {
		SupportsAuto: true, Min: 500, Max: 133330, Step: 100, Default: 16670, DefaultMode: native.ColorControlModeAuto,
	},
	native.ColorControlAutoExposurePriority: {Min: 0, Max: 1, Step: 1, Default: 0, DefaultMode: native.ColorControlModeManual},
	native.ColorControlBrightness:           {Min: 0, Max: 255, Step: 1, Default: 128, DefaultMode: native.ColorControlModeManual},
	native.ColorControlContrast:             {Min: 0, Max: 10, Step: 1, Default: 5, DefaultMode: native.ColorControlModeManual},
	native.ColorControlSaturation:           {Min: 0, Max: 63, Step: 1, Default: 32, DefaultMode: native.ColorControlModeManual},
	native.ColorControlSharpness:            {Min: 0, Max: 4, Step: 1, Default: 2, DefaultMode: native.ColorControlModeManual},
	native.ColorControlWhitebalance: {
		SupportsAuto: true, Min: 2500, Max: 12500, Step: 10, Default: 4500, DefaultMode: native.ColorControlModeAuto,
	},
	native.ColorControlBacklightCompensation: {Min: 0, Max: 1, Step: 1, Default: 0, DefaultMode: native.ColorControlModeManual},
	native.ColorControlGain:                  {Min: 0, Max: 255, Step: 1, Default: 0, DefaultMode: native.ColorControlModeManual},
	native.ColorControlPowerlineFrequency:    {Min: 1, Max: 2, Step: 1, Default: 2, DefaultMode: native.ColorControlModeManual},
}

func defaultControls() map[native.ColorControlCommand]controlState {
	controls := make(map[native.ColorControlCommand]controlState, len(colorControlCapabilities))
	for cmd, caps := range colorControlCapabilities {
		controls[cmd] = controlState{mode: caps.DefaultMode, value: caps.Default}
	}
	return controls
}

// DeviceGetColorControlCapabilities returns the range of a control.
func (l *Library) DeviceGetColorControlCapabilities(
	h native.DeviceHandle, cmd native.ColorControlCommand,
) (native.ColorControlCapabilities, native.Result) {
	caps, ok := colorControlCapabilities[cmd]
	if !ok || l.device(h) == nil {
		return native.ColorControlCapabilities{}, native.ResultFailed
	}
	return caps, native.ResultSucceeded
}

// DeviceGetColorControl returns the mode and value of a control.
func (l *Library) DeviceGetColorControl(
	h native.DeviceHandle, cmd native.ColorControlCommand,
) (native.ColorControlMode, int32, native.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	dev := l.opened[h]
	if dev == nil {
		return 0, 0, native.ResultFailed
	}
	state, ok := dev.controls[cmd]
	if !ok {
		return 0, 0, native.ResultFailed
	}
	return state.mode, state.value, native.ResultSucceeded
}

// DeviceSetColorControl sets a control. Manual values must be in range and on a step; auto
// mode keeps the current value and is only accepted by controls that support it.
func (l *Library) DeviceSetColorControl(
	h native.DeviceHandle, cmd native.ColorControlCommand, mode native.ColorControlMode, value int32,
) native.Result {
	caps, ok := colorControlCapabilities[cmd]
	if !ok {
		return native.ResultFailed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	dev := l.opened[h]
	if dev == nil {
		return native.ResultFailed
	}
	state := dev.controls[cmd]
	switch mode {
	case native.ColorControlModeAuto:
		if !caps.SupportsAuto {
			return native.ResultFailed
		}
		state.mode = mode
	case native.ColorControlModeManual:
		if value < caps.Min || value > caps.Max || (value-caps.Min)%caps.Step != 0 {
			return native.ResultFailed
		}
		state = controlState{mode: mode, value: value}
	default:
		return native.ResultFailed
	}
	dev.controls[cmd] = state
	return native.ResultSucceeded
}
