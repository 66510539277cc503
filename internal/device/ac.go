package device

import (
	"context"
	"fmt"
)

// AirConditioner is the split/window AC variant of the state engine.
type AirConditioner struct {
	*Engine
}

func newAirConditioner(engine *Engine) *AirConditioner {
	return &AirConditioner{Engine: engine}
}

// SetTargetTemperature writes the setpoint, clamped to the device bounds.
func (a *AirConditioner) SetTargetTemperature(ctx context.Context, celsius float64) error {
	state := a.State()
	if celsius < state.MinTemperature {
		celsius = state.MinTemperature
	}
	if celsius > state.MaxTemperature {
		celsius = state.MaxTemperature
	}
	return a.send(ctx, "target_temperature", formatFloat(celsius))
}

// SetMode selects the operating mode: auto, cool, dry, heat or fan.
func (a *AirConditioner) SetMode(ctx context.Context, mode string) error {
	if _, ok := modeCodes[mode]; !ok {
		return fmt.Errorf("unknown mode %q", mode)
	}
	return a.send(ctx, "mode", mode)
}

// SetFanMode selects the fan speed: low, medium, high or auto.
func (a *AirConditioner) SetFanMode(ctx context.Context, fan string) error {
	if _, ok := fanCodes[fan]; !ok {
		return fmt.Errorf("unknown fan mode %q", fan)
	}
	return a.send(ctx, "fan_mode", fan)
}

// SetSwingPosition selects a named louver position.
func (a *AirConditioner) SetSwingPosition(ctx context.Context, position string) error {
	if _, ok := swingCodes[position]; !ok {
		return fmt.Errorf("unknown swing position %q", position)
	}
	return a.send(ctx, "swing_mode", position)
}

// SetTiltAngle selects the louver position nearest to an angle in
// degrees, for hosts that expose angle instead of named position.
func (a *AirConditioner) SetTiltAngle(ctx context.Context, degrees int) error {
	return a.SetSwingPosition(ctx, SwingPositionForTilt(degrees))
}

// TiltAngle reports the current louver position as degrees.
func (a *AirConditioner) TiltAngle() int {
	deg, _ := TiltAngle(a.State().SwingPosition)
	return deg
}

func (a *AirConditioner) SetQuiet(ctx context.Context, on bool) error {
	return a.setFlag(ctx, "quiet", on)
}

func (a *AirConditioner) SetTurbo(ctx context.Context, on bool) error {
	return a.setFlag(ctx, "turbo", on)
}

func (a *AirConditioner) SetComfort(ctx context.Context, on bool) error {
	return a.setFlag(ctx, "comfort", on)
}

func (a *AirConditioner) SetHealth(ctx context.Context, on bool) error {
	return a.setFlag(ctx, "health", on)
}

func (a *AirConditioner) SetLight(ctx context.Context, on bool) error {
	return a.setFlag(ctx, "light", on)
}

func (a *AirConditioner) SetSound(ctx context.Context, on bool) error {
	return a.setFlag(ctx, "sound", on)
}

func (a *AirConditioner) SetCleaning(ctx context.Context, on bool) error {
	return a.setFlag(ctx, "cleaning", on)
}

func (a *AirConditioner) SetAntifreeze(ctx context.Context, on bool) error {
	return a.setFlag(ctx, "antifreeze", on)
}

func (a *AirConditioner) SetAutoHumidity(ctx context.Context, on bool) error {
	return a.setFlag(ctx, "auto_humidity", on)
}

// SetPreset applies a named preset: sleep, boost or none.
func (a *AirConditioner) SetPreset(ctx context.Context, preset string) error {
	switch preset {
	case "sleep":
		return a.setFlag(ctx, "sleep", true)
	case "boost":
		return a.setFlag(ctx, "boost", true)
	case "none":
		if err := a.setFlag(ctx, "sleep", false); err != nil {
			return err
		}
		return a.setFlag(ctx, "boost", false)
	default:
		return fmt.Errorf("unknown preset %q", preset)
	}
}

func (a *AirConditioner) setFlag(ctx context.Context, name string, on bool) error {
	return a.send(ctx, name, formatBool(on))
}
