package device

import "context"

// Refrigerator is the fridge/freezer variant of the state engine.
// Compartment targets travel as model-specific level codes, not degrees,
// and the appliance is always-on: switch_off is rejected as a safety
// measure.
type Refrigerator struct {
	*Engine
}

func newRefrigerator(engine *Engine) *Refrigerator {
	return &Refrigerator{Engine: engine}
}

// SwitchOff always fails: a refrigerator must not be powered down
// remotely.
func (r *Refrigerator) SwitchOff(ctx context.Context) error {
	return r.notSupported("switch_off")
}

// SetCompartmentTemperature sets the fridge compartment target in
// degrees; the value is translated to the nearest level code.
func (r *Refrigerator) SetCompartmentTemperature(ctx context.Context, celsius float64) error {
	return r.setLevel(ctx, "compartment_temperature", celsius)
}

// SetFreezerTemperature sets the freezer target in degrees.
func (r *Refrigerator) SetFreezerTemperature(ctx context.Context, celsius float64) error {
	return r.setLevel(ctx, "freezer_temperature", celsius)
}

// SetMyZoneTemperature sets the switchable my-zone compartment target.
func (r *Refrigerator) SetMyZoneTemperature(ctx context.Context, celsius float64) error {
	return r.setLevel(ctx, "my_zone_temperature", celsius)
}

func (r *Refrigerator) SetSuperCool(ctx context.Context, on bool) error {
	return r.send(ctx, "super_cool", formatBool(on))
}

func (r *Refrigerator) SetSuperFreeze(ctx context.Context, on bool) error {
	return r.send(ctx, "super_freeze", formatBool(on))
}

func (r *Refrigerator) SetVacation(ctx context.Context, on bool) error {
	return r.send(ctx, "vacation", formatBool(on))
}

// DoorOpen reports the named compartment contact sensor. Doors are
// read-only; there is no mutator.
func (r *Refrigerator) DoorOpen(compartment string) bool {
	return r.State().Doors[compartment]
}

func (r *Refrigerator) setLevel(ctx context.Context, name string, celsius float64) error {
	// The model table maps degrees to level codes; outside the table the
	// protocol defaults pick the nearest level.
	logical := formatFloat(celsius)
	if r.def != nil {
		if wire := r.def.WireValue(name, logical); wire != logical {
			return r.sendLevel(ctx, name, wire, celsius)
		}
	}
	code, ok := refDegreesToLevel(name, celsius)
	if !ok {
		return r.notSupported("set_" + name)
	}
	return r.sendLevel(ctx, name, code, celsius)
}

func (r *Refrigerator) sendLevel(ctx context.Context, name, code string, celsius float64) error {
	id, err := r.wireID(name)
	if err != nil {
		return err
	}
	if err := r.commander.WriteProperties(ctx, r.desc.MAC, r.commandName(), map[string]string{id: code}); err != nil {
		return err
	}
	r.ingest(map[string]string{name: formatFloat(celsius)})
	return nil
}
