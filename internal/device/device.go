// Package device holds the per-device state engines. An engine owns one
// physical device's mutable state, ingests the three status shapes the
// cloud produces and exposes typed command methods that translate to wire
// property writes.
package device

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mkurtov/haierbridge/internal/model"
)

// Kind is the closed set of device variants.
type Kind string

const (
	KindAirConditioner Kind = "air_conditioner"
	KindRefrigerator   Kind = "refrigerator"
	KindUnknown        Kind = "unknown"
)

// Descriptor is the immutable discovery-time snapshot of one device.
type Descriptor struct {
	ID            string
	Name          string
	Type          string
	Model         string
	MAC           string
	Serial        string
	Firmware      string
	InitialStatus map[string]any
}

// Attribute is one {name, currentValue} pair from a device-configuration
// fetch. Names are the numeric wire codes.
type Attribute struct {
	Name         string `json:"name"`
	CurrentValue string `json:"currentValue"`
}

// State is the live representation of a device.
type State struct {
	On                     bool
	CurrentTemperature     float64
	TargetTemperature      float64
	MinTemperature         float64
	MaxTemperature         float64
	Mode                   string
	FanMode                string
	SwingPosition          string
	Flags                  map[string]bool
	Doors                  map[string]bool
	CompartmentTemperature float64
	FreezerTemperature     float64
	MyZoneTemperature      float64
}

func (s State) clone() State {
	out := s
	out.Flags = make(map[string]bool, len(s.Flags))
	for k, v := range s.Flags {
		out.Flags[k] = v
	}
	out.Doors = make(map[string]bool, len(s.Doors))
	for k, v := range s.Doors {
		out.Doors[k] = v
	}
	return out
}

// Change records one field transition for observers.
type Change struct {
	Before any
	After  any
}

// Diff maps field names to their observed transitions.
type Diff map[string]Change

// EventType discriminates engine notifications.
type EventType string

const (
	EventStatusUpdated EventType = "statusUpdated"
	EventError         EventType = "error"
)

// Event is delivered synchronously to subscribed listeners.
type Event struct {
	DeviceID string
	Type     EventType
	Changes  Diff
	Err      error
}

// Listener receives engine events.
type Listener func(Event)

// Commander sends property writes toward the cloud. The realtime channel
// implements it.
type Commander interface {
	WriteProperties(ctx context.Context, mac, command string, props map[string]string) error
}

// UnsupportedOperationError is returned by mutators that do not apply to
// the device kind, so callers can tell "not applicable" from "broken".
type UnsupportedOperationError struct {
	Kind      Kind
	Operation string
}

func (e UnsupportedOperationError) Error() string {
	return fmt.Sprintf("operation %s not supported on %s", e.Operation, e.Kind)
}

// Flags set true force the listed flags false, from every entry point:
// local command, push update or attribute-array update.
var exclusiveFlags = map[string][]string{
	"turbo":   {"quiet"},
	"quiet":   {"turbo"},
	"comfort": {"turbo", "quiet"},
}

// Evaluation order for the rule table, so simultaneous updates resolve
// deterministically.
var exclusiveOrder = []string{"quiet", "turbo", "comfort"}

// Engine is the shared base for all device variants.
type Engine struct {
	desc      Descriptor
	kind      Kind
	def       *model.Definition
	commander Commander
	log       zerolog.Logger

	mu                 sync.Mutex
	state              State
	listeners          []Listener
	validationFailures int
}

func newEngine(desc Descriptor, kind Kind, def *model.Definition, commander Commander, log zerolog.Logger) *Engine {
	state := State{
		Flags: make(map[string]bool),
		Doors: make(map[string]bool),
	}
	if kind == KindAirConditioner {
		state.MinTemperature = 16
		state.MaxTemperature = 30
	}
	return &Engine{
		desc:      desc,
		kind:      kind,
		def:       def,
		commander: commander,
		log:       log.With().Str("component", "device").Str("device", desc.ID).Logger(),
		state:     state,
	}
}

func (e *Engine) ID() string             { return e.desc.ID }
func (e *Engine) Name() string           { return e.desc.Name }
func (e *Engine) MAC() string            { return e.desc.MAC }
func (e *Engine) Kind() Kind             { return e.kind }
func (e *Engine) Descriptor() Descriptor { return e.desc }

func (e *Engine) IsAirConditioner() bool { return e.kind == KindAirConditioner }
func (e *Engine) IsRefrigerator() bool   { return e.kind == KindRefrigerator }

// State returns a snapshot of the current device state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// ValidationFailures counts ingested values rejected by range checks.
func (e *Engine) ValidationFailures() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.validationFailures
}

// Subscribe registers a listener. Listeners run synchronously inside the
// update that produced the event.
func (e *Engine) Subscribe(fn Listener) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// EmitError reports an out-of-band failure (realtime channel errors) to
// listeners without touching state.
func (e *Engine) EmitError(err error) {
	e.mu.Lock()
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.Unlock()
	ev := Event{DeviceID: e.desc.ID, Type: EventError, Err: err}
	for _, fn := range listeners {
		fn(ev)
	}
}

type ingestPath int

const (
	pathPush ingestPath = iota
	pathAttributes
	pathFields
)

// UpdateFromPropertyMap ingests a realtime property map: numeric wire
// codes mapped to string values.
func (e *Engine) UpdateFromPropertyMap(props map[string]string) {
	e.ingest(e.decodeCodes(props, pathPush))
}

// UpdateFromAttributes ingests the attribute-array shape returned by
// device-configuration fetches.
func (e *Engine) UpdateFromAttributes(attrs []Attribute) {
	values := make(map[string]string, len(attrs))
	for _, attr := range attrs {
		values[attr.Name] = attr.CurrentValue
	}
	e.ingest(e.decodeCodes(values, pathAttributes))
}

// UpdateFromFields ingests a flat object with already-named fields.
func (e *Engine) UpdateFromFields(fields map[string]any) {
	values := make(map[string]string, len(fields))
	for name, value := range fields {
		switch v := value.(type) {
		case string:
			values[name] = v
		case bool:
			values[name] = formatBool(v)
		case float64:
			values[name] = formatFloat(v)
		case int:
			values[name] = strconv.Itoa(v)
		default:
			e.log.Debug().Str("field", name).Msg("unsupported field type ignored")
		}
	}
	// Discovery snapshots sometimes carry wire codes instead of names.
	if allNumericKeys(values) {
		values = e.decodeCodes(values, pathPush)
	}
	e.ingest(values)
}

func allNumericKeys(values map[string]string) bool {
	if len(values) == 0 {
		return false
	}
	for key := range values {
		if _, err := strconv.Atoi(key); err != nil {
			return false
		}
	}
	return true
}

func (e *Engine) decodeCodes(values map[string]string, path ingestPath) map[string]string {
	var table map[string]string
	switch {
	case e.kind == KindRefrigerator:
		table = refPropertyNames
	case path == pathAttributes:
		table = acAttributeNames
	default:
		table = acPropertyNames
	}

	out := make(map[string]string, len(values))
	for code, value := range values {
		name, ok := table[code]
		if !ok {
			e.log.Debug().Str("code", code).Msg("unknown property code ignored")
			continue
		}
		// Refrigerator compartment targets arrive as level codes on the
		// wire paths; resolve them to degrees here so the apply step only
		// ever sees degrees.
		if e.kind == KindRefrigerator {
			if _, leveled := refLevelDegrees[name]; leveled {
				if degrees, ok := e.decodeRefTemperature(name, value); ok {
					value = formatFloat(degrees)
				}
			}
		}
		out[name] = value
	}
	return out
}

// ingest applies a canonical-name value map. An update only touches the
// fields present in the payload; values failing validation are dropped
// with the prior value retained. Never returns an error.
func (e *Engine) ingest(values map[string]string) {
	e.mu.Lock()
	before := e.state.clone()

	for name, raw := range values {
		e.applyField(name, raw)
	}
	e.applyExclusions(values)

	diff := diffStates(before, e.state)
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.Unlock()

	if len(diff) == 0 {
		return
	}
	ev := Event{DeviceID: e.desc.ID, Type: EventStatusUpdated, Changes: diff}
	for _, fn := range listeners {
		fn(ev)
	}
}

// applyField runs under e.mu.
func (e *Engine) applyField(name, raw string) {
	switch name {
	case "status":
		if v, ok := parseWireBool(raw); ok {
			e.state.On = v
		} else {
			e.rejectValue(name, raw)
		}

	case "current_temperature":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < -50 || v > 100 {
			e.rejectValue(name, raw)
			return
		}
		e.state.CurrentTemperature = v

	case "target_temperature":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			e.rejectValue(name, raw)
			return
		}
		if e.state.MinTemperature != 0 && (v < e.state.MinTemperature || v > e.state.MaxTemperature) {
			e.rejectValue(name, raw)
			return
		}
		e.state.TargetTemperature = v

	case "mode":
		if v := normalizeEnum(raw, modeNames); v != "" {
			e.state.Mode = v
		} else {
			e.rejectValue(name, raw)
		}

	case "fan_mode":
		if v := normalizeEnum(raw, fanNames); v != "" {
			e.state.FanMode = v
		} else {
			e.rejectValue(name, raw)
		}

	case "swing_mode":
		if v := normalizeEnum(raw, swingNames); v != "" {
			e.state.SwingPosition = v
		} else {
			e.rejectValue(name, raw)
		}

	case "compartment_temperature", "freezer_temperature", "my_zone_temperature":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < -40 || v > 50 {
			e.rejectValue(name, raw)
			return
		}
		switch name {
		case "compartment_temperature":
			e.state.CompartmentTemperature = v
		case "freezer_temperature":
			e.state.FreezerTemperature = v
		case "my_zone_temperature":
			e.state.MyZoneTemperature = v
		}

	case "compartment_door", "freezer_door", "my_zone_door":
		if v, ok := parseWireBool(raw); ok {
			e.state.Doors[name] = v
		} else {
			e.rejectValue(name, raw)
		}

	default:
		if v, ok := parseWireBool(raw); ok {
			e.state.Flags[name] = v
		} else {
			e.rejectValue(name, raw)
		}
	}
}

// decodeRefTemperature resolves a refrigerator temperature value, which
// arrives either as a model-specific level code or as plain degrees.
func (e *Engine) decodeRefTemperature(name, raw string) (float64, bool) {
	if e.def != nil {
		if logical := e.def.LogicalValue(name, raw); logical != raw {
			if v, err := strconv.ParseFloat(logical, 64); err == nil {
				return v, true
			}
		}
	}
	if v, ok := refLevelToDegrees(name, raw); ok {
		return v, true
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= -50 && v <= 50 {
		return v, true
	}
	return 0, false
}

// applyExclusions runs the flag rule table under e.mu for every flag the
// payload set true.
func (e *Engine) applyExclusions(values map[string]string) {
	for _, flag := range exclusiveOrder {
		raw, present := values[flag]
		if !present {
			continue
		}
		on, ok := parseWireBool(raw)
		if !ok || !on || !e.state.Flags[flag] {
			continue
		}
		for _, cleared := range exclusiveFlags[flag] {
			e.state.Flags[cleared] = false
		}
	}
}

func (e *Engine) rejectValue(name, raw string) {
	e.validationFailures++
	validationRejectsTotal.Inc()
	e.log.Warn().Str("field", name).Str("value", raw).Msg("rejected value, keeping previous")
}

func normalizeEnum(raw string, names map[string]string) string {
	if mapped, ok := names[raw]; ok {
		return mapped
	}
	for _, name := range names {
		if raw == name {
			return raw
		}
	}
	return ""
}

func diffStates(before, after State) Diff {
	diff := make(Diff)
	scalar := func(field string, b, a any) {
		if b != a {
			diff[field] = Change{Before: b, After: a}
		}
	}
	scalar("status", before.On, after.On)
	scalar("current_temperature", before.CurrentTemperature, after.CurrentTemperature)
	scalar("target_temperature", before.TargetTemperature, after.TargetTemperature)
	scalar("mode", before.Mode, after.Mode)
	scalar("fan_mode", before.FanMode, after.FanMode)
	scalar("swing_mode", before.SwingPosition, after.SwingPosition)
	scalar("compartment_temperature", before.CompartmentTemperature, after.CompartmentTemperature)
	scalar("freezer_temperature", before.FreezerTemperature, after.FreezerTemperature)
	scalar("my_zone_temperature", before.MyZoneTemperature, after.MyZoneTemperature)

	for name, a := range after.Flags {
		if b, ok := before.Flags[name]; !ok || b != a {
			diff[name] = Change{Before: before.Flags[name], After: a}
		}
	}
	for name, a := range after.Doors {
		if b, ok := before.Doors[name]; !ok || b != a {
			diff[name] = Change{Before: before.Doors[name], After: a}
		}
	}
	return diff
}

// commandName is the model-specific group command for property writes.
func (e *Engine) commandName() string {
	if e.def != nil {
		return e.def.GroupCommand
	}
	return ""
}

// wireID resolves a canonical attribute to its wire property ID via the
// model table, falling back to the protocol defaults.
func (e *Engine) wireID(name string) (string, error) {
	if e.def != nil {
		if id, ok := e.def.WireID(name); ok {
			return id, nil
		}
	}
	if id, ok := defaultWireIDs[name]; ok {
		return id, nil
	}
	return "", fmt.Errorf("no wire id for attribute %s", name)
}

// send writes one property and optimistically applies the new value
// locally; the authoritative value arrives later over the push channel.
func (e *Engine) send(ctx context.Context, name, logical string) error {
	id, err := e.wireID(name)
	if err != nil {
		return err
	}
	wire := logical
	if e.def != nil {
		wire = e.def.WireValue(name, logical)
	}
	if wire == logical {
		// No model remap; fall back to the protocol code tables.
		switch name {
		case "mode":
			if code, ok := modeCodes[logical]; ok {
				wire = code
			}
		case "fan_mode":
			if code, ok := fanCodes[logical]; ok {
				wire = code
			}
		case "swing_mode":
			if code, ok := swingCodes[logical]; ok {
				wire = code
			}
		}
	}
	if err := e.commander.WriteProperties(ctx, e.desc.MAC, e.commandName(), map[string]string{id: wire}); err != nil {
		return err
	}
	e.ingest(map[string]string{name: logical})
	return nil
}

func (e *Engine) notSupported(op string) error {
	return UnsupportedOperationError{Kind: e.kind, Operation: op}
}

// Shared mutators. SwitchOff is shadowed by the refrigerator variant.

func (e *Engine) SwitchOn(ctx context.Context) error {
	return e.send(ctx, "status", "1")
}

func (e *Engine) SwitchOff(ctx context.Context) error {
	return e.send(ctx, "status", "0")
}

// AC-only mutators fail by default; the air conditioner variant shadows
// them.

func (e *Engine) SetTargetTemperature(ctx context.Context, _ float64) error {
	return e.notSupported("set_target_temperature")
}

func (e *Engine) SetMode(ctx context.Context, _ string) error {
	return e.notSupported("set_mode")
}

func (e *Engine) SetFanMode(ctx context.Context, _ string) error {
	return e.notSupported("set_fan_mode")
}

func (e *Engine) SetSwingPosition(ctx context.Context, _ string) error {
	return e.notSupported("set_swing_position")
}

func (e *Engine) SetTiltAngle(ctx context.Context, _ int) error {
	return e.notSupported("set_tilt_angle")
}

func (e *Engine) SetQuiet(ctx context.Context, _ bool) error {
	return e.notSupported("set_quiet")
}

func (e *Engine) SetTurbo(ctx context.Context, _ bool) error {
	return e.notSupported("set_turbo")
}

func (e *Engine) SetComfort(ctx context.Context, _ bool) error {
	return e.notSupported("set_comfort")
}

func (e *Engine) SetHealth(ctx context.Context, _ bool) error {
	return e.notSupported("set_health")
}

func (e *Engine) SetLight(ctx context.Context, _ bool) error {
	return e.notSupported("set_light")
}

func (e *Engine) SetSound(ctx context.Context, _ bool) error {
	return e.notSupported("set_sound")
}

func (e *Engine) SetCleaning(ctx context.Context, _ bool) error {
	return e.notSupported("set_cleaning")
}

func (e *Engine) SetAntifreeze(ctx context.Context, _ bool) error {
	return e.notSupported("set_antifreeze")
}

func (e *Engine) SetAutoHumidity(ctx context.Context, _ bool) error {
	return e.notSupported("set_auto_humidity")
}

func (e *Engine) SetPreset(ctx context.Context, _ string) error {
	return e.notSupported("set_preset")
}

// Refrigerator-only mutators fail by default; the refrigerator variant
// shadows them.

func (e *Engine) SetCompartmentTemperature(ctx context.Context, _ float64) error {
	return e.notSupported("set_compartment_temperature")
}

func (e *Engine) SetFreezerTemperature(ctx context.Context, _ float64) error {
	return e.notSupported("set_freezer_temperature")
}

func (e *Engine) SetMyZoneTemperature(ctx context.Context, _ float64) error {
	return e.notSupported("set_my_zone_temperature")
}

func (e *Engine) SetSuperCool(ctx context.Context, _ bool) error {
	return e.notSupported("set_super_cool")
}

func (e *Engine) SetSuperFreeze(ctx context.Context, _ bool) error {
	return e.notSupported("set_super_freeze")
}

func (e *Engine) SetVacation(ctx context.Context, _ bool) error {
	return e.notSupported("set_vacation")
}

// Appliance is the boundary contract the host-integration layer consumes.
type Appliance interface {
	ID() string
	Name() string
	MAC() string
	Kind() Kind
	Descriptor() Descriptor
	State() State
	Subscribe(Listener)
	EmitError(error)
	IsAirConditioner() bool
	IsRefrigerator() bool

	UpdateFromPropertyMap(map[string]string)
	UpdateFromAttributes([]Attribute)
	UpdateFromFields(map[string]any)

	SwitchOn(context.Context) error
	SwitchOff(context.Context) error
	SetTargetTemperature(context.Context, float64) error
	SetMode(context.Context, string) error
	SetFanMode(context.Context, string) error
	SetSwingPosition(context.Context, string) error
	SetTiltAngle(context.Context, int) error
	SetQuiet(context.Context, bool) error
	SetTurbo(context.Context, bool) error
	SetComfort(context.Context, bool) error
	SetHealth(context.Context, bool) error
	SetLight(context.Context, bool) error
	SetSound(context.Context, bool) error
	SetCleaning(context.Context, bool) error
	SetAntifreeze(context.Context, bool) error
	SetAutoHumidity(context.Context, bool) error
	SetPreset(context.Context, string) error
	SetCompartmentTemperature(context.Context, float64) error
	SetFreezerTemperature(context.Context, float64) error
	SetMyZoneTemperature(context.Context, float64) error
	SetSuperCool(context.Context, bool) error
	SetSuperFreeze(context.Context, bool) error
	SetVacation(context.Context, bool) error
}
