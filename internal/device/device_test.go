package device

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type commandCall struct {
	mac     string
	command string
	props   map[string]string
}

type recordingCommander struct {
	mu    sync.Mutex
	calls []commandCall
}

func (r *recordingCommander) WriteProperties(_ context.Context, mac, command string, props map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, commandCall{mac: mac, command: command, props: props})
	return nil
}

func (r *recordingCommander) last(t *testing.T) commandCall {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		t.Fatal("no command was sent")
	}
	return r.calls[len(r.calls)-1]
}

func (r *recordingCommander) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestAC(t *testing.T) (*AirConditioner, *recordingCommander) {
	t.Helper()
	cmd := &recordingCommander{}
	desc := Descriptor{ID: "ac-1", Name: "Bedroom AC", Type: "AC", Model: "AS20HPL1HRA", MAC: "aa:bb:cc:01"}
	appliance := Create(desc, nil, cmd, zerolog.Nop())
	ac, ok := appliance.(*AirConditioner)
	if !ok {
		t.Fatalf("appliance is %T, want *AirConditioner", appliance)
	}
	return ac, cmd
}

func newTestFridge(t *testing.T) (*Refrigerator, *recordingCommander) {
	t.Helper()
	cmd := &recordingCommander{}
	desc := Descriptor{ID: "ref-1", Name: "Kitchen Fridge", Type: "REF", Model: "HRF-541DM7RU", MAC: "aa:bb:cc:02"}
	appliance := Create(desc, nil, cmd, zerolog.Nop())
	fridge, ok := appliance.(*Refrigerator)
	if !ok {
		t.Fatalf("appliance is %T, want *Refrigerator", appliance)
	}
	return fridge, cmd
}

func TestPropertyMapIngestion(t *testing.T) {
	ac, _ := newTestAC(t)
	if !ac.IsAirConditioner() || ac.IsRefrigerator() {
		t.Fatal("kind predicates disagree with the AC variant")
	}
	ac.UpdateFromPropertyMap(map[string]string{"21": "1", "0": "23.5"})

	state := ac.State()
	if !state.On {
		t.Fatal("device should be on")
	}
	if state.TargetTemperature != 23.5 {
		t.Fatalf("target = %v, want 23.5", state.TargetTemperature)
	}
}

func TestCurrentTemperatureRangeCheck(t *testing.T) {
	ac, _ := newTestAC(t)
	ac.UpdateFromPropertyMap(map[string]string{"36": "24"})
	ac.UpdateFromPropertyMap(map[string]string{"36": "150"})
	ac.UpdateFromPropertyMap(map[string]string{"36": "-80"})

	if got := ac.State().CurrentTemperature; got != 24 {
		t.Fatalf("current = %v, want prior 24 retained", got)
	}
	if got := ac.ValidationFailures(); got != 2 {
		t.Fatalf("validation failures = %d, want 2", got)
	}
}

func TestIdenticalUpdateEmitsNoEvent(t *testing.T) {
	ac, _ := newTestAC(t)
	var events []Event
	ac.Subscribe(func(ev Event) { events = append(events, ev) })

	props := map[string]string{"21": "1", "2": "1", "4": "3"}
	ac.UpdateFromPropertyMap(props)
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	changes := events[0].Changes
	if changes["status"].After != true || changes["mode"].After != "cool" || changes["fan_mode"].After != "low" {
		t.Fatalf("changes = %+v", changes)
	}

	ac.UpdateFromPropertyMap(props)
	if len(events) != 1 {
		t.Fatalf("identical update emitted an event, events = %d", len(events))
	}
}

func TestTurboQuietExclusion(t *testing.T) {
	ac, _ := newTestAC(t)

	ac.UpdateFromPropertyMap(map[string]string{"17": "1"})
	if flags := ac.State().Flags; !flags["turbo"] {
		t.Fatalf("flags = %v, want turbo", flags)
	}

	// Quiet displaces turbo on the push path.
	ac.UpdateFromPropertyMap(map[string]string{"16": "1"})
	flags := ac.State().Flags
	if !flags["quiet"] || flags["turbo"] {
		t.Fatalf("flags = %v, want quiet only", flags)
	}

	// And turbo displaces quiet on the command path.
	if err := ac.SetTurbo(context.Background(), true); err != nil {
		t.Fatalf("set turbo: %v", err)
	}
	flags = ac.State().Flags
	if !flags["turbo"] || flags["quiet"] {
		t.Fatalf("flags = %v, want turbo only", flags)
	}

	// Comfort clears both.
	if err := ac.SetComfort(context.Background(), true); err != nil {
		t.Fatalf("set comfort: %v", err)
	}
	flags = ac.State().Flags
	if !flags["comfort"] || flags["turbo"] || flags["quiet"] {
		t.Fatalf("flags = %v, want comfort only", flags)
	}
}

func TestPropertyCodeCollisionOnID31(t *testing.T) {
	ac, _ := newTestAC(t)

	ac.UpdateFromPropertyMap(map[string]string{"31": "1"})
	if !ac.State().Flags["cleaning"] {
		t.Fatal("push path should read 31 as cleaning")
	}

	ac.UpdateFromAttributes([]Attribute{{Name: "31", CurrentValue: "1"}})
	if !ac.State().Flags["auto_humidity"] {
		t.Fatal("attribute path should read 31 as auto_humidity")
	}
}

func TestSetTargetTemperatureClampsToBounds(t *testing.T) {
	ac, cmd := newTestAC(t)

	if err := ac.SetTargetTemperature(context.Background(), 10); err != nil {
		t.Fatalf("set target: %v", err)
	}
	call := cmd.last(t)
	if call.props["0"] != "16" {
		t.Fatalf("props = %v, want clamped 16 on id 0", call.props)
	}
	if got := ac.State().TargetTemperature; got != 16 {
		t.Fatalf("target = %v, want 16", got)
	}

	if err := ac.SetTargetTemperature(context.Background(), 35); err != nil {
		t.Fatalf("set target: %v", err)
	}
	if call := cmd.last(t); call.props["0"] != "30" {
		t.Fatalf("props = %v, want clamped 30", call.props)
	}
}

func TestSetModeEncodesWireValue(t *testing.T) {
	ac, cmd := newTestAC(t)

	if err := ac.SetMode(context.Background(), "heat"); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if call := cmd.last(t); call.props["2"] != "4" {
		t.Fatalf("props = %v, want mode code 4 on id 2", call.props)
	}
	if got := ac.State().Mode; got != "heat" {
		t.Fatalf("mode = %q, want heat", got)
	}

	if err := ac.SetMode(context.Background(), "blast"); err == nil {
		t.Fatal("unknown mode should be rejected")
	}

	if err := ac.SetFanMode(context.Background(), "low"); err != nil {
		t.Fatalf("set fan: %v", err)
	}
	if call := cmd.last(t); call.props["4"] != "3" {
		t.Fatalf("props = %v, want fan code 3 on id 4", call.props)
	}
}

func TestSwingTiltMapping(t *testing.T) {
	// Named positions survive a trip through degrees and back.
	for _, position := range []string{"off", "upper", "position_1", "position_2", "position_3", "position_4", "position_5", "bottom"} {
		deg, ok := TiltAngle(position)
		if !ok {
			t.Fatalf("no angle for %q", position)
		}
		if got := SwingPositionForTilt(deg); got != position {
			t.Fatalf("position %q -> %d deg -> %q", position, deg, got)
		}
	}

	ac, cmd := newTestAC(t)
	if err := ac.SetTiltAngle(context.Background(), 44); err != nil {
		t.Fatalf("set tilt: %v", err)
	}
	if call := cmd.last(t); call.props["1"] != "3" {
		t.Fatalf("props = %v, want swing code 3 on id 1", call.props)
	}
	if got := ac.TiltAngle(); got != 45 {
		t.Fatalf("tilt angle = %d, want 45", got)
	}
}

func TestRefrigeratorLevelCodesDecodeToDegrees(t *testing.T) {
	fridge, _ := newTestFridge(t)

	fridge.UpdateFromPropertyMap(map[string]string{"2": "5", "1": "4", "7": "1"})
	state := fridge.State()
	if state.FreezerTemperature != -20 {
		t.Fatalf("freezer = %v, want -20", state.FreezerTemperature)
	}
	if state.CompartmentTemperature != 4 {
		t.Fatalf("compartment = %v, want 4", state.CompartmentTemperature)
	}
	if !fridge.DoorOpen("compartment_door") {
		t.Fatal("compartment door should be open")
	}
}

func TestRefrigeratorSetFreezerTemperature(t *testing.T) {
	fridge, cmd := newTestFridge(t)

	if err := fridge.SetFreezerTemperature(context.Background(), -18); err != nil {
		t.Fatalf("set freezer: %v", err)
	}
	if call := cmd.last(t); call.props["2"] != "7" {
		t.Fatalf("props = %v, want level code 7 on id 2", call.props)
	}
	if got := fridge.State().FreezerTemperature; got != -18 {
		t.Fatalf("freezer = %v, want -18", got)
	}

	// Off-table degrees snap to the nearest level.
	if err := fridge.SetMyZoneTemperature(context.Background(), 2); err != nil {
		t.Fatalf("set my zone: %v", err)
	}
	if call := cmd.last(t); call.props["3"] != "5" {
		t.Fatalf("props = %v, want nearest level 5 on id 3", call.props)
	}
}

func TestRefrigeratorRejectsForeignOperations(t *testing.T) {
	fridge, cmd := newTestFridge(t)
	before := fridge.State()

	var unsupported UnsupportedOperationError
	if err := fridge.SwitchOff(context.Background()); !errors.As(err, &unsupported) {
		t.Fatalf("switch off: %v, want UnsupportedOperationError", err)
	}
	if unsupported.Operation != "switch_off" || unsupported.Kind != KindRefrigerator {
		t.Fatalf("error = %+v", unsupported)
	}
	if err := fridge.SetFanMode(context.Background(), "high"); !errors.As(err, &unsupported) {
		t.Fatalf("set fan mode: %v, want UnsupportedOperationError", err)
	}

	if cmd.count() != 0 {
		t.Fatalf("unsupported operations sent %d commands", cmd.count())
	}
	after := fridge.State()
	if before.On != after.On || len(before.Flags) != len(after.Flags) {
		t.Fatal("unsupported operation mutated state")
	}
}

func TestAirConditionerRejectsFridgeOperations(t *testing.T) {
	ac, _ := newTestAC(t)
	var unsupported UnsupportedOperationError
	if err := ac.SetFreezerTemperature(context.Background(), -18); !errors.As(err, &unsupported) {
		t.Fatalf("set freezer: %v, want UnsupportedOperationError", err)
	}
	if unsupported.Kind != KindAirConditioner {
		t.Fatalf("kind = %v", unsupported.Kind)
	}
}

func TestClassifyKind(t *testing.T) {
	cases := []struct {
		desc Descriptor
		want Kind
	}{
		{Descriptor{Type: "AC"}, KindAirConditioner},
		{Descriptor{Type: "REF"}, KindRefrigerator},
		{Descriptor{Model: "AS20HPL1HRA"}, KindAirConditioner},
		{Descriptor{Model: "1U25S2SM1FA"}, KindAirConditioner},
		{Descriptor{Model: "HRF-541DM7RU"}, KindRefrigerator},
		{Descriptor{Model: "C2FE636CSJRU"}, KindRefrigerator},
		{Descriptor{Model: "XQG100"}, KindUnknown},
	}
	for _, tc := range cases {
		if got := ClassifyKind(tc.desc); got != tc.want {
			t.Errorf("ClassifyKind(%+v) = %v, want %v", tc.desc, got, tc.want)
		}
	}
}

func TestUnknownKindGetsBaseEngine(t *testing.T) {
	cmd := &recordingCommander{}
	appliance := Create(Descriptor{ID: "x", Model: "XQG100"}, nil, cmd, zerolog.Nop())
	if appliance.Kind() != KindUnknown {
		t.Fatalf("kind = %v", appliance.Kind())
	}

	var unsupported UnsupportedOperationError
	if err := appliance.SetMode(context.Background(), "cool"); !errors.As(err, &unsupported) {
		t.Fatalf("set mode on unknown kind: %v", err)
	}
	if err := appliance.SwitchOn(context.Background()); err != nil {
		t.Fatalf("switch on: %v", err)
	}
	if call := cmd.last(t); call.props["21"] != "1" {
		t.Fatalf("props = %v, want status 1 on id 21", call.props)
	}
}

func TestCreateAppliesWireCodedInitialStatus(t *testing.T) {
	cmd := &recordingCommander{}
	desc := Descriptor{
		ID:            "ac-2",
		Type:          "AC",
		Model:         "AS20HPL1HRA",
		InitialStatus: map[string]any{"21": "1", "0": 22.0},
	}
	appliance := Create(desc, nil, cmd, zerolog.Nop())
	state := appliance.State()
	if !state.On || state.TargetTemperature != 22 {
		t.Fatalf("state = %+v", state)
	}
}
