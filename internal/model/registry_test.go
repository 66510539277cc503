package model

import "testing"

func TestResolveKnownModels(t *testing.T) {
	registry, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	def := registry.Resolve("AS25S2SF1FA-WH")
	if def == nil {
		t.Fatal("expected AS model to resolve")
	}
	if id, ok := def.WireID("target_temperature"); !ok || id != "0" {
		t.Fatalf("target_temperature wire id = %q, want 0", id)
	}
	if def.GroupCommand != "grSetDAC" {
		t.Fatalf("group command = %q", def.GroupCommand)
	}

	if registry.Resolve("TOASTER-9000") != nil {
		t.Fatal("unknown model should not resolve")
	}
}

func TestValueRemapBothDirections(t *testing.T) {
	registry, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := registry.Resolve("HSU-09HNA03")
	if def == nil {
		t.Fatal("expected HSU model to resolve")
	}

	if wire := def.WireValue("mode", "cool"); wire != "1" {
		t.Fatalf("mode cool -> %q, want 1", wire)
	}
	if logical := def.LogicalValue("mode", "4"); logical != "heat" {
		t.Fatalf("mode 4 -> %q, want heat", logical)
	}
	// Attributes without a table pass values through.
	if wire := def.WireValue("status", "1"); wire != "1" {
		t.Fatalf("status 1 -> %q, want 1", wire)
	}
}

func TestRefrigeratorLevelCodes(t *testing.T) {
	registry, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := registry.Resolve("HRF-541DM7RU")
	if def == nil {
		t.Fatal("expected HRF model to resolve")
	}

	if wire := def.WireValue("freezer_temperature", "-18"); wire != "7" {
		t.Fatalf("freezer -18 -> level %q, want 7", wire)
	}
	if logical := def.LogicalValue("freezer_temperature", "7"); logical != "-18" {
		t.Fatalf("freezer level 7 -> %q, want -18", logical)
	}
}

func TestParseRejectsBadTable(t *testing.T) {
	if _, err := Parse([]byte("models: []")); err == nil {
		t.Fatal("expected error for empty table")
	}
	if _, err := Parse([]byte(`models: [{pattern: "["}]`)); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}
