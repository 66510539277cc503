package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestBridgeIDIsStable(t *testing.T) {
	dir := t.TempDir()

	first, err := BridgeID(dir)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Fatalf("generated id %q is not a uuid", first)
	}

	second, err := BridgeID(dir)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if second != first {
		t.Fatalf("id changed between calls: %q != %q", second, first)
	}
}

func TestBridgeIDRegeneratesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bridge-id"), []byte("not-a-uuid\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	id, err := BridgeID(dir)
	if err != nil {
		t.Fatalf("bridge id: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("regenerated id %q is not a uuid", id)
	}
}
