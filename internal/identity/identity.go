// Package identity persists the bridge's generated device identifier.
// This is the only state that survives a restart; everything else is
// rebuilt from the cloud.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const fileName = "bridge-id"

// BridgeID reads the persisted identifier from the config directory, or
// generates one and writes it on first run.
func BridgeID(configDir string) (string, error) {
	path := filepath.Join(configDir, fileName)

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			return id, nil
		}
		// Corrupt file: regenerate below rather than failing startup.
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read bridge id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write bridge id: %w", err)
	}
	return id, nil
}
