// Package configpath resolves which relay config file a command uses.
package configpath

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// EnvConfigPath names an explicit config file.
const EnvConfigPath = "RELAY_CONFIG"

// ResolveConfigPath returns the config file to load: the flag value, then
// $RELAY_CONFIG, then ~/.relay/config.toml when it exists. An empty result
// means run from defaults and the environment only.
func ResolveConfigPath(flagPath string) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", nil
	}
	p := filepath.Join(home, ".relay", "config.toml")
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("could not stat %s: %w", p, err)
	}
	return p, nil
}
