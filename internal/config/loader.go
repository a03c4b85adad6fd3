package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/pixelpilot/internal/core"
)

// Load loads the session configuration.
// Search order: customPath -> ~/.pilot/pilot.yaml -> ./configs/pilot.yaml -> embedded default.
// Files are layered over the defaults, so a file only needs the keys it changes.
// Errors wrap core.ErrConfiguration.
func Load(customPath string) (Config, error) {
	cfg := base()

	// Try custom path first
	if customPath != "" {
		data, err := os.ReadFile(customPath)
		if err != nil {
			return cfg, fmt.Errorf("%w: failed to read config %s: %w", core.ErrConfiguration, customPath, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: failed to parse config %s: %w", core.ErrConfiguration, customPath, err)
		}
		return cfg, nil
	}

	// Try user config directory
	if userCfgPath := userConfigPath("pilot.yaml"); userCfgPath != "" {
		if data, err := os.ReadFile(userCfgPath); err == nil {
			layered := base()
			if err := yaml.Unmarshal(data, &layered); err == nil {
				return layered, nil
			}
		}
	}

	// Try local configs directory
	if data, err := os.ReadFile("configs/pilot.yaml"); err == nil {
		layered := base()
		if err := yaml.Unmarshal(data, &layered); err == nil {
			return layered, nil
		}
	}

	return cfg, nil
}

// base returns the embedded default, falling back to the hardcoded one.
func base() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultPilotYAML, &cfg); err != nil {
		return Default()
	}
	return cfg
}

// Marshal renders the configuration as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// userConfigPath returns the path to user config file, or empty if home is unavailable.
func userConfigPath(filename string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pilot", filename)
}
