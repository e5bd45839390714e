package presets

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig represents the presets file layout for TOML unmarshaling.
type fileConfig struct {
	Version int               `toml:"version"`
	Presets map[string]Preset `toml:"presets"`
}

// Load reads a presets file and merges its entries over the built-in
// table. A missing file yields the built-in table; entries violating the
// band-splitting invariants fail the load.
func Load(path string) (*Table, error) {
	table := Builtin()
	if path == "" {
		return table, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// File doesn't exist, use built-in presets
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file: %w", err)
	}

	var cfg fileConfig
	if unmarshalErr := toml.Unmarshal(data, &cfg); unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse presets file: %w", unmarshalErr)
	}

	for name, p := range cfg.Presets {
		p.Name = name
		if validateErr := p.Validate(); validateErr != nil {
			return nil, fmt.Errorf("presets file %s: %w", path, validateErr)
		}
		table.presets[name] = p
	}

	return table, nil
}
