package importer

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the settings document sent to the content API. It is opaque
// structured data.
type Settings map[string]any

// Source produces the bulk import body for a settings document.
//
// Postcondition: returns UTF-8 text ready for ImportRecords, or an error
// wrapping ErrImport.
type Source interface {
	Fetch(ctx context.Context, settings Settings) (string, error)
}

// LoadSettings reads a settings document from a YAML or JSON file.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings %s: %w", path, err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	if s == nil {
		s = Settings{}
	}
	return s, nil
}
