package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// TOMLFileName is the fallback configuration file, read only when no .xref.kdl exists
const TOMLFileName = ".xref.toml"

// LoadTOML loads configuration from .xref.toml. A missing file yields (nil, nil).
func LoadTOML(projectRoot string) (*Config, error) {
	tomlPath := filepath.Join(projectRoot, TOMLFileName)

	content, err := os.ReadFile(tomlPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", TOMLFileName, err)
	}

	cfg, err := parseTOML(content)
	if err != nil {
		return nil, err
	}

	resolveRoot(cfg, projectRoot)
	return cfg, nil
}

// parseTOML decodes over the defaults, so absent keys keep their default values
func parseTOML(content []byte) (*Config, error) {
	cfg := Default("")
	cfg.Project.Root = ""
	cfg.Project.Name = ""
	cfg.Store.Path = ".xref"

	dec := toml.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return cfg, nil
}
