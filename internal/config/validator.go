package config

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/bmatcuk/doublestar/v4"

	xreferrors "github.com/standardbeagle/xref/internal/errors"
	"github.com/standardbeagle/xref/internal/types"
)

// Validator validates configuration and sets smart defaults
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies smart defaults
// Returns an error if validation fails
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateProjectConfig(&cfg.Project); err != nil {
		return xreferrors.NewConfigError("project", cfg.Project.Root, err)
	}

	if err := v.validateIndexConfig(&cfg.Index); err != nil {
		return xreferrors.NewConfigError("index", "", err)
	}

	if err := v.validateBuildConfig(&cfg.Build); err != nil {
		return xreferrors.NewConfigError("build", cfg.Build.HaltThreshold, err)
	}

	if err := v.validateStoreConfig(&cfg.Store); err != nil {
		return xreferrors.NewConfigError("store", cfg.Store.Backend, err)
	}

	if err := v.validateSearchConfig(&cfg.Search); err != nil {
		return xreferrors.NewConfigError("search", "", err)
	}

	if err := v.validateServerConfig(&cfg.Server); err != nil {
		return xreferrors.NewConfigError("server", cfg.Server.Address, err)
	}

	if err := v.validatePatterns(cfg); err != nil {
		return xreferrors.NewConfigError("patterns", "", err)
	}

	v.setSmartDefaults(cfg)
	return nil
}

func (v *Validator) validateProjectConfig(project *Project) error {
	if project.Root == "" {
		return errors.New("project root cannot be empty")
	}
	return nil
}

func (v *Validator) validateIndexConfig(index *Index) error {
	if index.MaxFileSize <= 0 {
		return fmt.Errorf("MaxFileSize must be positive, got %d", index.MaxFileSize)
	}

	if index.MaxFileSize > 100*1024*1024 {
		return fmt.Errorf("MaxFileSize should not exceed 100MB, got %d", index.MaxFileSize)
	}

	if index.WatchDebounceMs < 0 {
		return fmt.Errorf("WatchDebounceMs cannot be negative, got %d", index.WatchDebounceMs)
	}

	return nil
}

func (v *Validator) validateBuildConfig(build *Build) error {
	// Workers: 0 means auto-detect (will be set by smart defaults)
	if build.Workers < 0 {
		return fmt.Errorf("Workers cannot be negative, got %d", build.Workers)
	}

	if build.HaltThreshold != "" {
		if _, err := types.ParseHaltThreshold(build.HaltThreshold); err != nil {
			return err
		}
	}

	if build.MaxMalformedPerShard < 0 {
		return fmt.Errorf("MaxMalformedPerShard cannot be negative, got %d", build.MaxMalformedPerShard)
	}

	if build.AnalyzerTimeoutSec < 0 {
		return fmt.Errorf("AnalyzerTimeoutSec cannot be negative, got %d", build.AnalyzerTimeoutSec)
	}

	return nil
}

func (v *Validator) validateStoreConfig(store *Store) error {
	switch store.Backend {
	case "", "local":
	case "minio", "s3":
		if store.Bucket == "" {
			return fmt.Errorf("%s backend requires a bucket", store.Backend)
		}
		if store.Backend == "minio" && store.Endpoint == "" {
			return errors.New("minio backend requires an endpoint")
		}
	default:
		return fmt.Errorf("unknown store backend %q (want local, minio or s3)", store.Backend)
	}

	switch store.Compression {
	case "", "zstd", "lz4", "none":
	default:
		return fmt.Errorf("unknown compression %q (want zstd, lz4 or none)", store.Compression)
	}

	return nil
}

func (v *Validator) validateSearchConfig(search *Search) error {
	if search.MaxGroups < 0 {
		return fmt.Errorf("MaxGroups cannot be negative, got %d", search.MaxGroups)
	}

	if search.MaxSnippetsPerFile < 0 {
		return fmt.Errorf("MaxSnippetsPerFile cannot be negative, got %d", search.MaxSnippetsPerFile)
	}

	if search.CacheSize < 0 {
		return fmt.Errorf("CacheSize cannot be negative, got %d", search.CacheSize)
	}

	return nil
}

func (v *Validator) validateServerConfig(server *Server) error {
	if server.QueriesPerSecond < 0 {
		return fmt.Errorf("QueriesPerSecond cannot be negative, got %v", server.QueriesPerSecond)
	}
	if server.Burst < 0 {
		return fmt.Errorf("Burst cannot be negative, got %d", server.Burst)
	}
	return nil
}

// validatePatterns rejects glob patterns doublestar cannot compile
func (v *Validator) validatePatterns(cfg *Config) error {
	groups := map[string][]string{
		"include":               cfg.Include,
		"exclude":               cfg.Exclude,
		"path_kinds.test":       cfg.PathKinds.Test,
		"path_kinds.generated":  cfg.PathKinds.Generated,
		"path_kinds.thirdparty": cfg.PathKinds.ThirdParty,
	}
	for name, patterns := range groups {
		for _, p := range patterns {
			if !doublestar.ValidatePattern(p) {
				return fmt.Errorf("invalid %s pattern %q", name, p)
			}
		}
	}
	return nil
}

// setSmartDefaults applies smart defaults based on system capabilities
func (v *Validator) setSmartDefaults(cfg *Config) {
	// Use cores-1 to leave headroom for the system, minimum of 1
	if cfg.Build.Workers == 0 {
		cfg.Build.Workers = max(1, runtime.NumCPU()-1)
	}

	if cfg.Build.HaltThreshold == "" {
		cfg.Build.HaltThreshold = DefaultHaltThreshold
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "local"
	}

	if cfg.Store.Compression == "" {
		cfg.Store.Compression = "zstd"
	}

	if cfg.Store.Keep <= 0 {
		cfg.Store.Keep = DefaultKeepVersions
	}

	if cfg.Search.MaxGroups == 0 {
		cfg.Search.MaxGroups = DefaultMaxGroups
	}

	if cfg.Search.MaxSnippetsPerFile == 0 {
		cfg.Search.MaxSnippetsPerFile = DefaultMaxSnippetsPerFile
	}

	if cfg.Search.MaxSuggestions == 0 {
		cfg.Search.MaxSuggestions = DefaultMaxSuggestions
	}

	if cfg.Server.Burst == 0 && cfg.Server.QueriesPerSecond > 0 {
		cfg.Server.Burst = max(1, int(cfg.Server.QueriesPerSecond))
	}

	cfg.Exclude = DeduplicatePatterns(cfg.Exclude)
}

// HaltThreshold returns the parsed build halt threshold
func (c *Config) HaltThreshold() types.HaltThreshold {
	h, err := types.ParseHaltThreshold(c.Build.HaltThreshold)
	if err != nil {
		h, _ = types.ParseHaltThreshold(DefaultHaltThreshold)
	}
	return h
}

// ApplyOverrides sets values given on the command line; zero values are ignored
func (c *Config) ApplyOverrides(workers int, haltThreshold string, analyzer []string) {
	if workers > 0 {
		c.Build.Workers = workers
	}
	if haltThreshold != "" {
		c.Build.HaltThreshold = haltThreshold
	}
	if len(analyzer) > 0 {
		c.Build.AnalyzerCommand = analyzer[0]
		c.Build.AnalyzerArgs = analyzer[1:]
	}
}

// ValidateConfig is a convenience function for quick validation
func ValidateConfig(cfg *Config) error {
	validator := NewValidator()
	return validator.ValidateAndSetDefaults(cfg)
}
