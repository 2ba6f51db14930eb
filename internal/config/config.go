package config

import (
	"os"
	"path/filepath"

	"github.com/standardbeagle/xref/internal/types"
)

// Default tuning values shared by the KDL and TOML loaders
const (
	DefaultHaltThreshold        = "25%"
	DefaultMaxMalformedPerShard = 1000
	DefaultAnalyzerTimeoutSec   = 600
	DefaultMaxGroups            = 1000
	DefaultMaxSnippetsPerFile   = 100
	DefaultCacheSize            = 256
	DefaultKeepVersions         = 3
	DefaultMaxSuggestions       = 5
	DefaultQueriesPerSecond     = 50.0
	DefaultBurst                = 20
	DefaultWatchDebounceMs      = 300
)

type Config struct {
	Version   int       `toml:"version"`
	Project   Project   `toml:"project"`
	Index     Index     `toml:"index"`
	Build     Build     `toml:"build"`
	Store     Store     `toml:"store"`
	Search    Search    `toml:"search"`
	Server    Server    `toml:"server"`
	PathKinds PathKinds `toml:"path_kinds"`
	Include   []string  `toml:"include"`
	Exclude   []string  `toml:"exclude"`
}

type Project struct {
	Root string `toml:"root"`
	Name string `toml:"name"`
}

type Index struct {
	MaxFileSize      int64 `toml:"max_file_size"`
	FollowSymlinks   bool  `toml:"follow_symlinks"`
	RespectGitignore bool  `toml:"respect_gitignore"` // Process .gitignore files for additional exclusions
	WatchMode        bool  `toml:"watch"`             // Rebuild changed files automatically while serving
	WatchDebounceMs  int   `toml:"watch_debounce_ms"`
}

// Build controls shard dispatch and failure tolerance
type Build struct {
	Workers              int      `toml:"workers"`        // 0 = auto-detect
	HaltThreshold        string   `toml:"halt_threshold"` // "2" or "25%"
	MaxMalformedPerShard int      `toml:"max_malformed_per_shard"`
	AnalyzerCommand      string   `toml:"analyzer_command"` // empty = built-in tree-sitter analyzer
	AnalyzerArgs         []string `toml:"analyzer_args"`
	AnalyzerTimeoutSec   int      `toml:"analyzer_timeout_sec"`
	OutputRoot           string   `toml:"output_root"`
	LedgerPath           string   `toml:"ledger_path"` // empty disables the build ledger
	Persist              bool     `toml:"persist"`
}

// Store selects where sealed versions are persisted
type Store struct {
	Backend     string `toml:"backend"` // local, minio, s3
	Path        string `toml:"path"`
	Bucket      string `toml:"bucket"`
	Prefix      string `toml:"prefix"`
	Endpoint    string `toml:"endpoint"`
	Region      string `toml:"region"`
	UseSSL      bool   `toml:"use_ssl"`
	Compression string `toml:"compression"` // zstd, lz4, none
	Keep        int    `toml:"keep"`        // persisted versions retained
}

type Search struct {
	MaxGroups          int  `toml:"max_groups"`
	MaxSnippetsPerFile int  `toml:"max_snippets_per_file"`
	CacheSize          int  `toml:"cache_size"`
	Suggestions        bool `toml:"suggestions"`
	MaxSuggestions     int  `toml:"max_suggestions"`
}

type Server struct {
	Socket           string  `toml:"socket"`  // unix socket path, takes precedence over Address
	Address          string  `toml:"address"` // host:port
	QueriesPerSecond float64 `toml:"queries_per_second"`
	Burst            int     `toml:"burst"`
}

// PathKinds holds the doublestar patterns used to section results
type PathKinds struct {
	Test       []string `toml:"test"`
	Generated  []string `toml:"generated"`
	ThirdParty []string `toml:"thirdparty"`
}

// Load reads the project configuration from rootDir.
// .xref.kdl wins over .xref.toml; without either the defaults are used.
func Load(rootDir string) (*Config, error) {
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	}

	if cfg, err := LoadKDL(searchDir); err != nil {
		return nil, err
	} else if cfg != nil {
		return cfg, nil
	}

	if cfg, err := LoadTOML(searchDir); err != nil {
		return nil, err
	} else if cfg != nil {
		return cfg, nil
	}

	root, err := filepath.Abs(searchDir)
	if err != nil {
		root = searchDir
	}
	return Default(root), nil
}

// Default returns the configuration used when no file is present
func Default(root string) *Config {
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		root = cwd
	}

	return &Config{
		Version: 1,
		Project: Project{
			Root: root,
			Name: filepath.Base(root),
		},
		Index: Index{
			MaxFileSize:      types.DefaultMaxFileSize,
			RespectGitignore: true,
			WatchMode:        false,
			WatchDebounceMs:  DefaultWatchDebounceMs,
		},
		Build: Build{
			Workers:              0,
			HaltThreshold:        DefaultHaltThreshold,
			MaxMalformedPerShard: DefaultMaxMalformedPerShard,
			AnalyzerTimeoutSec:   DefaultAnalyzerTimeoutSec,
			Persist:              true,
		},
		Store: Store{
			Backend:     "local",
			Path:        filepath.Join(root, ".xref"),
			Compression: "zstd",
			Keep:        DefaultKeepVersions,
		},
		Search: Search{
			MaxGroups:          DefaultMaxGroups,
			MaxSnippetsPerFile: DefaultMaxSnippetsPerFile,
			CacheSize:          DefaultCacheSize,
			Suggestions:        true,
			MaxSuggestions:     DefaultMaxSuggestions,
		},
		Server: Server{
			QueriesPerSecond: DefaultQueriesPerSecond,
			Burst:            DefaultBurst,
		},
		PathKinds: DefaultPathKinds(),
		Include:   []string{},
		Exclude:   DefaultExclusions(),
	}
}

// DefaultPathKinds mirrors the usual test/generated/vendored layouts
func DefaultPathKinds() PathKinds {
	return PathKinds{
		Test: []string{
			"**/test/**",
			"**/tests/**",
			"**/testing/**",
			"**/__tests__/**",
			"**/*_test.go",
			"**/*_test.py",
			"**/test_*.py",
			"**/*.test.{js,ts,tsx,jsx}",
			"**/*.spec.{js,ts,tsx,jsx}",
			"**/*{Test,Tests}.{java,cs,kt,php}",
			"**/*_unittest.{cc,cpp}",
			"**/gtest/**",
			"**/mochitest/**",
		},
		Generated: []string{
			"**/*.pb.go",
			"**/*.pb.{h,cc}",
			"**/*_generated.*",
			"**/*.gen.*",
			"**/generated/**",
			"**/__GENERATED__/**",
		},
		ThirdParty: []string{
			"**/third_party/**",
			"**/thirdparty/**",
			"**/third-party/**",
			"**/vendor/**",
			"**/node_modules/**",
			"**/external/**",
		},
	}
}

// DefaultExclusions lists paths that never carry indexable source
func DefaultExclusions() []string {
	return []string{
		// Git metadata and hidden directories
		"**/.git/**",
		"**/.*/**",

		// Build output
		"**/dist/**",
		"**/build/**",
		"**/out/**",
		"**/target/**",
		"**/obj/**",
		"**/*.min.js",
		"**/*.min.css",
		"**/*.bundle.js",
		"**/*.map",

		// Python caches
		"**/__pycache__/**",
		"**/*.pyc",

		// Editor temp files
		"**/*.swp",
		"**/*.swo",
		"**/*~",

		// Binary assets
		"**/*.{png,jpg,jpeg,gif,ico,webp,avif,bmp}",
		"**/*.{woff,woff2,ttf,eot,otf}",
		"**/*.{mp3,mp4,wav,ogg,webm,mov}",
		"**/*.{zip,gz,tgz,xz,bz2,7z,jar}",
		"**/*.{so,a,o,dll,exe,dylib,wasm,class}",
		"**/*.log",
	}
}

// DeduplicatePatterns removes duplicate patterns while preserving order
func DeduplicatePatterns(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
