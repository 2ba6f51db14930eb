package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// KDLFileName is the primary project configuration file
const KDLFileName = ".xref.kdl"

// LoadKDL attempts to load configuration from .xref.kdl.
// A missing file yields (nil, nil).
func LoadKDL(projectRoot string) (*Config, error) {
	kdlPath := filepath.Join(projectRoot, KDLFileName)

	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", KDLFileName, err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, err
	}

	resolveRoot(cfg, projectRoot)
	return cfg, nil
}

// resolveRoot makes the project root absolute, relative to the directory holding the config file
func resolveRoot(cfg *Config, projectRoot string) {
	base, err := filepath.Abs(projectRoot)
	if err != nil {
		base = projectRoot
	}
	switch {
	case cfg.Project.Root == "":
		cfg.Project.Root = base
	case !filepath.IsAbs(cfg.Project.Root):
		cfg.Project.Root = filepath.Clean(filepath.Join(base, cfg.Project.Root))
	}
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(cfg.Project.Root)
	}
	if cfg.Store.Backend == "local" && !filepath.IsAbs(cfg.Store.Path) {
		cfg.Store.Path = filepath.Join(cfg.Project.Root, cfg.Store.Path)
	}
}

func parseKDL(content string) (*Config, error) {
	cfg := Default("")
	cfg.Project.Root = ""
	cfg.Project.Name = ""
	cfg.Store.Path = ".xref"

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children { // project { root "." name "foo" }
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
			}
		case "index":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_file_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.MaxFileSize = int64(v)
					}
					if s, ok := firstStringArg(cn); ok {
						if sz, err := parseSize(s); err == nil {
							cfg.Index.MaxFileSize = sz
						} else {
							log.Printf("WARNING: invalid max_file_size %q in %s: %v", s, KDLFileName, err)
						}
					}
				case "follow_symlinks":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.FollowSymlinks = b
					}
				case "respect_gitignore":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.RespectGitignore = b
					}
				case "watch":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.WatchMode = b
					}
				case "watch_debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.WatchDebounceMs = v
					}
				}
			}
		case "build":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "workers":
					if v, ok := firstIntArg(cn); ok {
						cfg.Build.Workers = v
					}
				case "halt_threshold":
					// accepts both `halt_threshold 2` and `halt_threshold "25%"`
					if v, ok := firstIntArg(cn); ok {
						cfg.Build.HaltThreshold = strconv.Itoa(v)
					}
					if s, ok := firstStringArg(cn); ok {
						cfg.Build.HaltThreshold = s
					}
				case "max_malformed_per_shard":
					if v, ok := firstIntArg(cn); ok {
						cfg.Build.MaxMalformedPerShard = v
					}
				case "analyzer":
					args := collectStringArgs(cn)
					if len(args) > 0 {
						cfg.Build.AnalyzerCommand = args[0]
						cfg.Build.AnalyzerArgs = args[1:]
					}
				case "analyzer_timeout_sec":
					if v, ok := firstIntArg(cn); ok {
						cfg.Build.AnalyzerTimeoutSec = v
					}
				case "output_root":
					if s, ok := firstStringArg(cn); ok {
						cfg.Build.OutputRoot = s
					}
				case "ledger":
					if s, ok := firstStringArg(cn); ok {
						cfg.Build.LedgerPath = s
					}
				case "persist":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Build.Persist = b
					}
				}
			}
		case "store":
			for _, cn := range n.Children {
				name := nodeName(cn)
				if name == "use_ssl" {
					if b, ok := firstBoolArg(cn); ok {
						cfg.Store.UseSSL = b
					}
					continue
				}
				if name == "keep" {
					if v, ok := firstIntArg(cn); ok {
						cfg.Store.Keep = v
					}
					continue
				}
				s, ok := firstStringArg(cn)
				if !ok {
					continue
				}
				switch name {
				case "backend":
					cfg.Store.Backend = s
				case "path":
					cfg.Store.Path = s
				case "bucket":
					cfg.Store.Bucket = s
				case "prefix":
					cfg.Store.Prefix = s
				case "endpoint":
					cfg.Store.Endpoint = s
				case "region":
					cfg.Store.Region = s
				case "compression":
					cfg.Store.Compression = s
				}
			}
		case "search":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_groups":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.MaxGroups = v
					}
				case "max_snippets_per_file":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.MaxSnippetsPerFile = v
					}
				case "cache_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.CacheSize = v
					}
				case "suggestions":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Search.Suggestions = b
					}
				case "max_suggestions":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.MaxSuggestions = v
					}
				}
			}
		case "server":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "socket":
					if s, ok := firstStringArg(cn); ok {
						cfg.Server.Socket = s
					}
				case "address":
					if s, ok := firstStringArg(cn); ok {
						cfg.Server.Address = s
					}
				case "queries_per_second":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Server.QueriesPerSecond = v
					}
				case "burst":
					if v, ok := firstIntArg(cn); ok {
						cfg.Server.Burst = v
					}
				}
			}
		case "path_kinds":
			// an explicit block replaces the defaults for each kind it names
			for _, cn := range n.Children {
				patterns := collectStringArgs(cn)
				switch nodeName(cn) {
				case "test":
					cfg.PathKinds.Test = patterns
				case "generated":
					cfg.PathKinds.Generated = patterns
				case "thirdparty", "third_party":
					cfg.PathKinds.ThirdParty = patterns
				}
			}
		case "include":
			cfg.Include = append(cfg.Include, collectStringArgs(n)...)
		case "exclude":
			// Replace default exclusions if exclude block is present
			cfg.Exclude = collectStringArgs(n)
		}
	}

	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		log.Printf("WARNING: invalid float value for '%s' in KDL config, expected number but got %T", nodeName(n), n.Arguments[0].Value)
		return 0, false
	}
}

// collectStringArgs reads either inline arguments or a block of string children
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	// In KDL block format, strings are child nodes where the node name is the string value
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}

	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}

func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		numStr = strings.TrimSuffix(s, "B")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, err
	}

	return num * multiplier, nil
}
