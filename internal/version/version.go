// Package version identifies the running xref binary
package version

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Set with -ldflags "-X github.com/standardbeagle/xref/internal/version.Version=..."
var (
	Version   = "0.1.0"
	GitCommit = ""
)

type buildInfo struct {
	commit   string
	modified bool
	goVer    string
	id       string
}

var (
	info     buildInfo
	infoOnce sync.Once
)

func load() buildInfo {
	infoOnce.Do(func() {
		info.commit = GitCommit
		bi, ok := debug.ReadBuildInfo()
		if !ok {
			info.id = Version + "-" + GitCommit
			return
		}
		info.goVer = bi.GoVersion

		h := xxhash.New()
		_, _ = h.WriteString(bi.GoVersion)
		_, _ = h.WriteString(bi.Main.Path)
		_, _ = h.WriteString(bi.Main.Version)
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.commit == "" {
					info.commit = s.Value
				}
			case "vcs.modified":
				info.modified = s.Value == "true"
			default:
				continue
			}
			_, _ = h.WriteString(s.Key + "=" + s.Value)
		}
		info.id = strconv.FormatUint(h.Sum64(), 16)
	})
	return info
}

// BuildID fingerprints the binary so a client can tell that a running
// server was started from a different build
func BuildID() string { return load().id }

// Describe returns the version with commit and toolchain, e.g.
// "0.1.0 (commit 1a2b3c4d5e6f, go1.24.11)"
func Describe() string {
	bi := load()
	commit := bi.commit
	if commit == "" {
		commit = "unknown"
	} else if len(commit) > 12 {
		commit = commit[:12]
	}
	if bi.modified {
		commit += "+dirty"
	}
	if bi.goVer == "" {
		return fmt.Sprintf("%s (commit %s)", Version, commit)
	}
	return fmt.Sprintf("%s (commit %s, %s)", Version, commit, bi.goVer)
}
