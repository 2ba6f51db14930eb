package config

import (
	"bufio"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GitignoreParser handles parsing and matching .gitignore files
type GitignoreParser struct {
	patterns []GitignorePattern
}

// GitignorePattern is one non-comment line of a .gitignore file
type GitignorePattern struct {
	Pattern   string
	Negate    bool
	Directory bool
	Absolute  bool

	// glob is the doublestar form of Pattern, anchored where gitignore anchors it
	glob string
}

// NewGitignoreParser creates a new gitignore parser
func NewGitignoreParser() *GitignoreParser {
	return &GitignoreParser{
		patterns: make([]GitignorePattern, 0),
	}
}

// LoadGitignore loads patterns from rootPath/.gitignore; a missing file is not an error
func (gp *GitignoreParser) LoadGitignore(rootPath string) error {
	file, err := os.Open(filepath.Join(rootPath, ".gitignore"))
	if err != nil {
		return nil
	}
	defer file.Close()

	return gp.scanAndParsePatterns(file)
}

func (gp *GitignoreParser) scanAndParsePatterns(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		gp.AddPattern(line)
	}
	return scanner.Err()
}

// AddPattern adds a single pattern line
func (gp *GitignoreParser) AddPattern(line string) {
	gp.patterns = append(gp.patterns, parseGitignorePattern(line))
}

// Len returns the number of loaded patterns
func (gp *GitignoreParser) Len() int {
	return len(gp.patterns)
}

func parseGitignorePattern(line string) GitignorePattern {
	p := GitignorePattern{}

	if strings.HasPrefix(line, "!") {
		p.Negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.Directory = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.Absolute = true
		line = line[1:]
	}
	p.Pattern = line

	// A slash in the middle anchors the pattern to the root just like a leading one
	if p.Absolute || strings.Contains(line, "/") {
		p.glob = line
	} else {
		p.glob = "**/" + line
	}
	return p
}

// ShouldIgnore checks if a path should be ignored based on gitignore patterns.
// The last matching pattern wins, so negations re-include earlier matches.
func (gp *GitignoreParser) ShouldIgnore(p string, isDir bool) bool {
	p = filepath.ToSlash(p)

	ignored := false
	for _, pattern := range gp.patterns {
		if pattern.matches(p, isDir) {
			ignored = !pattern.Negate
		}
	}
	return ignored
}

func (gp GitignorePattern) matches(p string, isDir bool) bool {
	if gp.Directory && !isDir {
		// a file matches a directory pattern only through one of its parent directories
		for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
			if ok, _ := doublestar.Match(gp.glob, dir); ok {
				return true
			}
		}
		return false
	}

	if ok, _ := doublestar.Match(gp.glob, p); ok {
		return true
	}
	if gp.Directory {
		return false
	}
	// plain patterns also cover everything below a matching directory
	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if ok, _ := doublestar.Match(gp.glob, dir); ok {
			return true
		}
	}
	return false
}

// GetExclusionPatterns returns the non-negated patterns as doublestar exclusion globs
func (gp *GitignoreParser) GetExclusionPatterns() []string {
	var exclusions []string
	for _, pattern := range gp.patterns {
		if pattern.Negate {
			continue
		}
		if pattern.Directory {
			exclusions = append(exclusions, pattern.glob+"/**")
			continue
		}
		exclusions = append(exclusions, pattern.glob, pattern.glob+"/**")
	}
	return exclusions
}
