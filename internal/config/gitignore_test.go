package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGitignoreParser_BasicPatterns tests fundamental gitignore pattern matching
func TestGitignoreParser_BasicPatterns(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		path     string
		isDir    bool
		expected bool
	}{
		{"Simple file match", "README.md", "README.md", false, true},
		{"Simple file no match", "README.md", "main.js", false, false},
		{"Simple file nested", "README.md", "docs/README.md", false, true},
		{"Directory pattern matches directory", "node_modules/", "node_modules", true, true},
		{"Directory pattern matches files inside", "node_modules/", "node_modules/react/index.js", false, true},
		{"Directory pattern ignores same-named file", "build/", "build", false, false},
		{"Directory pattern no match outside", "node_modules/", "src/main.js", false, false},
		{"Absolute pattern match", "/build", "build", true, true},
		{"Absolute pattern no match subdirectory", "/build", "public/build", true, false},
		{"Absolute pattern covers children", "/build", "build/out.o", false, true},
		{"Wildcard pattern match", "*.min.js", "bundle.min.js", false, true},
		{"Wildcard pattern nested match", "*.min.js", "static/js/bundle.min.js", false, true},
		{"Wildcard pattern no match", "*.min.js", "bundle.js", false, false},
		{"Double wildcard pattern", "**/*.log", "logs/app.log", false, true},
		{"Double wildcard deep match", "**/*.log", "logs/2023/01/app.log", false, true},
		{"Case sensitivity", "README.md", "readme.md", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gp := NewGitignoreParser()
			gp.AddPattern(tt.pattern)
			assert.Equal(t, tt.expected, gp.ShouldIgnore(tt.path, tt.isDir))
		})
	}
}

func TestGitignoreParser_LoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := strings.Join([]string{
		"# build output",
		"dist/",
		"",
		"*.log",
		"!important.log",
		".env*",
		"!.env.example",
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(content), 0644))

	gp := NewGitignoreParser()
	require.NoError(t, gp.LoadGitignore(dir))
	assert.Equal(t, 5, gp.Len())

	assert.True(t, gp.ShouldIgnore("dist/static/css/main.css", false))
	assert.True(t, gp.ShouldIgnore("debug.log", false))
	assert.False(t, gp.ShouldIgnore("important.log", false), "negation should re-include")
	assert.True(t, gp.ShouldIgnore(".env.local", false))
	assert.False(t, gp.ShouldIgnore(".env.example", false))
	assert.False(t, gp.ShouldIgnore("src/main.cpp", false))
}

func TestGitignoreParser_MissingFile(t *testing.T) {
	gp := NewGitignoreParser()
	require.NoError(t, gp.LoadGitignore(t.TempDir()))
	assert.Equal(t, 0, gp.Len())
	assert.False(t, gp.ShouldIgnore("anything.go", false))
}

func TestGitignoreParser_GetExclusionPatterns(t *testing.T) {
	gp := NewGitignoreParser()
	gp.AddPattern("node_modules/")
	gp.AddPattern("/coverage")
	gp.AddPattern("*.tmp")
	gp.AddPattern("!keep.tmp")

	got := gp.GetExclusionPatterns()
	assert.Equal(t, []string{
		"**/node_modules/**",
		"coverage",
		"coverage/**",
		"**/*.tmp",
		"**/*.tmp/**",
	}, got)
}
