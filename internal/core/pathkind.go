package core

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/xref/internal/types"
)

// PathClassifier assigns a PathKind to each file from doublestar patterns.
// Third-party wins over generated, which wins over test: vendored tests are
// still third-party code.
type PathClassifier struct {
	test       []string
	generated  []string
	thirdParty []string
}

// NewPathClassifier creates a classifier; invalid patterns never match
func NewPathClassifier(test, generated, thirdParty []string) *PathClassifier {
	return &PathClassifier{test: test, generated: generated, thirdParty: thirdParty}
}

// Classify returns the kind of path (slash-separated, relative to the source root)
func (pc *PathClassifier) Classify(path string) types.PathKind {
	if pc == nil {
		return types.PathKindNormal
	}
	switch {
	case matchAny(pc.thirdParty, path):
		return types.PathKindThirdParty
	case matchAny(pc.generated, path):
		return types.PathKindGenerated
	case matchAny(pc.test, path):
		return types.PathKindTest
	}
	return types.PathKindNormal
}

func matchAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}
