package types

import "strings"

// Occurrence is a single location where a symbol is defined, declared, used or assigned.
type Occurrence struct {
	Symbol    SymbolID
	Path      string
	Line      int
	Column    int
	EndColumn int
	Kind      OccurrenceKind
}

// CompareOccurrences orders occurrences by (path, line, column, kind).
// The end column only breaks ties so that the order is total over full tuples.
// The symbol handle never takes part: result order must not depend on interning order.
func CompareOccurrences(a, b Occurrence) int {
	if c := strings.Compare(a.Path, b.Path); c != 0 {
		return c
	}
	if a.Line != b.Line {
		return cmpInt(a.Line, b.Line)
	}
	if a.Column != b.Column {
		return cmpInt(a.Column, b.Column)
	}
	if a.Kind != b.Kind {
		return cmpInt(int(a.Kind), int(b.Kind))
	}
	return cmpInt(a.EndColumn, b.EndColumn)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Language is the source language of a file, derived from its extension
type Language string

const (
	LanguageUnknown    Language = ""
	LanguageC          Language = "c"
	LanguageCpp        Language = "cpp"
	LanguageGo         Language = "go"
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageJava       Language = "java"
	LanguageCSharp     Language = "csharp"
	LanguageRust       Language = "rust"
	LanguagePHP        Language = "php"
	LanguageZig        Language = "zig"
	LanguageIDL        Language = "idl"
	LanguageKotlin     Language = "kotlin"
	LanguageHTML       Language = "html"
	LanguageCSS        Language = "css"
	LanguageBinary     Language = "binary"
)

// PathKind classifies files for result sectioning
type PathKind uint8

const (
	PathKindNormal PathKind = iota
	PathKindTest
	PathKindGenerated
	PathKindThirdParty
)

func (pk PathKind) String() string {
	switch pk {
	case PathKindTest:
		return "test"
	case PathKindGenerated:
		return "generated"
	case PathKindThirdParty:
		return "thirdparty"
	default:
		return "normal"
	}
}

// Title is the section heading shown above results of this kind
func (pk PathKind) Title() string {
	switch pk {
	case PathKindTest:
		return "Test files"
	case PathKindGenerated:
		return "Generated code"
	case PathKindThirdParty:
		return "Third-party code"
	default:
		return "Core code"
	}
}

// MarshalText implements encoding.TextMarshaler
func (pk PathKind) MarshalText() ([]byte, error) { return []byte(pk.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler
func (pk *PathKind) UnmarshalText(b []byte) error {
	*pk = ParsePathKind(string(b))
	return nil
}

// ParsePathKind parses the String form back into a PathKind
func ParsePathKind(s string) PathKind {
	switch s {
	case "test":
		return PathKindTest
	case "generated":
		return PathKindGenerated
	case "thirdparty":
		return PathKindThirdParty
	}
	return PathKindNormal
}
