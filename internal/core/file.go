package core

import (
	"bytes"
	"path"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/xref/internal/types"
)

// File is the ingested form of one source file. Lines are kept for snippet
// extraction and full-text scanning; a File is never modified after ingestion.
type File struct {
	Path     string
	Hash     uint64 // xxhash64 of the content
	Size     int64
	Language types.Language
	Kind     types.PathKind
	Lines    []string
}

// NewFile splits content into lines. A trailing newline does not produce an
// empty last line, and CRLF endings are normalized.
func NewFile(filePath string, content []byte, kind types.PathKind) *File {
	return &File{
		Path:     filePath,
		Hash:     xxhash.Sum64(content),
		Size:     int64(len(content)),
		Language: LanguageForPath(filePath),
		Kind:     kind,
		Lines:    SplitLines(content),
	}
}

// Line returns the 1-based line n, or "" when out of range
func (f *File) Line(n int) string {
	if n < 1 || n > len(f.Lines) {
		return ""
	}
	return f.Lines[n-1]
}

// SplitLines splits content on \n, trimming a trailing \r from each line
func SplitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	content = bytes.TrimSuffix(content, []byte("\n"))
	parts := strings.Split(string(content), "\n")
	for i, p := range parts {
		parts[i] = strings.TrimSuffix(p, "\r")
	}
	return parts
}

var extensionLanguages = map[string]types.Language{
	".c":      types.LanguageC,
	".h":      types.LanguageCpp,
	".cc":     types.LanguageCpp,
	".cpp":    types.LanguageCpp,
	".cxx":    types.LanguageCpp,
	".hh":     types.LanguageCpp,
	".hpp":    types.LanguageCpp,
	".hxx":    types.LanguageCpp,
	".inc":    types.LanguageCpp,
	".mm":     types.LanguageCpp,
	".go":     types.LanguageGo,
	".py":     types.LanguagePython,
	".js":     types.LanguageJavaScript,
	".jsm":    types.LanguageJavaScript,
	".mjs":    types.LanguageJavaScript,
	".cjs":    types.LanguageJavaScript,
	".jsx":    types.LanguageJavaScript,
	".ts":     types.LanguageTypeScript,
	".tsx":    types.LanguageTypeScript,
	".java":   types.LanguageJava,
	".cs":     types.LanguageCSharp,
	".rs":     types.LanguageRust,
	".php":    types.LanguagePHP,
	".zig":    types.LanguageZig,
	".idl":    types.LanguageIDL,
	".webidl": types.LanguageIDL,
	".kt":     types.LanguageKotlin,
	".kts":    types.LanguageKotlin,
	".html":   types.LanguageHTML,
	".htm":    types.LanguageHTML,
	".xhtml":  types.LanguageHTML,
	".css":    types.LanguageCSS,
	".png":    types.LanguageBinary,
	".jpg":    types.LanguageBinary,
	".jpeg":   types.LanguageBinary,
	".gif":    types.LanguageBinary,
	".ico":    types.LanguageBinary,
	".woff":   types.LanguageBinary,
	".woff2":  types.LanguageBinary,
	".ttf":    types.LanguageBinary,
	".otf":    types.LanguageBinary,
	".jar":    types.LanguageBinary,
	".zip":    types.LanguageBinary,
	".gz":     types.LanguageBinary,
	".pdf":    types.LanguageBinary,
	".wasm":   types.LanguageBinary,
}

// LanguageForPath detects the source language from the file extension
func LanguageForPath(filePath string) types.Language {
	ext := strings.ToLower(path.Ext(filePath))
	return extensionLanguages[ext]
}
