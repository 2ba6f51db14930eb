// Binary file detection for early rejection of non-text files.
// Binary files carry no identifiers and would only pollute full-text search.
package indexing

import (
	"bytes"
	"path"
	"strings"
)

// binaryExtensions are never indexed, whatever their content
var binaryExtensions = map[string]bool{
	// fonts
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	// images; .svg is XML and stays indexable
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".webp": true, ".tiff": true, ".tif": true,
	// archives
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true,
	".7z": true, ".rar": true, ".jar": true, ".war": true,
	// executables and objects
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true,
	".o": true, ".obj": true, ".bin": true, ".wasm": true,
	// media
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".wav": true,
	".flac": true, ".ogg": true, ".webm": true,
	// documents and databases
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".db": true, ".sqlite": true, ".sqlite3": true,
	// bytecode
	".pyc": true, ".pyo": true, ".class": true, ".pickle": true, ".pkl": true,
	// persisted index versions
	".xref": true,
}

// magicNumbers are the leading bytes of common binary formats
var magicNumbers = [][]byte{
	{0x1F, 0x8B},             // gzip
	{0x50, 0x4B, 0x03, 0x04}, // zip
	{0x50, 0x4B, 0x05, 0x06}, // empty zip
	{0x89, 0x50, 0x4E, 0x47}, // png
	{0xFF, 0xD8, 0xFF},       // jpeg
	{0x47, 0x49, 0x46, 0x38}, // gif
	{0x25, 0x50, 0x44, 0x46}, // pdf
	{0x7F, 0x45, 0x4C, 0x46}, // elf
	{0x4D, 0x5A},             // dos/windows executable
	{0xCA, 0xFE, 0xBA, 0xBE}, // mach-o fat binary, java class
	{0x77, 0x4F, 0x46, 0x46}, // woff
	{0x77, 0x4F, 0x46, 0x32}, // woff2
	{0x28, 0xB5, 0x2F, 0xFD}, // zstd
	{0x00, 0x61, 0x73, 0x6D}, // wasm
}

// BinaryDetector decides whether a file should be treated as binary
type BinaryDetector struct{}

// NewBinaryDetector creates a detector
func NewBinaryDetector() *BinaryDetector { return &BinaryDetector{} }

// IsBinaryByExtension checks the file extension only
func (bd *BinaryDetector) IsBinaryByExtension(p string) bool {
	return binaryExtensions[strings.ToLower(path.Ext(p))]
}

// IsBinaryByContent inspects the first BinaryPreCheckBytes of content:
// known magic numbers, any NUL byte beyond 1% of the sample, or more than 30%
// control characters. Bytes >= 0x80 never count, so UTF-8 text passes.
func (bd *BinaryDetector) IsBinaryByContent(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	sample := content[:min(len(content), binarySampleSize)]

	for _, magic := range magicNumbers {
		if bytes.HasPrefix(sample, magic) {
			return true
		}
	}

	nulls, control := 0, 0
	for _, b := range sample {
		if b == 0 {
			nulls++
		}
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' && b != '\f' {
			control++
		}
	}
	return nulls > len(sample)/100 || control > len(sample)*30/100
}

// IsBinary combines both checks
func (bd *BinaryDetector) IsBinary(p string, content []byte) bool {
	return bd.IsBinaryByExtension(p) || bd.IsBinaryByContent(content)
}
