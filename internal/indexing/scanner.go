package indexing

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/xref/internal/config"
	"github.com/standardbeagle/xref/internal/debug"
	"github.com/standardbeagle/xref/internal/types"
)

const binarySampleSize = types.BinaryPreCheckBytes

// FileScanner discovers the files of the source tree that should be indexed:
// include/exclude patterns, .gitignore, the size limit and binary detection
// all apply. Returned paths are slash-separated and relative to the root.
type FileScanner struct {
	root            string
	config          *config.Config
	gitignoreParser *config.GitignoreParser
	binaryDetector  *BinaryDetector
	exclusions      []string
	inclusions      []string
}

// NewFileScanner creates a scanner for cfg.Project.Root
func NewFileScanner(cfg *config.Config) *FileScanner {
	fs := &FileScanner{
		root:           cfg.Project.Root,
		config:         cfg,
		binaryDetector: NewBinaryDetector(),
		exclusions:     append([]string{}, cfg.Exclude...),
		inclusions:     append([]string{}, cfg.Include...),
	}

	if cfg.Index.RespectGitignore {
		fs.gitignoreParser = config.NewGitignoreParser()
		if err := fs.gitignoreParser.LoadGitignore(fs.root); err != nil {
			log.Printf("Warning: failed to load .gitignore: %v", err)
		}
	}
	return fs
}

// Root returns the absolute source root
func (fs *FileScanner) Root() string { return fs.root }

// Rel converts an absolute or root-relative path to the slash-separated form used in the index
func (fs *FileScanner) Rel(p string) (string, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(fs.root, p)
		if err != nil {
			return "", err
		}
		p = rel
	}
	p = filepath.ToSlash(filepath.Clean(p))
	if p == "." || strings.HasPrefix(p, "../") || p == ".." {
		return "", fmt.Errorf("%s is outside the source root %s", p, fs.root)
	}
	return p, nil
}

// Abs converts an index path back to a filesystem path
func (fs *FileScanner) Abs(rel string) string {
	return filepath.Join(fs.root, filepath.FromSlash(rel))
}

func (fs *FileScanner) excluded(rel string) bool {
	for _, pattern := range fs.exclusions {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (fs *FileScanner) included(rel string) bool {
	if len(fs.inclusions) == 0 {
		return true
	}
	for _, pattern := range fs.inclusions {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// SkipDir reports whether a directory and everything below it is left out
func (fs *FileScanner) SkipDir(rel string) bool {
	if fs.excluded(rel) || fs.excluded(rel+"/") {
		return true
	}
	return fs.gitignoreParser != nil && fs.gitignoreParser.ShouldIgnore(rel, true)
}

// Accept reports whether the file at rel (with the given size) is indexed.
// Only the extension is checked for binary content here; see acceptContent.
func (fs *FileScanner) Accept(rel string, size int64) bool {
	if fs.excluded(rel) || !fs.included(rel) {
		return false
	}
	if fs.binaryDetector.IsBinaryByExtension(rel) {
		return false
	}
	if fs.gitignoreParser != nil && fs.gitignoreParser.ShouldIgnore(rel, false) {
		return false
	}
	return fs.config.Index.MaxFileSize <= 0 || size <= fs.config.Index.MaxFileSize
}

// acceptContent reads the head of the file to reject binary content
func (fs *FileScanner) acceptContent(abs string) bool {
	f, err := os.Open(abs)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, binarySampleSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false
	}
	return !fs.binaryDetector.IsBinaryByContent(buf[:n])
}

// Check stats rel and applies every filter, content included. It returns
// false for files that do not exist.
func (fs *FileScanner) Check(rel string) bool {
	abs := fs.Abs(rel)
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return false
	}
	for dir := filepath.ToSlash(filepath.Dir(rel)); dir != "." && dir != "/"; dir = filepath.ToSlash(filepath.Dir(dir)) {
		if fs.SkipDir(dir) {
			return false
		}
	}
	return fs.Accept(rel, info.Size()) && fs.acceptContent(abs)
}

// Scan walks the source root and returns the sorted list of files to index
func (fs *FileScanner) Scan(ctx context.Context) ([]string, error) {
	var files []string
	visited := make(map[string]bool)

	debug.LogBuild("Starting directory scan of %s\n", fs.root)
	if err := fs.walk(ctx, fs.root, "", visited, &files); err != nil {
		return nil, fmt.Errorf("error walking directory tree from %s (found %d files): %w", fs.root, len(files), err)
	}
	sort.Strings(files)
	debug.LogBuild("File scanner: found %d files to index (visited %d directories)\n", len(files), len(visited))
	return files, nil
}

// walk visits dir, whose index path is rel ("" for the root). Directories are
// tracked by their resolved path so symlink cycles end the descent.
func (fs *FileScanner) walk(ctx context.Context, dir, rel string, visited map[string]bool, files *[]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		debug.LogBuild("Skipping unresolvable directory %s: %v\n", dir, err)
		return nil
	}
	if visited[real] {
		debug.LogBuild("Cycle detected, skipping already visited: %s -> %s\n", dir, real)
		return nil
	}
	visited[real] = true

	entries, err := os.ReadDir(dir)
	if err != nil {
		debug.LogBuild("Scanner error for %s: %v\n", dir, err)
		return nil
	}

	for _, entry := range entries {
		name := entry.Name()
		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}
		childAbs := filepath.Join(dir, name)

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			if !fs.config.Index.FollowSymlinks {
				continue
			}
			if info, err = os.Stat(childAbs); err != nil {
				continue
			}
		}

		if info.IsDir() {
			if fs.SkipDir(childRel) {
				continue
			}
			if err := fs.walk(ctx, childAbs, childRel, visited, files); err != nil {
				return err
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if fs.Accept(childRel, info.Size()) && fs.acceptContent(childAbs) {
			*files = append(*files, childRel)
		}
	}
	return nil
}

// ReadFile returns the content of an index path
func (fs *FileScanner) ReadFile(rel string) ([]byte, error) {
	return os.ReadFile(fs.Abs(rel))
}
