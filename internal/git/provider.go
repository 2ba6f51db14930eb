// Package git finds the files changed in a git work tree so that only those
// are re-ingested
package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// FileChangeStatus is the kind of change git reports for a path
type FileChangeStatus string

const (
	FileStatusAdded     FileChangeStatus = "added"
	FileStatusModified  FileChangeStatus = "modified"
	FileStatusDeleted   FileChangeStatus = "deleted"
	FileStatusRenamed   FileChangeStatus = "renamed"
	FileStatusCopied    FileChangeStatus = "copied"
	FileStatusUntracked FileChangeStatus = "untracked"
)

// ChangedFile is one changed path, relative to the repository root
type ChangedFile struct {
	Path    string           `json:"path"`
	OldPath string           `json:"old_path,omitempty"`
	Status  FileChangeStatus `json:"status"`
}

// Provider wraps git commands for the repository holding a source root
type Provider struct {
	repoRoot   string
	sourceRoot string
}

// NewProvider creates a provider for the repository containing sourceRoot,
// which may be any directory inside the work tree
func NewProvider(sourceRoot string) (*Provider, error) {
	absRoot, err := filepath.Abs(sourceRoot)
	if err != nil {
		return nil, fmt.Errorf("invalid source root: %w", err)
	}

	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = absRoot
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %s", absRoot)
	}

	repoRoot := strings.TrimSpace(string(output))
	// git reports the resolved path; the source root may go through a symlink
	if resolved, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = resolved
	}
	if resolved, err := filepath.EvalSymlinks(repoRoot); err == nil {
		repoRoot = resolved
	}
	return &Provider{repoRoot: repoRoot, sourceRoot: absRoot}, nil
}

// RepoRoot returns the top level of the work tree
func (p *Provider) RepoRoot() string { return p.repoRoot }

func (p *Provider) git(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = p.repoRoot
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// ChangedSince lists the files that differ between ref and the work tree,
// staged and unstaged changes included, plus untracked files
func (p *Provider) ChangedSince(ctx context.Context, ref string) ([]ChangedFile, error) {
	if ref == "" {
		ref = "HEAD"
	}
	out, err := p.git(ctx, "diff", "--name-status", "--no-renames", ref, "--")
	if err != nil {
		return nil, err
	}
	files, err := parseNameStatus(out)
	if err != nil {
		return nil, err
	}

	untracked, err := p.git(ctx, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(bytes.NewReader(untracked))
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			files = append(files, ChangedFile{Path: line, Status: FileStatusUntracked})
		}
	}
	return files, scanner.Err()
}

// IndexPaths converts changed files to sorted, slash-separated paths
// relative to the source root. Files outside the source root are dropped;
// renames contribute both their old and new path.
func (p *Provider) IndexPaths(files []ChangedFile) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(repoPath string) {
		if repoPath == "" {
			return
		}
		abs := filepath.Join(p.repoRoot, filepath.FromSlash(repoPath))
		rel, err := filepath.Rel(p.sourceRoot, abs)
		if err != nil {
			return
		}
		rel = filepath.ToSlash(rel)
		if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || seen[rel] {
			return
		}
		seen[rel] = true
		out = append(out, rel)
	}
	for _, f := range files {
		add(f.OldPath)
		add(f.Path)
	}
	sort.Strings(out)
	return out
}

// CommitHash resolves ref to a full commit id
func (p *Provider) CommitHash(ctx context.Context, ref string) (string, error) {
	out, err := p.git(ctx, "rev-parse", "--verify", ref+"^{commit}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// parseNameStatus parses git name-status output
func parseNameStatus(output []byte) ([]ChangedFile, error) {
	var files []ChangedFile

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), "\t")
		if len(parts) < 2 || parts[0] == "" {
			continue
		}

		file := ChangedFile{Path: parts[1], Status: parseStatus(parts[0])}
		// Handle rename/copy with old path
		if len(parts) >= 3 && (parts[0][0] == 'R' || parts[0][0] == 'C') {
			file.OldPath = parts[1]
			file.Path = parts[2]
		}
		files = append(files, file)
	}
	return files, scanner.Err()
}

// parseStatus converts git status letter to FileChangeStatus
func parseStatus(status string) FileChangeStatus {
	switch status[0] {
	case 'A':
		return FileStatusAdded
	case 'D':
		return FileStatusDeleted
	case 'R':
		return FileStatusRenamed
	case 'C':
		return FileStatusCopied
	default:
		return FileStatusModified
	}
}
