// Package analyzer defines the boundary to the per-language static analyzers
// that produce raw records for a shard of files.
package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/standardbeagle/xref/internal/debug"
	"github.com/standardbeagle/xref/internal/types"
)

// Analyzer produces the complete record set for every file of a shard.
// A returned error counts as one shard failure.
type Analyzer interface {
	Analyze(ctx context.Context, shard types.Shard) (types.ShardBatch, error)
}

// Func adapts an ordinary function to the Analyzer interface
type Func func(ctx context.Context, shard types.Shard) (types.ShardBatch, error)

// Analyze calls f
func (f Func) Analyze(ctx context.Context, shard types.Shard) (types.ShardBatch, error) {
	return f(ctx, shard)
}

// FileFunc analyzes a single file in-process
type FileFunc func(path string, content []byte) ([]types.Record, error)

// PerFile runs a FileFunc over every file of a shard, reading content from Root.
// The content read is handed on so the builder does not read the file twice.
type PerFile struct {
	Root        string
	MaxFileSize int64
	Fn          FileFunc
}

// Analyze implements Analyzer. A file that cannot be read or analyzed yields a
// malformed entry for the shard rather than failing the whole shard.
func (p *PerFile) Analyze(ctx context.Context, shard types.Shard) (types.ShardBatch, error) {
	batch := types.ShardBatch{
		Shard: shard.Key(),
		Files: make([]types.FileRecords, 0, len(shard.Files)),
	}

	for _, path := range shard.Files {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		content, err := os.ReadFile(filepath.Join(p.Root, filepath.FromSlash(path)))
		if err != nil {
			batch.Malformed = append(batch.Malformed, fmt.Errorf("%s: %w", path, err))
			continue
		}
		if p.MaxFileSize > 0 && int64(len(content)) > p.MaxFileSize {
			debug.LogBuild("skipping %s: %d bytes exceeds limit\n", path, len(content))
			batch.Files = append(batch.Files, types.FileRecords{Path: path})
			continue
		}

		records, err := p.Fn(path, content)
		if err != nil {
			batch.Malformed = append(batch.Malformed, fmt.Errorf("%s: %w", path, err))
			continue
		}
		for i := range records {
			records[i].Path = path
		}
		batch.Files = append(batch.Files, types.FileRecords{Path: path, Records: records, Content: content})
	}
	return batch, nil
}
