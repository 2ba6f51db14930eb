package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/standardbeagle/xref/internal/debug"
	xreferrors "github.com/standardbeagle/xref/internal/errors"
	"github.com/standardbeagle/xref/internal/types"
)

// stderrTail is how much analyzer stderr is kept for the failure report
const stderrTail = 4096

// Exec runs an external analyzer process per shard. The process receives
//
//	--shard-index N --shard-count N --total-files N --source-root DIR --output-root DIR
//
// after Args, reads the shard's file list (one path per line) on stdin and
// writes JSON-lines records for each file to
// <output-root>/shard-<index>-of-<count>/<path>. A file without output has no
// records. A non-zero exit fails the shard.
type Exec struct {
	Command    string
	Args       []string
	SourceRoot string
	OutputRoot string
	Timeout    time.Duration
	Env        []string
}

// ShardDir returns the directory a shard's analysis output is written to
func ShardDir(outputRoot string, key types.ShardKey) string {
	return filepath.Join(outputRoot, fmt.Sprintf("shard-%d-of-%d", key.Index, key.Count))
}

// Analyze implements Analyzer
func (e *Exec) Analyze(ctx context.Context, shard types.Shard) (types.ShardBatch, error) {
	key := shard.Key()
	batch := types.ShardBatch{Shard: key}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	outDir := ShardDir(e.OutputRoot, key)
	// stale output from an earlier attempt must not leak into this one
	if err := os.RemoveAll(outDir); err != nil {
		return batch, xreferrors.NewAnalyzerError(key, len(shard.Files), err)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return batch, xreferrors.NewAnalyzerError(key, len(shard.Files), err)
	}

	args := append(append([]string{}, e.Args...),
		"--shard-index", strconv.Itoa(key.Index),
		"--shard-count", strconv.Itoa(key.Count),
		"--total-files", strconv.Itoa(key.TotalFiles),
		"--source-root", e.SourceRoot,
		"--output-root", e.OutputRoot,
	)
	cmd := exec.CommandContext(ctx, e.Command, args...)
	cmd.Dir = e.SourceRoot
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}
	cmd.Stdin = strings.NewReader(strings.Join(shard.Files, "\n") + "\n")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	debug.LogBuild("exec shard %d/%d: %s %v\n", key.Index, key.Count, e.Command, args)
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
			return batch, ctxErr
		}
		return batch, xreferrors.NewAnalyzerError(key, len(shard.Files), withStderr(err, stderr.Bytes()))
	}
	debug.LogBuild("exec shard %d/%d finished in %v\n", key.Index, key.Count, time.Since(start))

	batch.Files = make([]types.FileRecords, 0, len(shard.Files))
	for _, path := range shard.Files {
		fr := types.FileRecords{Path: path}

		f, err := os.Open(filepath.Join(outDir, filepath.FromSlash(path)))
		if err != nil {
			if !os.IsNotExist(err) {
				batch.Malformed = append(batch.Malformed, fmt.Errorf("%s: %w", path, err))
			}
			batch.Files = append(batch.Files, fr)
			continue
		}
		records, malformed, err := DecodeRecords(f, path, key)
		f.Close()
		if err != nil {
			return batch, xreferrors.NewAnalyzerError(key, len(shard.Files), err)
		}
		fr.Records = records
		batch.Files = append(batch.Files, fr)
		batch.Malformed = append(batch.Malformed, malformed...)
	}
	return batch, nil
}

func withStderr(err error, stderr []byte) error {
	stderr = bytes.TrimSpace(stderr)
	if len(stderr) == 0 {
		return err
	}
	if len(stderr) > stderrTail {
		stderr = stderr[len(stderr)-stderrTail:]
	}
	return fmt.Errorf("%w: %s", err, stderr)
}
