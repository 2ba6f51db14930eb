package indexing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/xref/internal/analyzer"
	"github.com/standardbeagle/xref/internal/config"
	"github.com/standardbeagle/xref/internal/types"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
}

func testConfig(root string) *config.Config {
	cfg := config.Default(root)
	cfg.Build.Workers = 2
	cfg.Build.Persist = false
	return cfg
}

// wordRecords treats every line "<kind> <name>" of content as one record of
// symbol "t:<name>" starting at the name's column
func wordRecords(path string, content []byte) ([]types.Record, error) {
	var records []types.Record
	for i, line := range strings.Split(string(content), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		kind, err := types.ParseOccurrenceKind(fields[0])
		if err != nil {
			continue
		}
		col := strings.Index(line, fields[1])
		records = append(records, types.Record{
			Symbol:    "t:" + fields[1],
			Pretty:    fields[1],
			Kind:      kind,
			Line:      i + 1,
			Column:    col,
			EndColumn: col + len(fields[1]),
		})
	}
	return records, nil
}

func wordAnalyzer(root string) analyzer.Analyzer {
	return &analyzer.PerFile{Root: root, Fn: wordRecords}
}

// failingAnalyzer fails every shard containing one of the given files
func failingAnalyzer(inner analyzer.Analyzer, failOn ...string) analyzer.Analyzer {
	bad := make(map[string]bool, len(failOn))
	for _, f := range failOn {
		bad[f] = true
	}
	return analyzer.Func(func(ctx context.Context, shard types.Shard) (types.ShardBatch, error) {
		for _, f := range shard.Files {
			if bad[f] {
				return types.ShardBatch{}, fmt.Errorf("analyzer crashed on %s", f)
			}
		}
		return inner.Analyze(ctx, shard)
	})
}

func record(sym string, kind types.OccurrenceKind, line, col int) types.Record {
	return types.Record{Symbol: "t:" + sym, Pretty: sym, Kind: kind, Line: line, Column: col, EndColumn: col + len(sym)}
}

func fileBatch(index, count int, files ...types.FileRecords) types.ShardBatch {
	return types.ShardBatch{Shard: types.ShardKey{Index: index, Count: count, TotalFiles: len(files)}, Files: files}
}
