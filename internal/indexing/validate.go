package indexing

import (
	xreferrors "github.com/standardbeagle/xref/internal/errors"
	"github.com/standardbeagle/xref/internal/types"
)

// Reasons a record is rejected as malformed
const (
	reasonEmptySymbol    = "empty symbol"
	reasonBadLine        = "line must be >= 1"
	reasonBadColumn      = "column must be >= 0"
	reasonUnknownKind    = "unknown occurrence kind"
	reasonEndBeforeCol   = "end column before column"
	reasonPathNotInBatch = "path not in batch"
)

// ValidateRecord returns why r cannot be merged as part of filePath's record
// set, or "" when it is well formed
func ValidateRecord(r types.Record, filePath string) string {
	switch {
	case r.Symbol == "":
		return reasonEmptySymbol
	case r.Line < 1:
		return reasonBadLine
	case r.Column < 0:
		return reasonBadColumn
	case !r.Kind.Valid():
		return reasonUnknownKind
	case r.EndColumn != 0 && r.EndColumn < r.Column:
		return reasonEndBeforeCol
	case r.Path != "" && r.Path != filePath:
		return reasonPathNotInBatch
	}
	return ""
}

// ValidateBatch drops malformed records from batch. Files outside the shard's
// file list are dropped whole. The returned batch shares no record slices
// with the input; every rejected record yields one *RecordError.
func ValidateBatch(batch types.ShardBatch, shardFiles []string) (types.ShardBatch, []error) {
	inShard := make(map[string]struct{}, len(shardFiles))
	for _, f := range shardFiles {
		inShard[f] = struct{}{}
	}

	var rejected []error
	clean := types.ShardBatch{
		Shard:     batch.Shard,
		Files:     make([]types.FileRecords, 0, len(batch.Files)),
		Malformed: batch.Malformed,
	}

	for _, fr := range batch.Files {
		if _, ok := inShard[fr.Path]; !ok {
			rejected = append(rejected, xreferrors.NewRecordError(batch.Shard, fr.Path, 0, reasonPathNotInBatch))
			continue
		}

		records := make([]types.Record, 0, len(fr.Records))
		for _, r := range fr.Records {
			if reason := ValidateRecord(r, fr.Path); reason != "" {
				rejected = append(rejected, xreferrors.NewRecordError(batch.Shard, fr.Path, r.Line, reason))
				continue
			}
			r.Path = fr.Path
			records = append(records, r)
		}
		clean.Files = append(clean.Files, types.FileRecords{Path: fr.Path, Records: records, Content: fr.Content})
	}
	return clean, rejected
}
