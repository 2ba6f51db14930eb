package types

// Record is one raw static-analysis fact emitted by an analyzer for a file.
// The core validates only its shape; see RecordError for rejected records.
type Record struct {
	Path      string         `json:"path,omitempty"`
	Symbol    string         `json:"sym"`
	Pretty    string         `json:"pretty,omitempty"`
	Kind      OccurrenceKind `json:"kind"`
	Line      int            `json:"line"`             // 1-based
	Column    int            `json:"column"`           // 0-based
	EndColumn int            `json:"endcol,omitempty"` // exclusive, 0 when the analyzer did not report an extent
}

// FileRecords is the complete record set for one file. An empty Records slice
// is meaningful: it clears everything previously known about the path.
type FileRecords struct {
	Path    string
	Records []Record
	Content []byte // nil when the producer did not read the file; the builder loads it from the source root
}

// Shard is a contiguous block of the file list handed to one analyzer worker.
type Shard struct {
	Index      int
	Count      int
	TotalFiles int
	Start      int // offset of Files[0] in the full list
	Files      []string
}

// Key identifies the shard across retries of the same partitioning
func (s Shard) Key() ShardKey {
	return ShardKey{Index: s.Index, Count: s.Count, TotalFiles: s.TotalFiles}
}

// ShardKey is the (index, count, total) triple used in analyzer invocations
type ShardKey struct {
	Index      int
	Count      int
	TotalFiles int
}

// ShardBatch is the self-contained output of one shard.
type ShardBatch struct {
	Shard ShardKey
	Files []FileRecords

	// Malformed holds analyzer output lines that could not be decoded into records
	Malformed []error
}

// RecordCount returns the total number of records across all files
func (b ShardBatch) RecordCount() int {
	n := 0
	for _, f := range b.Files {
		n += len(f.Records)
	}
	return n
}
