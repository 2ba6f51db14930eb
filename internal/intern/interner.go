// Package intern maps raw symbol identifiers to dense, stable SymbolIDs.
package intern

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/xref/internal/types"
)

const (
	// shardCount must stay a power of two; lookups mask the hash with shardCount-1
	shardCount = 64

	// chunkSize is the number of strings per storage chunk. Chunks are never
	// reallocated, so growth leaves earlier entries where they are.
	chunkSize = 4096
)

type shard struct {
	mu  sync.RWMutex
	ids map[string]types.SymbolID
}

// Interner assigns SymbolIDs to raw strings. IDs are 1-based and handed out in
// first-intern order; the same string always gets the same ID for the lifetime
// of the interner. Safe for concurrent use.
type Interner struct {
	shards [shardCount]shard

	tableMu sync.RWMutex
	chunks  [][]string
	count   int
	bytes   int
}

// New creates an empty interner
func New() *Interner {
	in := &Interner{}
	for i := range in.shards {
		in.shards[i].ids = make(map[string]types.SymbolID)
	}
	return in
}

// NewFromTable seeds an interner from a persisted table where table[i] is the
// raw string of SymbolID i+1. Previously assigned handles stay valid.
func NewFromTable(table []string) *Interner {
	in := New()
	for _, raw := range table {
		sh := in.shardFor(raw)
		id := in.appendLocked(raw)
		if _, dup := sh.ids[raw]; !dup {
			sh.ids[raw] = id
		}
	}
	return in
}

func (in *Interner) shardFor(raw string) *shard {
	return &in.shards[xxhash.Sum64String(raw)&(shardCount-1)]
}

// Intern returns the handle for raw, assigning the next free one on first sight
func (in *Interner) Intern(raw string) types.SymbolID {
	sh := in.shardFor(raw)

	// Fast path: already interned
	sh.mu.RLock()
	if id, ok := sh.ids[raw]; ok {
		sh.mu.RUnlock()
		return id
	}
	sh.mu.RUnlock()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	// Double-check after acquiring write lock
	if id, ok := sh.ids[raw]; ok {
		return id
	}

	id := in.appendLocked(raw)
	sh.ids[raw] = id
	return id
}

// appendLocked stores raw under the next handle. Lock order is shard then table.
func (in *Interner) appendLocked(raw string) types.SymbolID {
	in.tableMu.Lock()
	defer in.tableMu.Unlock()

	slot := in.count % chunkSize
	if slot == 0 {
		in.chunks = append(in.chunks, make([]string, chunkSize))
	}
	in.chunks[len(in.chunks)-1][slot] = raw
	in.count++
	in.bytes += len(raw)
	return types.SymbolID(in.count)
}

// Lookup returns the handle for raw without assigning one
func (in *Interner) Lookup(raw string) (types.SymbolID, bool) {
	sh := in.shardFor(raw)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	id, ok := sh.ids[raw]
	return id, ok
}

// Resolve returns the raw string for id
func (in *Interner) Resolve(id types.SymbolID) (string, bool) {
	if !id.IsValid() {
		return "", false
	}
	in.tableMu.RLock()
	defer in.tableMu.RUnlock()

	idx := int(id) - 1
	if idx >= in.count {
		return "", false
	}
	return in.chunks[idx/chunkSize][idx%chunkSize], true
}

// Len returns the number of distinct handles assigned
func (in *Interner) Len() int {
	in.tableMu.RLock()
	defer in.tableMu.RUnlock()
	return in.count
}

// Bytes returns the total size of all interned strings, for capacity planning
func (in *Interner) Bytes() int {
	in.tableMu.RLock()
	defer in.tableMu.RUnlock()
	return in.bytes
}

// Table returns a copy of the id→string mapping; Table()[i] is SymbolID i+1
func (in *Interner) Table() []string {
	in.tableMu.RLock()
	defer in.tableMu.RUnlock()

	out := make([]string, 0, in.count)
	for i, chunk := range in.chunks {
		n := chunkSize
		if i == len(in.chunks)-1 {
			n = in.count - i*chunkSize
		}
		out = append(out, chunk[:n]...)
	}
	return out
}
