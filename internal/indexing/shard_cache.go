package indexing

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/xref/internal/types"
)

type shardCacheKey struct {
	shard    types.ShardKey
	listHash uint64
}

// ShardCache keeps the validated output of successful shards so that a retry
// after a halted build only re-runs the shards that did not finish. Entries
// are keyed by the shard triple and a hash of its file list, so a changed
// partitioning never reuses stale output. Each entry also remembers the
// content hash of every file the analyzer handed over; Lookup drops an entry
// once any of those files has changed.
type ShardCache struct {
	mu      sync.Mutex
	entries map[shardCacheKey]shardCacheEntry
}

type shardCacheEntry struct {
	batch  types.ShardBatch // file content is never retained
	hashes map[string]uint64
}

// NewShardCache creates an empty cache
func NewShardCache() *ShardCache {
	return &ShardCache{entries: make(map[shardCacheKey]shardCacheEntry)}
}

func cacheKey(shard types.Shard) shardCacheKey {
	d := xxhash.New()
	for _, f := range shard.Files {
		_, _ = d.WriteString(f)
		_, _ = d.Write([]byte{0})
	}
	return shardCacheKey{shard: shard.Key(), listHash: d.Sum64()}
}

// Get returns the cached batch for shard without file content and without
// checking the files on disk
func (c *ShardCache) Get(shard types.Shard) (types.ShardBatch, bool) {
	if c == nil {
		return types.ShardBatch{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(shard)]
	if !ok {
		return types.ShardBatch{}, false
	}
	return withoutContent(e.batch), true
}

// Lookup returns the cached batch for shard with every file's current content
// loaded through read. An entry whose files changed since Put, or can no
// longer be read, is evicted and reported as a miss.
func (c *ShardCache) Lookup(shard types.Shard, read func(path string) ([]byte, error)) (types.ShardBatch, bool) {
	if c == nil {
		return types.ShardBatch{}, false
	}
	key := cacheKey(shard)
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return types.ShardBatch{}, false
	}

	batch := withoutContent(e.batch)
	for i := range batch.Files {
		fr := &batch.Files[i]
		content, err := read(fr.Path)
		if err != nil {
			c.evict(key)
			return types.ShardBatch{}, false
		}
		if h, known := e.hashes[fr.Path]; known && h != xxhash.Sum64(content) {
			c.evict(key)
			return types.ShardBatch{}, false
		}
		fr.Content = content
	}
	return batch, true
}

// Put stores the batch produced for shard. Content is hashed, not kept.
func (c *ShardCache) Put(shard types.Shard, batch types.ShardBatch) {
	if c == nil {
		return
	}
	hashes := make(map[string]uint64, len(batch.Files))
	for _, fr := range batch.Files {
		if fr.Content != nil {
			hashes[fr.Path] = xxhash.Sum64(fr.Content)
		}
	}
	key := cacheKey(shard)
	c.mu.Lock()
	c.entries[key] = shardCacheEntry{batch: withoutContent(batch), hashes: hashes}
	c.mu.Unlock()
}

func (c *ShardCache) evict(key shardCacheKey) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// withoutContent copies batch so that callers filling in content never touch
// a cached entry
func withoutContent(batch types.ShardBatch) types.ShardBatch {
	files := make([]types.FileRecords, len(batch.Files))
	for i, fr := range batch.Files {
		files[i] = types.FileRecords{Path: fr.Path, Records: fr.Records}
	}
	batch.Files = files
	return batch
}

// Len returns the number of cached shards
func (c *ShardCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry; called once a build has been published
func (c *ShardCache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}
