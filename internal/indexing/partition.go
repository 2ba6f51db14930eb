package indexing

import (
	"github.com/standardbeagle/xref/internal/types"
)

// pathWeight is the byte weight of one entry of the file list
func pathWeight(p string) int { return len(p) + 1 }

// Partition splits files into min(workers, len(files)) contiguous blocks of
// near-equal byte size, where a file weighs len(path)+1. No block is empty.
// The same list and worker count always produce the same blocks.
func Partition(files []string, workers int) []types.Shard {
	n := len(files)
	if n == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	w := min(workers, n)

	total := 0
	for _, f := range files {
		total += pathWeight(f)
	}

	shards := make([]types.Shard, 0, w)
	start, cum := 0, 0
	for i := 0; i < w; i++ {
		end := n
		if i < w-1 {
			// every later block needs at least one file
			limit := n - (w - i - 1)
			target := total * (i + 1) / w

			end = start + 1
			cum += pathWeight(files[start])
			// take the next file while that lands closer to the target than stopping
			for end < limit && 2*cum+pathWeight(files[end]) <= 2*target {
				cum += pathWeight(files[end])
				end++
			}
		}

		shards = append(shards, types.Shard{
			Index:      i,
			Count:      w,
			TotalFiles: n,
			Start:      start,
			Files:      files[start:end],
		})
		start = end
	}
	return shards
}
