package intern

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/xref/internal/types"
)

func TestInternStable(t *testing.T) {
	in := New()

	a := in.Intern("_ZN7mozilla3dom6WindowE")
	b := in.Intern("F_<T_SimpleSearch>_foo")
	again := in.Intern("_ZN7mozilla3dom6WindowE")

	assert.Equal(t, types.SymbolID(1), a)
	assert.Equal(t, types.SymbolID(2), b)
	assert.Equal(t, a, again)
	assert.Equal(t, 2, in.Len())

	s, ok := in.Resolve(b)
	require.True(t, ok)
	assert.Equal(t, "F_<T_SimpleSearch>_foo", s)
}

func TestInternByteIdentity(t *testing.T) {
	in := New()
	assert.NotEqual(t, in.Intern("Foo"), in.Intern("foo"))
	assert.NotEqual(t, in.Intern("Foo"), in.Intern("Foo "))
}

func TestResolveInvalid(t *testing.T) {
	in := New()
	in.Intern("x")

	_, ok := in.Resolve(types.InvalidSymbolID)
	assert.False(t, ok)
	_, ok = in.Resolve(2)
	assert.False(t, ok)
}

func TestLookup(t *testing.T) {
	in := New()
	_, ok := in.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, 0, in.Len(), "Lookup must not assign")

	id := in.Intern("present")
	got, ok := in.Lookup("present")
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestGrowthKeepsHandles(t *testing.T) {
	in := New()
	n := chunkSize*3 + 17
	ids := make([]types.SymbolID, n)
	for i := 0; i < n; i++ {
		ids[i] = in.Intern(fmt.Sprintf("sym%d", i))
	}
	for i := 0; i < n; i++ {
		s, ok := in.Resolve(ids[i])
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("sym%d", i), s)
	}
	assert.Len(t, in.Table(), n)
}

func TestTableRoundTrip(t *testing.T) {
	in := New()
	raws := []string{"c", "a", "b", "a", "d"}
	want := map[string]types.SymbolID{}
	for _, r := range raws {
		want[r] = in.Intern(r)
	}

	table := in.Table()
	assert.Equal(t, []string{"c", "a", "b", "d"}, table)

	reloaded := NewFromTable(table)
	for r, id := range want {
		assert.Equal(t, id, reloaded.Intern(r), r)
		s, ok := reloaded.Resolve(id)
		require.True(t, ok)
		assert.Equal(t, r, s)
	}

	// new strings continue after the seeded handles
	assert.Equal(t, types.SymbolID(5), reloaded.Intern("e"))
}

func TestConcurrentIntern(t *testing.T) {
	in := New()
	const workers = 8
	const perWorker = 2000

	results := make([][]types.SymbolID, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids := make([]types.SymbolID, perWorker)
			for i := 0; i < perWorker; i++ {
				// every worker interns the same strings in a different order
				j := (i + w*37) % perWorker
				ids[j] = in.Intern(fmt.Sprintf("shared%d", j))
			}
			results[w] = ids
		}(w)
	}
	wg.Wait()

	assert.Equal(t, perWorker, in.Len())
	for w := 1; w < workers; w++ {
		assert.Equal(t, results[0], results[w])
	}
	for j, id := range results[0] {
		s, ok := in.Resolve(id)
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("shared%d", j), s)
	}
}

func BenchmarkInternHit(b *testing.B) {
	in := New()
	keys := make([]string, 1024)
	for i := range keys {
		keys[i] = fmt.Sprintf("_ZN3foo3barE%d", i)
		in.Intern(keys[i])
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			in.Intern(keys[i&1023])
			i++
		}
	})
}
