package persist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/xref/internal/blobstore"
	"github.com/standardbeagle/xref/internal/config"
)

func TestRepositorySaveLoad(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(blobstore.NewMemoryStore(), CompressionZstd, 0)

	_, err := repo.Load(ctx)
	require.ErrorIs(t, err, ErrNoVersion)

	v1 := sampleVersion(1)
	require.NoError(t, repo.Save(ctx, v1))
	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assertSameVersion(t, v1, got)

	v2 := sampleVersion(2)
	require.NoError(t, repo.Save(ctx, v2))
	got, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Number())

	old, err := repo.LoadVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), old.Number())

	_, err = repo.LoadVersion(ctx, 9)
	assert.ErrorIs(t, err, ErrNoVersion)
}

func TestRepositoryPrunesOldVersions(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(blobstore.NewMemoryStore(), CompressionLZ4, 2)

	for n := uint64(1); n <= 12; n++ {
		require.NoError(t, repo.Save(ctx, sampleVersion(n)))
	}
	nums, err := repo.Versions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{11, 12}, nums)

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), got.Number())
}

func TestRepositoryCorruptCurrent(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, currentName, []byte("garbage")))

	_, err := NewRepository(store, CompressionNone, 0).Load(ctx)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestOpenRepositoryLocal(t *testing.T) {
	ctx := context.Background()
	cfg := config.Store{Backend: "local", Path: t.TempDir(), Compression: "lz4", Keep: 1}

	repo, err := OpenRepository(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, sampleVersion(4)))
	require.NoError(t, repo.Save(ctx, sampleVersion(5)))

	reopened, err := OpenRepository(ctx, cfg)
	require.NoError(t, err)
	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	assertSameVersion(t, sampleVersion(5), got)

	nums, err := reopened.Versions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5}, nums)
}

func TestOpenRepositoryRejectsUnknownCompression(t *testing.T) {
	_, err := OpenRepository(context.Background(), config.Store{Backend: "memory", Compression: "brotli"})
	assert.Error(t, err)
}
