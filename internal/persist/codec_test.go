package persist

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/xref/internal/core"
	"github.com/standardbeagle/xref/internal/types"
)

func sampleVersion(n uint64) *core.IndexVersion {
	calc := core.NewFile("calc/calc.go", []byte("package calc\n\nfunc Add(a, b int) int { return a + b }\n"), types.PathKindNormal)
	mainFile := core.NewFile("main.go", []byte("package main\n\nfunc main() { calc.Add(1, 2) }\n"), types.PathKindNormal)
	gen := core.NewFile("gen/big.pb.go", []byte(strings.Repeat("// generated\n", 200)), types.PathKindGenerated)

	return core.NewIndexVersion(core.VersionData{
		Number:    n,
		BuildID:   "build-1",
		CreatedAt: time.Unix(1700000000, 42),
		Symbols:   []string{"go:Add", "go:main", "go:unused"},
		Pretty:    map[types.SymbolID]string{1: "calc.Add"},
		Occurrences: map[types.SymbolID][]types.Occurrence{
			1: {
				{Symbol: 1, Path: "calc/calc.go", Line: 3, Column: 6, EndColumn: 9, Kind: types.KindDefinition},
				{Symbol: 1, Path: "main.go", Line: 3, Column: 20, EndColumn: 23, Kind: types.KindUse},
			},
			2: {
				{Symbol: 2, Path: "main.go", Line: 3, Column: 6, EndColumn: 10, Kind: types.KindDefinition},
			},
		},
		Files:    []*core.File{calc, mainFile, gen},
		Degraded: []string{"broken.go"},
	})
}

func assertSameVersion(t *testing.T, want, got *core.IndexVersion) {
	t.Helper()
	assert.Equal(t, want.Number(), got.Number())
	assert.Equal(t, want.BuildID(), got.BuildID())
	assert.True(t, want.CreatedAt().Equal(got.CreatedAt()))
	assert.Equal(t, want.SymbolTable(), got.SymbolTable())
	assert.Equal(t, want.Symbols(), got.Symbols())
	assert.Equal(t, want.Paths(), got.Paths())
	assert.Equal(t, want.Degraded(), got.Degraded())
	assert.Equal(t, want.Stats(), got.Stats())
	for _, id := range want.Symbols() {
		assert.Equal(t, want.Occurrences(id), got.Occurrences(id))
		assert.Equal(t, want.DisplayName(id), got.DisplayName(id))
	}
	for _, f := range want.Files() {
		g, ok := got.File(f.Path)
		require.True(t, ok, f.Path)
		assert.Equal(t, f, g)
		if ws := want.FileSymbols(f.Path); ws == nil {
			assert.Nil(t, got.FileSymbols(f.Path))
		} else {
			assert.Equal(t, ws.ToArray(), got.FileSymbols(f.Path).ToArray())
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	want := sampleVersion(7)
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, want, c))

			got, err := Decode(&buf)
			require.NoError(t, err)
			assertSameVersion(t, want, got)
		})
	}
}

func TestEncodeEmptyVersion(t *testing.T) {
	want := core.NewIndexVersion(core.VersionData{Number: 1, CreatedAt: time.Unix(5, 0)})
	data, err := EncodeBytes(want, CompressionZstd)
	require.NoError(t, err)

	got, err := DecodeBytes(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Number())
	assert.Empty(t, got.Paths())
	assert.Empty(t, got.Symbols())
}

func TestCompressionShrinksRepetitiveSections(t *testing.T) {
	v := sampleVersion(1)
	plain, err := EncodeBytes(v, CompressionNone)
	require.NoError(t, err)
	packed, err := EncodeBytes(v, CompressionZstd)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(plain))
}

func TestDecodeRejectsBadInput(t *testing.T) {
	data, err := EncodeBytes(sampleVersion(3), CompressionNone)
	require.NoError(t, err)

	t.Run("magic", func(t *testing.T) {
		bad := bytes.Clone(data)
		copy(bad, "NOPE")
		_, err := DecodeBytes(bad)
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("short", func(t *testing.T) {
		_, err := DecodeBytes([]byte("XR"))
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("format version", func(t *testing.T) {
		bad := bytes.Clone(data)
		binary.LittleEndian.PutUint16(bad[4:], FormatVersion+1)
		_, err := DecodeBytes(bad)
		assert.ErrorIs(t, err, ErrInvalidVersion)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := DecodeBytes(data[:len(data)-10])
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("flipped payload byte", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[len(bad)-1] ^= 0xFF
		_, err := DecodeBytes(bad)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("section count", func(t *testing.T) {
		bad := bytes.Clone(data)
		binary.LittleEndian.PutUint32(bad[8:], maxSections+1)
		_, err := DecodeBytes(bad)
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionZstd, "zstd": CompressionZstd, "LZ4": CompressionLZ4, "none": CompressionNone} {
		got, err := ParseCompression(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseCompression("brotli")
	assert.Error(t, err)
}
