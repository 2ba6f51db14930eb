package persist

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/xref/internal/core"
	"github.com/standardbeagle/xref/internal/types"
)

// Encode writes v in the persisted layout, compressing every section with c
func Encode(w io.Writer, v *core.IndexVersion, c Compression) error {
	data, err := EncodeBytes(v, c)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// EncodeBytes returns the persisted layout of v. Sections are built and
// compressed concurrently.
func EncodeBytes(v *core.IndexVersion, c Compression) ([]byte, error) {
	paths := v.Paths()
	pathIndex := make(map[string]int, len(paths))
	for i, p := range paths {
		pathIndex[p] = i
	}

	builders := []struct {
		id    sectionID
		build func() ([]byte, error)
	}{
		{sectionMeta, func() ([]byte, error) { return encodeMeta(v), nil }},
		{sectionSymbols, func() ([]byte, error) { return encodeStrings(v.SymbolTable()), nil }},
		{sectionPretty, func() ([]byte, error) { return encodePretty(v), nil }},
		{sectionPaths, func() ([]byte, error) { return encodeStrings(paths), nil }},
		{sectionFiles, func() ([]byte, error) { return encodeFiles(v), nil }},
		{sectionOccurrences, func() ([]byte, error) { return encodeOccurrences(v, pathIndex) }},
		{sectionDegraded, func() ([]byte, error) { return encodeStrings(v.Degraded()), nil }},
	}

	entries := make([]tableEntry, len(builders))
	stored := make([][]byte, len(builders))

	var g errgroup.Group
	for i, b := range builders {
		g.Go(func() error {
			raw, err := b.build()
			if err != nil {
				return fmt.Errorf("encode %s section: %w", b.id, err)
			}
			out, codec, err := compress(raw, c)
			if err != nil {
				return fmt.Errorf("compress %s section: %w", b.id, err)
			}
			entries[i] = tableEntry{
				id:     b.id,
				codec:  codec,
				stored: uint64(len(out)),
				raw:    uint64(len(raw)),
				crc:    crc32.ChecksumIEEE(raw),
			}
			stored[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	offset := uint64(headerSize + tableEntrySize*len(entries))
	total := offset
	for i := range entries {
		entries[i].offset = total
		total += entries[i].stored
	}

	out := make([]byte, 0, total)
	out = append(out, Magic...)
	out = binary.LittleEndian.AppendUint16(out, FormatVersion)
	out = append(out, byte(c), 0)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(entries)))
	for _, e := range entries {
		out = e.appendTo(out)
	}
	for _, s := range stored {
		out = append(out, s...)
	}
	return out, nil
}

func encodeMeta(v *core.IndexVersion) []byte {
	var p payload
	p.u64(v.Number())
	p.str(v.BuildID())
	p.u64(uint64(v.CreatedAt().UnixNano()))
	return p.b
}

func encodeStrings(ss []string) []byte {
	var p payload
	p.num(len(ss))
	for _, s := range ss {
		p.str(s)
	}
	return p.b
}

func encodePretty(v *core.IndexVersion) []byte {
	var p payload
	type entry struct {
		id   types.SymbolID
		name string
	}
	var entries []entry
	for _, id := range v.Symbols() {
		if name, ok := v.Pretty(id); ok {
			entries = append(entries, entry{id, name})
		}
	}
	p.num(len(entries))
	for _, e := range entries {
		p.uvarint(uint64(e.id))
		p.str(e.name)
	}
	return p.b
}

// encodeFiles stores files in path order, so a file's position is its path index
func encodeFiles(v *core.IndexVersion) []byte {
	var p payload
	files := v.Files()
	p.num(len(files))
	for _, f := range files {
		p.u64(f.Hash)
		p.uvarint(uint64(f.Size))
		p.str(string(f.Language))
		p.u8(byte(f.Kind))
		p.num(len(f.Lines))
		for _, l := range f.Lines {
			p.str(l)
		}
	}
	return p.b
}

func encodeOccurrences(v *core.IndexVersion, pathIndex map[string]int) ([]byte, error) {
	var p payload
	symbols := v.Symbols()
	p.num(len(symbols))
	for _, id := range symbols {
		occs := v.Occurrences(id)
		p.uvarint(uint64(id))
		p.num(len(occs))
		for _, o := range occs {
			idx, ok := pathIndex[o.Path]
			if !ok {
				return nil, fmt.Errorf("occurrence of symbol %d in unknown file %s", id, o.Path)
			}
			p.num(idx)
			p.num(o.Line)
			p.num(o.Column)
			p.num(o.EndColumn)
			p.u8(byte(o.Kind))
		}
	}
	return p.b, nil
}

// Decode reads a version written by Encode
func Decode(r io.Reader) (*core.IndexVersion, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(data)
}

// DecodeBytes parses the persisted layout and seals the version it holds
func DecodeBytes(data []byte) (*core.IndexVersion, error) {
	if len(data) < headerSize || !bytes.Equal(data[:4], []byte(Magic)) {
		return nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, v)
	}
	n := binary.LittleEndian.Uint32(data[8:])
	if n > maxSections || len(data) < headerSize+int(n)*tableEntrySize {
		return nil, fmt.Errorf("%w: bad section table", ErrCorrupt)
	}

	sections := make(map[sectionID][]byte, n)
	for i := 0; i < int(n); i++ {
		e := readTableEntry(data[headerSize+i*tableEntrySize:])
		if e.offset > uint64(len(data)) || e.stored > uint64(len(data))-e.offset {
			return nil, fmt.Errorf("%w: %s section out of bounds", ErrCorrupt, e.id)
		}
		if e.raw > 1<<40 {
			return nil, fmt.Errorf("%w: %s section too large", ErrCorrupt, e.id)
		}
		raw, err := decompress(data[e.offset:e.offset+e.stored], e.codec, int(e.raw))
		if err != nil {
			return nil, fmt.Errorf("%s section: %w", e.id, err)
		}
		if crc32.ChecksumIEEE(raw) != e.crc {
			return nil, fmt.Errorf("%w: %s section checksum mismatch", ErrCorrupt, e.id)
		}
		sections[e.id] = raw
	}
	for _, id := range []sectionID{sectionMeta, sectionSymbols, sectionPaths, sectionFiles, sectionOccurrences} {
		if _, ok := sections[id]; !ok {
			return nil, fmt.Errorf("%w: missing %s section", ErrCorrupt, id)
		}
	}

	var d core.VersionData

	meta := &cursor{b: sections[sectionMeta]}
	d.Number = meta.u64()
	d.BuildID = meta.str()
	d.CreatedAt = time.Unix(0, int64(meta.u64()))
	if meta.err != nil {
		return nil, meta.err
	}

	var err error
	if d.Symbols, err = decodeStrings(sections[sectionSymbols]); err != nil {
		return nil, err
	}
	paths, err := decodeStrings(sections[sectionPaths])
	if err != nil {
		return nil, err
	}
	if d.Files, err = decodeFiles(sections[sectionFiles], paths); err != nil {
		return nil, err
	}
	if d.Pretty, err = decodePretty(sections[sectionPretty], len(d.Symbols)); err != nil {
		return nil, err
	}
	if d.Occurrences, err = decodeOccurrences(sections[sectionOccurrences], paths, len(d.Symbols)); err != nil {
		return nil, err
	}
	if raw, ok := sections[sectionDegraded]; ok {
		if d.Degraded, err = decodeStrings(raw); err != nil {
			return nil, err
		}
	}
	return core.NewIndexVersion(d), nil
}

func decodeStrings(b []byte) ([]string, error) {
	c := &cursor{b: b}
	n := c.count(1)
	out := make([]string, 0, n)
	for i := 0; i < n && c.err == nil; i++ {
		out = append(out, c.str())
	}
	return out, c.err
}

func decodePretty(b []byte, symbols int) (map[types.SymbolID]string, error) {
	out := make(map[types.SymbolID]string)
	if b == nil {
		return out, nil
	}
	c := &cursor{b: b}
	n := c.count(2)
	for i := 0; i < n && c.err == nil; i++ {
		id := types.SymbolID(c.uvarint())
		name := c.str()
		if c.err == nil && (id == 0 || int(id) > symbols) {
			return nil, fmt.Errorf("%w: pretty name for unknown symbol %d", ErrCorrupt, id)
		}
		out[id] = name
	}
	return out, c.err
}

func decodeFiles(b []byte, paths []string) ([]*core.File, error) {
	c := &cursor{b: b}
	n := c.count(12)
	if c.err == nil && n != len(paths) {
		return nil, fmt.Errorf("%w: %d files for %d paths", ErrCorrupt, n, len(paths))
	}
	files := make([]*core.File, 0, n)
	for i := 0; i < n && c.err == nil; i++ {
		f := &core.File{Path: paths[i]}
		f.Hash = c.u64()
		f.Size = int64(c.uvarint())
		f.Language = types.Language(c.str())
		f.Kind = types.PathKind(c.u8())
		lines := c.count(1)
		f.Lines = make([]string, 0, lines)
		for j := 0; j < lines && c.err == nil; j++ {
			f.Lines = append(f.Lines, c.str())
		}
		files = append(files, f)
	}
	return files, c.err
}

func decodeOccurrences(b []byte, paths []string, symbols int) (map[types.SymbolID][]types.Occurrence, error) {
	c := &cursor{b: b}
	n := c.count(2)
	out := make(map[types.SymbolID][]types.Occurrence, n)
	for i := 0; i < n && c.err == nil; i++ {
		id := types.SymbolID(c.uvarint())
		count := c.count(5)
		if c.err != nil {
			break
		}
		if id == 0 || int(id) > symbols {
			return nil, fmt.Errorf("%w: occurrences for unknown symbol %d", ErrCorrupt, id)
		}
		occs := make([]types.Occurrence, 0, count)
		for j := 0; j < count && c.err == nil; j++ {
			pi := c.num()
			o := types.Occurrence{
				Symbol:    id,
				Line:      c.num(),
				Column:    c.num(),
				EndColumn: c.num(),
				Kind:      types.OccurrenceKind(c.u8()),
			}
			if c.err != nil {
				break
			}
			if pi < 0 || pi >= len(paths) {
				return nil, fmt.Errorf("%w: occurrence in unknown file %d", ErrCorrupt, pi)
			}
			o.Path = paths[pi]
			occs = append(occs, o)
		}
		out[id] = occs
	}
	return out, c.err
}
