// Package persist stores sealed index versions in a compact binary layout
// and keeps them in a blob store.
//
// Layout (little endian):
//
//	header   magic "XREF" | format u16 | compression u8 | reserved u8 | sections u32
//	table    per section: id u32 | codec u8 | offset u64 | stored u64 | raw u64 | crc32 u32
//	data     the section payloads, in table order
//
// The crc covers the uncompressed payload. Integers inside payloads are
// uvarints and strings are length-prefixed.
package persist

import (
	"encoding/binary"
	"errors"
)

const (
	// Magic opens every persisted version
	Magic = "XREF"
	// FormatVersion is bumped on any incompatible layout change
	FormatVersion uint16 = 1

	headerSize     = 4 + 2 + 1 + 1 + 4
	tableEntrySize = 4 + 1 + 8 + 8 + 8 + 4

	// maxSections bounds the table read from untrusted input
	maxSections = 64
)

type sectionID uint32

const (
	sectionMeta sectionID = iota + 1
	sectionSymbols
	sectionPretty
	sectionPaths
	sectionFiles
	sectionOccurrences
	sectionDegraded
)

func (s sectionID) String() string {
	switch s {
	case sectionMeta:
		return "meta"
	case sectionSymbols:
		return "symbols"
	case sectionPretty:
		return "pretty"
	case sectionPaths:
		return "paths"
	case sectionFiles:
		return "files"
	case sectionOccurrences:
		return "occurrences"
	case sectionDegraded:
		return "degraded"
	}
	return "unknown"
}

var (
	ErrInvalidMagic   = errors.New("not an xref index: invalid magic")
	ErrInvalidVersion = errors.New("unsupported xref format version")
	ErrCorrupt        = errors.New("corrupt xref index")
)

type tableEntry struct {
	id     sectionID
	codec  Compression
	offset uint64
	stored uint64
	raw    uint64
	crc    uint32
}

func (e tableEntry) appendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(e.id))
	b = append(b, byte(e.codec))
	b = binary.LittleEndian.AppendUint64(b, e.offset)
	b = binary.LittleEndian.AppendUint64(b, e.stored)
	b = binary.LittleEndian.AppendUint64(b, e.raw)
	return binary.LittleEndian.AppendUint32(b, e.crc)
}

func readTableEntry(b []byte) tableEntry {
	return tableEntry{
		id:     sectionID(binary.LittleEndian.Uint32(b[0:])),
		codec:  Compression(b[4]),
		offset: binary.LittleEndian.Uint64(b[5:]),
		stored: binary.LittleEndian.Uint64(b[13:]),
		raw:    binary.LittleEndian.Uint64(b[21:]),
		crc:    binary.LittleEndian.Uint32(b[29:]),
	}
}

// payload builds a section body
type payload struct {
	b []byte
}

func (p *payload) uvarint(v uint64) { p.b = binary.AppendUvarint(p.b, v) }
func (p *payload) num(v int)        { p.uvarint(uint64(v)) }
func (p *payload) u64(v uint64)     { p.b = binary.LittleEndian.AppendUint64(p.b, v) }
func (p *payload) u8(v byte)        { p.b = append(p.b, v) }

func (p *payload) str(s string) {
	p.uvarint(uint64(len(s)))
	p.b = append(p.b, s...)
}

// cursor reads a section body; the first error sticks
type cursor struct {
	b   []byte
	off int
	err error
}

func (c *cursor) fail(what string) {
	if c.err == nil {
		c.err = errors.Join(ErrCorrupt, errors.New("truncated "+what))
	}
}

func (c *cursor) uvarint() uint64 {
	if c.err != nil {
		return 0
	}
	v, n := binary.Uvarint(c.b[c.off:])
	if n <= 0 {
		c.fail("varint")
		return 0
	}
	c.off += n
	return v
}

// count reads a length and checks it against the bytes left, each element
// taking at least minSize bytes
func (c *cursor) count(minSize int) int {
	v := c.uvarint()
	if c.err == nil && v > uint64(len(c.b)-c.off)/uint64(max(1, minSize)) {
		c.fail("count")
		return 0
	}
	return int(v)
}

func (c *cursor) num() int { return int(c.uvarint()) }

func (c *cursor) u64() uint64 {
	if c.err != nil {
		return 0
	}
	if len(c.b)-c.off < 8 {
		c.fail("u64")
		return 0
	}
	v := binary.LittleEndian.Uint64(c.b[c.off:])
	c.off += 8
	return v
}

func (c *cursor) u8() byte {
	if c.err != nil {
		return 0
	}
	if c.off >= len(c.b) {
		c.fail("byte")
		return 0
	}
	v := c.b[c.off]
	c.off++
	return v
}

func (c *cursor) str() string {
	n := c.count(1)
	if c.err != nil {
		return ""
	}
	s := string(c.b[c.off : c.off+n])
	c.off += n
	return s
}
