package analyzer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	xreferrors "github.com/standardbeagle/xref/internal/errors"
	"github.com/standardbeagle/xref/internal/types"
)

// maxRecordLine bounds a single JSON line of analyzer output
const maxRecordLine = 4 * 1024 * 1024

// wireRecord is one line of analysis output. Only "target" records carry an
// occurrence kind; "source" and "structured" records describe rendering and
// type layout and are skipped.
type wireRecord struct {
	Loc        string `json:"loc"`
	Target     int    `json:"target,omitempty"`
	Source     int    `json:"source,omitempty"`
	Structured int    `json:"structured,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Sym        string `json:"sym"`
	Pretty     string `json:"pretty,omitempty"`
}

// ParseLocation parses "line:col", "line:col-endcol" or "line:col-endline:endcol".
// Lines are 1-based and columns 0-based; a multi-line extent reports no end column.
func ParseLocation(loc string) (line, col, endCol int, err error) {
	start, end, hasEnd := strings.Cut(loc, "-")

	lineStr, colStr, ok := strings.Cut(start, ":")
	if !ok {
		return 0, 0, 0, fmt.Errorf("location %q: missing column", loc)
	}
	if line, err = strconv.Atoi(lineStr); err != nil {
		return 0, 0, 0, fmt.Errorf("location %q: bad line: %w", loc, err)
	}
	if col, err = strconv.Atoi(colStr); err != nil {
		return 0, 0, 0, fmt.Errorf("location %q: bad column: %w", loc, err)
	}
	if !hasEnd {
		return line, col, 0, nil
	}

	if endLineStr, endColStr, multi := strings.Cut(end, ":"); multi {
		endLine, err := strconv.Atoi(endLineStr)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("location %q: bad end line: %w", loc, err)
		}
		if _, err := strconv.Atoi(endColStr); err != nil {
			return 0, 0, 0, fmt.Errorf("location %q: bad end column: %w", loc, err)
		}
		if endLine != line {
			return line, col, 0, nil
		}
		end = endColStr
	}
	if endCol, err = strconv.Atoi(end); err != nil {
		return 0, 0, 0, fmt.Errorf("location %q: bad end column: %w", loc, err)
	}
	return line, col, endCol, nil
}

// FormatLocation is the inverse of ParseLocation for single-line extents
func FormatLocation(line, col, endCol int) string {
	if endCol > 0 {
		return fmt.Sprintf("%d:%d-%d", line, col, endCol)
	}
	return fmt.Sprintf("%d:%d", line, col)
}

// DecodeRecords reads JSON-lines analysis output for path. Lines that are not
// valid records are returned as *RecordError values in malformed; err is only
// set when reading itself fails.
func DecodeRecords(r io.Reader, path string, shard types.ShardKey) (records []types.Record, malformed []error, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordLine)

	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var w wireRecord
		if err := json.Unmarshal([]byte(line), &w); err != nil {
			malformed = append(malformed, xreferrors.NewRecordError(shard, path, n, "invalid JSON: "+err.Error()))
			continue
		}
		if w.Target == 0 && (w.Source != 0 || w.Structured != 0) {
			continue
		}

		kind, err := types.ParseOccurrenceKind(w.Kind)
		if err != nil {
			malformed = append(malformed, xreferrors.NewRecordError(shard, path, n, err.Error()))
			continue
		}
		ln, col, endCol, err := ParseLocation(w.Loc)
		if err != nil {
			malformed = append(malformed, xreferrors.NewRecordError(shard, path, n, err.Error()))
			continue
		}

		records = append(records, types.Record{
			Path:      path,
			Symbol:    w.Sym,
			Pretty:    w.Pretty,
			Kind:      kind,
			Line:      ln,
			Column:    col,
			EndColumn: endCol,
		})
	}
	if err := scanner.Err(); err != nil {
		return records, malformed, fmt.Errorf("reading analysis for %s: %w", path, err)
	}
	return records, malformed, nil
}

// EncodeRecords writes records as JSON-lines target records
func EncodeRecords(w io.Writer, records []types.Record) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, r := range records {
		wr := wireRecord{
			Loc:    FormatLocation(r.Line, r.Column, r.EndColumn),
			Target: 1,
			Kind:   r.Kind.Short(),
			Sym:    r.Symbol,
			Pretty: r.Pretty,
		}
		if err := enc.Encode(&wr); err != nil {
			return err
		}
	}
	return bw.Flush()
}
