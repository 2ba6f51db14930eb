package types

import (
	"fmt"
	"math"
	"strings"
)

// Common system-wide constants
const (
	// File size limits
	DefaultMaxFileSize = 10 * 1024 * 1024 // 10MB per file
	// Larger files are almost always generated code or data dumps.

	BinaryPreCheckBytes = 512 // Number of bytes read for binary magic number detection

	// Default number of analyzer workers when none is configured
	DefaultWorkers = 4
)

// SymbolID is a dense handle assigned by the interner. Zero is never assigned.
type SymbolID uint32

// InvalidSymbolID marks an unassigned handle
const InvalidSymbolID SymbolID = 0

// IsValid reports whether the handle was produced by an interner
func (id SymbolID) IsValid() bool { return id != InvalidSymbolID }

// OccurrenceKind classifies a single location where a symbol appears.
// The numeric order is part of the occurrence ordering contract.
type OccurrenceKind uint8

const (
	KindDefinition OccurrenceKind = iota
	KindDeclaration
	KindUse
	KindAssignment

	kindCount
)

func (k OccurrenceKind) String() string {
	switch k {
	case KindDefinition:
		return "definition"
	case KindDeclaration:
		return "declaration"
	case KindUse:
		return "use"
	case KindAssignment:
		return "assignment"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Short returns the analyzer wire spelling of the kind ("def", "decl", "use", "assign")
func (k OccurrenceKind) Short() string {
	switch k {
	case KindDefinition:
		return "def"
	case KindDeclaration:
		return "decl"
	case KindUse:
		return "use"
	case KindAssignment:
		return "assign"
	default:
		return ""
	}
}

// Valid reports whether k is one of the four known kinds
func (k OccurrenceKind) Valid() bool { return k < kindCount }

// ParseOccurrenceKind accepts both the long and the short spelling
func ParseOccurrenceKind(s string) (OccurrenceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "def", "definition":
		return KindDefinition, nil
	case "decl", "declaration":
		return KindDeclaration, nil
	case "use":
		return KindUse, nil
	case "assign", "assignment":
		return KindAssignment, nil
	}
	return 0, fmt.Errorf("unknown occurrence kind %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (k OccurrenceKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid occurrence kind %d", uint8(k))
	}
	return []byte(k.Short()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *OccurrenceKind) UnmarshalText(b []byte) error {
	parsed, err := ParseOccurrenceKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// HaltThreshold is the number (or share) of failed shards at which a build is aborted.
// Exactly one of Count or Percent is set.
type HaltThreshold struct {
	Count   int
	Percent float64
}

// ParseHaltThreshold accepts an absolute count ("2") or a percentage of shards ("25%")
func ParseHaltThreshold(s string) (HaltThreshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return HaltThreshold{}, fmt.Errorf("empty halt threshold")
	}
	if strings.HasSuffix(s, "%") {
		var pct float64
		if _, err := fmt.Sscanf(strings.TrimSuffix(s, "%"), "%g", &pct); err != nil {
			return HaltThreshold{}, fmt.Errorf("invalid halt threshold %q: %w", s, err)
		}
		if pct <= 0 || pct > 100 {
			return HaltThreshold{}, fmt.Errorf("halt threshold percentage must be in (0, 100], got %q", s)
		}
		return HaltThreshold{Percent: pct}, nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || fmt.Sprint(n) != s {
		return HaltThreshold{}, fmt.Errorf("invalid halt threshold %q", s)
	}
	if n < 1 {
		return HaltThreshold{}, fmt.Errorf("halt threshold must be at least 1, got %d", n)
	}
	return HaltThreshold{Count: n}, nil
}

// Limit resolves the threshold against the number of dispatched shards.
// A count never exceeds the shard count, so a run where every shard failed
// always halts. A percentage always rounds up and never resolves below one
// failure.
func (h HaltThreshold) Limit(shards int) int {
	if h.Count > 0 {
		if shards > 0 {
			return min(h.Count, shards)
		}
		return h.Count
	}
	if h.Percent <= 0 {
		return shards + 1 // never halts
	}
	limit := int(math.Ceil(float64(shards) * h.Percent / 100))
	if limit < 1 {
		limit = 1
	}
	return limit
}

func (h HaltThreshold) String() string {
	if h.Count > 0 {
		return fmt.Sprint(h.Count)
	}
	return fmt.Sprintf("%g%%", h.Percent)
}
