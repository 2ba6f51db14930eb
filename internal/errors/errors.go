package errors

import (
	"errors"
	"fmt"
	"time"

	"github.com/standardbeagle/xref/internal/types"
)

// Error types for the cross-reference index
type ErrorType string

const (
	// Build errors
	ErrorTypeAnalyzer  ErrorType = "analyzer"
	ErrorTypeMalformed ErrorType = "malformed_record"
	ErrorTypeBuild     ErrorType = "build"

	// Query errors
	ErrorTypeQuery ErrorType = "query"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"

	// Storage errors
	ErrorTypeStorage ErrorType = "storage"
)

var (
	// ErrIndexUnavailable is returned when no IndexVersion has ever been published.
	// It is distinct from an empty result set.
	ErrIndexUnavailable = errors.New("index unavailable: no version has been published")

	// ErrBuildHalted is returned when a build crossed its halt threshold.
	// The previously published version, if any, stays current.
	ErrBuildHalted = errors.New("build halted: shard failures reached the halt threshold")

	// ErrInvalidPattern is the sentinel wrapped by QueryError for uncompilable patterns
	ErrInvalidPattern = errors.New("invalid query pattern")
)

// AnalyzerError reports a failed shard: the external analyzer exited non-zero,
// timed out, or produced more malformed records than the shard budget allows.
type AnalyzerError struct {
	Type       ErrorType
	Shard      types.ShardKey
	Files      int
	Underlying error
	Timestamp  time.Time
}

// NewAnalyzerError creates a new analyzer failure for a shard
func NewAnalyzerError(shard types.ShardKey, files int, err error) *AnalyzerError {
	return &AnalyzerError{
		Type:       ErrorTypeAnalyzer,
		Shard:      shard,
		Files:      files,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *AnalyzerError) Error() string {
	return fmt.Sprintf("analyzer failed for shard %d/%d (%d files): %v",
		e.Shard.Index, e.Shard.Count, e.Files, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *AnalyzerError) Unwrap() error {
	return e.Underlying
}

// RecordError describes a single rejected record
type RecordError struct {
	Type      ErrorType
	Shard     types.ShardKey
	Path      string
	Line      int
	Reason    string
	Timestamp time.Time
}

// NewRecordError creates a new malformed record error
func NewRecordError(shard types.ShardKey, path string, line int, reason string) *RecordError {
	return &RecordError{
		Type:      ErrorTypeMalformed,
		Shard:     shard,
		Path:      path,
		Line:      line,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *RecordError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed record in %s:%d (shard %d): %s", e.Path, e.Line, e.Shard.Index, e.Reason)
	}
	return fmt.Sprintf("malformed record in %s (shard %d): %s", e.Path, e.Shard.Index, e.Reason)
}

// QueryError represents a query that could not be evaluated
type QueryError struct {
	Type       ErrorType
	Pattern    string
	Underlying error
	Timestamp  time.Time
}

// NewQueryError creates a new query error
func NewQueryError(pattern string, err error) *QueryError {
	return &QueryError{
		Type:       ErrorTypeQuery,
		Pattern:    pattern,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// NewInvalidPatternError wraps a regex compilation failure
func NewInvalidPatternError(pattern string, err error) *QueryError {
	return NewQueryError(pattern, fmt.Errorf("%w: %v", ErrInvalidPattern, err))
}

// Error implements the error interface
func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed for pattern %q: %v", e.Pattern, e.Underlying)
}

// Unwrap returns the underlying error
func (e *QueryError) Unwrap() error {
	return e.Underlying
}

// IsInvalidPattern reports whether err is a QueryError for an uncompilable pattern
func IsInvalidPattern(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe) && errors.Is(qe, ErrInvalidPattern)
}

// StorageError wraps failures of the persistence layer
type StorageError struct {
	Type       ErrorType
	Operation  string
	Name       string
	Underlying error
	Timestamp  time.Time
}

// NewStorageError creates a new storage error
func NewStorageError(op, name string, err error) *StorageError {
	return &StorageError{
		Type:       ErrorTypeStorage,
		Operation:  op,
		Name:       name,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed for %s: %v", e.Operation, e.Name, e.Underlying)
}

// Unwrap returns the underlying error
func (e *StorageError) Unwrap() error {
	return e.Underlying
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error
func NewMultiError(errs []error) *MultiError {
	// Filter out nil errors
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

// ErrorOrNil returns nil when no errors were collected
func (e *MultiError) ErrorOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}
