package persist

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/standardbeagle/xref/internal/blobstore"
	"github.com/standardbeagle/xref/internal/config"
	"github.com/standardbeagle/xref/internal/core"
	"github.com/standardbeagle/xref/internal/debug"
)

const (
	versionsPrefix = "versions/"
	versionSuffix  = ".xref"
	currentName    = "CURRENT"
)

// ErrNoVersion is returned by Load when nothing was persisted yet
var ErrNoVersion = errors.New("no persisted index version")

// Repository keeps sealed versions in a blob store. Each version is written
// under its own name before CURRENT is switched to it, so a reader always
// finds a complete version.
type Repository struct {
	store       blobstore.Store
	compression Compression
	keep        int
}

// NewRepository stores versions in s, keeping the newest keep of them
// (all of them when keep is 0)
func NewRepository(s blobstore.Store, c Compression, keep int) *Repository {
	return &Repository{store: s, compression: c, keep: keep}
}

// OpenRepository opens the blob store named by cfg
func OpenRepository(ctx context.Context, cfg config.Store) (*Repository, error) {
	c, err := ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	s, err := blobstore.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	return NewRepository(s, c, cfg.Keep), nil
}

func versionName(n uint64) string {
	return fmt.Sprintf("%s%020d%s", versionsPrefix, n, versionSuffix)
}

func parseVersionName(name string) (uint64, bool) {
	if !strings.HasPrefix(name, versionsPrefix) || !strings.HasSuffix(name, versionSuffix) {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, versionsPrefix), versionSuffix), 10, 64)
	return n, err == nil
}

// Save persists v and makes it the current version
func (r *Repository) Save(ctx context.Context, v *core.IndexVersion) error {
	data, err := EncodeBytes(v, r.compression)
	if err != nil {
		return err
	}
	name := versionName(v.Number())
	if err := r.store.Put(ctx, name, data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := r.store.Put(ctx, currentName, []byte(name+"\n")); err != nil {
		return fmt.Errorf("update %s: %w", currentName, err)
	}
	debug.LogBuild("persisted version %d as %s (%d bytes, %s)\n", v.Number(), name, len(data), r.compression)

	if err := r.prune(ctx, v.Number()); err != nil {
		debug.LogBuild("pruning old versions failed: %v\n", err)
	}
	return nil
}

// prune deletes all but the newest keep versions, never touching current
func (r *Repository) prune(ctx context.Context, current uint64) error {
	if r.keep <= 0 {
		return nil
	}
	nums, err := r.Versions(ctx)
	if err != nil {
		return err
	}
	if len(nums) <= r.keep {
		return nil
	}
	var errs []error
	for _, n := range nums[:len(nums)-r.keep] {
		if n == current {
			continue
		}
		if err := r.store.Delete(ctx, versionName(n)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load reads the current version. ErrNoVersion means nothing was saved yet.
func (r *Repository) Load(ctx context.Context) (*core.IndexVersion, error) {
	data, err := r.store.Get(ctx, currentName)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, ErrNoVersion
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", currentName, err)
	}
	name := strings.TrimSpace(string(data))
	n, ok := parseVersionName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s names %q", ErrCorrupt, currentName, name)
	}
	return r.LoadVersion(ctx, n)
}

// LoadVersion reads version n
func (r *Repository) LoadVersion(ctx context.Context, n uint64) (*core.IndexVersion, error) {
	name := versionName(n)
	data, err := r.store.Get(ctx, name)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, fmt.Errorf("version %d: %w", n, ErrNoVersion)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	v, err := DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if v.Number() != n {
		return nil, fmt.Errorf("%w: %s holds version %d", ErrCorrupt, name, v.Number())
	}
	return v, nil
}

// Versions lists the persisted version numbers in ascending order
func (r *Repository) Versions(ctx context.Context) ([]uint64, error) {
	names, err := r.store.List(ctx, versionsPrefix)
	if err != nil {
		return nil, err
	}
	var nums []uint64
	for _, name := range names {
		if n, ok := parseVersionName(name); ok {
			nums = append(nums, n)
		}
	}
	// zero padded names list in numeric order
	return nums, nil
}
