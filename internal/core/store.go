package core

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/standardbeagle/xref/internal/debug"
	xreferrors "github.com/standardbeagle/xref/internal/errors"
)

// BuildOutcome is what the store needs to know about the build behind a version
type BuildOutcome interface {
	Halted() bool
}

// Store holds the current IndexVersion. Publishing is an atomic pointer swap;
// readers holding an older version are unaffected by it.
type Store struct {
	current atomic.Pointer[IndexVersion]

	// publishMu serializes publishers and guards subscribers
	publishMu   sync.Mutex
	subscribers map[int]func(*IndexVersion)
	nextSub     int
}

// NewStore creates an empty store; Snapshot fails until the first Publish
func NewStore() *Store {
	return &Store{subscribers: make(map[int]func(*IndexVersion))}
}

// Publish makes v current unless the build that produced it halted, in which
// case ErrBuildHalted is returned and the previous version stays current.
// Versions must be published in increasing Number order.
func (s *Store) Publish(v *IndexVersion, outcome BuildOutcome) error {
	if v == nil {
		return fmt.Errorf("publish: nil version")
	}
	if outcome != nil && outcome.Halted() {
		return xreferrors.ErrBuildHalted
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	if cur := s.current.Load(); cur != nil && v.Number() <= cur.Number() {
		return fmt.Errorf("publish: version %d is not newer than current version %d", v.Number(), cur.Number())
	}
	s.current.Store(v)
	debug.LogMerge("published version %d (build %s, %d files)\n", v.Number(), v.BuildID(), len(v.Paths()))

	for _, fn := range s.subscribers {
		fn(v)
	}
	return nil
}

// Snapshot returns the current version, or ErrIndexUnavailable if none was ever published.
// The returned version stays valid and unchanged for as long as the caller holds it.
func (s *Store) Snapshot() (*IndexVersion, error) {
	v := s.current.Load()
	if v == nil {
		return nil, xreferrors.ErrIndexUnavailable
	}
	return v, nil
}

// Current returns the current version or nil
func (s *Store) Current() *IndexVersion {
	return s.current.Load()
}

// NextNumber is the number the next published version should carry
func (s *Store) NextNumber() uint64 {
	if cur := s.current.Load(); cur != nil {
		return cur.Number() + 1
	}
	return 1
}

// Subscribe registers fn to run after every successful publish, while the
// publish lock is held. The returned function removes the subscription.
func (s *Store) Subscribe(fn func(*IndexVersion)) (unsubscribe func()) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.publishMu.Lock()
		defer s.publishMu.Unlock()
		delete(s.subscribers, id)
	}
}
