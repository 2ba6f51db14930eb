package indexing

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain checks that coordinator workers, watchers and debounce timers are
// all gone once the tests finish
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}
