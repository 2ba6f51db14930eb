package core

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures no goroutines leak; the store is read concurrently with publishes.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}
