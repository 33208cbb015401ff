package flowgraph

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies that no test leaves a goroutine running past its own
// completion: executor pool workers a test spins up directly (settings_test.go
// constructs its own Settings with t.Cleanup(s.ShutdownNow) for this reason)
// must shut down cleanly. IgnoreCurrent snapshots the process-wide
// DefaultSettings singleton's own worker goroutines, started at package init
// and intentionally never torn down for the life of the process, so they are
// not mistaken for a leak introduced by an individual test.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreCurrent())
}
