// Package utils holds small test helpers shared across packages.
package utils

import (
	"runtime"
	"testing"
	"time"
)

// LeakCheck snapshots the current goroutine count and returns a function
// that fails the test if goroutines are still left over once the test body
// finishes. The listener spawns reader and dispatcher goroutines plus
// connection watchdog timers, all of which must be gone after Stop.
//
// Usage:
//
//	defer utils.LeakCheck(t)()
func LeakCheck(t *testing.T) func() {
	t.Helper()

	// Let goroutines from earlier tests settle before taking the baseline.
	time.Sleep(100 * time.Millisecond)
	baseline := runtime.NumGoroutine()

	return func() {
		t.Helper()

		// Shutdown is asynchronous; poll before declaring a leak.
		deadline := time.Now().Add(2 * time.Second)
		var current int
		for {
			current = runtime.NumGoroutine()
			if current <= baseline || time.Now().After(deadline) {
				break
			}
			time.Sleep(50 * time.Millisecond)
		}

		if current > baseline {
			buf := make([]byte, 1<<16)
			n := runtime.Stack(buf, true)
			t.Errorf("goroutine leak: %d before, %d after\n%s",
				baseline, current, buf[:n])
		}
	}
}
