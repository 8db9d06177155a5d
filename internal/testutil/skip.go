// Package testutil holds helpers shared by package tests.
package testutil

import (
	"os"
	"testing"
)

// SkipIfNoNetwork skips the test if POCKETBENCH_TEST_SKIP_NETWORK is set.
// Use this for tests that listen on loopback TCP, which sandboxed
// environments may not allow.
func SkipIfNoNetwork(t *testing.T) {
	t.Helper()
	if os.Getenv("POCKETBENCH_TEST_SKIP_NETWORK") != "" {
		t.Skip("skipping network test: POCKETBENCH_TEST_SKIP_NETWORK is set")
	}
}
