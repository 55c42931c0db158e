// Package testutils provides shared helpers for package tests: a
// hook-captured logger and a scriptable fake transport.
package testutils

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// TestHelper bundles a test with a capturing logger.
type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Hook   *test.Hook
}

// NewTestHelper creates a helper whose logger records all entries instead
// of writing them, so tests can assert on emitted diagnostics.
func NewTestHelper(t *testing.T) *TestHelper {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return &TestHelper{
		T:      t,
		Logger: logger,
		Hook:   hook,
	}
}

// HasLogContaining reports whether any captured entry at the given level
// contains substr in its message.
func (h *TestHelper) HasLogContaining(level logrus.Level, substr string) bool {
	for _, entry := range h.Hook.AllEntries() {
		if entry.Level == level && strings.Contains(entry.Message, substr) {
			return true
		}
	}
	return false
}
