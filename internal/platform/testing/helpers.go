// Package testing holds shared helpers for package tests. It is not
// imported by production code.
package testing

import (
	"testing"

	"clinivoice-server-go/internal/platform/config"
	"clinivoice-server-go/internal/platform/logging"
)

// SetupTestLogger returns a logger writing into the test's temp dir.
// Closed automatically when the test finishes.
func SetupTestLogger(t *testing.T) *logging.Logger {
	t.Helper()

	logger, err := logging.New(logging.Config{
		Level:    "debug",
		Dir:      t.TempDir(),
		Filename: "test.log",
	})
	if err != nil {
		t.Fatalf("create test logger: %v", err)
	}
	t.Cleanup(func() {
		_ = logger.Close()
	})
	return logger
}

// SetupTestConfig returns the default config pointed at temp storage.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Log.Dir = t.TempDir()
	cfg.Audit.Sink = "memory"
	cfg.Audit.SQLite.DSN = t.TempDir() + "/audit.db"
	return cfg
}

// AssertNoError fails the test immediately if err is non-nil.
func AssertNoError(t *testing.T, err error, context string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", context, err)
	}
}
