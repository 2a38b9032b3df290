package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cloudmirror/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPidFilePathIsPerProvider(t *testing.T) {
	a := pidFilePath("alpha")
	b := pidFilePath("beta")

	assert.NotEqual(t, a, b)
	assert.Contains(t, filepath.Base(a), "alpha")
}

func TestBuildAdapterLocalDirBackend(t *testing.T) {
	provider := &config.ResolvedProvider{
		Name:      "test",
		Backend:   config.BackendLocalDir,
		BucketDir: t.TempDir(),
		CloudPath: "/cloud/",
	}

	adapter, closeAdapter, err := buildAdapter(context.Background(), provider, testLogger())
	require.NoError(t, err)
	defer closeAdapter()

	assert.NotNil(t, adapter)
}

func TestBuildAdapterRejectsUnknownBackend(t *testing.T) {
	provider := &config.ResolvedProvider{Name: "test", Backend: "s3"}

	_, _, err := buildAdapter(context.Background(), provider, testLogger())
	assert.ErrorContains(t, err, "no adapter for backend")
}

func TestRunSyncUnknownProviderErrors(t *testing.T) {
	orig := resolvedCfg
	t.Cleanup(func() { resolvedCfg = orig })

	resolvedCfg = config.DefaultConfig()

	err := runSync(context.Background(), "nope", syncOptions{Once: true})
	assert.Error(t, err)
}
