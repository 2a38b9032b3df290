package sync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	stamp := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, stamp, stamp))
}

func TestFindStalePartialsReportsOldOnes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeAged(t, filepath.Join(root, "movie.mkv.partial"), 72*time.Hour)
	writeAged(t, filepath.Join(root, "nested", "doc.pdf.partial"), 72*time.Hour)

	stale, err := findStalePartials(root, 48*time.Hour)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"movie.mkv.partial", filepath.Join("nested", "doc.pdf.partial")}, stale)
}

func TestFindStalePartialsIgnoresFreshAndOrdinaryFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeAged(t, filepath.Join(root, "fresh.partial"), time.Hour)
	writeAged(t, filepath.Join(root, "old-but-complete.txt"), 72*time.Hour)

	stale, err := findStalePartials(root, 48*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stale)
}
