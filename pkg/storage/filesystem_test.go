package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	rel, err := store.Save("report-cards/term-1/class-a.csv", []byte("student,percentage\n"))
	require.NoError(t, err)
	assert.Equal(t, "report-cards/term-1/class-a.csv", rel)

	file, err := store.Open(rel)
	require.NoError(t, err)
	body, _ := io.ReadAll(file)
	file.Close()
	assert.Equal(t, "student,percentage\n", string(body))

	require.NoError(t, store.Delete(rel))
	require.NoError(t, store.Delete(rel))
}

func TestLocalStorageRejectsEscapes(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("../outside.csv", []byte("x"))
	assert.Error(t, err)
	_, err = store.Open("/etc/passwd")
	assert.Error(t, err)
}

func TestLocalStorageCleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Save("report-cards/old.pdf", []byte("%PDF"))
	require.NoError(t, err)
	_, err = store.Save("report-cards/fresh.pdf", []byte("%PDF"))
	require.NoError(t, err)
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "report-cards", "old.pdf"), past, past))

	removed, err := store.CleanupOlderThan(24 * time.Hour)

	require.NoError(t, err)
	assert.Equal(t, []string{"report-cards/old.pdf"}, removed)
	_, err = store.Open("report-cards/fresh.pdf")
	assert.NoError(t, err)
}
