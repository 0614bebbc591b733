package scriptdir

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemamesh/migrator/pkg/migration"
)

func TestWriteAndList(t *testing.T) {
	dir := t.TempDir()

	pathA, err := Write(dir, "20260101010101", "CreateUsers", ".sql", "CREATE TABLE users ();\n")
	require.NoError(t, err)
	pathB, err := Write(dir, "20260101010102", "AddIndex", ".sql", "CREATE INDEX idx ON users (id);\n")
	require.NoError(t, err)

	entries, err := List(dir, ".sql")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "20260101010101", entries[0].ID)
	assert.Equal(t, "CreateUsers", entries[0].Name)
	assert.Equal(t, pathA, entries[0].Path)
	assert.Equal(t, "20260101010102", entries[1].ID)
	assert.Equal(t, pathB, entries[1].Path)
}

func TestListOrdersByID(t *testing.T) {
	dir := t.TempDir()

	// Created out of order on purpose.
	_, err := Write(dir, "20260301000000", "Later", ".sql", "-- later\n")
	require.NoError(t, err)
	_, err = Write(dir, "20250101000000", "Earlier", ".sql", "-- earlier\n")
	require.NoError(t, err)

	entries, err := List(dir, ".sql")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Earlier", entries[0].Name)
	assert.Equal(t, "Later", entries[1].Name)
}

func TestListIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := Write(dir, "20260101010101", "Real", ".sql", "-- real\n")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notamigration.sql"), []byte("--"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1234_TooShort.sql"), []byte("--"), 0o600))

	entries, err := List(dir, ".sql")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Real", entries[0].Name)
}

func TestListMissingDirIsEmpty(t *testing.T) {
	entries, err := List(filepath.Join(t.TempDir(), "does-not-exist"), ".sql")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteRejectsDuplicateID(t *testing.T) {
	dir := t.TempDir()

	_, err := Write(dir, "20260101010101", "First", ".sql", "-- one\n")
	require.NoError(t, err)

	_, err = Write(dir, "20260101010101", "Second", ".sql", "-- two\n")
	require.Error(t, err)
	assert.True(t, errors.Is(err, migration.ErrDuplicateMigrationID))

	// The original script must be untouched.
	content, readErr := os.ReadFile(filepath.Join(dir, Filename("20260101010101", "First", ".sql")))
	require.NoError(t, readErr)
	assert.Equal(t, "-- one\n", string(content))
}

func TestPending(t *testing.T) {
	entries := []Entry{
		{ID: "1", Name: "a"},
		{ID: "2", Name: "b"},
		{ID: "3", Name: "c"},
	}
	applied := map[string]bool{"1": true, "3": true}

	pending := Pending(entries, applied)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].Name)
}
