package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func archiveFixture(t *testing.T) (dbPath, recPath string) {
	t.Helper()
	dir := t.TempDir()
	sample, err := os.ReadFile("testdata/show_sample.json")
	require.NoError(t, err)
	recPath = filepath.Join(dir, "pkg.TestA.json")
	require.NoError(t, os.WriteFile(recPath, sample, 0o644))
	return filepath.Join(dir, "catalog.db"), recPath
}

func TestArchive_PutGetRoundTrip(t *testing.T) {
	dbPath, recPath := archiveFixture(t)

	out, _, err := execute(t, "archive", "put", "--db", dbPath, recPath)
	require.NoError(t, err)
	assert.Contains(t, out, "imported pkg.TestA.json")

	out, _, err = execute(t, "archive", "get", "--db", dbPath, "pkg.TestA.json")
	require.NoError(t, err)
	original, err := os.ReadFile(recPath)
	require.NoError(t, err)
	assert.Equal(t, string(original), out, "get returns the document byte for byte")
}

func TestArchive_GetToFile(t *testing.T) {
	dbPath, recPath := archiveFixture(t)
	_, _, err := execute(t, "archive", "put", "--db", dbPath, recPath)
	require.NoError(t, err)

	outPath := filepath.Join(t.TempDir(), "out.json")
	_, _, err = execute(t, "archive", "get", "--db", dbPath, "-o", outPath, "pkg.TestA.json")
	require.NoError(t, err)

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	original, err := os.ReadFile(recPath)
	require.NoError(t, err)
	assert.Equal(t, original, got)
}

func TestArchive_PutWithNameOverride(t *testing.T) {
	dbPath, recPath := archiveFixture(t)
	_, _, err := execute(t, "archive", "put", "--db", dbPath, "--name", "renamed", recPath)
	require.NoError(t, err)

	out, _, err := execute(t, "archive", "ls", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "renamed")
	assert.NotContains(t, out, "pkg.TestA.json")
}

func TestArchive_PutNameRequiresSingleFile(t *testing.T) {
	dbPath, recPath := archiveFixture(t)
	_, _, err := execute(t, "archive", "put", "--db", dbPath, "--name", "x", recPath, recPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestArchive_LsJSON(t *testing.T) {
	dbPath, recPath := archiveFixture(t)
	_, _, err := execute(t, "archive", "put", "--db", dbPath, recPath)
	require.NoError(t, err)

	out, _, err := execute(t, "--format", "json", "archive", "ls", "--db", dbPath)
	require.NoError(t, err)

	var resp struct {
		Status string             `json:"status"`
		Data   []archiveEntryView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "pkg.TestA.json", resp.Data[0].Name)
	assert.Equal(t, 2, resp.Data[0].Components)
	assert.Len(t, resp.Data[0].SHA256, 64)
}

func TestArchive_Rm(t *testing.T) {
	dbPath, recPath := archiveFixture(t)
	_, _, err := execute(t, "archive", "put", "--db", dbPath, recPath)
	require.NoError(t, err)

	out, _, err := execute(t, "archive", "rm", "--db", dbPath, "pkg.TestA.json")
	require.NoError(t, err)
	assert.Contains(t, out, "removed pkg.TestA.json")

	_, _, err = execute(t, "archive", "rm", "--db", dbPath, "pkg.TestA.json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestArchive_GetMissingEntry(t *testing.T) {
	dbPath, recPath := archiveFixture(t)
	_, _, err := execute(t, "archive", "put", "--db", dbPath, recPath)
	require.NoError(t, err)

	_, _, err = execute(t, "archive", "get", "--db", dbPath, "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestArchive_PutRejectsNonRecording(t *testing.T) {
	dbPath, _ := archiveFixture(t)
	junk := filepath.Join(t.TempDir(), "junk.json")
	require.NoError(t, os.WriteFile(junk, []byte("not json"), 0o644))

	_, _, err := execute(t, "archive", "put", "--db", dbPath, junk)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
