package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLsFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	recDir := filepath.Join(dir, "_recordings")
	require.NoError(t, os.MkdirAll(recDir, 0o755))

	sample, err := os.ReadFile("testdata/show_sample.json")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(recDir, "pkg.TestA.json"), sample, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(recDir, "pkg.TestB.json"), sample, 0o644))
	// Stray JSON that is not a recording document.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"a":1}`), 0o644))
	return dir
}

func TestLs_Text(t *testing.T) {
	dir := writeLsFixture(t)
	out, _, err := execute(t, "ls", dir)
	require.NoError(t, err)

	assert.Contains(t, out, "pkg.TestA.json")
	assert.Contains(t, out, "pkg.TestB.json")
	assert.Contains(t, out, "components=2")
	assert.NotContains(t, out, "config.json", "non-recording JSON files are skipped")
}

func TestLs_JSON(t *testing.T) {
	dir := writeLsFixture(t)
	out, _, err := execute(t, "--format", "json", "ls", dir)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   []LsEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "2024-05-01T12:00:00Z", resp.Data[0].StartTime)
	assert.Equal(t, 2, resp.Data[0].Components)
}

func TestLs_VerboseNamesSkippedFiles(t *testing.T) {
	dir := writeLsFixture(t)
	_, errOut, err := execute(t, "--verbose", "ls", dir)
	require.NoError(t, err)
	assert.Contains(t, errOut, "config.json")
}

func TestLs_EmptyDir(t *testing.T) {
	out, _, err := execute(t, "ls", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "no recording files found")
}

func TestLs_NotADirectory(t *testing.T) {
	_, _, err := execute(t, "ls", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
