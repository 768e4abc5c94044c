package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/maclib/config"
	"github.com/c360studio/maclib/reconcile"
	"github.com/c360studio/maclib/storage"
)

// isolateCLI keeps the loader away from real user and project config.
func isolateCLI(t *testing.T) (home string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(config.EnvDataDir, "")
	t.Setenv(config.EnvHTTPAddr, "")
	t.Setenv(config.EnvNATSURL, "")
	t.Chdir(t.TempDir())
	return home
}

// runCLI executes the root command against dataDir and returns stdout.
func runCLI(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--data-dir", dataDir, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

const dirtyLibrary = `{
  "version": "2.7",
  "clusters": [{"id": "A", "name": "Alpha", "description": "", "order": 1}],
  "standards": [
    {"id": "A-1", "name": "first", "cluster": "A", "impacted_emotions": ["Praiseworthy", "Valence"]}
  ]
}`

func TestCLI_Version(t *testing.T) {
	isolateCLI(t)
	out, err := runCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}

func TestCLI_InfoCreatesDefaultLibrary(t *testing.T) {
	isolateCLI(t)
	dir := t.TempDir()

	out, err := runCLI(t, dir, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "Clusters:      15")
	assert.Contains(t, out, "Standards:     0")
	assert.FileExists(t, filepath.Join(dir, storage.LibraryFile))
}

func TestCLI_Validate(t *testing.T) {
	isolateCLI(t)
	dir := t.TempDir()

	out, err := runCLI(t, dir, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "0 error(s)")

	require.NoError(t, os.WriteFile(filepath.Join(dir, storage.LibraryFile), []byte(dirtyLibrary), 0644))
	out, err = runCLI(t, dir, "validate")
	require.Error(t, err)
	assert.Contains(t, out, "A-1")

	out, err = runCLI(t, dir, "validate", "--json")
	require.Error(t, err)
	var report struct {
		Findings []map[string]any `json:"findings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.NotEmpty(t, report.Findings)
}

func TestCLI_BackupCommands(t *testing.T) {
	isolateCLI(t)
	dir := t.TempDir()

	out, err := runCLI(t, dir, "backup", "create")
	require.NoError(t, err)
	name := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(name, storage.BackupPrefix), name)

	out, err = runCLI(t, dir, "backup", "list")
	require.NoError(t, err)
	assert.Contains(t, out, name)

	require.NoError(t, os.WriteFile(filepath.Join(dir, storage.LibraryFile), []byte(dirtyLibrary), 0644))
	_, err = runCLI(t, dir, "backup", "restore", name)
	require.NoError(t, err)
	out, err = runCLI(t, dir, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "Clusters:      15")

	upload := filepath.Join(t.TempDir(), "upload.json")
	require.NoError(t, os.WriteFile(upload, []byte(dirtyLibrary), 0644))
	_, err = runCLI(t, dir, "backup", "restore-file", upload)
	require.NoError(t, err)
	out, err = runCLI(t, dir, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "Clusters:      1\n")

	_, err = runCLI(t, dir, "backup", "restore", "../library.json")
	assert.Error(t, err)

	_, err = runCLI(t, dir, "backup", "delete", name)
	require.NoError(t, err)
	_, err = runCLI(t, dir, "backup", "delete", name)
	assert.Error(t, err)

	_, err = runCLI(t, dir, "backup", "create")
	require.NoError(t, err)
	out, err = runCLI(t, dir, "backup", "delete-all")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 1 backup(s)")
}

func TestCLI_ExportAndImport(t *testing.T) {
	isolateCLI(t)
	dir := t.TempDir()

	doc := `{
		"clusters": [{"id": "NEW", "name": "New", "order": 1}],
		"standards": [
			{"id": "NEW-1", "cluster": "NEW", "name": "one"},
			{"id": "ENH-1", "cluster": "ENH", "name": "two"}
		]
	}`
	src := filepath.Join(t.TempDir(), "import.json")
	require.NoError(t, os.WriteFile(src, []byte(doc), 0644))

	out, err := runCLI(t, dir, "import", src)
	require.NoError(t, err)
	var report reconcile.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.ClustersAdded)
	assert.Equal(t, 2, report.StandardsAdded)

	out, err = runCLI(t, dir, "export", "--cluster", "NEW")
	require.NoError(t, err)
	var exported struct {
		Clusters  []map[string]any `json:"clusters"`
		Standards []map[string]any `json:"standards"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &exported))
	assert.Len(t, exported.Clusters, 16)
	require.Len(t, exported.Standards, 1)
	assert.Equal(t, "NEW-1", exported.Standards[0]["id"])

	out, err = runCLI(t, dir, "export", "--out", "new.json", "--no-rationales")
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(dir, storage.ExportsDir, "new.json"), path)
	assert.FileExists(t, path)

	_, err = runCLI(t, dir, "import", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestCLI_Cleanup(t *testing.T) {
	isolateCLI(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, storage.LibraryFile), []byte(dirtyLibrary), 0644))

	out, err := runCLI(t, dir, "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "1 standard(s) updated")

	out, err = runCLI(t, dir, "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "0 standard(s) updated")
}

func TestCLI_ConfigInit(t *testing.T) {
	home := isolateCLI(t)

	out, err := runCLI(t, t.TempDir(), "config", "init")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, config.UserConfigDir, config.UserConfigFile), strings.TrimSpace(out))
}

func TestCLI_BadConfig(t *testing.T) {
	isolateCLI(t)
	bad := filepath.Join(t.TempDir(), "maclib.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("storage:\n  max_backups: -3\n"), 0644))

	_, err := runCLI(t, t.TempDir(), "--config", bad, "info")
	assert.ErrorContains(t, err, "load config")
}
