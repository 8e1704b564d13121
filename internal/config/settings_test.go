package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_Missing(t *testing.T) {
	s, err := LoadSettings(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, &Settings{}, s)
}

func TestLoadSettings_Malformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SettingsFileName), []byte("{"), 0o600))

	_, err := LoadSettings(dir)
	require.Error(t, err)
}

func TestSaveSettings_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := &Settings{ProjectName: "Manuals", WatchLocation: "docs/manuals"}

	require.NoError(t, SaveSettings(dir, want))

	got, err := LoadSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	raw, err := os.ReadFile(filepath.Join(dir, SettingsFileName))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"projectName": "Manuals"`)
	assert.Contains(t, string(raw), `"watchLocation": "docs/manuals"`)

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFindSettings_WalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, SaveSettings(root, &Settings{ProjectName: "p"}))

	found, err := FindSettings(nested, "")
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	gotResolved, err := filepath.EvalSymlinks(found)
	require.NoError(t, err)
	assert.Equal(t, want, gotResolved)
}

func TestFindSettings_ProjectPathWins(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	require.NoError(t, SaveSettings(a, &Settings{ProjectName: "a"}))
	require.NoError(t, SaveSettings(b, &Settings{ProjectName: "b"}))

	found, err := FindSettings(a, b)
	require.NoError(t, err)
	assert.Equal(t, b, found)
}

func TestFindSettings_NotFound(t *testing.T) {
	_, err := FindSettings(t.TempDir(), "")
	// A settings file could exist in an ancestor of the temp dir on a
	// developer machine; only assert the error type when one is returned.
	if err != nil {
		assert.ErrorIs(t, err, ErrNoSettings)
	}
}

func TestResolveWatchRoot(t *testing.T) {
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	require.NoError(t, os.MkdirAll(docs, 0o755))

	t.Run("relative", func(t *testing.T) {
		s := &Settings{WatchLocation: "docs"}
		got, err := s.ResolveWatchRoot(root)
		require.NoError(t, err)
		assert.Equal(t, docs, got)
	})

	t.Run("absolute", func(t *testing.T) {
		s := &Settings{WatchLocation: docs}
		got, err := s.ResolveWatchRoot("/somewhere/else")
		require.NoError(t, err)
		assert.Equal(t, docs, got)
	})

	t.Run("missing", func(t *testing.T) {
		s := &Settings{}
		_, err := s.ResolveWatchRoot(root)
		assert.ErrorIs(t, err, ErrNoWatchRoot)
	})

	t.Run("not a directory", func(t *testing.T) {
		file := filepath.Join(root, "file.txt")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

		s := &Settings{WatchLocation: "file.txt"}
		_, err := s.ResolveWatchRoot(root)
		assert.ErrorIs(t, err, ErrNotDirectory)
	})
}

func TestRelativeWatchLocation(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "work", "project")

	assert.Equal(t, "docs/manuals", RelativeWatchLocation(root, filepath.Join(root, "docs", "manuals")))
	assert.Equal(t, ".", RelativeWatchLocation(root, root))

	outside := filepath.Join(string(filepath.Separator), "srv", "shared")
	assert.Equal(t, outside, RelativeWatchLocation(root, outside))
}
