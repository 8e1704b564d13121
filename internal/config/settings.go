package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SettingsFileName is the per-project settings file kept in the project root.
const SettingsFileName = "document-sync.json"

const settingsFilePerms = 0o644

// Configuration errors. These are fatal to the requested operation.
var (
	ErrNoProject    = errors.New("config: no project name configured")
	ErrNoWatchRoot  = errors.New("config: no watch location configured")
	ErrNoSettings   = errors.New("config: no " + SettingsFileName + " found")
	ErrNotDirectory = errors.New("config: watch location is not a directory")
)

// Settings is the content of document-sync.json. Both fields are optional.
type Settings struct {
	ProjectName   string `json:"projectName,omitempty"`
	WatchLocation string `json:"watchLocation,omitempty"`
}

// LoadSettings reads document-sync.json from projectRoot. A missing file
// yields empty Settings and no error.
func LoadSettings(projectRoot string) (*Settings, error) {
	path := filepath.Join(projectRoot, SettingsFileName)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Settings{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	return &s, nil
}

// SaveSettings writes document-sync.json into projectRoot atomically.
func SaveSettings(projectRoot string, s *Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encoding settings: %w", err)
	}

	data = append(data, '\n')

	return WriteFileAtomic(filepath.Join(projectRoot, SettingsFileName), data, settingsFilePerms)
}

// FindSettings walks up from start looking for document-sync.json and
// returns the directory containing it. When projectPath (PROJECT_PATH) is
// set, the search starts there instead of start.
func FindSettings(start, projectPath string) (string, error) {
	dir := start
	if projectPath != "" {
		dir = projectPath
	}

	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("config: resolving %s: %w", dir, err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, SettingsFileName)); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoSettings
		}

		dir = parent
	}
}

// ResolveWatchRoot turns the stored watchLocation into an absolute path.
// Relative locations are joined to projectRoot; absolute ones are accepted
// as-is for compatibility with older settings files.
func (s *Settings) ResolveWatchRoot(projectRoot string) (string, error) {
	if s.WatchLocation == "" {
		return "", ErrNoWatchRoot
	}

	root := s.WatchLocation
	if !filepath.IsAbs(root) {
		root = filepath.Join(projectRoot, filepath.FromSlash(root))
	}

	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("config: watch location %s: %w", root, err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	return filepath.Clean(root), nil
}

// RelativeWatchLocation converts an absolute directory chosen by the user
// into the form stored in settings: forward-slash relative to projectRoot
// when inside it, absolute otherwise.
func RelativeWatchLocation(projectRoot, dir string) string {
	rel, err := filepath.Rel(projectRoot, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return dir
	}

	return filepath.ToSlash(rel)
}

// WriteFileAtomic writes data to path through a temp file in the same
// directory followed by rename, so readers see either the old or the new
// content and never a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("config: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, perm); err != nil {
		tmp.Close()
		return fmt.Errorf("config: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config: writing %s: %w", path, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("config: syncing %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: closing %s: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("config: renaming into %s: %w", path, err)
	}

	success = true

	return nil
}
