// Package dotdir manages the .strata/ and ~/.strata directories.
//
// The directory holds config.toml, the dead-letter log, the shutdown spill
// file and, for the default sqlite provider, the durable database.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the strata directory.
	dirName = ".strata"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .strata/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.strata/ dir
//  3. Home ~/.strata/ dir
//
// The resolved directory is created if it does not exist.
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating strata directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// Path joins name onto the resolved target directory.
func (m *Manager) Path(overrideDir, name string) (string, error) {
	target, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}

	return filepath.Join(target, name), nil
}

// localDirExists checks whether a .strata/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
