package platform

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrRootNotFound is returned by FindRoot when no vault marker exists above the start dir.
var ErrRootNotFound = errors.New("vault root not found")

// FindRoot walks upwards from startDir looking for a vault marker: the system
// directory (".arbor" unless systemDir says otherwise) or a .git directory.
func FindRoot(startDir, systemDir string) (string, error) {
	if systemDir == "" {
		systemDir = DefaultSystemDir
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		if exists(filepath.Join(dir, systemDir)) || exists(filepath.Join(dir, ".git")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrRootNotFound
		}
		dir = parent
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
