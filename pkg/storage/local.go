package storage

import (
	"os"

	"github.com/asterlearn/aster-backend/pkg/pathsafe"
)

// LocalStore serves asset files from a directory on disk. Every lookup
// goes through pathsafe twice: the string blacklist, then the resolved
// prefix check against the base directory.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates a LocalStore rooted at baseDir
func NewLocalStore(baseDir string) *LocalStore {
	return &LocalStore{baseDir: baseDir}
}

// Resolve validates relPath and returns the absolute on-disk path.
// It fails with pathsafe.ErrUnsafePath for anything that would escape
// the base directory, and os-level errors only after validation.
func (s *LocalStore) Resolve(relPath string) (string, error) {
	if err := pathsafe.ValidateOrErr(relPath); err != nil {
		return "", err
	}
	return pathsafe.WithinBase(s.baseDir, relPath)
}

// Stat reports whether the resolved file exists and its size
func (s *LocalStore) Stat(absPath string) (int64, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, os.ErrNotExist
	}
	return info.Size(), nil
}
