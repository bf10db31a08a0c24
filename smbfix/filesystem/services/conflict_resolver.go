package services

import (
	"errors"
	"fmt"
	"os"

	"github.com/Keav/smbfix/smbfix/filesystem/common"
	"github.com/Keav/smbfix/smbfix/filesystem/interfaces"
	"github.com/Keav/smbfix/smbfix/filesystem/rules"
	"github.com/Keav/smbfix/smbfix/filesystem/types"

	"github.com/spf13/afero"
)

// ConflictResolverService resolves sibling name collisions by suffixing
type ConflictResolverService struct {
	fs          afero.Fs
	maxAttempts int
}

// NewConflictResolverService creates a new conflict resolver service
func NewConflictResolverService(fsys afero.Fs, maxAttempts int) *ConflictResolverService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &ConflictResolverService{fs: fsys, maxAttempts: maxAttempts}
}

// UniqueName claims name in taken, or the first "name (n)" variant that is
// free. Files keep their extension after the suffix.
func (cr *ConflictResolverService) UniqueName(dir, name string, kind types.EntryKind, taken *rules.NameSet) (string, error) {
	if taken.Claim(name) {
		return name, nil
	}
	for counter := 1; counter <= cr.maxAttempts; counter++ {
		candidate := rules.WithSuffix(name, kind, fmt.Sprintf(" (%d)", counter))
		if taken.Claim(candidate) {
			return candidate, nil
		}
	}
	return "", &common.NameCollisionError{Dir: dir, Name: name, Attempts: cr.maxAttempts}
}

// CheckTarget refuses to rename onto an existing entry. A target that is the
// same file as the source (normalisation-insensitive filesystems) is allowed.
func (cr *ConflictResolverService) CheckTarget(oldPath, newPath string) error {
	existing, err := lstat(cr.fs, newPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat target %s: %w", newPath, err)
	}
	if source, err := lstat(cr.fs, oldPath); err == nil && os.SameFile(source, existing) {
		return nil
	}
	return fmt.Errorf("%w: %s already exists", common.ErrNameCollision, newPath)
}

// lstat does not follow symlinks when the filesystem supports it
func lstat(fsys afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fsys.Stat(path)
}

// Ensure ConflictResolverService implements the interface
var _ interfaces.ConflictResolver = (*ConflictResolverService)(nil)
