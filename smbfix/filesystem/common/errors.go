package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/afero"
)

// Sentinel errors matched with errors.Is
var (
	ErrNotFound         = errors.New("not found")
	ErrNotADirectory    = errors.New("not a directory")
	ErrRename           = errors.New("rename failed")
	ErrPermissionChange = errors.New("permission change failed")
	ErrNameCollision    = errors.New("name collision")
	ErrUnlock           = errors.New("unlock failed")
	ErrOverlappingRoots = errors.New("roots overlap")
	ErrPathEmpty        = errors.New("path cannot be empty")
	// ErrPreviewIncomplete marks a directory a dry run could not list because
	// its permissions are not fixed yet.
	ErrPreviewIncomplete = errors.New("contents not previewed until permissions are fixed")
)

// NotFoundError is fatal: the root does not exist.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("root %s does not exist", e.Path)
}

func (e *NotFoundError) Unwrap() []error { return []error{ErrNotFound, e.Err} }

// NotADirectoryError is fatal: the root is not a directory.
type NotADirectoryError struct {
	Path string
}

func (e *NotADirectoryError) Error() string {
	return fmt.Sprintf("root %s is not a directory", e.Path)
}

func (e *NotADirectoryError) Unwrap() error { return ErrNotADirectory }

// RenameError is recorded per entry; the pass continues.
type RenameError struct {
	Path   string
	Target string
	Err    error
}

func (e *RenameError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("rename %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("rename %s -> %s: %v", e.Path, e.Target, e.Err)
}

func (e *RenameError) Unwrap() []error { return []error{ErrRename, e.Err} }

// PermissionChangeError is recorded per entry; the pass continues.
type PermissionChangeError struct {
	Path string
	From fs.FileMode
	To   fs.FileMode
	Err  error
}

func (e *PermissionChangeError) Error() string {
	return fmt.Sprintf("chmod %s %04o -> %04o: %v", e.Path, e.From.Perm(), e.To.Perm(), e.Err)
}

func (e *PermissionChangeError) Unwrap() []error { return []error{ErrPermissionChange, e.Err} }

// NameCollisionError means no unique sibling name was found within the
// attempt budget. It reaches the report wrapped in a RenameError.
type NameCollisionError struct {
	Dir      string
	Name     string
	Attempts int
}

func (e *NameCollisionError) Error() string {
	return fmt.Sprintf("no free name for %q in %s after %d attempts", e.Name, e.Dir, e.Attempts)
}

func (e *NameCollisionError) Unwrap() error { return ErrNameCollision }

// UnlockError is recorded per entry when the immutable flag cannot be cleared.
type UnlockError struct {
	Path string
	Err  error
}

func (e *UnlockError) Error() string {
	return fmt.Sprintf("unlock %s: %v", e.Path, e.Err)
}

func (e *UnlockError) Unwrap() []error { return []error{ErrUnlock, e.Err} }

// ValidationUtils provides common validation utilities used across packages
type ValidationUtils struct {
	fs afero.Fs
}

// NewValidationUtils creates a new ValidationUtils instance
func NewValidationUtils(fsys afero.Fs) *ValidationUtils {
	return &ValidationUtils{fs: fsys}
}

// ValidateRoot checks that path exists and is a directory. Symlinks to
// directories are accepted as roots.
func (vu *ValidationUtils) ValidateRoot(path string) error {
	if path == "" {
		return ErrPathEmpty
	}
	info, err := vu.fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &NotFoundError{Path: path, Err: err}
		}
		return fmt.Errorf("failed to access root %s: %w", path, err)
	}
	if !info.IsDir() {
		return &NotADirectoryError{Path: path}
	}
	return nil
}

// IsFatal reports whether err must stop the run instead of being recorded.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotADirectory) ||
		errors.Is(err, ErrOverlappingRoots) || errors.Is(err, ErrPathEmpty)
}
