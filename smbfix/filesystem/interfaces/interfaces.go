package interfaces

import (
	"context"
	"io/fs"

	"github.com/Keav/smbfix/smbfix/filesystem/rules"
	"github.com/Keav/smbfix/smbfix/filesystem/types"
)

// Remediator runs one pass over one root
type Remediator interface {
	Remediate(ctx context.Context, root string) (*types.Report, error)
}

// ConflictResolver picks unique sibling names
type ConflictResolver interface {
	UniqueName(dir, name string, kind types.EntryKind, taken *rules.NameSet) (string, error)
	CheckTarget(oldPath, newPath string) error
}

// PermissionNormalizer raises modes to the baseline policy
type PermissionNormalizer interface {
	Target(kind types.EntryKind, mode fs.FileMode) fs.FileMode
	Normalize(path string, kind types.EntryKind, mode fs.FileMode, dryRun bool) (*types.PermChange, error)
}

// FlagUnlocker clears flags that block renames and chmods
type FlagUnlocker interface {
	Unlock(path string, info fs.FileInfo, dryRun bool) (bool, error)
}

// IgnoreChecker interface for exclusion patterns
type IgnoreChecker interface {
	MatchesPath(path string) bool
}
