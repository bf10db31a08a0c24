package services

import (
	"io/fs"
	"os"

	"github.com/Keav/smbfix/smbfix/filesystem/common"
	"github.com/Keav/smbfix/smbfix/filesystem/interfaces"
	"github.com/Keav/smbfix/smbfix/filesystem/options"
	"github.com/Keav/smbfix/smbfix/filesystem/types"

	"github.com/spf13/afero"
)

const specialBits = os.ModeSetuid | os.ModeSetgid | os.ModeSticky

// PermissionService normalises permission bits to a baseline policy
type PermissionService struct {
	fs     afero.Fs
	policy options.PermissionPolicy
}

// NewPermissionService creates a permission service. Execute bits are removed
// from the required file bits.
func NewPermissionService(fsys afero.Fs, policy options.PermissionPolicy) *PermissionService {
	policy.DirRequired = policy.DirRequired.Perm()
	policy.DirForbidden = policy.DirForbidden.Perm()
	policy.FileRequired = policy.FileRequired.Perm() &^ 0o111
	policy.FileForbidden = policy.FileForbidden.Perm()
	return &PermissionService{fs: fsys, policy: policy}
}

// Target returns the permission bits mode should have. Kinds other than
// files and directories keep their bits.
func (ps *PermissionService) Target(kind types.EntryKind, mode fs.FileMode) fs.FileMode {
	perm := mode.Perm()
	if !ps.policy.Enabled {
		return perm
	}
	switch kind {
	case types.KindDirectory:
		return (perm | ps.policy.DirRequired) &^ ps.policy.DirForbidden
	case types.KindFile:
		return (perm | ps.policy.FileRequired) &^ ps.policy.FileForbidden
	default:
		return perm
	}
}

// Normalize applies Target to path. It returns nil when the entry already
// complies. Setuid, setgid and sticky bits are preserved.
func (ps *PermissionService) Normalize(path string, kind types.EntryKind, mode fs.FileMode, dryRun bool) (*types.PermChange, error) {
	target := ps.Target(kind, mode)
	if target == mode.Perm() {
		return nil, nil
	}
	if !dryRun {
		if err := ps.fs.Chmod(path, mode&specialBits|target); err != nil {
			return nil, &common.PermissionChangeError{Path: path, From: mode.Perm(), To: target, Err: err}
		}
	}
	return &types.PermChange{Old: mode.Perm(), New: target}, nil
}

// Ensure PermissionService implements the interface
var _ interfaces.PermissionNormalizer = (*PermissionService)(nil)
