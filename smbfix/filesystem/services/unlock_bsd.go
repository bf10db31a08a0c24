//go:build darwin || freebsd

package services

import (
	"io/fs"
	"syscall"

	"github.com/Keav/smbfix/smbfix/filesystem/common"
	"github.com/Keav/smbfix/smbfix/filesystem/interfaces"

	"golang.org/x/sys/unix"
)

// FlagUnlockerService clears the user-immutable (uchg) flag, which blocks
// both renames and chmods on macOS and FreeBSD.
type FlagUnlockerService struct {
	enabled bool
}

// NewFlagUnlockerService creates an unlocker; a disabled one never touches flags
func NewFlagUnlockerService(enabled bool) *FlagUnlockerService {
	return &FlagUnlockerService{enabled: enabled}
}

// Unlock clears UF_IMMUTABLE on path if info shows it set. Symlinks are left alone.
func (u *FlagUnlockerService) Unlock(path string, info fs.FileInfo, dryRun bool) (bool, error) {
	if !u.enabled || info == nil || info.Mode()&fs.ModeSymlink != 0 {
		return false, nil
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok || st.Flags&unix.UF_IMMUTABLE == 0 {
		return false, nil
	}
	if dryRun {
		return true, nil
	}
	if err := unix.Chflags(path, int(st.Flags&^unix.UF_IMMUTABLE)); err != nil {
		return false, &common.UnlockError{Path: path, Err: err}
	}
	return true, nil
}

// Ensure FlagUnlockerService implements the interface
var _ interfaces.FlagUnlocker = (*FlagUnlockerService)(nil)
