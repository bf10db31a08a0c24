//go:build !darwin && !freebsd

package services

import (
	"io/fs"

	"github.com/Keav/smbfix/smbfix/filesystem/interfaces"
)

// FlagUnlockerService is a no-op where file flags do not exist
type FlagUnlockerService struct {
	enabled bool
}

// NewFlagUnlockerService creates an unlocker; on this platform it never changes anything
func NewFlagUnlockerService(enabled bool) *FlagUnlockerService {
	return &FlagUnlockerService{enabled: enabled}
}

// Unlock always reports that nothing was unlocked
func (u *FlagUnlockerService) Unlock(string, fs.FileInfo, bool) (bool, error) {
	return false, nil
}

// Ensure FlagUnlockerService implements the interface
var _ interfaces.FlagUnlocker = (*FlagUnlockerService)(nil)
