package options

import (
	"fmt"
	"os"

	"github.com/Keav/smbfix/smbfix/config"
	"github.com/Keav/smbfix/smbfix/filesystem/rules"
	"github.com/Keav/smbfix/smbfix/filesystem/types"

	internal "github.com/Keav/smbfix/smbfix"
)

// PermissionPolicy is the baseline every file and directory is raised to.
// A normalised mode is (mode | Required) &^ Forbidden.
type PermissionPolicy struct {
	Enabled       bool
	DirRequired   os.FileMode
	DirForbidden  os.FileMode
	FileRequired  os.FileMode // execute bits are never added to files
	FileForbidden os.FileMode
}

// RemediateOptions configures one remediation pass
type RemediateOptions struct {
	DryRun            bool              // Report what would change without touching the tree
	CaseInsensitive   bool              // Siblings differing only in case collide
	MaxSuffixAttempts int               // Bound on " (n)" suffixes tried per collision
	Permissions       PermissionPolicy  // Baseline permission policy
	Excludes          []string          // gitignore-style patterns relative to the root
	IgnoreFile        string            // Extra patterns read from this file in the root
	UnlockImmutable   bool              // Clear the user-immutable flag where supported
	Workers           int               // Concurrent roots
	EventCallback     func(types.Event) // Event notification
	Rules             rules.Options     // Name rule table options
}

// DefaultPermissionPolicy returns owner rwx on directories and owner rw on files.
func DefaultPermissionPolicy() PermissionPolicy {
	return PermissionPolicy{
		Enabled:      true,
		DirRequired:  os.FileMode(internal.DefaultDirRequiredMode),
		FileRequired: os.FileMode(internal.DefaultFileRequiredMode),
	}
}

// DefaultRemediateOptions returns sensible defaults for a remediation pass
func DefaultRemediateOptions() RemediateOptions {
	return RemediateOptions{
		DryRun:            false,
		CaseInsensitive:   true,
		MaxSuffixAttempts: internal.DefaultMaxSuffixAttempts,
		Permissions:       DefaultPermissionPolicy(),
		Excludes:          append([]string(nil), internal.DefaultExcludes...),
		IgnoreFile:        internal.DefaultIgnoreFile,
		UnlockImmutable:   true,
		Workers:           internal.DefaultWorkers,
		Rules:             rules.DefaultOptions(),
	}
}

// FromConfig converts a loaded configuration into pass options.
func FromConfig(cfg *config.Config) (RemediateOptions, error) {
	opts := DefaultRemediateOptions()

	dirReq, dirForb, err := cfg.Permissions.DirModes()
	if err != nil {
		return opts, err
	}
	fileReq, fileForb, err := cfg.Permissions.FileModes()
	if err != nil {
		return opts, err
	}

	replacement := []rune(cfg.Rules.Replacement)
	if len(replacement) != 1 {
		return opts, fmt.Errorf("%w: rules.replacement must be a single character", config.ErrInvalidConfig)
	}

	opts.DryRun = cfg.Traversal.DryRun
	opts.CaseInsensitive = cfg.Rules.CaseInsensitive
	opts.MaxSuffixAttempts = cfg.Rules.MaxSuffixAttempts
	opts.Permissions = PermissionPolicy{
		Enabled:       cfg.Permissions.Enabled,
		DirRequired:   dirReq,
		DirForbidden:  dirForb,
		FileRequired:  fileReq,
		FileForbidden: fileForb,
	}
	opts.Excludes = append([]string(nil), cfg.Traversal.Exclude...)
	opts.IgnoreFile = cfg.Traversal.IgnoreFile
	opts.UnlockImmutable = cfg.Traversal.UnlockImmutable
	opts.Workers = cfg.Traversal.Workers
	opts.Rules = rules.Options{
		Replacement:   replacement[0],
		StrictCharset: cfg.Rules.StrictCharset,
	}
	return opts, nil
}
