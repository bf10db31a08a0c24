package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Keav/smbfix/smbfix/filesystem/common"
	"github.com/Keav/smbfix/smbfix/filesystem/interfaces"
	"github.com/Keav/smbfix/smbfix/filesystem/options"
	"github.com/Keav/smbfix/smbfix/filesystem/rules"
	"github.com/Keav/smbfix/smbfix/filesystem/types"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// RemediatorService walks one tree depth-first and repairs names and
// permissions. A pass is strictly sequential: a directory's contents are
// renamed before the directory itself.
type RemediatorService struct {
	fs         afero.Fs
	table      *rules.Table
	resolver   interfaces.ConflictResolver
	perms      interfaces.PermissionNormalizer
	unlocker   interfaces.FlagUnlocker
	validation *common.ValidationUtils
	pathUtils  *common.PathUtils
	opts       options.RemediateOptions
	logger     zerolog.Logger
}

// NewRemediatorService wires a remediator from options.
func NewRemediatorService(fsys afero.Fs, opts options.RemediateOptions, logger zerolog.Logger) (*RemediatorService, error) {
	table, err := rules.NewTable(opts.Rules)
	if err != nil {
		return nil, err
	}
	return &RemediatorService{
		fs:         fsys,
		table:      table,
		resolver:   NewConflictResolverService(fsys, opts.MaxSuffixAttempts),
		perms:      NewPermissionService(fsys, opts.Permissions),
		unlocker:   NewFlagUnlockerService(opts.UnlockImmutable),
		validation: common.NewValidationUtils(fsys),
		pathUtils:  common.NewPathUtils(),
		opts:       opts,
		logger:     logger.With().Str("component", "remediator").Logger(),
	}, nil
}

// pass is the state of one run. Nothing in it outlives the run.
type pass struct {
	root     string
	report   *types.Report
	excludes *ExcludeMatcher
}

// planned is the rename decided for one directory entry
type planned struct {
	target string
	err    error
}

// Remediate runs one pass over root. Only root validation, an unreadable
// ignore file and cancellation are returned as errors; everything else is
// recorded in the report.
func (rs *RemediatorService) Remediate(ctx context.Context, root string) (*types.Report, error) {
	root = rs.pathUtils.NormalizePath(root)
	if err := rs.validation.ValidateRoot(root); err != nil {
		return nil, err
	}

	excludes, err := LoadExcludes(rs.fs, root, rs.opts.IgnoreFile, rs.opts.Excludes)
	if err != nil {
		return nil, err
	}

	st := &pass{
		root:     root,
		report:   types.NewReport(root, rs.opts.DryRun),
		excludes: excludes,
	}

	rs.logger.Info().
		Str("root", root).
		Str("run", st.report.ID.String()).
		Bool("dryRun", rs.opts.DryRun).
		Msg("Starting remediation pass")

	info, err := rs.fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root %s: %w", root, err)
	}

	walkErr := rs.visitRoot(ctx, st, info)
	st.report.Finalize()

	s := st.report.Summary
	rs.logger.Info().
		Str("root", root).
		Int("visited", s.Visited).
		Int("renamed", s.Renamed).
		Int("permChanged", s.PermChanged).
		Int("errors", s.Errors).
		Dur("took", st.report.Duration()).
		Msg("Remediation pass finished")

	return st.report, walkErr
}

// visitRoot fixes the root's own flags and permissions; the root is never renamed.
func (rs *RemediatorService) visitRoot(ctx context.Context, st *pass, info os.FileInfo) error {
	entry := types.Entry{
		Path: st.root,
		Name: filepath.Base(st.root),
		Mode: info.Mode(),
		Kind: types.KindDirectory,
	}
	return rs.visit(ctx, st, entry, info, planned{})
}

// walkDir processes the children of dir in lexicographic order. A directory
// that cannot be listed is an error for that directory only.
func (rs *RemediatorService) walkDir(ctx context.Context, st *pass, dir string) error {
	infos, err := afero.ReadDir(rs.fs, dir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	entries := make([]types.Entry, len(infos))
	for i, info := range infos {
		entries[i] = types.NewEntry(st.root, filepath.Join(dir, info.Name()), info)
	}

	plan, excluded := rs.planNames(st, dir, entries)

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		if excluded[entry.Name] {
			rs.logger.Debug().Str("path", entry.Path).Msg("Excluded")
			rs.emit(types.EventExcluded, entry.Path, "", nil)
			rs.record(st, types.Record{Path: entry.Path, Kind: entry.Kind, Excluded: true})
			continue
		}

		if err := rs.visit(ctx, st, entry, infos[i], plan[entry.Name]); err != nil {
			return err
		}
	}
	return nil
}

// planNames decides every rename in dir before anything is touched. Names
// that are already legal (and excluded entries) are claimed first so they
// never move; the rest are claimed in lexicographic order, so the first of
// several colliding names keeps the unsuffixed form.
func (rs *RemediatorService) planNames(st *pass, dir string, entries []types.Entry) (map[string]planned, map[string]bool) {
	taken := rules.NewNameSet(rs.opts.CaseInsensitive)
	plan := make(map[string]planned)
	excluded := make(map[string]bool)
	var pending []types.Entry

	for _, entry := range entries {
		if st.excludes.MatchesEntry(filepath.Join(entry.Segments...), entry.IsDir()) {
			excluded[entry.Name] = true
			taken.Claim(entry.Name)
			continue
		}

		if rs.table.Sanitize(entry.Name, entry.Kind) == entry.Name && taken.Claim(entry.Name) {
			continue
		}
		pending = append(pending, entry)
	}

	for _, entry := range pending {
		target := rs.table.Sanitize(entry.Name, entry.Kind)

		unique, err := rs.resolver.UniqueName(dir, target, entry.Kind, taken)
		if err != nil {
			plan[entry.Name] = planned{err: &common.RenameError{Path: entry.Path, Target: target, Err: err}}
			continue
		}
		plan[entry.Name] = planned{target: unique}
	}
	return plan, excluded
}

// visit handles one entry. Directories get their permissions fixed before
// descending (the walk needs to read them) and are renamed after.
func (rs *RemediatorService) visit(ctx context.Context, st *pass, entry types.Entry, info os.FileInfo, p planned) error {
	rec := types.Record{Path: entry.Path, Kind: entry.Kind}
	var errs []error

	rec.Unlocked = rs.unlock(entry.Path, info, &errs)
	rec.Perm = rs.normalize(entry.Path, entry.Kind, entry.Mode, &errs)

	if entry.IsDir() {
		if err := rs.walkDir(ctx, st, entry.Path); err != nil {
			if ctx.Err() != nil {
				// Canceled mid-subtree: leave this directory's name alone.
				rec.Err = errors.Join(errs...)
				rs.record(st, rec)
				return err
			}
			if rs.opts.DryRun && rec.Perm != nil {
				// The real pass chmods first and may then be able to list it.
				err = fmt.Errorf("%w: %w", common.ErrPreviewIncomplete, err)
			}
			rs.logger.Warn().Err(err).Str("path", entry.Path).Msg("Failed to read directory")
			rs.emit(types.EventFailed, entry.Path, "", err)
			errs = append(errs, err)
		}
	}

	switch {
	case p.err != nil:
		rs.logger.Warn().Err(p.err).Str("path", entry.Path).Msg("No unique name available")
		rs.emit(types.EventFailed, entry.Path, "", p.err)
		errs = append(errs, p.err)
	case p.target != "":
		newPath := filepath.Join(filepath.Dir(entry.Path), p.target)
		if err := rs.rename(entry.Path, newPath); err != nil {
			errs = append(errs, err)
		} else {
			rec.NewPath = newPath
		}
	}

	rec.Err = errors.Join(errs...)
	rs.record(st, rec)
	return nil
}

func (rs *RemediatorService) unlock(path string, info os.FileInfo, errs *[]error) bool {
	unlocked, err := rs.unlocker.Unlock(path, info, rs.opts.DryRun)
	if err != nil {
		*errs = append(*errs, err)
		rs.logger.Warn().Err(err).Str("path", path).Msg("Failed to unlock")
		rs.emit(types.EventFailed, path, "", err)
		return false
	}
	if unlocked {
		rs.logger.Debug().Str("path", path).Msg("Unlocked")
		rs.emit(types.EventUnlocked, path, "", nil)
	}
	return unlocked
}

func (rs *RemediatorService) normalize(path string, kind types.EntryKind, mode os.FileMode, errs *[]error) *types.PermChange {
	change, err := rs.perms.Normalize(path, kind, mode, rs.opts.DryRun)
	if err != nil {
		*errs = append(*errs, err)
		rs.logger.Warn().Err(err).Str("path", path).Msg("Failed to change permissions")
		rs.emit(types.EventFailed, path, "", err)
		return nil
	}
	if change != nil {
		rs.logger.Debug().
			Str("path", path).
			Str("from", fmt.Sprintf("%04o", change.Old)).
			Str("to", fmt.Sprintf("%04o", change.New)).
			Msg("Permissions normalised")
		rs.emit(types.EventPermChanged, path, "", nil)
	}
	return change
}

func (rs *RemediatorService) rename(oldPath, newPath string) error {
	if rs.opts.DryRun {
		rs.emit(types.EventRenamed, oldPath, newPath, nil)
		return nil
	}

	err := rs.resolver.CheckTarget(oldPath, newPath)
	if err == nil {
		err = rs.fs.Rename(oldPath, newPath)
	}
	if err != nil {
		renameErr := &common.RenameError{Path: oldPath, Target: newPath, Err: err}
		rs.logger.Warn().Err(err).Str("path", oldPath).Str("target", newPath).Msg("Failed to rename")
		rs.emit(types.EventFailed, oldPath, newPath, renameErr)
		return renameErr
	}

	rs.logger.Debug().Str("path", oldPath).Str("target", newPath).Msg("Renamed")
	rs.emit(types.EventRenamed, oldPath, newPath, nil)
	return nil
}

// record counts the visit and keeps the record when something happened.
func (rs *RemediatorService) record(st *pass, rec types.Record) {
	st.report.Visit()
	if rec.Renamed() || rec.Perm != nil || rec.Unlocked || rec.Excluded || rec.Err != nil {
		st.report.Add(rec)
	}
}

func (rs *RemediatorService) emit(kind types.EventType, path, target string, err error) {
	if rs.opts.EventCallback == nil {
		return
	}
	ev := types.Event{Type: kind, Timestamp: time.Now(), Path: path, Target: target}
	if err != nil {
		ev.Error = err.Error()
	}
	rs.opts.EventCallback(ev)
}

// Ensure RemediatorService implements the interface
var _ interfaces.Remediator = (*RemediatorService)(nil)
