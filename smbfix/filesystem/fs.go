package filesystem

import (
	"context"
	"fmt"
	"time"

	"github.com/Keav/smbfix/smbfix/filesystem/common"
	"github.com/Keav/smbfix/smbfix/filesystem/options"
	"github.com/Keav/smbfix/smbfix/filesystem/rules"
	"github.com/Keav/smbfix/smbfix/filesystem/services"
	"github.com/Keav/smbfix/smbfix/filesystem/types"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
)

// FileSystem is the entry point for remediation runs. Each root gets its own
// sequential pass; independent roots run concurrently.
type FileSystem struct {
	fs     afero.Fs
	opts   options.RemediateOptions
	table  *rules.Table
	logger zerolog.Logger

	pathUtils  *common.PathUtils
	validation *common.ValidationUtils
	metrics    *common.PassMetrics
}

// New creates a filesystem manager. A nil fsys means the host filesystem.
func New(fsys afero.Fs, opts options.RemediateOptions, logger zerolog.Logger) (*FileSystem, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	table, err := rules.NewTable(opts.Rules)
	if err != nil {
		return nil, fmt.Errorf("invalid rule table: %w", err)
	}

	return &FileSystem{
		fs:         fsys,
		opts:       opts,
		table:      table,
		logger:     logger,
		pathUtils:  common.NewPathUtils(),
		validation: common.NewValidationUtils(fsys),
		metrics:    &common.PassMetrics{},
	}, nil
}

// Remediate runs one pass per root using the configured dry-run setting.
// Reports are returned in argument order.
func (dfs *FileSystem) Remediate(ctx context.Context, roots ...string) ([]*types.Report, error) {
	return dfs.run(ctx, dfs.opts.DryRun, roots)
}

// Preview runs a dry pass per root; nothing on disk changes.
func (dfs *FileSystem) Preview(ctx context.Context, roots ...string) ([]*types.Report, error) {
	return dfs.run(ctx, true, roots)
}

// Check returns the sanitized form of name and the rules it breaks.
func (dfs *FileSystem) Check(name string, kind types.EntryKind) (string, []rules.Violation) {
	return dfs.table.Sanitize(name, kind), dfs.table.Violations(name)
}

// Metrics returns aggregate pass metrics
func (dfs *FileSystem) Metrics() map[string]interface{} {
	return dfs.metrics.GetMetrics()
}

// run validates every root before any pass starts, so a bad argument never
// leaves the other roots half-processed.
func (dfs *FileSystem) run(ctx context.Context, dryRun bool, roots []string) ([]*types.Report, error) {
	if len(roots) == 0 {
		return nil, common.ErrPathEmpty
	}

	normalized := make([]string, len(roots))
	for i, root := range roots {
		if err := dfs.validation.ValidateRoot(root); err != nil {
			return nil, err
		}
		normalized[i] = dfs.pathUtils.NormalizePath(root)
	}
	if err := dfs.pathUtils.CheckDisjoint(normalized); err != nil {
		return nil, err
	}

	opts := dfs.opts
	opts.DryRun = dryRun

	reports := make([]*types.Report, len(normalized))
	p := pool.New().WithMaxGoroutines(min(opts.Workers, len(normalized))).WithContext(ctx)

	for i, root := range normalized {
		p.Go(func(ctx context.Context) error {
			start := time.Now()

			remediator, err := services.NewRemediatorService(dfs.fs, opts, dfs.logger)
			if err != nil {
				return err
			}

			report, err := remediator.Remediate(ctx, root)
			reports[i] = report

			if report != nil {
				dfs.metrics.UpdateMetrics(start, report.Summary.Visited, report.Summary.Changes(), report.Summary.Errors, err != nil)
			} else {
				dfs.metrics.UpdateMetrics(start, 0, 0, 0, true)
			}
			if err != nil {
				return fmt.Errorf("pass over %s: %w", root, err)
			}
			return nil
		})
	}

	err := p.Wait()
	dfs.logger.Debug().Interface("metrics", dfs.metrics.GetMetrics()).Msg("Runs finished")
	return reports, err
}
