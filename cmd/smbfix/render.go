package main

import (
	"encoding/json"
	"path/filepath"

	"github.com/Keav/smbfix/smbfix/filesystem/common"
	"github.com/Keav/smbfix/smbfix/filesystem/types"
)

func (a *app) render(reports []*types.Report) {
	if a.format == "json" {
		a.renderJSON(reports)
		return
	}
	for _, r := range reports {
		if r != nil {
			a.renderText(r)
		}
	}
}

func (a *app) renderJSON(reports []*types.Report) {
	present := make([]*types.Report, 0, len(reports))
	for _, r := range reports {
		if r != nil {
			present = append(present, r)
		}
	}
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(present); err != nil {
		a.ui.Error("failed to encode report", err)
	}
}

func (a *app) renderText(r *types.Report) {
	header := r.Root
	if r.DryRun {
		header += " (dry run)"
	}
	a.ui.Output(header)

	for _, rec := range r.Records {
		rel := relTo(r.Root, rec.Path)
		if rec.Renamed() {
			a.ui.Outputf("  rename  %s -> %s", rel, relTo(r.Root, rec.NewPath))
		}
		if rec.Perm != nil {
			a.ui.Outputf("  chmod   %s %04o -> %04o", rel, rec.Perm.Old.Perm(), rec.Perm.New.Perm())
		}
		if rec.Unlocked {
			a.ui.Outputf("  unlock  %s", rel)
		}
		if rec.Excluded {
			a.ui.Outputf("  skip    %s", rel)
		}
		if rec.Err != nil {
			a.ui.Error(rel, rec.Err)
		}
	}

	s := r.Summary
	a.ui.Outputf("%d visited, %d renamed, %d permissions changed, %d unlocked, %d excluded, %d errors (%s)",
		s.Visited, s.Renamed, s.PermChanged, s.Unlocked, s.Excluded, s.Errors, common.FormatDuration(r.Duration()))
}

func relTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}
