package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	internal "github.com/Keav/smbfix/smbfix"
	"github.com/Keav/smbfix/smbfix/config"
	"github.com/Keav/smbfix/smbfix/filesystem"
	"github.com/Keav/smbfix/smbfix/filesystem/common"
	"github.com/Keav/smbfix/smbfix/filesystem/options"
	"github.com/Keav/smbfix/smbfix/filesystem/types"
	"github.com/Keav/smbfix/smbfix/ports"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// app holds what one invocation needs. Tests swap the streams and filesystem.
type app struct {
	v      *viper.Viper
	fs     afero.Fs
	ui     ports.Interactor
	stdout io.Writer
	stderr io.Writer

	configPath string
	format     string
	yes        bool
	strict     bool
	verbose    bool
	noCaseFold bool
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		v:      config.New(),
		fs:     afero.NewOsFs(),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	a.ui = newTerminal(os.Stdin, a.stdout, a.stderr)
	return a.execute(ctx, args)
}

func (a *app) execute(ctx context.Context, args []string) int {
	cmd := a.newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	err := cmd.ExecuteContext(ctx)
	code := exitCode(err)
	if err != nil && code != exitPartial {
		fmt.Fprintln(a.stderr, "Error:", err)
		if code == exitUsage {
			fmt.Fprintln(a.stderr, "Run 'smbfix --help' for usage.")
		}
	}
	return code
}

func (a *app) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   internal.DefaultAppCMDShortCut + " [flags] <directory> [directory...]",
		Short: "Make file and directory names safe for SMB shares",
		Long: `smbfix walks each directory tree, renames entries whose names SMB cannot
store (reserved characters, device names, trailing dots and spaces, overlong
names) and raises permissions to a usable baseline.

Unless --yes or --dry-run is given, a preview is shown first and the changes
are applied only after confirmation.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usageErrorf("at least one directory is required")
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRemediate(cmd.Context(), args)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: exitUsage, err: err}
	})

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default is ./config.yaml, $HOME/.config/smbfix/config.yaml or /etc/smbfix/config.yaml)")
	pf.String("log-level", internal.DefaultLogLevel, "log level (trace, debug, info, warn, error)")
	pf.String("replacement", internal.DefaultReplacement, "character substituted for illegal ones")
	pf.BoolVar(&a.noCaseFold, "no-case-fold", false, "treat names differing only in case as distinct")

	f := cmd.Flags()
	f.Bool("dry-run", false, "report what would change without touching anything")
	f.BoolVarP(&a.yes, "yes", "y", false, "apply changes without confirmation")
	f.StringVar(&a.format, "format", "text", "output format (text or json)")
	f.BoolVar(&a.strict, "strict", false, "exit with status 3 when any entry could not be fixed")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "print every action as it happens")

	a.bind(pf.Lookup("log-level"), "log.level")
	a.bind(pf.Lookup("replacement"), "rules.replacement")
	a.bind(f.Lookup("dry-run"), "traversal.dryRun")

	cmd.AddCommand(a.newCheckCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func (a *app) bind(flag *pflag.Flag, key string) {
	if err := a.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag.Name, err))
	}
}

// load reads the configuration and builds the logger and facade.
func (a *app) load() (*filesystem.FileSystem, options.RemediateOptions, zerolog.Logger, error) {
	if a.noCaseFold {
		a.v.Set("rules.caseInsensitive", false)
	}

	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return nil, options.RemediateOptions{}, zerolog.Nop(), err
	}

	logger := internal.NewLogger(a.stderr, cfg.Log.Level, cfg.Log.Format != "json")

	opts, err := options.FromConfig(cfg)
	if err != nil {
		return nil, opts, logger, err
	}
	if a.verbose {
		opts.EventCallback = a.printEvent
	}

	fsys, err := filesystem.New(a.fs, opts, logger)
	if err != nil {
		return nil, opts, logger, err
	}
	return fsys, opts, logger, nil
}

func (a *app) runRemediate(ctx context.Context, roots []string) error {
	if a.format != "text" && a.format != "json" {
		return usageErrorf("unknown format %q (want text or json)", a.format)
	}

	fsys, opts, logger, err := a.load()
	if err != nil {
		return err
	}

	if !opts.DryRun && !a.yes {
		preview, proceed, err := a.confirm(ctx, fsys, roots)
		if err != nil {
			return err
		}
		if !proceed {
			return a.checkStrict(preview)
		}
	}

	reports, err := fsys.Remediate(ctx, roots...)
	if common.IsFatal(err) {
		return err
	}
	a.render(reports)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn().Msg("Interrupted; the tree is consistent but not fully remediated")
		}
		return err
	}

	return a.checkStrict(reports)
}

// checkStrict turns recorded per-entry errors into exit status 3 under --strict.
func (a *app) checkStrict(reports []*types.Report) error {
	if a.strict && anyErrors(reports) {
		return &exitError{code: exitPartial}
	}
	return nil
}

// confirm shows a preview and asks before the real pass. A preview with
// nothing to do ends the run. The preview reports are returned so a run that
// applies nothing is still judged by them.
func (a *app) confirm(ctx context.Context, fsys *filesystem.FileSystem, roots []string) ([]*types.Report, bool, error) {
	preview, err := fsys.Preview(ctx, roots...)
	if err != nil {
		return nil, false, err
	}

	changes := 0
	for _, r := range preview {
		changes += r.Summary.Changes()
	}
	if changes == 0 {
		a.render(preview)
		return preview, false, nil
	}

	if a.format == "text" {
		a.render(preview)
	}
	ok, err := a.ui.Confirm(fmt.Sprintf("Apply %d changes?", changes), false)
	if err != nil {
		return preview, false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	if !ok {
		a.ui.Warning("aborted, nothing was changed")
	}
	return preview, ok, nil
}

func (a *app) printEvent(ev types.Event) {
	switch ev.Type {
	case types.EventRenamed:
		a.ui.Outputf("renamed    %s -> %s", ev.Path, ev.Target)
	case types.EventPermChanged:
		a.ui.Outputf("chmod      %s", ev.Path)
	case types.EventUnlocked:
		a.ui.Outputf("unlocked   %s", ev.Path)
	case types.EventExcluded:
		a.ui.Outputf("excluded   %s", ev.Path)
	case types.EventFailed:
		a.ui.Warning(fmt.Sprintf("%s: %s", ev.Path, ev.Error))
	}
}

func anyErrors(reports []*types.Report) bool {
	for _, r := range reports {
		if r != nil && r.HasErrors() {
			return true
		}
	}
	return false
}
