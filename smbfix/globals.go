package internal

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var (
	// DefaultAppName is used for the config directory, env prefix and ignore file name
	DefaultAppName        = "smbfix"
	DefaultAppCMDShortCut = "smbfix"
	DefaultConfigPath     = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultSystemConfig   = filepath.Join(string(filepath.Separator)+"etc", DefaultAppName)
	DefaultEnvPrefix      = strings.ToUpper(DefaultAppName)
	DefaultIgnoreFile     = "." + DefaultAppName + "ignore"

	// Default remediation settings
	DefaultReplacement       = "_"
	DefaultMaxSuffixAttempts = 1000
	DefaultDirRequiredMode   = 0o700
	DefaultFileRequiredMode  = 0o600
	DefaultWorkers           = 4
	DefaultLogLevel          = "info"

	// DefaultExcludes mirrors the macOS bundles that must never be rewritten from the inside
	DefaultExcludes = []string{
		"iPhoto Library/",
		"*.photoslibrary",
		"*.abbu",
	}
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current working directory if home directory is unavailable
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// NewLogger builds a logger writing to w at the given level. Console output is
// human readable and coloured only on a terminal; otherwise one JSON object
// per line is written.
func NewLogger(w io.Writer, level string, console bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: !isTerminal(w)}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
