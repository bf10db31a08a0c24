package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Keav/smbfix/smbfix/filesystem/interfaces"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"
)

// ExcludeMatcher matches root-relative paths against gitignore-style patterns
type ExcludeMatcher struct {
	matcher *ignore.GitIgnore
	empty   bool
}

// LoadExcludes compiles the configured patterns plus, when present, the
// ignore file at the root of the tree.
func LoadExcludes(fsys afero.Fs, root, ignoreFile string, patterns []string) (*ExcludeMatcher, error) {
	lines := append([]string(nil), patterns...)

	if ignoreFile != "" {
		ignorePath := filepath.Join(root, ignoreFile)
		data, err := afero.ReadFile(fsys, ignorePath)
		switch {
		case err == nil:
			lines = append(lines, strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")...)
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("error reading %s: %w", ignorePath, err)
		}
	}

	empty := true
	for _, l := range lines {
		if t := strings.TrimSpace(l); t != "" && !strings.HasPrefix(t, "#") {
			empty = false
			break
		}
	}

	return &ExcludeMatcher{matcher: ignore.CompileIgnoreLines(lines...), empty: empty}, nil
}

// MatchesPath reports whether a root-relative path is excluded
func (m *ExcludeMatcher) MatchesPath(rel string) bool {
	if m == nil || m.empty {
		return false
	}
	return m.matcher.MatchesPath(filepath.ToSlash(rel))
}

// MatchesEntry also tries the directory form so that "name/" patterns match.
func (m *ExcludeMatcher) MatchesEntry(rel string, isDir bool) bool {
	if m.MatchesPath(rel) {
		return true
	}
	return isDir && m.MatchesPath(rel+"/")
}

// Ensure ExcludeMatcher implements the interface
var _ interfaces.IgnoreChecker = (*ExcludeMatcher)(nil)
