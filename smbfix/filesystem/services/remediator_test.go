package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/Keav/smbfix/smbfix/filesystem/common"
	"github.com/Keav/smbfix/smbfix/filesystem/options"
	"github.com/Keav/smbfix/smbfix/filesystem/rules"
	"github.com/Keav/smbfix/smbfix/filesystem/types"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// RemediatorTestSuite runs passes over real temporary trees
type RemediatorTestSuite struct {
	suite.Suite
	root string
	fs   afero.Fs
}

func TestRemediatorSuite(t *testing.T) {
	suite.Run(t, new(RemediatorTestSuite))
}

func (s *RemediatorTestSuite) SetupTest() {
	s.root = s.T().TempDir()
	s.fs = afero.NewOsFs()
}

func (s *RemediatorTestSuite) path(rel ...string) string {
	return filepath.Join(append([]string{s.root}, rel...)...)
}

func (s *RemediatorTestSuite) file(rel string, mode os.FileMode) {
	p := s.path(rel)
	require.NoError(s.T(), os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(s.T(), os.WriteFile(p, []byte(rel), 0o644))
	require.NoError(s.T(), os.Chmod(p, mode))
}

func (s *RemediatorTestSuite) dir(rel string) {
	require.NoError(s.T(), os.MkdirAll(s.path(rel), 0o755))
}

func (s *RemediatorTestSuite) names(rel string) []string {
	entries, err := os.ReadDir(s.path(rel))
	require.NoError(s.T(), err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

func (s *RemediatorTestSuite) remediate(opts options.RemediateOptions) *types.Report {
	rs, err := NewRemediatorService(s.fs, opts, zerolog.Nop())
	require.NoError(s.T(), err)
	report, err := rs.Remediate(context.Background(), s.root)
	require.NoError(s.T(), err)
	require.NotNil(s.T(), report)
	return report
}

func (s *RemediatorTestSuite) TestCollisionScenario() {
	s.file("a:b.txt", 0o644)
	s.file("a;b.txt", 0o644)
	s.dir("CON")

	report := s.remediate(options.DefaultRemediateOptions())

	assert.Equal(s.T(), []string{"CON_", "a_b (1).txt", "a_b.txt"}, s.names(""))
	assert.Equal(s.T(), 3, report.Summary.Renamed)
	assert.Equal(s.T(), 0, report.Summary.Errors)

	moved := map[string]string{}
	for _, rec := range report.Renames() {
		moved[filepath.Base(rec.Path)] = filepath.Base(rec.NewPath)
	}
	assert.Equal(s.T(), map[string]string{
		"a:b.txt": "a_b.txt",
		"a;b.txt": "a_b (1).txt",
		"CON":     "CON_",
	}, moved)

	content, err := os.ReadFile(s.path("a_b (1).txt"))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "a;b.txt", string(content))
}

func (s *RemediatorTestSuite) TestSecondPassIsNoOp() {
	s.file("x*y/b?.txt", 0o400)
	s.file("x*y/ok.txt", 0o644)
	s.file("trailing.", 0o644)
	s.dir("empty ")

	first := s.remediate(options.DefaultRemediateOptions())
	require.Greater(s.T(), first.Summary.Changes(), 0)

	second := s.remediate(options.DefaultRemediateOptions())
	assert.Equal(s.T(), 0, second.Summary.Changes())
	assert.Empty(s.T(), second.Records)
	assert.Equal(s.T(), first.Summary.Visited, second.Summary.Visited)
}

func (s *RemediatorTestSuite) TestCleanTreeHasNoChanges() {
	s.file("docs/readme.md", 0o644)
	s.file("docs/img/logo.png", 0o600)

	report := s.remediate(options.DefaultRemediateOptions())

	assert.Equal(s.T(), 0, report.Summary.Changes())
	assert.Equal(s.T(), 5, report.Summary.Visited)
}

func (s *RemediatorTestSuite) TestNestedRenamesResolveFinalPaths() {
	s.file("a:/b?/f*.txt", 0o644)

	report := s.remediate(options.DefaultRemediateOptions())

	final := s.path("a_", "b_", "f_.txt")
	_, err := os.Stat(final)
	require.NoError(s.T(), err)

	var got []string
	for _, rec := range report.Renames() {
		got = append(got, rec.NewPath)
		_, err := os.Lstat(rec.NewPath)
		assert.NoError(s.T(), err, "new path %s must exist", rec.NewPath)
	}
	assert.ElementsMatch(s.T(), []string{final, s.path("a_", "b_"), s.path("a_")}, got)
}

func (s *RemediatorTestSuite) TestDryRunPredictsRealRun() {
	s.file("a:b.txt", 0o644)
	s.file("a;b.txt", 0o644)
	s.file("sub|dir/c<d", 0o400)

	var events []types.Event
	var mu sync.Mutex
	opts := options.DefaultRemediateOptions()
	opts.DryRun = true
	opts.EventCallback = func(ev types.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}

	before := s.names("")
	preview := s.remediate(opts)

	assert.True(s.T(), preview.DryRun)
	assert.Equal(s.T(), before, s.names(""), "dry run must not touch the tree")
	info, err := os.Stat(s.path("sub|dir", "c<d"))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), os.FileMode(0o400), info.Mode().Perm())

	renamed := 0
	for _, ev := range events {
		if ev.Type == types.EventRenamed {
			renamed++
		}
	}
	assert.Equal(s.T(), preview.Summary.Renamed, renamed)

	applied := s.remediate(options.DefaultRemediateOptions())
	assert.Equal(s.T(), newPaths(preview), newPaths(applied))
	assert.Equal(s.T(), preview.Summary.PermChanged, applied.Summary.PermChanged)
}

func (s *RemediatorTestSuite) TestExcludedEntriesAreUntouched() {
	s.file("Library.photoslibrary/bad:name", 0o400)
	s.file("keep/odd:name", 0o644)
	s.file("fix:me", 0o644)
	require.NoError(s.T(), os.WriteFile(s.path(".smbfixignore"), []byte("keep/\n"), 0o644))

	report := s.remediate(options.DefaultRemediateOptions())

	assert.Equal(s.T(), []string{"bad:name"}, s.names("Library.photoslibrary"))
	assert.Equal(s.T(), []string{"odd:name"}, s.names("keep"))
	assert.Contains(s.T(), s.names(""), "fix_me")
	assert.Equal(s.T(), 2, report.Summary.Excluded)

	info, err := os.Stat(s.path("Library.photoslibrary", "bad:name"))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), os.FileMode(0o400), info.Mode().Perm())
}

func (s *RemediatorTestSuite) TestAnchoredExcludeMatchesRootRelativePath() {
	s.file("docs/private/x:y", 0o644)
	s.file("other/docs/private/x:y", 0o644)
	require.NoError(s.T(), os.WriteFile(s.path(".smbfixignore"), []byte("/docs/private/\n"), 0o644))

	report := s.remediate(options.DefaultRemediateOptions())

	assert.Equal(s.T(), []string{"x:y"}, s.names("docs/private"))
	assert.Equal(s.T(), []string{"x_y"}, s.names("other/docs/private"))
	assert.Equal(s.T(), 1, report.Summary.Excluded)
}

func (s *RemediatorTestSuite) TestDryRunFlagsUnreadableDirectory() {
	if os.Geteuid() == 0 {
		s.T().Skip("root can list any directory")
	}
	s.file("locked/a:b", 0o644)
	require.NoError(s.T(), os.Chmod(s.path("locked"), 0o000))
	s.T().Cleanup(func() { os.Chmod(s.path("locked"), 0o700) })

	opts := options.DefaultRemediateOptions()
	opts.DryRun = true
	preview := s.remediate(opts)

	require.Len(s.T(), preview.Errors(), 1)
	assert.Equal(s.T(), s.path("locked"), preview.Errors()[0].Path)
	assert.True(s.T(), errors.Is(preview.Errors()[0].Err, common.ErrPreviewIncomplete))

	applied := s.remediate(options.DefaultRemediateOptions())
	assert.False(s.T(), applied.HasErrors())
	assert.Equal(s.T(), []string{"a_b"}, s.names("locked"))
}

func (s *RemediatorTestSuite) TestExcludedNamesKeepTheirSlot() {
	s.file("build/x", 0o644)
	s.file("build ", 0o644)
	require.NoError(s.T(), os.WriteFile(s.path(".smbfixignore"), []byte("build/\n"), 0o644))

	s.remediate(options.DefaultRemediateOptions())

	assert.Equal(s.T(), []string{".smbfixignore", "build", "build (1)"}, s.names(""))
}

func (s *RemediatorTestSuite) TestCaseInsensitiveSiblings() {
	s.file("README", 0o644)
	s.file("readme", 0o644)
	s.file("Read:me", 0o644)
	s.file("read_me", 0o644)

	s.remediate(options.DefaultRemediateOptions())
	assert.Equal(s.T(), []string{"README", "Read_me (1)", "read_me", "readme (1)"}, s.names(""))
}

func (s *RemediatorTestSuite) TestCaseSensitiveSiblings() {
	s.file("README", 0o644)
	s.file("readme", 0o644)

	opts := options.DefaultRemediateOptions()
	opts.CaseInsensitive = false
	report := s.remediate(opts)

	assert.Equal(s.T(), []string{"README", "readme"}, s.names(""))
	assert.Equal(s.T(), 0, report.Summary.Renamed)
}

func (s *RemediatorTestSuite) TestSuffixExhaustionIsRecorded() {
	s.file("a_b", 0o644)
	s.file("a:b", 0o644)
	s.file("a;b", 0o644)

	opts := options.DefaultRemediateOptions()
	opts.MaxSuffixAttempts = 1
	report := s.remediate(opts)

	assert.Equal(s.T(), []string{"a;b", "a_b", "a_b (1)"}, s.names(""))
	require.Len(s.T(), report.Errors(), 1)
	err := report.Errors()[0].Err
	assert.True(s.T(), errors.Is(err, common.ErrRename))
	assert.True(s.T(), errors.Is(err, common.ErrNameCollision))
}

func (s *RemediatorTestSuite) TestPermissionsConverge() {
	s.file("locked/doc.txt", 0o400)
	s.file("locked/run.sh", 0o500)
	require.NoError(s.T(), os.Chmod(s.path("locked"), 0o500))

	report := s.remediate(options.DefaultRemediateOptions())
	assert.Equal(s.T(), 3, report.Summary.PermChanged)

	for rel, want := range map[string]os.FileMode{
		"locked":         0o700,
		"locked/doc.txt": 0o600,
		"locked/run.sh":  0o700,
	} {
		info, err := os.Stat(s.path(rel))
		require.NoError(s.T(), err)
		assert.Equal(s.T(), want, info.Mode().Perm(), rel)
	}

	again := s.remediate(options.DefaultRemediateOptions())
	assert.Equal(s.T(), 0, again.Summary.PermChanged)
}

func (s *RemediatorTestSuite) TestRenameInsideReadOnlyDirectory() {
	s.file("locked/a:b", 0o644)
	require.NoError(s.T(), os.Chmod(s.path("locked"), 0o500))

	s.remediate(options.DefaultRemediateOptions())

	assert.Equal(s.T(), []string{"a_b"}, s.names("locked"))
}

func (s *RemediatorTestSuite) TestSymlinksAreNotFollowed() {
	s.file("real/x:y", 0o644)
	require.NoError(s.T(), os.Symlink(s.path("real"), s.path("link")))
	require.NoError(s.T(), os.Symlink(s.path("real"), s.path("ln?k")))

	report := s.remediate(options.DefaultRemediateOptions())

	assert.Equal(s.T(), []string{"link", "ln_k", "real"}, s.names(""))
	assert.Equal(s.T(), []string{"x_y"}, s.names("real"))
	// root, link, ln?k, real, real/x:y
	assert.Equal(s.T(), 5, report.Summary.Visited)
	assert.Equal(s.T(), 2, report.Summary.Renamed)
}

func (s *RemediatorTestSuite) TestRootIsNeverRenamed() {
	s.root = filepath.Join(s.root, "share:root")
	s.file("a:b", 0o644)

	report := s.remediate(options.DefaultRemediateOptions())

	assert.Equal(s.T(), []string{"a_b"}, s.names(""))
	for _, rec := range report.Renames() {
		assert.NotEqual(s.T(), s.root, rec.Path)
	}
}

func (s *RemediatorTestSuite) TestPerEntryFailuresAreRecorded() {
	s.file("a:b", 0o644)
	s.file("c?d", 0o644)
	s.file("sub/e*f", 0o400)
	s.fs = afero.NewReadOnlyFs(afero.NewOsFs())

	report := s.remediate(options.DefaultRemediateOptions())

	assert.Equal(s.T(), []string{"a:b", "c?d", "sub"}, s.names(""))
	assert.Equal(s.T(), 5, report.Summary.Visited, "traversal continues past failures")
	assert.Equal(s.T(), 3, report.Summary.Errors)
	assert.Equal(s.T(), 0, report.Summary.Renamed)
	assert.True(s.T(), report.HasErrors())

	var perm *common.PermissionChangeError
	found := false
	for _, rec := range report.Errors() {
		if errors.As(rec.Err, &perm) {
			found = true
		}
	}
	assert.True(s.T(), found)
}

func (s *RemediatorTestSuite) TestInvalidRoots() {
	rs, err := NewRemediatorService(s.fs, options.DefaultRemediateOptions(), zerolog.Nop())
	require.NoError(s.T(), err)

	_, err = rs.Remediate(context.Background(), s.path("missing"))
	assert.True(s.T(), errors.Is(err, common.ErrNotFound))

	s.file("plain", 0o644)
	_, err = rs.Remediate(context.Background(), s.path("plain"))
	assert.True(s.T(), errors.Is(err, common.ErrNotADirectory))
}

func (s *RemediatorTestSuite) TestCancellationReturnsPartialReport() {
	s.file("a:b", 0o644)

	rs, err := NewRemediatorService(s.fs, options.DefaultRemediateOptions(), zerolog.Nop())
	require.NoError(s.T(), err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := rs.Remediate(ctx, s.root)

	assert.True(s.T(), errors.Is(err, context.Canceled))
	require.NotNil(s.T(), report)
	assert.Equal(s.T(), []string{"a:b"}, s.names(""))
}

func TestNewRemediatorServiceRejectsBadReplacement(t *testing.T) {
	opts := options.DefaultRemediateOptions()
	opts.Rules = rules.Options{Replacement: ':', StrictCharset: true}

	_, err := NewRemediatorService(afero.NewMemMapFs(), opts, zerolog.Nop())
	assert.Error(t, err)
}

func newPaths(r *types.Report) map[string]string {
	out := map[string]string{}
	for _, rec := range r.Renames() {
		out[rec.Path] = rec.NewPath
	}
	return out
}
