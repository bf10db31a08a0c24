package services

import (
	"path/filepath"
	"testing"

	internal "github.com/Keav/smbfix/smbfix"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultExcludes(t *testing.T) {
	m, err := LoadExcludes(afero.NewMemMapFs(), "/share", "", internal.DefaultExcludes)
	require.NoError(t, err)

	assert.True(t, m.MatchesEntry("iPhoto Library", true))
	assert.True(t, m.MatchesEntry(filepath.Join("Pictures", "iPhoto Library"), true))
	assert.False(t, m.MatchesEntry("iPhoto Library", false))
	assert.True(t, m.MatchesEntry("Photos Library.photoslibrary", true))
	assert.True(t, m.MatchesEntry(filepath.Join("Backups", "contacts.abbu"), true))
	assert.False(t, m.MatchesEntry("notes.txt", false))
}

func TestIgnoreFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/share/.smbfixignore", []byte("# build output\r\nbuild/\n*.tmp\n"), 0o644))

	m, err := LoadExcludes(fsys, "/share", ".smbfixignore", nil)
	require.NoError(t, err)

	assert.True(t, m.MatchesEntry("build", true))
	assert.True(t, m.MatchesEntry(filepath.Join("a", "b", "x:y.tmp"), false))
	assert.False(t, m.MatchesEntry("buildings", true))
	assert.False(t, m.MatchesEntry("src", true))
}

func TestMissingIgnoreFileAndNoPatterns(t *testing.T) {
	m, err := LoadExcludes(afero.NewMemMapFs(), "/share", ".smbfixignore", nil)
	require.NoError(t, err)
	assert.False(t, m.MatchesEntry("anything", true))

	var nilMatcher *ExcludeMatcher
	assert.False(t, nilMatcher.MatchesPath("anything"))
}
