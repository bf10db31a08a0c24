package services

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Keav/smbfix/smbfix/filesystem/common"
	"github.com/Keav/smbfix/smbfix/filesystem/rules"
	"github.com/Keav/smbfix/smbfix/filesystem/types"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueNameSuffixesBeforeExtension(t *testing.T) {
	cr := NewConflictResolverService(afero.NewMemMapFs(), 10)
	taken := rules.NewNameSet(true)

	name, err := cr.UniqueName("/share", "a_b.txt", types.KindFile, taken)
	require.NoError(t, err)
	assert.Equal(t, "a_b.txt", name)

	name, err = cr.UniqueName("/share", "a_b.txt", types.KindFile, taken)
	require.NoError(t, err)
	assert.Equal(t, "a_b (1).txt", name)

	name, err = cr.UniqueName("/share", "A_B.TXT", types.KindFile, taken)
	require.NoError(t, err)
	assert.Equal(t, "A_B (2).TXT", name)
}

func TestUniqueNameDirectoriesSuffixAtEnd(t *testing.T) {
	cr := NewConflictResolverService(afero.NewMemMapFs(), 10)
	taken := rules.NewNameSet(true)
	taken.Claim("v1.0")

	name, err := cr.UniqueName("/share", "v1.0", types.KindDirectory, taken)
	require.NoError(t, err)
	assert.Equal(t, "v1.0 (1)", name)
}

func TestUniqueNameExhausted(t *testing.T) {
	cr := NewConflictResolverService(afero.NewMemMapFs(), 2)
	taken := rules.NewNameSet(false)
	for _, n := range []string{"x", "x (1)", "x (2)"} {
		taken.Claim(n)
	}

	_, err := cr.UniqueName("/share", "x", types.KindFile, taken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNameCollision))

	var collision *common.NameCollisionError
	require.True(t, errors.As(err, &collision))
	assert.Equal(t, 2, collision.Attempts)
}

func TestCheckTarget(t *testing.T) {
	dir := t.TempDir()
	fsys := afero.NewOsFs()
	cr := NewConflictResolverService(fsys, 10)

	src := filepath.Join(dir, "a:b")
	require.NoError(t, os.WriteFile(src, nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "taken"), nil, 0o644))

	assert.NoError(t, cr.CheckTarget(src, filepath.Join(dir, "a_b")))
	assert.NoError(t, cr.CheckTarget(src, src), "renaming onto itself is allowed")

	err := cr.CheckTarget(src, filepath.Join(dir, "taken"))
	assert.True(t, errors.Is(err, common.ErrNameCollision))
}

func TestCheckTargetDanglingSymlinkIsTaken(t *testing.T) {
	dir := t.TempDir()
	cr := NewConflictResolverService(afero.NewOsFs(), 10)

	src := filepath.Join(dir, "a:b")
	require.NoError(t, os.WriteFile(src, nil, 0o644))
	require.NoError(t, os.Symlink(filepath.Join(dir, "nowhere"), filepath.Join(dir, "a_b")))

	err := cr.CheckTarget(src, filepath.Join(dir, "a_b"))
	assert.True(t, errors.Is(err, common.ErrNameCollision))
}
