package services

import (
	"errors"
	"os"
	"testing"

	"github.com/Keav/smbfix/smbfix/filesystem/common"
	"github.com/Keav/smbfix/smbfix/filesystem/options"
	"github.com/Keav/smbfix/smbfix/filesystem/types"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionTarget(t *testing.T) {
	ps := NewPermissionService(afero.NewMemMapFs(), options.DefaultPermissionPolicy())

	tests := []struct {
		name string
		kind types.EntryKind
		mode os.FileMode
		want os.FileMode
	}{
		{"read-only directory", types.KindDirectory, 0o500, 0o700},
		{"compliant directory", types.KindDirectory, 0o755, 0o755},
		{"read-only file", types.KindFile, 0o444, 0o644},
		{"unreadable file", types.KindFile, 0o000, 0o600},
		{"executable file keeps x", types.KindFile, 0o755, 0o755},
		{"symlink untouched", types.KindSymlink, 0o000, 0o000},
		{"fifo untouched", types.KindOther, 0o200, 0o200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ps.Target(tt.kind, tt.mode))
		})
	}
}

func TestPermissionTargetNeverAddsExecuteToFiles(t *testing.T) {
	policy := options.DefaultPermissionPolicy()
	policy.FileRequired = 0o755
	policy.FileForbidden = 0o002
	ps := NewPermissionService(afero.NewMemMapFs(), policy)

	assert.Equal(t, os.FileMode(0o644), ps.Target(types.KindFile, 0o400))
	assert.Equal(t, os.FileMode(0o664), ps.Target(types.KindFile, 0o666))
}

func TestPermissionTargetDisabled(t *testing.T) {
	policy := options.DefaultPermissionPolicy()
	policy.Enabled = false
	ps := NewPermissionService(afero.NewMemMapFs(), policy)

	assert.Equal(t, os.FileMode(0o400), ps.Target(types.KindFile, 0o400))
}

func TestNormalize(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/share/doc.txt", []byte("x"), 0o644))
	require.NoError(t, fsys.Chmod("/share/doc.txt", 0o400))
	ps := NewPermissionService(fsys, options.DefaultPermissionPolicy())

	change, err := ps.Normalize("/share/doc.txt", types.KindFile, 0o400, true)
	require.NoError(t, err)
	assert.Equal(t, &types.PermChange{Old: 0o400, New: 0o600}, change)
	info, err := fsys.Stat("/share/doc.txt")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o400), info.Mode().Perm(), "dry run must not chmod")

	change, err = ps.Normalize("/share/doc.txt", types.KindFile, 0o400, false)
	require.NoError(t, err)
	require.NotNil(t, change)
	info, err = fsys.Stat("/share/doc.txt")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	change, err = ps.Normalize("/share/doc.txt", types.KindFile, info.Mode(), false)
	require.NoError(t, err)
	assert.Nil(t, change, "second pass is a no-op")
}

func TestNormalizePreservesSpecialBits(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/share/drop", 0o755))
	require.NoError(t, fsys.Chmod("/share/drop", os.ModeSticky|0o555))
	ps := NewPermissionService(fsys, options.DefaultPermissionPolicy())

	info, err := fsys.Stat("/share/drop")
	require.NoError(t, err)

	change, err := ps.Normalize("/share/drop", types.KindDirectory, info.Mode(), false)
	require.NoError(t, err)
	require.NotNil(t, change)

	info, err = fsys.Stat("/share/drop")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	assert.NotZero(t, info.Mode()&os.ModeSticky)
}

func TestNormalizeFailure(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/share/doc.txt", []byte("x"), 0o644))
	require.NoError(t, base.Chmod("/share/doc.txt", 0o400))
	ps := NewPermissionService(afero.NewReadOnlyFs(base), options.DefaultPermissionPolicy())

	_, err := ps.Normalize("/share/doc.txt", types.KindFile, 0o400, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrPermissionChange))

	var permErr *common.PermissionChangeError
	require.True(t, errors.As(err, &permErr))
	assert.Equal(t, os.FileMode(0o600), permErr.To)
}
