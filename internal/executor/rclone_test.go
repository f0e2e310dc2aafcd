package executor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
)

func TestWriteIncludeFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "includes")
	r := NewRclone("rclone", dir)

	cmd := models.Command{
		AccountID:    "acct01",
		IncludeLines: []string{"/a.txt", `/we\[ird\].txt`},
	}
	require.NoError(t, r.writeIncludeFile(cmd))

	data, err := os.ReadFile(filepath.Join(dir, "include_acct01.txt"))
	require.NoError(t, err)
	assert.Equal(t, "/a.txt\n/we\\[ird\\].txt\n", string(data))
}

func TestWriteIncludeFileEmptySkips(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "includes")
	r := NewRclone("rclone", dir)

	require.NoError(t, r.writeIncludeFile(models.Command{AccountID: "acct01"}))
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestClearIncludeDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "includes")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.txt"), []byte("x"), 0o644))

	require.NoError(t, ClearIncludeDir(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCommandErrorCarriesCommand(t *testing.T) {
	inner := fmt.Errorf("exit status 3")
	err := &CommandError{AccountID: "acct01", Args: []string{"copy", "src", "dst"}, Err: inner}

	assert.Contains(t, err.Error(), "acct01")
	assert.Contains(t, err.Error(), "copy src dst")
	assert.True(t, errors.Is(err, inner))
}
