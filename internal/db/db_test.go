package db

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func fileEntry(path, account string, size int64) models.LedgerEntry {
	return models.LedgerEntry{
		Path:      path,
		AccountID: account,
		RemoteID:  "g" + account + ":" + path,
		Size:      size,
		Kind:      models.KindFile,
		ModTime:   time.Now().UTC(),
	}
}

func TestPutAndResolve(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.Put(fileEntry("docs/a.txt", "acct01", 100), false))

	e, err := l.Resolve("docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "acct01", e.AccountID)
	assert.Equal(t, int64(100), e.Size)
	assert.Equal(t, models.KindFile, e.Kind)

	// Parent directory entries are created implicitly.
	dir, err := l.Resolve("docs")
	require.NoError(t, err)
	assert.Equal(t, models.KindDir, dir.Kind)
}

func TestResolveNotFound(t *testing.T) {
	l := openTestLedger(t)

	_, err := l.Resolve("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutKindConflict(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.Put(fileEntry("report", "acct01", 10), false))

	dir := models.LedgerEntry{Path: "report", AccountID: "acct01", Kind: models.KindDir}
	err := l.Put(dir, false)
	assert.ErrorIs(t, err, ErrPathConflict)

	// Explicit overwrite replaces the kind.
	require.NoError(t, l.Put(dir, true))
	e, err := l.Resolve("report")
	require.NoError(t, err)
	assert.Equal(t, models.KindDir, e.Kind)
}

func TestPutFileAncestorConflict(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.Put(fileEntry("blob", "acct01", 10), false))
	err := l.Put(fileEntry("blob/child.txt", "acct01", 5), false)
	assert.ErrorIs(t, err, ErrPathConflict)
}

func TestVirtualTreeMerge(t *testing.T) {
	l := openTestLedger(t)

	// Same logical directory, different owning accounts.
	require.NoError(t, l.Put(fileEntry("docs/a.txt", "acct01", 100), false))
	require.NoError(t, l.Put(fileEntry("docs/b.txt", "acct02", 200), false))

	entries, err := l.List("docs")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "docs", entries[0].Path)
	assert.Equal(t, "docs/a.txt", entries[1].Path)
	assert.Equal(t, "acct01", entries[1].AccountID)
	assert.Equal(t, "docs/b.txt", entries[2].Path)
	assert.Equal(t, "acct02", entries[2].AccountID)
}

func TestListOrderingAndPrefixIsolation(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.Put(fileEntry("docs/sub/deep.txt", "acct01", 1), false))
	require.NoError(t, l.Put(fileEntry("docs-other/x.txt", "acct01", 1), false))

	entries, err := l.List("docs")
	require.NoError(t, err)
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	// Lexicographic, directories before their children, and no bleed
	// into the sibling docs-other tree.
	assert.Equal(t, []string{"docs", "docs/sub", "docs/sub/deep.txt"}, paths)
}

func TestRemoveRecursive(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.Put(fileEntry("docs/a.txt", "acct01", 100), false))
	require.NoError(t, l.Put(fileEntry("docs/sub/b.txt", "acct02", 200), false))
	require.NoError(t, l.Put(fileEntry("other.txt", "acct01", 5), false))

	require.NoError(t, l.Remove("docs"))

	_, err := l.Resolve("docs/a.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.Resolve("docs/sub/b.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.Resolve("docs")
	assert.ErrorIs(t, err, ErrNotFound)

	// Unrelated entries survive.
	_, err = l.Resolve("other.txt")
	assert.NoError(t, err)
}

func TestRemoveMiss(t *testing.T) {
	l := openTestLedger(t)
	assert.ErrorIs(t, l.Remove("ghost"), ErrNotFound)
}

func TestUsageByAccount(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.Put(fileEntry("a/one.bin", "acct01", 100), false))
	require.NoError(t, l.Put(fileEntry("a/two.bin", "acct01", 50), false))
	require.NoError(t, l.Put(fileEntry("b/three.bin", "acct02", 70), false))

	usage, err := l.UsageByAccount()
	require.NoError(t, err)
	// Directory entries are size zero and must not distort the sums.
	assert.Equal(t, int64(150), usage["acct01"])
	assert.Equal(t, int64(70), usage["acct02"])
}

func TestDurabilityAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Put(fileEntry("keep/first.txt", "acct01", 1), false))
	require.NoError(t, l.Put(fileEntry("keep/second.txt", "acct01", 2), false))
	require.NoError(t, l.Close())

	// A reopened ledger sees exactly the committed writes.
	l2, err := Open(path)
	require.NoError(t, err)
	defer l2.Close()

	entries, err := l2.List("keep")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestCrashBetweenPutsKeepsCommittedState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")

	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Put(fileEntry("keep/first.txt", "acct01", 1), false))

	// Simulate a crash after the first commit: clone the on-disk state
	// while the connection is still live, then keep writing to the
	// original. The clone must recover to exactly the committed state.
	crashPath := filepath.Join(t.TempDir(), "ledger.db")
	cloneDBFiles(t, path, crashPath)

	require.NoError(t, l.Put(fileEntry("keep/second.txt", "acct01", 2), false))

	l2, err := Open(crashPath)
	require.NoError(t, err)
	defer l2.Close()

	_, err = l2.Resolve("keep/first.txt")
	assert.NoError(t, err)
	_, err = l2.Resolve("keep/second.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

// cloneDBFiles copies the database plus its WAL sidecars, the way a
// crash leaves them on disk.
func cloneDBFiles(t *testing.T, src, dst string) {
	t.Helper()
	for _, suffix := range []string{"", "-wal", "-shm"} {
		data, err := os.ReadFile(src + suffix)
		if os.IsNotExist(err) {
			continue
		}
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(dst+suffix, data, 0o644))
	}
}

func TestCorruptLedgerRefusesToOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")

	l, err := Open(path)
	require.NoError(t, err)
	// Bypass Put to plant an entry that violates the invariants.
	_, err = l.Exec(`INSERT INTO entries (path, account_id, remote_id, size, kind) VALUES ('bad', 'a', '', -5, 'file')`)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrLedgerCorrupt)
}

func TestSingleWriterLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")

	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestLockReleasedOnClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l2, err := Open(path)
	require.NoError(t, err)
	l2.Close()
}

func TestReplaceAll(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.Put(fileEntry("old/file.txt", "acct01", 10), false))

	snapshot := []models.LedgerEntry{
		{Path: "restored", AccountID: "acct02", Kind: models.KindDir},
		{Path: "restored/x.txt", AccountID: "acct02", Size: 42, Kind: models.KindFile},
	}
	require.NoError(t, l.ReplaceAll(snapshot))

	_, err := l.Resolve("old/file.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	e, err := l.Resolve("restored/x.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(42), e.Size)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"docs/a.txt", "docs/a.txt"},
		{"/docs/a.txt/", "docs/a.txt"},
		{"docs//a.txt", "docs/a.txt"},
		{`docs\a.txt`, "docs/a.txt"},
		{"./docs/./a.txt", "docs/a.txt"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePath(tt.in), "input %q", tt.in)
	}
}
