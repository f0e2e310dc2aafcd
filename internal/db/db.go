package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
)

var (
	// ErrNotFound is returned when a logical path has no ledger entry.
	ErrNotFound = errors.New("path not found in ledger")
	// ErrPathConflict is returned when a put would change the kind of an
	// existing entry, or when an ancestor of the path is a file.
	ErrPathConflict = errors.New("path conflicts with existing entry")
	// ErrLedgerCorrupt is returned when the durable state fails its
	// consistency check on load. The ledger refuses to operate.
	ErrLedgerCorrupt = errors.New("ledger state is corrupt")
	// ErrLocked is returned when another process holds the ledger lock.
	ErrLocked = errors.New("ledger is locked by another process")
)

// Ledger is the durable record of the merged virtual tree: which
// logical path lives on which account and under which remote object.
type Ledger struct {
	*sql.DB
	lockPath string
}

// Open opens (or creates) the ledger database at path, acquires the
// single-writer lock file next to it, and verifies consistency.
func Open(path string) (*Ledger, error) {
	lockPath := path + ".lock"
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w (remove stale %s if no other run is active)", ErrLocked, lockPath)
		}
		return nil, fmt.Errorf("failed to acquire ledger lock: %v", err)
	}
	fmt.Fprintf(lock, "%d\n", os.Getpid())
	lock.Close()

	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("failed to open ledger database: %v", err)
	}

	l := &Ledger{DB: sqlDB, lockPath: lockPath}
	if err := l.initialize(); err != nil {
		l.Close()
		return nil, err
	}
	if err := l.verify(); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// Close releases the database handle and the lock file.
func (l *Ledger) Close() error {
	err := l.DB.Close()
	if l.lockPath != "" {
		os.Remove(l.lockPath)
	}
	return err
}

func (l *Ledger) initialize() error {
	_, err := l.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			path TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			remote_id TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL,
			kind TEXT NOT NULL,
			mod_time DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_entries_account ON entries(account_id);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA temp_store=MEMORY;
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize ledger schema: %v", err)
	}
	return nil
}

// verify runs the consistency checks the ledger requires before any
// operation may proceed. Any violation is fatal.
func (l *Ledger) verify() error {
	var integrity string
	if err := l.QueryRow(`PRAGMA integrity_check`).Scan(&integrity); err != nil {
		return fmt.Errorf("%w: integrity check failed: %v", ErrLedgerCorrupt, err)
	}
	if integrity != "ok" {
		return fmt.Errorf("%w: %s", ErrLedgerCorrupt, integrity)
	}

	var bad int64
	err := l.QueryRow(`
		SELECT COUNT(*) FROM entries
		WHERE size < 0 OR path = '' OR path LIKE '/%' OR path LIKE '%/'
		   OR kind NOT IN ('file', 'dir')
		   OR (kind = 'file' AND account_id = '')
	`).Scan(&bad)
	if err != nil {
		return fmt.Errorf("%w: consistency query failed: %v", ErrLedgerCorrupt, err)
	}
	if bad > 0 {
		return fmt.Errorf("%w: %d invalid entries", ErrLedgerCorrupt, bad)
	}
	return nil
}

// NormalizePath canonicalizes a logical path: forward slashes, no
// leading or trailing slash, no empty segments.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" && part != "." {
			out = append(out, part)
		}
	}
	return strings.Join(out, "/")
}

func parents(p string) []string {
	var out []string
	for i, r := range p {
		if r == '/' {
			out = append(out, p[:i])
		}
	}
	return out
}

// Resolve returns the entry at the exact logical path.
func (l *Ledger) Resolve(path string) (*models.LedgerEntry, error) {
	path = NormalizePath(path)
	var e models.LedgerEntry
	var mod sql.NullTime
	err := l.QueryRow(`
		SELECT path, account_id, remote_id, size, kind, mod_time
		FROM entries WHERE path = ?
	`, path).Scan(&e.Path, &e.AccountID, &e.RemoteID, &e.Size, (*string)(&e.Kind), &mod)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %v", path, err)
	}
	if mod.Valid {
		e.ModTime = mod.Time
	}
	return &e, nil
}

// List returns all entries whose logical path equals the prefix or
// lives below it, ordered lexicographically so directories precede
// their children. An empty prefix lists the whole tree.
func (l *Ledger) List(prefix string) ([]models.LedgerEntry, error) {
	prefix = NormalizePath(prefix)
	var rows *sql.Rows
	var err error
	if prefix == "" {
		rows, err = l.Query(`
			SELECT path, account_id, remote_id, size, kind, mod_time
			FROM entries ORDER BY path
		`)
	} else {
		rows, err = l.Query(`
			SELECT path, account_id, remote_id, size, kind, mod_time
			FROM entries WHERE path = ? OR path LIKE ? ESCAPE '\' ORDER BY path
		`, prefix, likeEscape(prefix)+"/%")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %v", prefix, err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		var mod sql.NullTime
		if err := rows.Scan(&e.Path, &e.AccountID, &e.RemoteID, &e.Size, (*string)(&e.Kind), &mod); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %v", err)
		}
		if mod.Valid {
			e.ModTime = mod.Time
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// likeEscape escapes LIKE metacharacters so a logical path can be used
// as a literal prefix pattern.
func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

// Put inserts or overwrites the entry at its logical path, creating
// missing parent directory entries in the same transaction. A kind
// change at an existing path is rejected unless overwrite is set;
// a file ancestor is always rejected.
func (l *Ledger) Put(entry models.LedgerEntry, overwrite bool) error {
	entry.Path = NormalizePath(entry.Path)
	if entry.Path == "" {
		return fmt.Errorf("%w: empty logical path", ErrPathConflict)
	}

	tx, err := l.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	if err := putInTx(tx, entry, overwrite); err != nil {
		return err
	}
	return tx.Commit()
}

func putInTx(tx *sql.Tx, entry models.LedgerEntry, overwrite bool) error {
	var existingKind string
	err := tx.QueryRow(`SELECT kind FROM entries WHERE path = ?`, entry.Path).Scan(&existingKind)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("failed to check existing entry: %v", err)
	case existingKind != string(entry.Kind) && !overwrite:
		return fmt.Errorf("%w: %s is a %s", ErrPathConflict, entry.Path, existingKind)
	}

	for _, parent := range parents(entry.Path) {
		var kind string
		err := tx.QueryRow(`SELECT kind FROM entries WHERE path = ?`, parent).Scan(&kind)
		if err == sql.ErrNoRows {
			_, err = tx.Exec(`
				INSERT INTO entries (path, account_id, remote_id, size, kind, mod_time)
				VALUES (?, ?, '', 0, 'dir', ?)
			`, parent, entry.AccountID, entry.ModTime)
			if err != nil {
				return fmt.Errorf("failed to create parent %s: %v", parent, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to check parent %s: %v", parent, err)
		}
		if kind != string(models.KindDir) {
			return fmt.Errorf("%w: ancestor %s is a file", ErrPathConflict, parent)
		}
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO entries (path, account_id, remote_id, size, kind, mod_time)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.Path, entry.AccountID, entry.RemoteID, entry.Size, string(entry.Kind), entry.ModTime)
	if err != nil {
		return fmt.Errorf("failed to put %s: %v", entry.Path, err)
	}
	return nil
}

// Remove deletes the entry at the logical path and all descendants.
// Removal is a recorded mutation: the caller snapshots first.
func (l *Ledger) Remove(path string) error {
	path = NormalizePath(path)

	tx, err := l.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		DELETE FROM entries WHERE path = ? OR path LIKE ? ESCAPE '\'
	`, path, likeEscape(path)+"/%")
	if err != nil {
		return fmt.Errorf("failed to remove %s: %v", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count removed rows: %v", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// UsageByAccount sums file entry sizes per owning account. Seeds the
// in-memory registry at process start.
func (l *Ledger) UsageByAccount() (map[string]int64, error) {
	rows, err := l.Query(`
		SELECT account_id, COALESCE(SUM(size), 0)
		FROM entries WHERE kind = 'file' GROUP BY account_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %v", err)
	}
	defer rows.Close()

	usage := make(map[string]int64)
	for rows.Next() {
		var id string
		var size int64
		if err := rows.Scan(&id, &size); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %v", err)
		}
		usage[id] = size
	}
	return usage, rows.Err()
}

// Stats aggregates per-account file counts and sizes for status output.
func (l *Ledger) Stats() (map[string]models.AccountUsage, error) {
	rows, err := l.Query(`
		SELECT account_id, COUNT(*), COALESCE(SUM(size), 0)
		FROM entries WHERE kind = 'file' GROUP BY account_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %v", err)
	}
	defer rows.Close()

	stats := make(map[string]models.AccountUsage)
	for rows.Next() {
		var u models.AccountUsage
		if err := rows.Scan(&u.AccountID, &u.Files, &u.UsedBytes); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %v", err)
		}
		stats[u.AccountID] = u
	}
	return stats, rows.Err()
}

// ReplaceAll atomically replaces the whole ledger with the given
// entries. Used by snapshot restore.
func (l *Ledger) ReplaceAll(entries []models.LedgerEntry) error {
	sorted := make([]models.LedgerEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	tx, err := l.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM entries`); err != nil {
		return fmt.Errorf("failed to clear ledger: %v", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO entries (path, account_id, remote_id, size, kind, mod_time)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %v", err)
	}
	defer stmt.Close()

	for _, e := range sorted {
		e.Path = NormalizePath(e.Path)
		if _, err := stmt.Exec(e.Path, e.AccountID, e.RemoteID, e.Size, string(e.Kind), e.ModTime); err != nil {
			return fmt.Errorf("failed to restore %s: %v", e.Path, err)
		}
	}
	return tx.Commit()
}
