// Package backup snapshots ledger state before every mutating
// operation. Snapshots are immutable, named by timestamp, and only
// ever applied by an explicit restore.
package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
)

const (
	requestFile  = "request.json"
	commandsFile = "generated_commands.json"
	ledgerFile   = "ledger_before.json"

	stampLayout = "20060102_150405"
)

// Manager writes and reads snapshots under a fixed directory.
type Manager struct {
	dir string
}

// New returns a manager rooted at dir.
func New(dir string) *Manager {
	return &Manager{dir: dir}
}

// Snapshot captures the request, the generated commands, and the full
// ledger state before the operation. It must complete before any
// command is handed to the executor.
func (m *Manager) Snapshot(req models.TransferRequest, commands []models.Command, entries []models.LedgerEntry) (string, error) {
	stamp := time.Now().Format(stampLayout)
	dir := filepath.Join(m.dir, stamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup dir: %v", err)
	}

	if err := writeJSON(filepath.Join(dir, requestFile), req); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(dir, commandsFile), commands); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(dir, ledgerFile), entries); err != nil {
		return "", err
	}
	return stamp, nil
}

// List returns the available snapshot timestamps, oldest first.
func (m *Manager) List() ([]string, error) {
	dirs, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backups dir: %v", err)
	}

	var stamps []string
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		if _, err := time.Parse(stampLayout, d.Name()); err != nil {
			continue
		}
		stamps = append(stamps, d.Name())
	}
	sort.Strings(stamps)
	return stamps, nil
}

// Entries loads the pre-operation ledger state of a snapshot.
func (m *Manager) Entries(stamp string) ([]models.LedgerEntry, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, stamp, ledgerFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %v", stamp, err)
	}
	var entries []models.LedgerEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %v", stamp, err)
	}
	return entries, nil
}

// writeJSON writes v durably: temp file, fsync, rename.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %v", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snap-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %v", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %v", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %v", filepath.Base(path), err)
	}
	return os.Rename(tmp.Name(), path)
}
