package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
)

// LoadDir discovers Drive service accounts from a directory of
// credential JSON files. The file basename (without extension) is the
// account ID. Accounts start with the configured default capacity and
// zero usage; usage is seeded from the ledger and capacity may be
// refreshed from the live provider afterwards.
func LoadDir(dir string, defaultCapacity int64) ([]models.Account, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts directory %s: %v", dir, err)
	}

	var accounts []models.Account
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		accounts = append(accounts, models.Account{
			ID:             id,
			Kind:           models.KindDrive,
			TotalBytes:     defaultCapacity,
			CredentialFile: filepath.Join(dir, entry.Name()),
		})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}
