package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, "accounts", cfg.AccountsDir)
	assert.Equal(t, "drive_data.db", cfg.LedgerPath)
	assert.Equal(t, "god", cfg.MasterRemote)
	assert.Equal(t, DefaultCapacity, cfg.DefaultCapacity)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gdsync.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
accounts_dir = "/etc/gdsync/accounts"
ledger_path = "/var/lib/gdsync/ledger.db"
refresh_quota = true
default_capacity = 1073741824

[[s3_account]]
id = "wasabi01"
endpoint = "s3.wasabisys.com"
bucket = "backups"
access_key = "AK"
secret_key = "SK"
capacity = 5368709120
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/etc/gdsync/accounts", cfg.AccountsDir)
	assert.True(t, cfg.RefreshQuota)
	assert.Equal(t, int64(1073741824), cfg.DefaultCapacity)
	// Unset keys keep their defaults.
	assert.Equal(t, "backups", cfg.BackupsDir)

	accounts := cfg.S3()
	require.Len(t, accounts, 1)
	assert.Equal(t, "wasabi01", accounts[0].ID)
	assert.Equal(t, models.KindS3, accounts[0].Kind)
	assert.Equal(t, int64(5368709120), accounts[0].TotalBytes)
	assert.Equal(t, "s3.wasabisys.com", accounts[0].S3.Endpoint)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gdsync.toml")
	require.NoError(t, os.WriteFile(path, []byte(`typo_key = "x"`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestS3CapacityDefaultsToGlobal(t *testing.T) {
	cfg := Default()
	cfg.S3Accounts = []S3Account{{ID: "s3a", Endpoint: "e", Bucket: "b"}}

	accounts := cfg.S3()
	require.Len(t, accounts, 1)
	assert.Equal(t, cfg.DefaultCapacity, accounts[0].TotalBytes)
}
