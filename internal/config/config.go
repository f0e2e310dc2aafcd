// Package config loads tool settings from a TOML file, with defaults
// that match the tool's historical layout.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
)

// DefaultCapacity leaves headroom below the nominal 15 GiB so metadata
// overhead never trips the quota.
const DefaultCapacity = int64(1495 * 1024 * 1024 * 1024 / 100)

// S3Account configures one S3-compatible account in the config file.
type S3Account struct {
	ID        string `toml:"id"`
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Capacity  int64  `toml:"capacity"`
}

// Config is the full tool configuration.
type Config struct {
	AccountsDir     string      `toml:"accounts_dir"`
	LedgerPath      string      `toml:"ledger_path"`
	BackupsDir      string      `toml:"backups_dir"`
	IncludeDir      string      `toml:"include_dir"`
	MasterRemote    string      `toml:"master_remote"`
	RcloneBin       string      `toml:"rclone_bin"`
	DefaultCapacity int64       `toml:"default_capacity"`
	RefreshQuota    bool        `toml:"refresh_quota"`
	S3Accounts      []S3Account `toml:"s3_account"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		AccountsDir:     "accounts",
		LedgerPath:      "drive_data.db",
		BackupsDir:      "backups",
		IncludeDir:      "rclone_include_files",
		MasterRemote:    "god",
		RcloneBin:       "rclone",
		DefaultCapacity: DefaultCapacity,
	}
}

// Load reads the config file at path, applying defaults for anything
// unset. A missing file is not an error; the defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to load config %s: %v", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("unknown config keys in %s: %v", path, undecoded)
	}
	if cfg.DefaultCapacity <= 0 {
		cfg.DefaultCapacity = DefaultCapacity
	}
	return cfg, nil
}

// S3 converts the configured S3 accounts into account records.
func (c Config) S3() []models.Account {
	var accounts []models.Account
	for _, s := range c.S3Accounts {
		capacity := s.Capacity
		if capacity <= 0 {
			capacity = c.DefaultCapacity
		}
		a := models.Account{
			ID:         s.ID,
			Kind:       models.KindS3,
			TotalBytes: capacity,
		}
		a.S3.Endpoint = s.Endpoint
		a.S3.Bucket = s.Bucket
		a.S3.AccessKey = s.AccessKey
		a.S3.SecretKey = s.SecretKey
		accounts = append(accounts, a)
	}
	return accounts
}
