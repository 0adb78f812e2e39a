package client

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/openmined/syftsync/internal/access"
	"github.com/openmined/syftsync/internal/hasher"
	"github.com/openmined/syftsync/internal/syncop"
	"github.com/openmined/syftsync/internal/transfer"
	"github.com/openmined/syftsync/internal/utils"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = filepath.Join(home, ".syftsync", "config.json")
	DefaultLogPath    = filepath.Join(home, ".syftsync", "logs", "syftsync.log")
	DefaultServerURL  = "http://127.0.0.1:7938"
)

const (
	DefaultWatchDebounce = 500 * time.Millisecond
	DefaultWatchInterval = time.Minute
)

var validate = validator.New()

type Config struct {
	LocalDir      string        `json:"local_dir" mapstructure:"local_dir" validate:"required"`
	ServerURL     string        `json:"server_url" mapstructure:"server_url" validate:"required,url"`
	Direction     string        `json:"direction" mapstructure:"direction" validate:"required"`
	Recursive     bool          `json:"recursive" mapstructure:"recursive"`
	HiddenDirs    bool          `json:"hidden_dirs" mapstructure:"hidden_dirs"`
	HiddenFiles   bool          `json:"hidden_files" mapstructure:"hidden_files"`
	BlockSize     int64         `json:"block_size" mapstructure:"block_size" validate:"gte=0"`
	HashType      string        `json:"hash_type" mapstructure:"hash_type"`
	HashAfterList bool          `json:"hash_after_list" mapstructure:"hash_after_list"`
	Local         access.Policy `json:"local" mapstructure:"local"`
	Remote        access.Policy `json:"remote" mapstructure:"remote"`
	Cache         CacheConfig   `json:"cache" mapstructure:"cache"`
	Timeout       time.Duration `json:"timeout" mapstructure:"timeout" validate:"gte=0"`
	Compression   string        `json:"compression" mapstructure:"compression" validate:"omitempty,oneof=none fastest default better best"`
	DisplayZone   string        `json:"display_zone" mapstructure:"display_zone"`
	WatchDebounce time.Duration `json:"watch_debounce" mapstructure:"watch_debounce" validate:"gte=0"`
	WatchInterval time.Duration `json:"watch_interval" mapstructure:"watch_interval" validate:"gte=0"`
	Path          string        `json:"-" mapstructure:"-"`

	direction syncop.Direction
	zone      *time.Location
}

type CacheConfig struct {
	Capacity      int           `json:"capacity" mapstructure:"capacity" validate:"gte=0"`
	TTL           time.Duration `json:"ttl" mapstructure:"ttl" validate:"gte=0"`
	PurgeInterval time.Duration `json:"purge_interval" mapstructure:"purge_interval" validate:"gte=0"`
}

// Validate checks the config and fills in defaults. It must be called
// before the config is handed to New.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	dir, err := utils.ResolvePath(c.LocalDir)
	if err != nil {
		return fmt.Errorf("local_dir: %w", err)
	}
	if !utils.DirExists(dir) {
		return fmt.Errorf("local_dir: %q is not a directory", dir)
	}
	c.LocalDir = dir

	if c.direction, err = syncop.ParseDirection(c.Direction); err != nil {
		return fmt.Errorf("direction: %w", err)
	}

	if c.HashType, err = hasher.NormalizeAlgorithm(c.HashType); err != nil {
		return fmt.Errorf("hash_type: %w", err)
	}

	c.zone = time.Local
	if c.DisplayZone != "" {
		if c.zone, err = time.LoadLocation(c.DisplayZone); err != nil {
			return fmt.Errorf("display_zone: %w", err)
		}
	}

	if c.BlockSize == 0 {
		c.BlockSize = transfer.DefaultBlockSize
	}
	if c.WatchDebounce == 0 {
		c.WatchDebounce = DefaultWatchDebounce
	}
	if c.WatchInterval == 0 {
		c.WatchInterval = DefaultWatchInterval
	}

	return nil
}

// SyncDirection is the parsed Direction. Only valid after Validate.
func (c *Config) SyncDirection() syncop.Direction {
	return c.direction
}

// Zone is the time zone reports are printed in. Only valid after Validate.
func (c *Config) Zone() *time.Location {
	if c.zone == nil {
		return time.Local
	}
	return c.zone
}

func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
