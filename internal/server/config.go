package server

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/openmined/syftsync/internal/access"
	"github.com/openmined/syftsync/internal/utils"
)

const (
	DefaultAddr        = "127.0.0.1:7938"
	DefaultCompression = "fastest"
)

var validate = validator.New()

type Config struct {
	HTTP         HTTPConfig    `mapstructure:"http"`
	RootDir      string        `mapstructure:"root_dir" validate:"required"`
	Policy       access.Policy `mapstructure:"policy"`
	MaxBlockSize int64         `mapstructure:"max_block_size" validate:"gte=0"`
	Compression  string        `mapstructure:"compression" validate:"omitempty,oneof=none fastest default better best"`
	Hash         HashConfig    `mapstructure:"hash"`
	Cache        CacheConfig   `mapstructure:"cache"`
	LogFilePath  string        `mapstructure:"log_file"`
}

type HTTPConfig struct {
	Addr     string `mapstructure:"addr" validate:"required,hostname_port"`
	CertFile string `mapstructure:"cert_file" validate:"required_with=KeyFile"`
	KeyFile  string `mapstructure:"key_file" validate:"required_with=CertFile"`
}

type HashConfig struct {
	Backlog int `mapstructure:"backlog" validate:"gte=0"`
	History int `mapstructure:"history" validate:"gte=0"`
}

type CacheConfig struct {
	Capacity      int           `mapstructure:"capacity" validate:"gte=0"`
	TTL           time.Duration `mapstructure:"ttl" validate:"gte=0"`
	PurgeInterval time.Duration `mapstructure:"purge_interval" validate:"gte=0"`
}

// Validate checks the struct tags, then resolves RootDir to an absolute path
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	root, err := utils.ResolvePath(c.RootDir)
	if err != nil {
		return fmt.Errorf("root_dir: %w", err)
	}
	if !utils.DirExists(root) {
		return fmt.Errorf("root_dir: %q is not a directory", root)
	}
	c.RootDir = root

	return nil
}

func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
