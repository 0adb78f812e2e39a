package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/syftsync/internal/syncop"
	"github.com/openmined/syftsync/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ValidateDefaults(t *testing.T) {
	cfg := &Config{
		LocalDir:  t.TempDir(),
		ServerURL: DefaultServerURL,
		Direction: "Both",
	}
	require.NoError(t, cfg.Validate())

	assert.True(t, filepath.IsAbs(cfg.LocalDir))
	assert.Equal(t, syncop.DirectionBoth, cfg.SyncDirection())
	assert.Equal(t, "md5", cfg.HashType)
	assert.Equal(t, int64(transfer.DefaultBlockSize), cfg.BlockSize)
	assert.Equal(t, DefaultWatchDebounce, cfg.WatchDebounce)
	assert.Equal(t, DefaultWatchInterval, cfg.WatchInterval)
	assert.Equal(t, time.Local, cfg.Zone())
}

func TestConfig_ValidateErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	valid := func() Config {
		return Config{LocalDir: dir, ServerURL: DefaultServerURL, Direction: "remote"}
	}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no local dir", func(c *Config) { c.LocalDir = "" }},
		{"local dir is a file", func(c *Config) { c.LocalDir = file }},
		{"no server", func(c *Config) { c.ServerURL = "" }},
		{"bad server", func(c *Config) { c.ServerURL = "not a url" }},
		{"bad direction", func(c *Config) { c.Direction = "sideways" }},
		{"bad hash", func(c *Config) { c.HashType = "md4" }},
		{"bad zone", func(c *Config) { c.DisplayZone = "Nowhere/Nothing" }},
		{"bad compression", func(c *Config) { c.Compression = "max" }},
		{"negative block size", func(c *Config) { c.BlockSize = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
