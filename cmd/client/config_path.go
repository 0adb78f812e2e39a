package main

import (
	"os"
	"path/filepath"

	"github.com/openmined/syftsync/internal/utils"
	"github.com/spf13/cobra"
)

// resolveConfigPath picks the config file, honoring in order the --config
// flag, SYFTSYNC_CONFIG_PATH, an existing file in a known location and
// finally the default path.
func resolveConfigPath(cmd *cobra.Command) string {
	if cfgFlag := cmd.Flag("config"); cfgFlag != nil && cfgFlag.Changed {
		return cfgFlag.Value.String()
	}

	if envPath := os.Getenv("SYFTSYNC_CONFIG_PATH"); envPath != "" {
		return envPath
	}

	defaultPath := filepath.Join(home, ".syftsync", "config.json")
	candidates := []string{
		defaultPath,
		filepath.Join(home, ".config", "syftsync", "config.json"),
		filepath.Join(home, ".config", "syftsync", "config.yaml"),
	}

	for _, candidate := range candidates {
		if utils.FileExists(candidate) {
			return candidate
		}
	}

	return defaultPath
}
