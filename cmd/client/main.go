package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/syftsync/internal/client"
	"github.com/openmined/syftsync/internal/utils"
	"github.com/openmined/syftsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	home, _  = os.UserHomeDir()
	logLevel = new(slog.LevelVar)
)

var rootCmd = &cobra.Command{
	Use:     "syftsync",
	Short:   "Block level directory sync with a syftsync server",
	Version: version.Detailed(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			logLevel.Set(slog.LevelDebug)
		}
		return nil
	},
}

func init() {
	addClientFlags(rootCmd.PersistentFlags())
}

func addClientFlags(flags *pflag.FlagSet) {
	flags.SortFlags = false
	flags.StringP("config", "c", client.DefaultConfigPath, "syftsync config file")
	flags.StringP("local", "l", ".", "Local directory to sync")
	flags.StringP("server", "s", client.DefaultServerURL, "syftsync server")
	flags.StringP("direction", "d", "both", "Sync direction: local, remote or both")
	flags.BoolP("recursive", "r", true, "Descend into subdirectories")
	flags.Bool("hidden-dirs", false, "Include hidden directories")
	flags.Bool("hidden-files", false, "Include hidden files")
	flags.String("block-size", "1MiB", "Transfer block size")
	flags.String("hash-type", "md5", "Digest algorithm for hashing")
	flags.Bool("hash-after-list", false, "Queue hashing of every listed directory")
	flags.Bool("local-write", true, "Allow writing files on the local side")
	flags.Bool("local-delete", false, "Allow deleting files on the local side")
	flags.Bool("remote-write", true, "Allow writing files on the remote side")
	flags.Bool("remote-delete", false, "Allow deleting files on the remote side")
	flags.String("compression", "fastest", "Block compression: none, fastest, default, better or best")
	flags.Duration("timeout", 0, "Timeout of a single request")
	flags.String("zone", "", "Time zone for printed times")
	flags.BoolP("verbose", "v", false, "Log debug messages")
}

func main() {
	logFile := client.DefaultLogPath

	if err := utils.EnsureParent(logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	logLevel.Set(slog.LevelInfo)
	stdoutHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	logInterceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// time is added by the log interceptor
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// flagKeys maps config keys to the flags that override them.
var flagKeys = map[string]string{
	"local_dir":       "local",
	"server_url":      "server",
	"direction":       "direction",
	"recursive":       "recursive",
	"hidden_dirs":     "hidden-dirs",
	"hidden_files":    "hidden-files",
	"block_size":      "block-size",
	"hash_type":       "hash-type",
	"hash_after_list": "hash-after-list",
	"local.write":     "local-write",
	"local.delete":    "local-delete",
	"remote.write":    "remote-write",
	"remote.delete":   "remote-delete",
	"compression":     "compression",
	"timeout":         "timeout",
	"display_zone":    "zone",
}

// loadConfig merges the config file, SYFTSYNC_ env vars and flags into a
// validated client config. Flags win over env, env wins over the file.
func loadConfig(cmd *cobra.Command) (*client.Config, error) {
	v := viper.New()

	configPath := resolveConfigPath(cmd)
	v.SetConfigFile(configPath)
	if filepath.Ext(configPath) == "" {
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", configPath, err)
		}
	}

	for key, flag := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flag(flag)); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix("SYFTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	blockSize, err := humanize.ParseBytes(v.GetString("block_size"))
	if err != nil {
		return nil, fmt.Errorf("block_size: %w", err)
	}

	cfg := &client.Config{
		Path:          configPath,
		LocalDir:      v.GetString("local_dir"),
		ServerURL:     v.GetString("server_url"),
		Direction:     v.GetString("direction"),
		Recursive:     v.GetBool("recursive"),
		HiddenDirs:    v.GetBool("hidden_dirs"),
		HiddenFiles:   v.GetBool("hidden_files"),
		BlockSize:     int64(blockSize),
		HashType:      v.GetString("hash_type"),
		HashAfterList: v.GetBool("hash_after_list"),
		Compression:   v.GetString("compression"),
		Timeout:       v.GetDuration("timeout"),
		DisplayZone:   v.GetString("display_zone"),
		WatchDebounce: v.GetDuration("watch_debounce"),
		WatchInterval: v.GetDuration("watch_interval"),
	}
	cfg.Local.Write = v.GetBool("local.write")
	cfg.Local.Delete = v.GetBool("local.delete")
	cfg.Remote.Write = v.GetBool("remote.write")
	cfg.Remote.Delete = v.GetBool("remote.delete")
	cfg.Cache.Capacity = v.GetInt("cache.capacity")
	cfg.Cache.TTL = v.GetDuration("cache.ttl")
	cfg.Cache.PurgeInterval = v.GetDuration("cache.purge_interval")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newClient loads the config and builds the client for a command.
func newClient(cmd *cobra.Command) (*client.Client, *client.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	cmd.SilenceUsage = true

	c, err := client.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return c, cfg, nil
}
