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

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/syftsync/internal/server"
	"github.com/openmined/syftsync/internal/utils"
	"github.com/openmined/syftsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	home, _        = os.UserHomeDir()
	defaultLogFile = filepath.Join(home, ".syftsync", "logs", "server.log")
	defaultRootDir = filepath.Join(home, "SyftSync")
	logLevel       = new(slog.LevelVar)
)

var rootCmd = &cobra.Command{
	Use:     "syftsync-server",
	Short:   "Serve a directory to syftsync clients",
	Version: version.Detailed(),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			logLevel.Set(slog.LevelDebug)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		closeLog, err := setupLogger(cfg.LogFilePath)
		if err != nil {
			return err
		}
		defer closeLog()

		srv, err := server.New(cfg)
		if err != nil {
			return err
		}
		defer slog.Info("Bye!")
		return srv.Start(cmd.Context())
	},
}

func newPrintConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print-config",
		Short: "Print the effective server config as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			return yaml.NewEncoder(cmd.OutOrStdout()).Encode(v.AllSettings())
		},
	}
}

func init() {
	addServerFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(newPrintConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func addServerFlags(flags *pflag.FlagSet) {
	flags.SortFlags = false
	flags.StringP("config", "f", "", "Path to the config file")
	flags.StringP("root", "r", defaultRootDir, "Directory to serve")
	flags.StringP("bind", "b", server.DefaultAddr, "Address to bind the server")
	flags.StringP("cert", "c", "", "Path to the certificate file")
	flags.StringP("key", "k", "", "Path to the key file")
	flags.Bool("read", true, "Allow clients to read files")
	flags.Bool("write", true, "Allow clients to write files")
	flags.Bool("delete", false, "Allow clients to delete files")
	flags.Int64("max-block-size", 0, "Largest block a client may request, 0 for the default")
	flags.String("compression", server.DefaultCompression, "Block compression: none, fastest, default, better or best")
	flags.String("log-file", defaultLogFile, "Path to the log file, empty to log to stderr only")
	flags.BoolP("verbose", "v", false, "Log debug messages")
}

func main() {
	logLevel.Set(slog.LevelInfo)
	slog.SetDefault(slog.New(stderrHandler()))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("dotenv load", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func stderrHandler() slog.Handler {
	return tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
}

// setupLogger adds a file handler next to stderr. The returned func closes
// the file.
func setupLogger(logFile string) (func(), error) {
	if logFile == "" {
		return func() {}, nil
	}

	if err := utils.EnsureParent(logFile); err != nil {
		return nil, fmt.Errorf("log dir: %w", err)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("log file: %w", err)
	}

	fileHandler := slog.NewTextHandler(utils.NewLogInterceptor(file), &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// time is added by the log interceptor
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})
	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stderrHandler(), fileHandler)))

	return func() { _ = file.Close() }, nil
}

// configDefaults seeds every key so Unmarshal picks up env overrides for
// keys that neither a flag nor the config file set.
var configDefaults = map[string]any{
	"http.addr":            server.DefaultAddr,
	"http.cert_file":       "",
	"http.key_file":        "",
	"root_dir":             defaultRootDir,
	"policy.read":          true,
	"policy.write":         true,
	"policy.delete":        false,
	"max_block_size":       0,
	"compression":          server.DefaultCompression,
	"hash.backlog":         0,
	"hash.history":         0,
	"cache.capacity":       0,
	"cache.ttl":            "0s",
	"cache.purge_interval": "0s",
	"log_file":             defaultLogFile,
}

var flagKeys = map[string]string{
	"http.addr":      "bind",
	"http.cert_file": "cert",
	"http.key_file":  "key",
	"root_dir":       "root",
	"policy.read":    "read",
	"policy.write":   "write",
	"policy.delete":  "delete",
	"max_block_size": "max-block-size",
	"compression":    "compression",
	"log_file":       "log-file",
}

func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	for key, value := range configDefaults {
		v.SetDefault(key, value)
	}

	if cmd.Flag("config").Changed {
		v.SetConfigFile(cmd.Flag("config").Value.String())
	} else {
		v.SetConfigName("server")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".syftsync"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	} else {
		slog.Debug("server config", "file", v.ConfigFileUsed())
	}

	for key, flag := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flag(flag)); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix("SYFTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

func loadConfig(cmd *cobra.Command) (*server.Config, error) {
	v, err := newViper(cmd)
	if err != nil {
		return nil, err
	}

	cfg := &server.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	if cfg.RootDir != "" {
		if err := utils.EnsureDir(cfg.RootDir); err != nil {
			return nil, fmt.Errorf("root_dir: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print syftsync-server version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Detailed())
			return err
		},
	}
}
