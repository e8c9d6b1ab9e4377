// Package cmd implements the assetcache command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/assetcache/internal/app"
	"github.com/zjrosen/assetcache/internal/config"
	"github.com/zjrosen/assetcache/internal/log"
	"github.com/zjrosen/assetcache/internal/presentation"
)

// LocalConfigPath is the project config file looked up in the working directory.
const LocalConfigPath = ".assetcache/config.yaml"

var (
	version    = "dev"
	cfgFile    string
	configUsed string         // file viper read, if any
	settings   map[string]any // defaults, file values, and flag overrides merged
	cfg        config.Config
	jsonOutput bool
	debugMode  bool
	logCleanup = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "assetcache",
	Short: "Keep derived artifacts in sync with their source files",
	Long: `assetcache watches a tree of source files (meshes, asset envelopes), derives an
in-memory artifact from each one, and keeps a stable identifier for every file
across edits, renames, and restarts.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRun: func(*cobra.Command, []string) { logCleanup() },
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .assetcache/config.yaml or ~/.config/assetcache/config.yaml)")
	rootCmd.PersistentFlags().StringP("root", "r", "",
		"directory to scan (overrides config root)")
	rootCmd.PersistentFlags().BoolVarP(&debugMode, "debug", "d", false,
		"write debug logs to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"print results as JSON")
	rootCmd.PersistentFlags().Bool("no-index", false,
		"do not read or write the location index")
}

func initConfig() {
	v := viper.New()
	defaults := config.Defaults()
	v.SetDefault("root", defaults.Root)
	v.SetDefault("extensions", defaults.Extensions)
	v.SetDefault("scan.concurrency", defaults.Scan.Concurrency)
	v.SetDefault("watch.enabled", defaults.Watch.Enabled)
	v.SetDefault("watch.debounce", defaults.Watch.Debounce.String())
	v.SetDefault("index.enabled", defaults.Index.Enabled)
	v.SetDefault("index.path", defaults.Index.Path)
	v.SetDefault("envelope.pretty", defaults.Envelope.Pretty)
	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	v.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	v.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	v.SetDefault("log.path", defaults.Log.Path)
	v.SetDefault("log.level", defaults.Log.Level)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .assetcache/config.yaml (current directory)
		// 2. ~/.config/assetcache/config.yaml (user config)
		if _, err := os.Stat(LocalConfigPath); err == nil {
			v.SetConfigFile(LocalConfigPath)
		} else {
			home, _ := os.UserHomeDir()
			v.AddConfigPath(filepath.Join(home, ".config", "assetcache"))
			v.SetConfigName("config")
			v.SetConfigType("yaml")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(rootCmd.ErrOrStderr(), "warning: reading config: %v\n", err)
		}
	}

	flags := rootCmd.PersistentFlags()
	if root, _ := flags.GetString("root"); root != "" {
		v.Set("root", root)
	}
	if noIndex, _ := flags.GetBool("no-index"); noIndex {
		v.Set("index.enabled", false)
	}

	cfg = config.Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "warning: decoding config: %v\n", err)
	}
	settings = v.AllSettings()
	configUsed = v.ConfigFileUsed()
}

// configTarget is the file `config set` edits.
func configTarget() string {
	if cfgFile != "" {
		return cfgFile
	}
	if configUsed != "" {
		return configUsed
	}
	return LocalConfigPath
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setupLogging(*cobra.Command, []string) error {
	logCleanup = func() {}
	switch {
	case debugMode:
		logCleanup = log.InitWriter(os.Stderr)
	case cfg.Log.Path != "":
		cleanup, err := log.Init(cfg.Log.Path)
		if err != nil {
			return err
		}
		logCleanup = cleanup
	default:
		return nil
	}
	log.SetMinLevel(log.ParseLevel(cfg.Log.Level))
	log.Debug(log.CatConfig, "Loaded config", "file", configUsed, "root", cfg.Root)
	return nil
}

// withApp builds the application for one command run and closes it after.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, out *presentation.Formatter) error) error {
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a, newFormatter(cmd))
}

func newFormatter(cmd *cobra.Command) *presentation.Formatter {
	return presentation.NewFormatter(cmd.OutOrStdout(), jsonOutput)
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
