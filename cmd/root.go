package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/registrar/internal/config"
	"github.com/zjrosen/registrar/internal/log"
	"github.com/zjrosen/registrar/internal/registry"
	"github.com/zjrosen/registrar/internal/wiring"
)

const shutdownTimeout = 30 * time.Second

var (
	version  = "dev"
	cfgFile  string
	cfgPath  string
	cfg      config.Config
	closeLog = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "registrar",
	Short: "Inspect and host a process-wide object registry",
	Long: `registrar hosts an object registry: factories keyed by type and name,
lazily built singletons, contracts declaring what the process needs, and
addon hooks. Use it to validate contracts, dump registry state, or keep a
registry running while its config file changes.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .registrar/config.yaml, then ~/.config/registrar/config.yaml)")
}

// initConfig resolves and loads the config file, then starts logging.
func initConfig(_ *cobra.Command, _ []string) error {
	cfgPath = resolveConfigPath(cfgFile)

	loaded, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cfg = loaded

	cleanup, err := setupLogging(cfg.Log)
	if err != nil {
		return err
	}
	closeLog = cleanup
	log.Debug(log.CatCLI, "config loaded", "path", cfgPath)
	return nil
}

// resolveConfigPath returns the config file to read, or "" to run on
// defaults. Lookup order:
// 1. --config
// 2. .registrar/config.yaml (current directory)
// 3. ~/.config/registrar/config.yaml (user config)
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, p := range []string{config.ProjectConfigPath(), config.DefaultConfigPath()} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadConfig reads path (if any) over the defaults. REGISTRAR_* environment
// variables override both, e.g. REGISTRAR_LOG_LEVEL=debug.
func loadConfig(path string) (config.Config, error) {
	v := viper.New()
	setDefaults(v, config.Defaults())

	v.SetEnvPrefix(config.AppName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config.Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var loaded config.Config
	if err := v.Unmarshal(&loaded); err != nil {
		return config.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if loaded.Flags == nil {
		loaded.Flags = map[string]bool{}
	}
	return loaded, nil
}

func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("log.enabled", d.Log.Enabled)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)

	v.SetDefault("registry.validate_on_start", d.Registry.ValidateOnStart)
	v.SetDefault("registry.test_contracts_on_start", d.Registry.TestContractsOnStart)
	v.SetDefault("registry.reset_on_config_change", d.Registry.ResetOnConfigChange)
	v.SetDefault("registry.watch_debounce", d.Registry.WatchDebounce)
}

// setupLogging installs the global logger. Disabled logging installs nothing.
func setupLogging(lc config.LogConfig) (func(), error) {
	if !lc.Enabled {
		return func() {}, nil
	}

	var cleanup func()
	if lc.Path != "" {
		c, err := log.Init(lc.Path)
		if err != nil {
			return nil, err
		}
		cleanup = c
	} else {
		cleanup = log.InitWriter(os.Stderr)
	}

	if level, ok := log.ParseLevel(lc.Level); ok {
		log.SetMinLevel(level)
	}
	return cleanup, nil
}

// newApp builds a registry with the CLI's infrastructure installed. The
// loader re-reads the config file on every reload.
func newApp() (*registry.Registry, *wiring.App, error) {
	r := registry.New()
	path := cfgPath
	app, err := wiring.Install(r, func() (config.Config, error) {
		return loadConfig(path)
	})
	if err != nil {
		_ = r.Shutdown(context.Background())
		return nil, nil, err
	}
	return r, app, nil
}

// shutdown withdraws the CLI's registrations and tears the registry down.
func shutdown(r *registry.Registry, app *wiring.App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	errs = append(errs, app.Close(), r.Shutdown(ctx))
	if err := errors.Join(errs...); err != nil {
		log.ErrorErr(log.CatCLI, "shutdown", err)
	}
}

// Execute runs the root command
func Execute() error {
	defer func() { closeLog() }()
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
	registry.Version = v
}
