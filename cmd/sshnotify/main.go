package main

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/tinytelemetry/sshnotify/internal/classify"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

const envPrefix = "SSHNOTIFY"

// cliFlags holds parsed command-line flags. Overrides carries only the
// config keys that were set explicitly; they win over file and environment.
type cliFlags struct {
	ConfigPath  string
	EnvFile     string
	ShowVersion bool
	Overrides   map[string]any
}

func parseFlags(fs *flag.FlagSet, args []string) (cliFlags, error) {
	var f cliFlags
	var source, authLog string
	var fromStart bool

	fs.StringVar(&f.ConfigPath, "config", "", "config file (default is $HOME/.config/sshnotify/config.yml)")
	fs.StringVar(&f.EnvFile, "env-file", "", "dotenv file to load before reading the environment (default .env if present)")
	fs.BoolVar(&f.ShowVersion, "version", false, "print version information")
	fs.StringVar(&source, "source", "", "input source: file or stdin (overrides config)")
	fs.StringVar(&authLog, "auth-log", "", "auth log path for the file source (overrides config)")
	fs.BoolVar(&fromStart, "from-start", false, "replay lines already in the auth log (overrides config)")
	if err := fs.Parse(args); err != nil {
		return f, err
	}

	f.Overrides = make(map[string]any)
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "source":
			f.Overrides["source"] = source
		case "auth-log":
			f.Overrides["auth-log"] = authLog
		case "from-start":
			f.Overrides["from-start"] = fromStart
		}
	})
	return f, nil
}

func main() {
	flags, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if flags.ShowVersion {
		fmt.Printf("sshnotify - SSH login notifier\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	if err := loadDotEnv(flags.EnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading env file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(flags.ConfigPath, flags.Overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := runMonitor(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadDotEnv loads variables from path without overriding ones already set.
// With no path, ./.env is loaded when it exists.
func loadDotEnv(path string) error {
	if path != "" {
		return gotenv.Load(path)
	}
	if err := gotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func loadConfig(configPath string, overrides map[string]any) (appConfig, error) {
	var cfg appConfig

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return cfg, err
		}
	}

	if configPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configPath = filepath.Join(home, ".config", "sshnotify", "config.yml")
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var configFileNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
				return cfg, err
			}
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		cfg.ConfigPath = ""
	}

	if err := validateConfig(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg *appConfig) error {
	u, err := url.Parse(cfg.NtfyURL)
	if err != nil {
		return fmt.Errorf("invalid ntfy-url: %w", err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("invalid ntfy-url %q: want an http(s) URL", cfg.NtfyURL)
	}

	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))
	switch cfg.Source {
	case sourceFile:
		if cfg.AuthLog == "" {
			return errors.New("auth-log is required when source is file")
		}
	case sourceStdin:
	default:
		return fmt.Errorf("invalid source %q: want %s or %s", cfg.Source, sourceFile, sourceStdin)
	}

	cfg.Categories, err = classify.ParseCategories(cfg.MonitorEvents)
	if err != nil {
		return fmt.Errorf("invalid monitor-events: %w", err)
	}

	if cfg.PollInterval <= 0 {
		return fmt.Errorf("invalid poll-interval: %s", cfg.PollInterval)
	}
	if cfg.NotifyTimeout <= 0 {
		return fmt.Errorf("invalid notify-timeout: %s", cfg.NotifyTimeout)
	}
	if cfg.DedupWindow < 0 {
		return fmt.Errorf("invalid dedup-window: %s", cfg.DedupWindow)
	}
	if cfg.DedupCapacity < 0 {
		return fmt.Errorf("invalid dedup-capacity: %d", cfg.DedupCapacity)
	}
	if cfg.LockFile == "" {
		return errors.New("lock-file is required")
	}
	return nil
}
