package main

import (
	"time"

	"github.com/tinytelemetry/sshnotify/internal/classify"
	"github.com/tinytelemetry/sshnotify/internal/model"
)

const (
	defaultSource         = sourceFile
	defaultMonitorEvents  = classify.AllToken
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultAPIAddr        = "127.0.0.1:3100"
	defaultShutdownWindow = 10 * time.Second

	sourceFile  = "file"
	sourceStdin = "stdin"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	AuthLog       string        `mapstructure:"auth-log"`
	Source        string        `mapstructure:"source"`
	FromStart     bool          `mapstructure:"from-start"`
	PollInterval  time.Duration `mapstructure:"poll-interval"`
	NtfyURL       string        `mapstructure:"ntfy-url"`
	NtfyToken     string        `mapstructure:"ntfy-token"`
	MonitorEvents string        `mapstructure:"monitor-events"`
	NotifyTimeout time.Duration `mapstructure:"notify-timeout"`
	DedupWindow   time.Duration `mapstructure:"dedup-window"`
	DedupCapacity int           `mapstructure:"dedup-capacity"`
	LockFile      string        `mapstructure:"lock-file"`
	LogOutput     string        `mapstructure:"log-output"`
	LogLevel      string        `mapstructure:"log-level"`
	LogFormat     string        `mapstructure:"log-format"`
	APIEnabled    bool          `mapstructure:"api-enabled"`
	APIAddr       string        `mapstructure:"api-addr"`
	Quiet         bool          `mapstructure:"quiet"`

	ConfigPath string               `mapstructure:"-"` // not from config file
	Categories classify.CategorySet `mapstructure:"-"` // parsed from MonitorEvents
}

var defaults = map[string]any{
	"auth-log":       model.DefaultAuthLog,
	"source":         defaultSource,
	"from-start":     false,
	"poll-interval":  model.DefaultPollInterval,
	"ntfy-url":       model.DefaultNotifyURL,
	"ntfy-token":     "",
	"monitor-events": defaultMonitorEvents,
	"notify-timeout": model.DefaultNotifyTimeout,
	"dedup-window":   time.Duration(0),
	"dedup-capacity": 0,
	"lock-file":      model.DefaultLockFile,
	"log-output":     model.DefaultLogOutput,
	"log-level":      defaultLogLevel,
	"log-format":     defaultLogFormat,
	"api-enabled":    false,
	"api-addr":       defaultAPIAddr,
	"quiet":          false,
}

// legacyEnv maps keys to the unprefixed variables earlier deployments used.
var legacyEnv = map[string]string{
	"ntfy-url":       "NTFY_URL",
	"ntfy-token":     "NTFY_TOKEN",
	"monitor-events": "MONITOR_EVENTS",
}
