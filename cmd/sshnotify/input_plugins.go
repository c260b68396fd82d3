package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tinytelemetry/sshnotify/internal/logsource"
)

// NamedLogSource aliases the shared source abstraction to keep app-layer APIs explicit.
type NamedLogSource = logsource.LogSource

// InputSourcePlugin is a small plugin primitive for wiring log inputs.
type InputSourcePlugin interface {
	Name() string
	Enabled() bool
	Build(ctx context.Context) (NamedLogSource, error)
}

// InputPluginConfig defines runtime input selection.
type InputPluginConfig struct {
	Source       string
	AuthLog      string
	FromStart    bool
	PollInterval time.Duration
	Logger       *slog.Logger
}

func inputPluginConfig(cfg appConfig, logger *slog.Logger) InputPluginConfig {
	return InputPluginConfig{
		Source:       cfg.Source,
		AuthLog:      cfg.AuthLog,
		FromStart:    cfg.FromStart,
		PollInterval: cfg.PollInterval,
		Logger:       logger,
	}
}

func buildInputPlugins(cfg InputPluginConfig) []InputSourcePlugin {
	return []InputSourcePlugin{
		fileInputPlugin{
			path:         cfg.AuthLog,
			fromStart:    cfg.FromStart,
			pollInterval: cfg.PollInterval,
			logger:       cfg.Logger,
			enabled:      cfg.Source == sourceFile,
		},
		stdinInputPlugin{
			logger:  cfg.Logger,
			enabled: cfg.Source == sourceStdin,
		},
	}
}

// selectInput builds the single enabled plugin's source.
func selectInput(ctx context.Context, plugins []InputSourcePlugin) (NamedLogSource, error) {
	for _, plugin := range plugins {
		if !plugin.Enabled() {
			continue
		}
		src, err := plugin.Build(ctx)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", plugin.Name(), err)
		}
		return src, nil
	}
	return nil, errors.New("no input source enabled")
}

type fileInputPlugin struct {
	path         string
	fromStart    bool
	pollInterval time.Duration
	logger       *slog.Logger
	enabled      bool
}

func (p fileInputPlugin) Name() string { return sourceFile }

func (p fileInputPlugin) Enabled() bool { return p.enabled }

func (p fileInputPlugin) Build(ctx context.Context) (NamedLogSource, error) {
	return logsource.NewFileSource(ctx, logsource.FileConfig{
		Path:         p.path,
		FromStart:    p.fromStart,
		PollInterval: p.pollInterval,
		Logger:       p.logger,
	})
}

type stdinInputPlugin struct {
	logger  *slog.Logger
	enabled bool
}

func (p stdinInputPlugin) Name() string { return sourceStdin }

func (p stdinInputPlugin) Enabled() bool { return p.enabled }

func (p stdinInputPlugin) Build(ctx context.Context) (NamedLogSource, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat stdin: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice != 0 {
		return nil, errors.New("stdin is a terminal; pipe the auth log in, e.g. journalctl -fu ssh | sshnotify -source stdin")
	}
	return logsource.NewStdinSource(ctx, logsource.ReaderConfig{Logger: p.logger}), nil
}
