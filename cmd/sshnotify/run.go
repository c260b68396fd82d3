package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/sshnotify/internal/classify"
	"github.com/tinytelemetry/sshnotify/internal/dedup"
	"github.com/tinytelemetry/sshnotify/internal/httpserver"
	"github.com/tinytelemetry/sshnotify/internal/lockfile"
	"github.com/tinytelemetry/sshnotify/internal/logging"
	"github.com/tinytelemetry/sshnotify/internal/notify"
	"github.com/tinytelemetry/sshnotify/internal/pipeline"
)

// runMonitor follows the auth log and sends notifications until a signal
// arrives or the source ends.
func runMonitor(cfg appConfig) error {
	logger, cleanupLogger, err := logging.Init(logging.Config{
		Output: cfg.LogOutput,
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
	})
	if err != nil {
		return err
	}
	defer cleanupLogger()

	lock, err := lockfile.Acquire(cfg.LockFile)
	if err != nil {
		logger.Error("lock not acquired", "path", cfg.LockFile, "error", err)
		return err
	}
	defer lock.Release()

	// Set up context and signal handling before the source opens.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		logger.Info("shutting down", "signal", sig.String())
		if !cfg.Quiet {
			fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		}
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(defaultShutdownWindow)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		_ = lock.Release()
		os.Exit(1)
	}()

	src, err := selectInput(ctx, buildInputPlugins(inputPluginConfig(cfg, logger)))
	if err != nil {
		logger.Error("input unavailable", "source", cfg.Source, "error", err)
		return err
	}

	notifier := notify.New(cfg.NtfyURL,
		notify.WithToken(cfg.NtfyToken),
		notify.WithTimeout(cfg.NotifyTimeout),
		notify.WithLogger(logger),
	)
	guard := dedup.New(dedup.Config{Window: cfg.DedupWindow, Capacity: cfg.DedupCapacity})
	driver := pipeline.New(src, classify.New(cfg.Categories), guard, notifier, logger)

	var apiServer *httpserver.Server
	if cfg.APIEnabled {
		apiServer = httpserver.NewServer(cfg.APIAddr, driver)
		if err := apiServer.Start(); err != nil {
			src.Stop()
			return fmt.Errorf("failed to start API server: %w", err)
		}
	}

	if !cfg.Quiet {
		printStartupBanner(cfg, src.Name())
	}
	logger.Info("monitor started",
		"source", src.Name(),
		"auth_log", cfg.AuthLog,
		"events", cfg.Categories.String(),
		"endpoint", cfg.NtfyURL,
		"pid", os.Getpid(),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// A finished pipeline also ends the API goroutine.
		defer cancel()
		err := driver.Run(gctx)
		if errors.Is(err, pipeline.ErrSourceClosed) && cfg.Source == sourceStdin {
			logger.Info("stdin closed")
			return nil
		}
		return err
	})

	if apiServer != nil {
		g.Go(func() error {
			<-gctx.Done()
			return apiServer.Stop()
		})
	}

	runErr := g.Wait()

	stats := driver.Stats()
	logger.Info("monitor stopped",
		"lines_read", stats.LinesRead,
		"events", stats.Events,
		"suppressed", stats.Suppressed,
		"delivered", stats.Delivered,
		"failed", stats.Failed,
	)
	if runErr != nil {
		logger.Error("monitor exited with error", "error", runErr)
		return runErr
	}
	return nil
}

func printStartupBanner(cfg appConfig, sourceName string) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔═╗╔═╗╦ ╦╔╗╔╔═╗╔╦╗╦╔═╗╦ ╦
    ╚═╗╚═╗╠═╣║║║║ ║ ║ ║╠╣ ╚╦╝
    ╚═╝╚═╝╩ ╩╝╚╝╚═╝ ╩ ╩╚   ╩ `)

	var lines []string
	lines = append(lines, "", logo, "    "+dim.Render("v"+version), "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator, "")

	lines = append(lines, bold.Render("    Input"), "")
	if sourceName == sourceFile {
		lines = append(lines, fmt.Sprintf("    %s  Auth Log       %s", check, cyan.Render(shortenPath(cfg.AuthLog))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Stdin          %s", check, cyan.Render("piped")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Events         %s", check, dim.Render(cfg.Categories.String())))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Delivery"), "")
	lines = append(lines, fmt.Sprintf("    %s  Endpoint       %s", check, cyan.Render(cfg.NtfyURL)))
	if cfg.NtfyToken != "" {
		lines = append(lines, fmt.Sprintf("    %s  Token          %s", check, dim.Render("set")))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Token          %s", dot, dim.Render("none")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Dedup          %s", check, dim.Render(dedupSummary(cfg))))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Runtime"), "")
	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Log File       %s", check, dim.Render(shortenPath(cfg.LogOutput))))
	lines = append(lines, fmt.Sprintf("    %s  Lock File      %s", check, dim.Render(shortenPath(cfg.LockFile))))
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"), "")

	fmt.Println(strings.Join(lines, "\n"))
}

func dedupSummary(cfg appConfig) string {
	window := "forever"
	if cfg.DedupWindow > 0 {
		window = cfg.DedupWindow.String()
	}
	capacity := "unbounded"
	if cfg.DedupCapacity > 0 {
		capacity = strconv.Itoa(cfg.DedupCapacity) + " keys"
	}
	return window + ", " + capacity
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
