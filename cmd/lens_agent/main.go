package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/mintlens/internal/bridge"
	"github.com/dgnsrekt/mintlens/internal/browser"
	"github.com/dgnsrekt/mintlens/internal/cdp"
	"github.com/dgnsrekt/mintlens/internal/config"
	"github.com/dgnsrekt/mintlens/internal/notify"
	"github.com/dgnsrekt/mintlens/internal/overlay"
	"github.com/dgnsrekt/mintlens/internal/panel"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"gopkg.in/natefinch/lumberjack.v2"
)

const statsInterval = time.Minute

func main() {
	cfg, err := config.LoadAgent()
	if err != nil {
		slog.Error("failed to load agent config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("agent config loaded",
		"cdp_url", cfg.CDPURL(),
		"tab_url_filter", cfg.TabURLFilter,
		"bridge_url", cfg.BridgeURL,
		"debounce_ms", cfg.DebounceMS,
		"lookup_timeout_ms", cfg.LookupTimeoutMS,
		"locale", cfg.Locale,
		"default_decimals", cfg.DefaultDecimals,
		"panel_rules", cfg.PanelRules,
		"launch_browser", cfg.LaunchBrowser,
		"ntfy_enabled", cfg.NTFYEndpoint != "",
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var launcher *browser.Launcher
	if cfg.LaunchBrowser {
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	rules, err := panel.OpenStore(cfg.PanelRules)
	if err != nil {
		slog.Error("failed to load panel rules", "path", cfg.PanelRules, "error", err)
		os.Exit(1)
	}

	tag, err := language.Parse(cfg.Locale)
	if err != nil {
		slog.Warn("unknown locale, using en-US", "locale", cfg.Locale, "error", err)
		tag = language.AmericanEnglish
	}

	lookup := bridge.NewClient(cfg.BridgeURL)
	defer func() { _ = lookup.Close() }()

	client := cdp.NewClient(cdp.Options{
		CDPURL:       cfg.CDPURL(),
		TabURLFilter: cfg.TabURLFilter,
		Deps: cdp.Deps{
			Lookup:          lookup,
			Rules:           rules,
			Notifier:        notify.New(cfg.NTFYEndpoint, nil),
			Formatter:       overlay.NewFormatter(tag),
			DefaultDecimals: cfg.DefaultDecimals,
			LookupTimeout:   cfg.LookupTimeout(),
			Debounce:        cfg.Debounce(),
		},
	}, cdp.NewTabRegistry())
	if err := client.Connect(ctx); err != nil {
		slog.Error("failed to connect to browser", "cdp_url", cfg.CDPURL(), "error", err)
		os.Exit(1)
	}
	defer func() { _ = client.Close() }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return client.Run(gctx) })
	g.Go(func() error { return rules.Watch(gctx) })
	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				for _, s := range client.Stats(gctx) {
					slog.Info("page stats",
						"target_id", s.TargetID,
						"marks", s.Marks,
						"rewrites", s.Rewrites,
						"failures", s.Failures,
						"scans", s.Watcher.Scans,
						"resyncs", s.Resyncs,
						"panel", s.Panel,
					)
				}
			}
		}
	})

	slog.Info("lens agent running", "tabs", client.GetTabCount())
	if err := g.Wait(); err != nil {
		slog.Error("lens agent stopped with error", "error", err)
		return
	}
	slog.Info("lens agent stopped")
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
