package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/mintlens/internal/api"
	"github.com/dgnsrekt/mintlens/internal/bridge"
	"github.com/dgnsrekt/mintlens/internal/config"
	"github.com/dgnsrekt/mintlens/internal/mintinfo"
	"github.com/dgnsrekt/mintlens/internal/netutil"
	"github.com/dgnsrekt/mintlens/internal/relay"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

var version = "dev"

func main() {
	cfg, err := config.LoadBridge()
	if err != nil {
		slog.Error("failed to load bridge config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("bridge config loaded",
		"bind_addr", cfg.BindAddr,
		"upstream_url", cfg.UpstreamURL,
		"upstream_timeout_ms", cfg.UpstreamTimeoutMS,
		"rate_per_sec", cfg.RatePerSec,
		"rate_burst", cfg.RateBurst,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to bind", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	bindAddr := ln.Addr().String()

	fetcher := mintinfo.NewClient(cfg.UpstreamURL,
		&http.Client{Timeout: cfg.UpstreamTimeout()},
		mintinfo.NewLimiter(cfg.RatePerSec, cfg.RateBurst))
	broker := relay.NewBroker()
	bridgeSrv := bridge.NewServer(fetcher, cfg.UpstreamTimeout())
	bridgeSrv.OnServed(api.ActivityHook(broker))

	h := api.NewServer(api.Options{Bridge: bridgeSrv, Fetcher: fetcher, Broker: broker, Version: version})
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("bridge listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs", "ws", "ws://"+bindAddr+"/api/v1/bridge")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("bridge stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("bridge stopped")
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
