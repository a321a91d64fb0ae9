package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"yappuccino/server/internal/config"
	"yappuccino/server/internal/core"
	"yappuccino/server/internal/history"
	"yappuccino/server/internal/httpapi"
	"yappuccino/server/internal/metrics"
	"yappuccino/server/internal/ws"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	addr := flag.String("addr", cfg.Addr, "listen address")
	dataDir := flag.String("data-dir", cfg.DataDir, "history directory path")
	debug := flag.Bool("debug", false, "Enable debug logging (auto-enabled for dev builds)")
	flag.Parse()

	// Auto-enable debug logging for dev builds; override with -debug flag.
	level := cfg.SlogLevel()
	if *debug || strings.Contains(Version, "dev") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("starting server", "version", Version, "addr", *addr, "data_dir", *dataDir)

	hist, err := history.New(*dataDir)
	if err != nil {
		slog.Error("initialize history store", "err", err)
		os.Exit(1)
	}

	dir := core.NewDirectory()
	router := core.NewRouter(dir)
	chat := ws.NewHandler(dir, router, hist, cfg.SendBuffer)
	server := httpapi.New(dir, chat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go core.NewSweeper(dir, router, cfg.SweepInterval, cfg.IdleThreshold).Run(ctx)

	sampler, err := metrics.NewSampler(cfg.SampleInterval)
	if err != nil {
		slog.Warn("process sampler unavailable", "err", err)
	} else {
		go sampler.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("received interrupt, shutting down")
		cancel()
	}()

	slog.Info("listening", "addr", *addr)
	if err := server.Run(ctx, *addr); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
