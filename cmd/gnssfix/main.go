package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gnssfix/internal/config"
	"gnssfix/internal/web"
)

func main() {
	var (
		configPath    string
		summarizePath string
	)
	flag.StringVar(&configPath, "config", "./gnssfix.yaml", "Path to YAML config")
	flag.StringVar(&summarizePath, "summarize", "", "Print a summary of an NMEA capture and exit")
	flag.Parse()

	if summarizePath != "" {
		if err := printLogSummary(os.Stdout, summarizePath); err != nil {
			fmt.Fprintf(os.Stderr, "summarize failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	logs := web.NewLogBuffer(cfg.Log.BufferLines)
	var level slog.LevelVar
	level.Set(cfg.Log.SlogLevel())
	logger := slog.New(slog.NewTextHandler(io.MultiWriter(os.Stderr, logs), &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newLiveRuntime(ctx, cfg, logger, logs)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer rt.Close()

	logger.Info("gnssfix starting", "config", configPath, "source", cfg.Source.Mode)
	if err := rt.Run(ctx); err != nil {
		logger.Error("gnssfix stopped", "err", err)
		rt.Close()
		os.Exit(1)
	}
	logger.Info("gnssfix stopping")
}
