package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nextlevelbuilder/scribe/internal/config"
	"github.com/nextlevelbuilder/scribe/internal/control"
	"github.com/nextlevelbuilder/scribe/internal/msglog"
	"github.com/nextlevelbuilder/scribe/internal/network"
	"github.com/nextlevelbuilder/scribe/internal/network/whatsapp"
	"github.com/nextlevelbuilder/scribe/internal/orchestrator"
	"github.com/nextlevelbuilder/scribe/internal/providers"
	"github.com/nextlevelbuilder/scribe/internal/telemetry"
)

func runAgent() {
	// Setup structured logging
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without export", "error", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	// Message log lives next to the session store.
	logPath := filepath.Join(filepath.Dir(config.ExpandHome(cfg.Network.SessionDB)), "messages.db")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}
	msgStore, err := msglog.Open(logPath)
	if err != nil {
		slog.Error("failed to open message log", "path", logPath, "error", err)
		os.Exit(1)
	}
	defer msgStore.Close()

	gen := providers.NewClient(cfg.AI.APIKey, cfg.AI.APIBase, cfg.AI.Temperature)

	ctl, err := control.New(cfg.Control.Token)
	if err != nil {
		slog.Error("failed to create control channel", "error", err)
		os.Exit(1)
	}

	// The engine needs the network client and vice versa; the closure breaks
	// the cycle. Events only start flowing after Connect, by which point the
	// engine is assigned.
	var engine *orchestrator.Orchestrator
	net := whatsapp.New(cfg.Network, msgStore, func(evt network.Event) {
		engine.OnNetworkEvent(evt)
	})

	engine = orchestrator.New(cfg, net, ctl, gen)
	ctl.SetHandler(engine)

	if err := net.Connect(ctx); err != nil {
		slog.Error("whatsapp connection failed", "error", err)
		os.Exit(1)
	}
	engine.SetSelfID(net.SelfID())

	if err := ctl.Start(ctx); err != nil {
		slog.Error("control channel start failed", "error", err)
		net.Disconnect()
		os.Exit(1)
	}

	slog.Info("scribe running",
		"tracked_users", len(cfg.Users),
		"models", cfg.AI.Models,
		"debounce_seconds", cfg.Settings.DebounceSeconds,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("graceful shutdown initiated", "signal", sig)

	// Stop intake first, then join in-flight work.
	net.Disconnect()
	ctl.Stop()
	engine.Stop()

	slog.Info("scribe stopped")
}
