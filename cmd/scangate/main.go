package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"scangate/internal/api"
	"scangate/internal/capture"
	"scangate/internal/client"
	"scangate/internal/config"
	"scangate/internal/controller"
	"scangate/internal/decode"
	"scangate/internal/gate"
	"scangate/internal/logging"
	"scangate/internal/recent"
	"scangate/internal/stats"
	"scangate/internal/storage"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "scangate.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	// .env carries secrets that don't belong in the config file
	_ = godotenv.Load()

	mgr, err := config.NewManager(config.ResolvePath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg := mgr.Get()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("scangate starting", "version", version, "station", cfg.Station.ID, "location", cfg.Station.LocationID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	if store != nil {
		if err := store.Init(ctx); err != nil {
			logger.Error("storage schema init failed", "err", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	backendCfg := cfg.Backend
	if token := os.Getenv("SCANGATE_BACKEND_TOKEN"); token != "" {
		backendCfg.Token = token
	}
	backend := client.New(backendCfg, logger.With("component", "backend"))

	recentStore := recent.NewStore(cfg.Recent.Limit)
	statsStore := stats.NewStore()
	scanGate := gate.New(cfg.Gate.CooldownSeconds, cfg.Gate.TickInterval, logger.With("component", "gate"))

	hub := api.NewHub(logger.With("component", "ws"))
	go hub.Run(ctx)

	ctl := controller.New(controller.Options{
		StationID:   cfg.Station.ID,
		LocationID:  cfg.Station.LocationID,
		HistoryDays: cfg.Backend.HistoryDays,
		Gate:        scanGate,
		Toggler:     backend,
		History:     backend,
		Recent:      recentStore,
		Stats:       statsStore,
		Store:       store,
		Hub:         hub,
	}, logger.With("component", "controller"))

	events := make(chan capture.Raw, cfg.Capture.ChannelBuffer)
	source, err := capture.Open(ctx, mgr, events, logger.With("component", "capture"))
	if err != nil {
		logger.Error("capture open failed", "err", err, "hint", capture.FailureMessage(err))
		os.Exit(1)
	}

	adapter := decode.NewAdapter(ctl, cfg.Gate.DecodeInterval, cfg.Gate.SilenceWindow, logger.With("component", "decode"))
	adapter.Start(ctx, events)

	api.Start(ctx, mgr, scanGate, recentStore, statsStore, ctl, hub, logger.With("component", "api"), version, source)

	// warm the display list
	go ctl.RefreshHistory()

	watchStop := make(chan struct{})
	go mgr.Watch(0, func(next *config.Config) {
		logger.Info("config reloaded", "path", mgr.Path())
		scanGate.SetCooldown(next.Gate.CooldownSeconds)
		adapter.SetIntervals(next.Gate.DecodeInterval, next.Gate.SilenceWindow)
	}, func(err error) {
		logger.Warn("config watch error", "err", err)
	}, watchStop)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	close(watchStop)
	ctl.Stop()
	adapter.Stop()
	cancel()
}
