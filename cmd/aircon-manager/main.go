package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/api"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/config"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/criticalmonitor"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/datadog"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/homeassistant"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/learning"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/logging"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/mqtt"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/notifications"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/optimizer"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/store"
	"github.com/overclocked15/HomeAssistant-Smart-Aircon-Manager/internal/telemetry"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)
	datadog.InitMetrics(cfg)

	log.Info().
		Str("entry_id", cfg.EntryID).
		Int("rooms", len(cfg.Rooms)).
		Msg("Smart aircon manager starting")

	ha := homeassistant.NewClient(
		cfg.HomeAssistant.BaseURL,
		cfg.HomeAssistant.Token,
		time.Duration(cfg.HomeAssistant.TimeoutSeconds)*time.Second,
	)
	notifier := notifications.New(ha, cfg.EnableNotifications)
	st := store.New(cfg.StorageDir)

	lm := learning.NewManager(cfg.EntryID, st)
	lm.Enabled = cfg.Learning.Enabled
	lm.Mode = cfg.Learning.Mode
	lm.ConfidenceThreshold = cfg.Learning.ConfidenceThreshold
	lm.MaxAdjustment = cfg.Learning.MaxAdjustment
	lm.LoadState()

	var recorder *telemetry.Recorder
	if cfg.Telemetry.Enabled {
		var err error
		recorder, err = telemetry.Open(cfg.Telemetry.DBPath)
		if err != nil {
			log.Error().Err(err).Msg("Telemetry disabled, could not open database")
			recorder = nil
		} else {
			defer recorder.Close()
		}
	}

	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		var err error
		publisher, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			log.Error().Err(err).Msg("MQTT disabled, could not connect to broker")
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	manager := optimizer.New(cfg, ha, lm, notifier, st, recorder)
	monitor := criticalmonitor.New(cfg, ha, notifier)

	server := api.NewServer(cfg.APIPort, manager, monitor)
	server.Start()

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Run(ctx)
	go monitor.Run(ctx)

	if publisher != nil {
		go publishLoop(ctx, cfg, manager, monitor, publisher)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("API server shutdown error")
	}

	manager.SaveLearningState()
	log.Info().Msg("Shutdown complete")
}

func publishLoop(ctx context.Context, cfg *config.Config, manager *optimizer.Manager, monitor *criticalmonitor.Monitor, publisher *mqtt.Publisher) {
	ticker := time.NewTicker(time.Duration(cfg.PollIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publisher.PublishResult(manager.LastResult())
			publisher.PublishCritical(monitor.Status())
		}
	}
}
