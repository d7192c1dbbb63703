package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bogenrs/silverline-hood/internal/bridge"
	"github.com/bogenrs/silverline-hood/internal/config"
	"github.com/bogenrs/silverline-hood/internal/hood"
	"github.com/bogenrs/silverline-hood/internal/server"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	client, err := hood.NewClient(hood.Config{
		Host:     cfg.DeviceHost,
		Port:     cfg.DevicePort,
		Timeouts: cfg.Timeouts,
		Profile:  cfg.Profile,
		Logger:   log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("new hood client")
	}

	log.Info().
		Str("device", cfg.DeviceHost).
		Int("port", cfg.DevicePort).
		Str("profile", cfg.Profile.Name).
		Dur("poll_interval", cfg.PollInterval).
		Msg("hoodd starting")

	// A sleeping or unplugged hood is not a startup failure; the poller
	// keeps trying.
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 15*time.Second)
	if err := client.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Msg("device did not answer initial status query")
	}
	cancelPing()

	poller := hood.NewPoller(client, cfg.PollInterval, log.Logger)
	poller.Start()
	defer poller.Stop()

	if cfg.MQTT.Enabled() {
		mqttBridge, err := bridge.NewMQTTBridge(cfg.MQTT, client, poller, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("mqtt bridge")
		}
		defer mqttBridge.Close()
		log.Info().Str("broker", cfg.MQTT.BrokerURL).Str("prefix", cfg.MQTT.TopicPrefix).Msg("mqtt bridge connected")
	}

	metricsRegistry := server.NewMetricsRegistry(hood.NewMetricsCollector(client))
	metricsRegistry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "hoodd_build_info",
		Help: "Build information",
	}, func() float64 { return 1 }))

	httpMux := http.NewServeMux()
	httpMux.HandleFunc("/health", server.HealthHandler)
	httpMux.Handle("/metrics", server.MetricsHandler(metricsRegistry))
	httpMux.Handle("/status", server.StatusHandler(client))
	httpMux.Handle("/command", server.CommandHandler(client))

	httpServer := server.NewHTTPServer(cfg.HTTPAddr, httpMux)
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- httpServer.ListenAndServe()
	}()
	log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-httpErr:
		log.Fatal().Err(err).Msg("http serve")
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}
