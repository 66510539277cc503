package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/mkurtov/haierbridge/internal/client"
	"github.com/mkurtov/haierbridge/internal/config"
	"github.com/mkurtov/haierbridge/internal/device"
	"github.com/mkurtov/haierbridge/internal/directory"
	"github.com/mkurtov/haierbridge/internal/identity"
	"github.com/mkurtov/haierbridge/internal/publish"
	"github.com/mkurtov/haierbridge/internal/realtime"
	"github.com/mkurtov/haierbridge/internal/server"
	"github.com/mkurtov/haierbridge/internal/session"
	"github.com/mkurtov/haierbridge/internal/transport"
)

func main() {
	configPath := envOrDefault("HAIERBRIDGE_CONFIG", config.DefaultPath)

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		log = log.Level(level)
	}

	bridgeID, err := identity.BridgeID(cfg.ConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("bridge identity")
	}
	log.Info().Str("bridge_id", bridgeID).Msg("starting haierbridge")

	bridge, err := client.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build client")
	}

	var publisher *publish.Publisher
	if cfg.MQTT.Broker != "" {
		publisher, err = publish.New(publish.Options{
			Broker:      cfg.MQTT.Broker,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			ClientID:    "haierbridge-" + bridgeID,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("mqtt connect")
		}
		bridge.AvailabilityFunc = func(mac string, online bool) {
			if appliance, ok := bridge.Appliance(mac); ok {
				publisher.PublishAvailability(appliance.ID(), online)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bridge.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start bridge")
	}
	if publisher != nil {
		for _, appliance := range bridge.Appliances() {
			publisher.Watch(appliance)
		}
	}

	registry := metricsRegistry()
	httpServer := server.New(cfg.HTTP.Addr, registry, bridge.Appliances)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil {
			log.Fatal().Err(err).Msg("http serve")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	bridge.Stop()
	if publisher != nil {
		publisher.Close()
	}
}

func metricsRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(transport.MetricsCollectors()...)
	registry.MustRegister(session.MetricsCollectors()...)
	registry.MustRegister(directory.MetricsCollectors()...)
	registry.MustRegister(realtime.MetricsCollectors()...)
	registry.MustRegister(device.MetricsCollectors()...)
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "haierbridge_build_info",
		Help: "Build information",
	}, func() float64 { return 1 }))
	return registry
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
