package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fleettrack/internal/alert"
	"fleettrack/internal/auth"
	"fleettrack/internal/config"
	"fleettrack/internal/geofence"
	"fleettrack/internal/history"
	"fleettrack/internal/hub"
	"fleettrack/internal/pipeline"
	"fleettrack/internal/state"
	"fleettrack/internal/store"
	"fleettrack/internal/transport/httpapi"
	"fleettrack/internal/transport/kafkafeed"
	"fleettrack/internal/transport/mqttfeed"
)

func main() {
	godotenv.Load()
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	if level > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core state
	registry := state.NewRegistry()
	fences := geofence.NewIndex()
	alerts := alert.NewEngine(alert.Config{
		DebounceWindow: cfg.AlertDebounceWindow,
		HighRatio:      cfg.OverspeedHighRatio,
		CriticalRatio:  cfg.OverspeedCriticalRatio,
	})
	posLog := history.NewLog()

	analytics, err := history.NewService(posLog, history.AnalyticsConfig{
		StopSpeedThresholdKmh: cfg.StopSpeedThresholdKmh,
		StopMinDwell:          cfg.StopMinDwell,
		Timezone:              cfg.FleetTimezone,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("analytics init failed")
	}

	// Optional Redis mirror and token source
	var redisStore *store.RedisStore
	if cfg.RedisAddr != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		log.Info().Str("addr", cfg.RedisAddr).Msg("redis connected")
	}

	// Optional durable archive
	var pgStore *store.PostgresStore
	if cfg.DBHost != "" {
		pgStore, err = store.NewPostgresStore(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		defer pgStore.Close()
		log.Info().Str("host", cfg.DBHost).Str("db", cfg.DBName).Msg("database connected")

		// Rebuild the in-memory history from the recent archive so track
		// and analytics queries survive a restart.
		restored, err := history.Replay(ctx, pgStore, posLog, cfg.ReplayWindow, time.Now())
		if err != nil {
			log.Warn().Err(err).Msg("archive replay incomplete")
		}
		if restored > 0 {
			log.Info().Int("samples", restored).Msg("history replayed from archive")
		}
	}

	// Broadcast hub
	var tokenSource auth.TokenSource
	if redisStore != nil {
		tokenSource = redisStore
	}
	validator := auth.NewValidator(cfg.ValidTokens, tokenSource, cfg.AuthCacheTTL)
	broadcastHub := hub.New(validator, cfg.ClientQueueSize, log.With().Str("component", "hub").Logger())

	// Ingestion pipeline
	pipe := pipeline.New(
		pipeline.Options{
			ShardCount:     cfg.ShardCount,
			ShardQueueSize: cfg.ShardQueueSize,
			OfflineTimeout: cfg.OfflineTimeout,
			SweepInterval:  cfg.SweepInterval,
		},
		registry,
		fences,
		alerts,
		posLog,
		broadcastHub,
		log.With().Str("component", "pipeline").Logger(),
	)
	pipe.SetLabelResolver(registry)

	if pgStore != nil {
		archiver := pipeline.NewArchiver(
			pgStore,
			pgStore,
			cfg.ArchiveChannelSize,
			cfg.ArchiveBatchSize,
			cfg.ArchiveFlushInterval,
			log.With().Str("component", "archiver").Logger(),
		)
		pipe.SetArchiver(archiver)
		go archiver.Run(ctx)
	}

	if redisStore != nil {
		mirror := pipeline.NewMirror(
			redisStore,
			cfg.ArchiveChannelSize,
			log.With().Str("component", "mirror").Logger(),
		)
		pipe.SetMirror(mirror)
		go mirror.Run(ctx)
	}

	go pipe.Run(ctx)
	go broadcastHub.RunSnapshots(ctx, cfg.SnapshotInterval, registry)

	// Upstream feeds
	if cfg.MQTTBroker != "" {
		sub := mqttfeed.NewSubscriber(
			cfg.MQTTBroker,
			cfg.MQTTClientID,
			pipe,
			log.With().Str("component", "mqtt_feed").Logger(),
		)
		if err := sub.Start(); err != nil {
			log.Fatal().Err(err).Msg("mqtt feed failed")
		}
		defer sub.Stop()
	}

	var consumer *kafkafeed.Consumer
	if len(cfg.KafkaBrokers) > 0 {
		consumer = kafkafeed.NewConsumer(
			kafkafeed.Config{
				Brokers: cfg.KafkaBrokers,
				Topic:   cfg.KafkaTopic,
				GroupID: cfg.KafkaGroupID,
			},
			pipe,
			log.With().Str("component", "kafka_feed").Logger(),
		)
		go consumer.Run(ctx)
	}

	// HTTP + WebSocket surface
	api := httpapi.NewServer(
		cfg, pipe, registry, fences, alerts, analytics,
		broadcastHub, validator,
		log.With().Str("component", "http").Logger(),
	)
	if pgStore != nil {
		api.SetAlertArchive(pgStore)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown: stop feeds, drain the pipeline, close clients.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	if consumer != nil {
		consumer.Close()
	}
	broadcastHub.CloseAll()
	cancel()

	log.Info().Msg("shutdown complete")
}
