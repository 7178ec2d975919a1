package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"example.com/moodsync/internal/actuation"
	"example.com/moodsync/internal/actuator"
	"example.com/moodsync/internal/analysis"
	"example.com/moodsync/internal/api"
	"example.com/moodsync/internal/catalog"
	"example.com/moodsync/internal/classifier"
	"example.com/moodsync/internal/clock"
	"example.com/moodsync/internal/config"
	"example.com/moodsync/internal/hub"
	"example.com/moodsync/internal/ingest"
	"example.com/moodsync/internal/logging"
	"example.com/moodsync/internal/persistence"
	"example.com/moodsync/internal/persistence/memory"
	"example.com/moodsync/internal/persistence/postgres"
	"example.com/moodsync/internal/telemetry"
	httptransport "example.com/moodsync/internal/transport/http"
	"example.com/moodsync/internal/transport/sse"
	"example.com/moodsync/internal/transport/ws"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file (overrides CONFIG_FILE)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "moodsync",
		File:        cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("moodsync stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.Real()
	broadcast := hub.New(hub.WithLogger(logger.Named("hub")), hub.WithSendTimeout(cfg.SendTimeout))
	generator := telemetry.NewGenerator(telemetry.WithCapacity(cfg.HistoryCapacity), telemetry.WithClock(clk))

	journal, closeJournal, err := openJournal(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeJournal()

	recommendations, closeCatalog, err := buildCatalog(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCatalog()

	var (
		sinks     []actuator.Sink
		kafkaSink *actuator.KafkaSink
	)
	if cfg.MQTTBroker != "" {
		mqttSink, err := actuator.DialMQTT(actuator.MQTTConfig{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
			QoS:         1,
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, mqttSink)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.SettingsTopic != "" {
		kafkaSink = actuator.NewKafkaSink(cfg.KafkaBrokers, cfg.SettingsTopic, cfg.ReadingsTopic)
		sinks = append(sinks, kafkaSink)
	}
	fanout := actuator.NewFanout(sinks, actuator.DefaultApplyTimeout, clk, logger.Named("actuator"))
	defer func() {
		if err := fanout.Close(); err != nil {
			logger.Warn("closing actuator sinks failed", zap.Error(err))
		}
	}()

	var telemetryPublisher telemetry.Publisher = broadcast
	if kafkaSink != nil && cfg.ReadingsTopic != "" {
		telemetryPublisher = actuator.NewReadingMirror(broadcast, kafkaSink, logger)
	}

	mapper := actuation.NewMapper(recommendations, cfg.TrackLimit, clk, logger.Named("actuation"))
	controller := actuation.NewController(mapper, broadcast, fanout, logger.Named("actuation"))
	broadcast.RegisterSnapshot(hub.ChannelTelemetry, generator.Snapshot)
	broadcast.RegisterSnapshot(hub.ChannelActuation, controller.Snapshot)

	guarded := classifier.NewGuarded(buildClassifier(cfg, logger), cfg.ClassifierTimeout, clk, logger.Named("classifier"))
	service := analysis.NewService(generator, guarded, controller, journal, clk, logger.Named("analysis"))
	runner := telemetry.NewRunner(generator, telemetryPublisher, cfg.TickInterval, clk, logger.Named("telemetry"))

	handler := api.NewHandler(api.Dependencies{
		Readings:    generator,
		Runner:      runner,
		Analyzer:    service,
		Environment: controller,
		Journal:     journal,
		Actuators:   fanout,
		Hub:         broadcast,
		Clock:       clk,
		Logger:      logger.Named("api"),
	})

	channels := []string{hub.ChannelTelemetry, hub.ChannelActuation}
	wsHandler := ws.NewHandler(broadcast, "/ws/", ws.Config{Channels: channels, Origins: cfg.CORSOrigins}, logger.Named("ws"))

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/ws/", wsHandler)
	mux.Handle("/environment-updates", wsHandler.Fixed(hub.ChannelActuation))
	mux.Handle("/events/", sse.NewHandler(broadcast, "/events/", channels, 0, logger.Named("sse")))
	mux.Handle("/metrics", promhttp.Handler())

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:           cfg.HTTPAddress,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}, httptransport.Chain(mux, httptransport.AccessLog(logger.Named("http")), httptransport.CORS(cfg.CORSOrigins)), logger.Named("http"))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return runner.Run(groupCtx) })
	if cfg.ClassifyInterval > 0 {
		scheduler := analysis.NewScheduler(service, cfg.ClassifyInterval, clk, logger.Named("scheduler"))
		group.Go(func() error { return scheduler.Run(groupCtx) })
	}
	if cfg.SensorTopic != "" {
		reader := ingest.NewKafkaReader(cfg.KafkaBrokers, cfg.SensorTopic, cfg.SensorGroupID)
		processor := ingest.NewProcessor(reader, ingest.NewReadingHandler(generator, telemetryPublisher), ingest.WithLogger(logger.Named("ingest")))
		group.Go(func() error {
			defer reader.Close()
			logger.Info("sensor feed consumer started", zap.String("topic", cfg.SensorTopic), zap.String("group", cfg.SensorGroupID))
			if err := processor.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("sensor feed consumer: %w", err)
			}
			return nil
		})
	}

	serverErr := httptransport.Serve(server, logger)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdownCh)

	var runErr error
	select {
	case sig := <-shutdownCh:
		logger.Info("shutdown requested", zap.String("signal", sig.String()))
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	case <-groupCtx.Done():
		logger.Warn("background worker stopped, shutting down")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	switch err := waitWorkers(shutdownCtx, group.Wait); {
	case errors.Is(err, errWorkersStuck):
		logger.Warn("background workers ignored cancellation", zap.Duration("grace", cfg.ShutdownGrace), zap.Error(err))
	case err != nil && !errors.Is(err, context.Canceled):
		logger.Error("background worker failed", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	// Streams must be closed first: Shutdown waits for SSE requests to return.
	if err := broadcast.Shutdown(shutdownCtx); err != nil {
		logger.Warn("hub shutdown incomplete", zap.Error(err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		_ = server.Close()
	}
	logger.Info("moodsync stopped")
	return runErr
}

var errWorkersStuck = errors.New("background workers still running")

// waitWorkers returns wait's result, or errWorkersStuck once ctx ends first.
func waitWorkers(ctx context.Context, wait func() error) error {
	done := make(chan error, 1)
	go func() { done <- wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", errWorkersStuck, ctx.Err())
	}
}

func openJournal(ctx context.Context, cfg config.Config, logger *zap.Logger) (persistence.Journal, func(), error) {
	if cfg.PostgresURL == "" {
		logger.Info("journal kept in memory", zap.Int("capacity", cfg.JournalCapacity))
		return memory.NewJournal(cfg.JournalCapacity), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	journal := postgres.NewJournal(pool)
	if err := journal.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("prepare journal schema: %w", err)
	}
	logger.Info("journal stored in postgres")
	return journal, pool.Close, nil
}

func buildCatalog(cfg config.Config, logger *zap.Logger) (catalog.Catalog, func(), error) {
	var recommendations catalog.Catalog = catalog.StaticCatalog{}
	if cfg.CatalogURL != "" {
		recommendations = catalog.NewHTTPCatalog(cfg.CatalogURL, cfg.CatalogToken, 5*time.Second)
	}
	if cfg.RedisURL == "" {
		return recommendations, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("closing redis client failed", zap.Error(err))
		}
	}
	return catalog.NewRedisCache(client, recommendations, cfg.CatalogCacheTTL, logger.Named("catalog")), closeFn, nil
}

func buildClassifier(cfg config.Config, logger *zap.Logger) classifier.Classifier {
	if cfg.OpenAIAPIKey == "" {
		logger.Info("no OpenAI key configured, using rule-based classifier")
		return classifier.RuleClassifier{}
	}
	return classifier.NewOpenAIClient(classifier.OpenAIConfig{
		BaseURL: cfg.OpenAIBaseURL,
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.ClassifierTimeout,
	})
}
