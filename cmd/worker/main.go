// Worker consumes account events from Kafka and forwards them to the OTLP log pipeline.
// Set KAFKA_BROKERS, EVENTS_KAFKA_TOPIC, and KAFKA_GROUP_ID. Without OTEL_EXPORTER_OTLP_ENDPOINT events are logged locally.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"passwordless-auth/backend/internal/config"
	"passwordless-auth/backend/internal/events"
	"passwordless-auth/backend/internal/events/consumer"
	"passwordless-auth/backend/internal/platform/logger"
	telemetryotel "passwordless-auth/backend/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	log := logger.New(cfg.LogLevel, cfg.Env).Named("worker")
	defer func() { _ = log.Sync() }()

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName + "-worker",
		Insecure:    cfg.OTLPInsecure,
	}, log)
	if err != nil {
		log.Fatal("otel", zap.Error(err))
	}
	defer func() { _ = providers.Shutdown(context.Background()) }()

	var sink events.Emitter = events.NewLogEmitter(log)
	if cfg.OTLPEndpoint != "" {
		sink = telemetryotel.NewEventEmitter(providers.LoggerProvider)
	}

	c := consumer.NewKafkaConsumer(brokers, cfg.EventsKafkaTopic, cfg.KafkaGroupID, sink, log)
	defer func() { _ = c.Close() }()

	log.Info("consuming",
		zap.String("topic", cfg.EventsKafkaTopic),
		zap.String("group", cfg.KafkaGroupID),
		zap.Bool("otlp", cfg.OTLPEndpoint != ""),
	)
	if err := c.Run(ctx); err != nil {
		log.Error("consumer stopped", zap.Error(err))
		return
	}
	log.Info("stopped")
}
