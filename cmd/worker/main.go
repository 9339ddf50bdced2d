package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dentara/clinic-api/internal/config"
	"github.com/dentara/clinic-api/internal/email"
	"github.com/dentara/clinic-api/internal/model"
	"github.com/dentara/clinic-api/internal/repository"
	"github.com/dentara/clinic-api/internal/repository/postgres"
	"github.com/dentara/clinic-api/pkg/logger"
	"github.com/dentara/clinic-api/pkg/messaging"
	redisbroker "github.com/dentara/clinic-api/pkg/messaging/redis"
	"github.com/dentara/clinic-api/pkg/metrics"
	"github.com/dentara/clinic-api/pkg/worker"
)

func main() {
	logg := logger.New(logger.Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Pretty: os.Getenv("LOG_PRETTY") == "true",
	})

	cfg, err := config.LoadConfig()
	if err != nil {
		logg.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		logg.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redisbroker.NewBroker(redisbroker.Config{
		URL:        cfg.Redis.URL,
		MaxRetries: 3,
	}, logg)
	if err != nil {
		logg.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer broker.Close()

	m := metrics.New("clinic_worker")

	outboxRepo := postgres.NewOutboxRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)

	var emailSvc email.Service = email.NoopService{}
	if cfg.SMTP.Enabled {
		emailSvc = email.NewSMTPService(cfg.SMTP, logg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	processor := worker.NewOutboxProcessor(outboxRepo, broker, worker.OutboxProcessorConfig{
		BatchSize:    cfg.Outbox.BatchSize,
		PollInterval: cfg.Outbox.PollInterval,
		Retention:    cfg.Outbox.Retention,
	}, logg, m)
	go processor.Start(ctx)

	go runEmailChannel(ctx, broker, emailSvc, m, logg)
	go runNotificationCleanup(ctx, notificationRepo, cfg.Notifications.ReadRetention, logg)

	logg.Info().Msg("worker started")
	<-ctx.Done()
	logg.Info().Msg("worker shutting down")
	// Give the goroutines a beat to observe cancellation.
	time.Sleep(time.Second)
}

// runEmailChannel subscribes to notification events and mails recipients
// that have a stored address.
func runEmailChannel(ctx context.Context, broker messaging.Broker, emailSvc email.Service, m *metrics.Metrics, logg zerolog.Logger) {
	msgs, err := broker.Subscribe(ctx, messaging.ChannelNotifications)
	if err != nil {
		logg.Error().Err(err).Msg("failed to subscribe to notification channel")
		return
	}

	for msg := range msgs {
		var outboxEvent model.OutboxEvent
		if err := json.Unmarshal(msg, &outboxEvent); err != nil {
			logg.Warn().Err(err).Msg("skipping malformed broker message")
			continue
		}

		var event model.NotificationEvent
		if err := json.Unmarshal(outboxEvent.Payload, &event); err != nil {
			logg.Warn().Err(err).
				Str("event_id", outboxEvent.ID.String()).
				Msg("skipping malformed notification payload")
			continue
		}

		if event.RecipientEmail == "" {
			continue
		}

		body := fmt.Sprintf("%s\n\nSent %s", event.Message, event.CreatedAt.Format(time.RFC1123))
		if err := emailSvc.Send(ctx, event.RecipientEmail, event.Title, body); err != nil {
			m.NotificationsFailed.WithLabelValues("email").Inc()
			logg.Error().Err(err).
				Str("notification_id", event.NotificationID.String()).
				Msg("failed to send notification email")
			continue
		}
		m.NotificationsSent.WithLabelValues("email").Inc()
	}
}

// runNotificationCleanup prunes read notifications past their retention.
func runNotificationCleanup(ctx context.Context, repo repository.NotificationRepository, retention time.Duration, logg zerolog.Logger) {
	if retention <= 0 {
		return
	}

	ticker := time.NewTicker(12 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := repo.DeleteReadBefore(ctx, time.Now().Add(-retention))
			if err != nil {
				logg.Error().Err(err).Msg("failed to prune notifications")
				continue
			}
			if deleted > 0 {
				logg.Info().Int64("deleted", deleted).Msg("pruned read notifications")
			}
		}
	}
}
