package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dentara/clinic-api/internal/config"
	"github.com/dentara/clinic-api/internal/handler"
	appointmentHandler "github.com/dentara/clinic-api/internal/handler/appointment"
	billingHandler "github.com/dentara/clinic-api/internal/handler/billing"
	catalogHandler "github.com/dentara/clinic-api/internal/handler/catalog"
	notificationHandler "github.com/dentara/clinic-api/internal/handler/notification"
	patientHandler "github.com/dentara/clinic-api/internal/handler/patient"
	"github.com/dentara/clinic-api/internal/repository/postgres"
	"github.com/dentara/clinic-api/internal/router"
	appointmentService "github.com/dentara/clinic-api/internal/service/appointment"
	billingService "github.com/dentara/clinic-api/internal/service/billing"
	catalogService "github.com/dentara/clinic-api/internal/service/catalog"
	notificationService "github.com/dentara/clinic-api/internal/service/notification"
	patientService "github.com/dentara/clinic-api/internal/service/patient"
	"github.com/dentara/clinic-api/pkg/logger"
	"github.com/dentara/clinic-api/pkg/metrics"
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

	m := metrics.New("clinic_api")

	// Repositories
	billingRepo := postgres.NewBillingRepository(db)
	appointmentRepo := postgres.NewAppointmentRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	serviceRepo := postgres.NewServiceRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	// Services
	notifSvc := notificationService.NewService(notificationRepo, outboxRepo, patientRepo, logg)
	billingSvc := billingService.NewService(billingRepo, notifSvc, logg)
	appointmentSvc := appointmentService.NewService(appointmentRepo, patientRepo, billingSvc, notifSvc, logg)
	patientSvc := patientService.NewService(patientRepo, logg)
	catalogSvc := catalogService.NewService(serviceRepo, logg)

	r := router.New(cfg, logg, m, handler.NewHandler(db),
		billingHandler.NewHandler(billingSvc, m),
		appointmentHandler.NewHandler(appointmentSvc),
		patientHandler.NewHandler(patientSvc),
		catalogHandler.NewHandler(catalogSvc),
		notificationHandler.NewHandler(notifSvc),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logg.Info().Int("port", cfg.Server.Port).Msg("starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logg.Error().Err(err).Msg("forced shutdown")
	}
}
