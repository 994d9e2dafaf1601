package main

import (
	"context"
	"os"
	"time"

	"github.com/campusportal/transport-backend/internal/config"
	"github.com/campusportal/transport-backend/internal/database"
	"github.com/campusportal/transport-backend/internal/services"
	"github.com/campusportal/transport-backend/pkg/notify"
	"github.com/sirupsen/logrus"
)

// expire-subscriptions runs one expiry sweep and exits, for hosts that
// schedule jobs outside the server process
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	clock := services.NewSystemClock(cfg.Location())
	slots := database.NewScheduleSlotRepository(db.DB)
	workflow := services.NewRequestWorkflow(services.WorkflowDeps{
		Tx:            database.NewTxManager(db.DB, cfg.Database.TxTimeout),
		Requests:      database.NewSubscriptionRequestRepository(db.DB),
		Subscriptions: database.NewSubscriptionRepository(db.DB),
		Slots:         slots,
		Catalog:       database.NewTransportCatalogRepository(db.DB),
		Ledger:        services.NewCapacityLedger(slots, database.NewSeatReservationRepository(db.DB), clock, logger),
		Notifier:      notify.NewLogSink(logger),
		Audit:         services.NewAuditService(database.NewAuditLogRepository(db.DB), clock, logger),
		Clock:         clock,
		Logger:        logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result, err := workflow.ExpireDue(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Subscription expiry sweep failed")
	}

	if result.Failed > 0 {
		db.Close()
		os.Exit(1)
	}
}
