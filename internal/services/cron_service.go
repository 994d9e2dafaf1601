package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SubscriptionExpirer runs the expiry sweep
type SubscriptionExpirer interface {
	ExpireDue(ctx context.Context) (ExpiryResult, error)
}

// CronService manages scheduled background jobs
type CronService struct {
	cron       *cron.Cron
	expirer    SubscriptionExpirer
	expirySpec string
	jobTimeout time.Duration
	logger     *logrus.Logger
}

// NewCronService creates a new CronService. expirySpec uses the six-field
// format (second minute hour day month weekday) and is evaluated in loc.
func NewCronService(expirer SubscriptionExpirer, expirySpec string, loc *time.Location, logger *logrus.Logger) *CronService {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(cron.WithSeconds(), cron.WithLocation(loc))

	return &CronService{
		cron:       c,
		expirer:    expirer,
		expirySpec: expirySpec,
		jobTimeout: 10 * time.Minute,
		logger:     logger,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	_, err := s.cron.AddFunc(s.expirySpec, s.expireSubscriptionsJob)
	if err != nil {
		return fmt.Errorf("failed to schedule subscription expiry job: %w", err)
	}
	s.logger.WithField("spec", s.expirySpec).Info("Scheduled: Expire ended subscriptions")

	s.cron.Start()
	s.logger.Info("Cron service started successfully")

	return nil
}

// Stop stops all cron jobs and waits for running ones to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) expireSubscriptionsJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	if _, err := s.runExpiry(ctx, "cron"); err != nil {
		s.logger.WithError(err).Error("[CRON] Subscription expiry job failed")
	}
}

func (s *CronService) runExpiry(ctx context.Context, trigger string) (ExpiryResult, error) {
	s.logger.WithField("trigger", trigger).Info("Starting subscription expiry job...")

	result, err := s.expirer.ExpireDue(ctx)
	if err != nil {
		return result, err
	}

	s.logger.WithFields(logrus.Fields{
		"trigger":  trigger,
		"expired":  result.Expired,
		"failed":   result.Failed,
		"duration": result.Duration.String(),
	}).Info("Subscription expiry job finished")
	return result, nil
}

// RunExpiryNow runs the expiry sweep immediately
func (s *CronService) RunExpiryNow(ctx context.Context) (ExpiryResult, error) {
	return s.runExpiry(ctx, "manual")
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
