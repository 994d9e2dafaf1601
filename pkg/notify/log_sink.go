package notify

import (
	"context"

	"github.com/campusportal/transport-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// LogSink writes notifications to the log. Used when NOTIFY_ENABLED is false.
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a LogSink
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Notify logs n and never fails
func (s *LogSink) Notify(_ context.Context, n models.Notification) error {
	s.logger.WithFields(logrus.Fields{
		"user_id": n.UserID,
		"kind":    n.Kind,
		"link":    n.Link,
	}).Info("[NOTIFY] " + n.Title)
	return nil
}
