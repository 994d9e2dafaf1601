// Package notify delivers transport notifications to the portal's
// notification service over RabbitMQ.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/campusportal/transport-backend/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// DefaultQueue is the queue consumed by the portal notification service
const DefaultQueue = "transport.notifications"

const (
	dialTimeout  = 2 * time.Second
	retryBackoff = 30 * time.Second
)

// ErrBrokerUnavailable is returned while the sink waits out the backoff
// after a failed dial
var ErrBrokerUnavailable = errors.New("rabbitmq: broker unavailable, retry pending")

// AMQPSink publishes notifications as persistent JSON messages on a durable
// queue. The connection is opened lazily and reopened after a failure.
type AMQPSink struct {
	url    string
	queue  string
	logger *logrus.Logger
	dial   func(url string) (*amqp.Connection, error)
	now    func() time.Time

	mu         sync.Mutex
	conn       *amqp.Connection
	ch         *amqp.Channel
	retryAfter time.Time
}

// NewAMQPSink creates a sink for url publishing on queue
func NewAMQPSink(url, queue string, logger *logrus.Logger) *AMQPSink {
	if queue == "" {
		queue = DefaultQueue
	}
	return &AMQPSink{
		url:    url,
		queue:  queue,
		logger: logger,
		dial:   dialBroker,
		now:    time.Now,
	}
}

func dialBroker(url string) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
}

// Notify publishes n. The caller decides whether a failure matters.
func (s *AMQPSink) Notify(ctx context.Context, n models.Notification) error {
	pub, err := buildPublishing(n)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.channel()
	if err != nil {
		return err
	}

	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		s.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		s.reset()
		return fmt.Errorf("rabbitmq: publish failed: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": n.UserID,
		"kind":    n.Kind,
		"queue":   s.queue,
	}).Debug("Notification published")
	return nil
}

// channel returns an open channel, dialing and declaring the queue when needed.
// After a failed dial no new dial is attempted until the backoff has passed.
// Callers hold s.mu.
func (s *AMQPSink) channel() (*amqp.Channel, error) {
	if s.ch != nil && !s.ch.IsClosed() {
		return s.ch, nil
	}
	s.reset()

	if s.now().Before(s.retryAfter) {
		return nil, ErrBrokerUnavailable
	}

	conn, err := s.dial(s.url)
	if err != nil {
		s.retryAfter = s.now().Add(retryBackoff)
		s.logger.WithFields(logrus.Fields{
			"error":       err,
			"retry_after": s.retryAfter,
		}).Warn("RabbitMQ dial failed, notifications paused")
		return nil, fmt.Errorf("rabbitmq: dial failed: %w", err)
	}
	s.retryAfter = time.Time{}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: channel open failed: %w", err)
	}

	if _, err := ch.QueueDeclare(
		s.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: queue declare failed: %w", err)
	}

	s.conn = conn
	s.ch = ch
	return ch, nil
}

func (s *AMQPSink) reset() {
	if s.ch != nil {
		_ = s.ch.Close()
		s.ch = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// Close releases the broker connection
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func buildPublishing(n models.Notification) (amqp.Publishing, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(n)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("rabbitmq: marshal notification failed: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.CreatedAt,
		Type:         string(n.Kind),
		Body:         body,
	}, nil
}
