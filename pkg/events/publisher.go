// Package events publishes booking domain events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// EnrollmentCreated is emitted once a booking transaction commits.
type EnrollmentCreated struct {
	EnrollmentID  string    `json:"enrollment_id"`
	StudentID     string    `json:"student_id"`
	CourseID      string    `json:"course_id"`
	Modality      string    `json:"modality"`
	ScheduleIDs   []string  `json:"schedule_ids,omitempty"`
	PaymentStatus string    `json:"payment_status"`
	AmountPaid    string    `json:"amount_paid"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher sends JSON events to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, event any) error
	Close() error
}

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes persistent messages through the default exchange,
// routing by queue name. Queues are declared durable on first use.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       channel
	logger   *zap.Logger
	mu       sync.Mutex
	declared map[string]bool
}

// DialAMQP opens a connection and channel to url.
func DialAMQP(url string, logger *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	p := newAMQPPublisher(ch, logger)
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch channel, logger *zap.Logger) *AMQPPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPPublisher{ch: ch, logger: logger, declared: map[string]bool{}}
}

// Publish marshals event and sends it to queue.
func (p *AMQPPublisher) Publish(ctx context.Context, queue string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.declared[queue] {
		if _, err := p.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("rabbitmq queue declare %s: %w", queue, err)
		}
		p.declared[queue] = true
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		return fmt.Errorf("rabbitmq publish %s: %w", queue, err)
	}
	p.logger.Debug("event published", zap.String("queue", queue), zap.Int("bytes", len(body)))
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	var firstErr error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			firstErr = err
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LogPublisher only logs events; it stands in when no broker is configured.
type LogPublisher struct {
	Logger *zap.Logger
}

func (p LogPublisher) Publish(_ context.Context, queue string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if p.Logger != nil {
		p.Logger.Info("event", zap.String("queue", queue), zap.ByteString("body", body))
	}
	return nil
}

func (LogPublisher) Close() error { return nil }
