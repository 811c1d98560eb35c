package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/drivingschool-api/pkg/events"
	"github.com/noah-isme/drivingschool-api/pkg/jobs"
)

const taskEnrollmentCreated = "enrollment.created"

type taskQueue interface {
	Submit(task jobs.Task) error
}

// NotificationService hands committed bookings to the background queue,
// which publishes them to the broker with retries.
type NotificationService struct {
	queue     taskQueue
	publisher events.Publisher
	topic     string
	logger    *zap.Logger
}

// NewNotificationService builds the service. Call Bind with the queue built
// around Handle before use.
func NewNotificationService(publisher events.Publisher, topic string, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topic == "" {
		topic = taskEnrollmentCreated
	}
	return &NotificationService{publisher: publisher, topic: topic, logger: logger}
}

// Bind attaches the queue tasks are submitted to.
func (s *NotificationService) Bind(queue taskQueue) {
	s.queue = queue
}

// EnrollmentCreated queues the event. Failures are logged; the booking is
// already committed.
func (s *NotificationService) EnrollmentCreated(ctx context.Context, evt events.EnrollmentCreated) {
	if s == nil || s.queue == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("marshal enrollment event", zap.Error(err))
		return
	}
	task := jobs.Task{ID: evt.EnrollmentID, Kind: taskEnrollmentCreated, Payload: payload}
	if err := s.queue.Submit(task); err != nil {
		s.logger.Warn("enrollment event not queued", zap.String("enrollment_id", evt.EnrollmentID), zap.Error(err))
	}
}

// Handle is the queue handler publishing one task.
func (s *NotificationService) Handle(ctx context.Context, task jobs.Task) error {
	switch task.Kind {
	case taskEnrollmentCreated:
		var evt events.EnrollmentCreated
		if err := json.Unmarshal(task.Payload, &evt); err != nil {
			s.logger.Error("drop malformed task", zap.String("task_id", task.ID), zap.Error(err))
			return nil
		}
		return s.publisher.Publish(ctx, s.topic, evt)
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
}
