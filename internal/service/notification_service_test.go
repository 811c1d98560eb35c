package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/drivingschool-api/pkg/events"
	"github.com/noah-isme/drivingschool-api/pkg/jobs"
)

type recordingPublisher struct {
	mu     sync.Mutex
	fails  int
	queues []string
	events []events.EnrollmentCreated
}

func (p *recordingPublisher) Publish(ctx context.Context, queue string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fails > 0 {
		p.fails--
		return errors.New("broker unavailable")
	}
	p.queues = append(p.queues, queue)
	p.events = append(p.events, event.(events.EnrollmentCreated))
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestNotificationServicePublishesThroughQueue(t *testing.T) {
	pub := &recordingPublisher{fails: 1}
	svc := NewNotificationService(pub, "bookings", nil)
	queue := jobs.New("notifications", svc.Handle, jobs.Options{Workers: 1, MaxRetries: 2, RetryDelay: time.Millisecond})
	svc.Bind(queue)
	queue.Start(context.Background())
	defer queue.Stop()

	svc.EnrollmentCreated(context.Background(), events.EnrollmentCreated{EnrollmentID: "enr-1", ScheduleIDs: []string{"a", "b"}})

	require.Eventually(t, func() bool { return pub.published() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"bookings"}, pub.queues)
	assert.Equal(t, []string{"a", "b"}, pub.events[0].ScheduleIDs)
}

func TestNotificationServiceHandle(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewNotificationService(pub, "", nil)

	payload, err := json.Marshal(events.EnrollmentCreated{EnrollmentID: "enr-9"})
	require.NoError(t, err)
	require.NoError(t, svc.Handle(context.Background(), jobs.Task{Kind: taskEnrollmentCreated, Payload: payload}))
	assert.Equal(t, []string{"enrollment.created"}, pub.queues)

	assert.NoError(t, svc.Handle(context.Background(), jobs.Task{Kind: taskEnrollmentCreated, Payload: []byte("{")}))
	assert.Error(t, svc.Handle(context.Background(), jobs.Task{Kind: "unknown"}))
}

func TestNotificationServiceWithoutQueue(t *testing.T) {
	svc := NewNotificationService(&recordingPublisher{}, "", nil)
	assert.NotPanics(t, func() {
		svc.EnrollmentCreated(context.Background(), events.EnrollmentCreated{EnrollmentID: "enr-1"})
	})
	var nilSvc *NotificationService
	assert.NotPanics(t, func() {
		nilSvc.EnrollmentCreated(context.Background(), events.EnrollmentCreated{})
	})
}
