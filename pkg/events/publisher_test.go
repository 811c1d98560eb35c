package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeChannel struct {
	declared  []string
	published []amqp.Publishing
	keys      []string
	pubErr    error
	closed    bool
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if !durable {
		return amqp.Queue{}, errors.New("expected durable queue")
	}
	f.declared = append(f.declared, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublisherPublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := newAMQPPublisher(ch, nil)

	evt := EnrollmentCreated{EnrollmentID: "enr-1", CourseID: "c-1", Modality: "practical"}
	require.NoError(t, p.Publish(context.Background(), "enrollment.created", evt))
	require.NoError(t, p.Publish(context.Background(), "enrollment.created", evt))

	assert.Equal(t, []string{"enrollment.created"}, ch.declared)
	require.Len(t, ch.published, 2)
	msg := ch.published[0]
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "enrollment.created", ch.keys[0])

	var decoded EnrollmentCreated
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, "enr-1", decoded.EnrollmentID)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestAMQPPublisherWrapsPublishError(t *testing.T) {
	ch := &fakeChannel{pubErr: errors.New("channel closed")}
	p := newAMQPPublisher(ch, nil)

	err := p.Publish(context.Background(), "q", map[string]string{"a": "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := LogPublisher{Logger: zap.New(core)}

	require.NoError(t, p.Publish(context.Background(), "enrollment.created", EnrollmentCreated{EnrollmentID: "enr-9"}))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "enrollment.created", logs.All()[0].ContextMap()["queue"])
}
