package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmapos/internal/core/event"
	"pharmapos/internal/core/id"
)

func TestPublishedUpdate(t *testing.T) {
	msgID := id.New()
	now := time.Now().UTC()

	q := publishedUpdate(msgID, now)

	assert.Contains(t, q.SQL, "UPDATE sys_outbox")
	require.Len(t, q.Args, 3)
	assert.Equal(t, OutboxStatusPublished, q.Args[0])
	assert.Equal(t, now, q.Args[1])
	assert.Equal(t, msgID, q.Args[2])
}

func TestRetryUpdate_LinearBackoff(t *testing.T) {
	now := time.Now().UTC()
	msg := &OutboxMessage{ID: id.New(), RetryCount: 2}

	q := retryUpdate(msg, errors.New("handler down"), now)

	require.Len(t, q.Args, 5)
	assert.Equal(t, "handler down", q.Args[0])
	assert.Equal(t, now.Add(3*time.Minute), q.Args[1], "third attempt waits three minutes")
	assert.Equal(t, outboxMaxRetries, q.Args[2])
	assert.Equal(t, OutboxStatusFailed, q.Args[3])
	assert.Equal(t, msg.ID, q.Args[4])
}

func TestRetryUpdate_FirstFailure(t *testing.T) {
	now := time.Now().UTC()
	msg := &OutboxMessage{ID: id.New(), RetryCount: 0}

	q := retryUpdate(msg, errors.New("boom"), now)

	assert.Equal(t, now.Add(1*time.Minute), q.Args[1])
}

func TestExecuteBatch_RequiresTransaction(t *testing.T) {
	exec := NewBatchExecutor(&TxManager{})

	err := exec.ExecuteBatch(context.Background(), []BatchQuery{
		{SQL: "UPDATE sys_outbox SET status = $1", Args: []any{OutboxStatusPublished}},
	})
	require.Error(t, err)
}

func TestOutboxPublish_RequiresTransaction(t *testing.T) {
	pub := NewOutboxPublisher(&TxManager{})

	err := pub.Publish(context.Background(), event.Event{
		AggregateType: "Invoice",
		AggregateID:   id.New(),
		Type:          "sale.completed",
		Payload:       map[string]string{"k": "v"},
	})
	require.Error(t, err)
}
