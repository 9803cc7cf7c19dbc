package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pharmapos/internal/core/event"
	"pharmapos/internal/core/id"
	"pharmapos/pkg/logger"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// outboxMaxRetries is the retry budget before a message is marked failed.
const outboxMaxRetries = 5

// OutboxMessage represents a message in the transactional outbox.
type OutboxMessage struct {
	ID            id.ID        `db:"id"`
	AggregateType string       `db:"aggregate_type"` // e.g., "Invoice"
	AggregateID   id.ID        `db:"aggregate_id"`   // ID of the entity
	EventType     string       `db:"event_type"`     // e.g., "sale.completed"
	Payload       []byte       `db:"payload"`        // JSON payload
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	NextRetryAt   *time.Time   `db:"next_retry_at"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

// Compile-time check that OutboxPublisher implements event.Publisher.
var _ event.Publisher = (*OutboxPublisher)(nil)

// OutboxPublisher writes events to the outbox table.
// Events commit or roll back together with the business write.
type OutboxPublisher struct {
	txManager *TxManager
}

// NewOutboxPublisher creates a new outbox publisher.
func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txManager: txManager}
}

// Publish writes an event to the outbox within the current transaction.
// MUST be called inside a transaction context.
func (p *OutboxPublisher) Publish(ctx context.Context, e event.Event) error {
	tx := p.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("outbox publish requires transaction context")
	}

	payloadBytes, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sys_outbox (id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id.New(), e.AggregateType, e.AggregateID, e.Type, payloadBytes, OutboxStatusPending, time.Now().UTC())

	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}

	return nil
}

// OutboxHandler processes outbox messages.
type OutboxHandler interface {
	// Handle processes a message and returns error if failed
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// OutboxRelay reads and processes messages from the outbox.
// Used by the background worker to deliver events to their handlers.
type OutboxRelay struct {
	txManager *TxManager
	executor  *BatchExecutor
	batchSize int
	handler   OutboxHandler
}

// NewOutboxRelay creates a new outbox relay.
func NewOutboxRelay(txManager *TxManager, batchSize int, handler OutboxHandler) *OutboxRelay {
	return &OutboxRelay{
		txManager: txManager,
		executor:  NewBatchExecutor(txManager),
		batchSize: batchSize,
		handler:   handler,
	}
}

// ProcessBatch fetches and processes pending messages.
// Returns number of successfully processed messages.
//
// The whole batch runs in one transaction: the FOR UPDATE SKIP LOCKED
// locks stay held while handlers run, so concurrent workers never pick
// up the same messages, and all status updates go out as a single pgx
// batch at the end.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	processed := 0
	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		messages, err := r.fetchPending(ctx)
		if err != nil {
			return err
		}

		updates := make([]BatchQuery, 0, len(messages))
		for _, msg := range messages {
			if handleErr := r.handler.Handle(ctx, msg); handleErr != nil {
				logger.Warn(ctx, "outbox message failed",
					"message_id", msg.ID.String(),
					"event_type", msg.EventType,
					"retry_count", msg.RetryCount,
					"error", handleErr)
				updates = append(updates, retryUpdate(msg, handleErr, time.Now().UTC()))
				continue
			}
			updates = append(updates, publishedUpdate(msg.ID, time.Now().UTC()))
			processed++
		}

		if len(updates) == 0 {
			return nil
		}
		return r.executor.ExecuteBatch(ctx, updates)
	})
	if err != nil {
		return 0, err
	}

	return processed, nil
}

// fetchPending loads due messages, locking their rows for the rest of
// the transaction.
func (r *OutboxRelay) fetchPending(ctx context.Context) ([]*OutboxMessage, error) {
	rows, err := r.txManager.GetQuerier(ctx).Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, status,
		       retry_count, last_error, next_retry_at, created_at, published_at
		FROM sys_outbox
		WHERE status = $1
		  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, OutboxStatusPending, r.batchSize)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []*OutboxMessage
	for rows.Next() {
		var msg OutboxMessage
		err := rows.Scan(
			&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType,
			&msg.Payload, &msg.Status, &msg.RetryCount, &msg.LastError,
			&msg.NextRetryAt, &msg.CreatedAt, &msg.PublishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox messages: %w", err)
	}

	return messages, nil
}

// publishedUpdate marks a delivered message as published.
func publishedUpdate(msgID id.ID, now time.Time) BatchQuery {
	return BatchQuery{
		SQL: `
		UPDATE sys_outbox
		SET status = $1, published_at = $2
		WHERE id = $3`,
		Args: []any{OutboxStatusPublished, now, msgID},
	}
}

// retryUpdate schedules the next attempt with linear backoff
// (retry_count minutes) and flips the message to failed once the retry
// budget is spent.
func retryUpdate(msg *OutboxMessage, handleErr error, now time.Time) BatchQuery {
	nextRetry := now.Add(time.Duration(msg.RetryCount+1) * time.Minute)
	return BatchQuery{
		SQL: `
		UPDATE sys_outbox
		SET retry_count = retry_count + 1,
		    last_error = $1,
		    next_retry_at = $2,
		    status = CASE WHEN retry_count >= $3 THEN $4 ELSE status END
		WHERE id = $5`,
		Args: []any{handleErr.Error(), nextRetry, outboxMaxRetries, OutboxStatusFailed, msg.ID},
	}
}

// MoveToDLQ moves failed messages to the dead letter queue table.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		WITH moved AS (
			DELETE FROM sys_outbox
			WHERE status = $1 AND retry_count >= $2
			RETURNING *
		)
		INSERT INTO sys_outbox_dlq
		SELECT *, NOW() as failed_at, last_error as failure_reason FROM moved
	`, OutboxStatusFailed, outboxMaxRetries)

	if err != nil {
		return 0, fmt.Errorf("move to DLQ: %w", err)
	}

	return result.RowsAffected(), nil
}
