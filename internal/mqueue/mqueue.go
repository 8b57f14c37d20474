// Package mqueue implements durable message queues on top of the records
// database. Messages are leased to consumers with a visibility timeout:
// a received message stays invisible until it is deleted or the lease
// expires, at which point it becomes deliverable again.
package mqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"manifold/internal/dates"
	"manifold/internal/records"
)

// Message is one leased queue message.
type Message struct {
	ID            int64
	Queue         string
	Body          string
	ReceiptHandle string
}

// DeadLetterEnvelope wraps a failed message with the reason it was parked.
type DeadLetterEnvelope struct {
	OriginalMessage json.RawMessage `json:"original_message"`
	ErrorReason     string          `json:"error_reason"`
}

// Queue provides send and lease operations over the shared database.
type Queue struct {
	db  *sql.DB
	now func() time.Time
}

// New returns a queue layer sharing the record store's database.
func New(store *records.Store) *Queue {
	return &Queue{db: store.DB(), now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the queue clock. Intended for tests.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// Send enqueues a message for immediate delivery.
func (q *Queue) Send(ctx context.Context, queue, body string) error {
	now := dates.Format(q.now())
	_, err := q.db.ExecContext(
		ctx,
		`INSERT INTO queue_messages (queue, body, receipt_handle, visible_at, enqueued_at)
         VALUES (?, ?, '', ?, ?)`,
		queue,
		body,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("send to %s: %w", queue, err)
	}
	return nil
}

// SendJSON marshals a payload and enqueues it.
func (q *Queue) SendJSON(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", queue, err)
	}
	return q.Send(ctx, queue, string(body))
}

// Receive leases the oldest visible message on a queue, hiding it for the
// visibility timeout. Returns nil when the queue has no deliverable message.
func (q *Queue) Receive(ctx context.Context, queue string, visibility time.Duration) (*Message, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin receive tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := q.now()
	row := tx.QueryRowContext(
		ctx,
		`SELECT id, body FROM queue_messages
         WHERE queue = ? AND visible_at <= ?
         ORDER BY id LIMIT 1`,
		queue,
		dates.Format(now),
	)

	var (
		id   int64
		body string
	)
	if err := row.Scan(&id, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select message: %w", err)
	}

	receipt := uuid.NewString()
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE queue_messages SET receipt_handle = ?, visible_at = ? WHERE id = ?`,
		receipt,
		dates.Format(now.Add(visibility)),
		id,
	); err != nil {
		return nil, fmt.Errorf("lease message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit receive: %w", err)
	}
	return &Message{ID: id, Queue: queue, Body: body, ReceiptHandle: receipt}, nil
}

// Delete removes a leased message. The receipt must match the current lease.
func (q *Queue) Delete(ctx context.Context, receiptHandle string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM queue_messages WHERE receipt_handle = ?`, receiptHandle)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return errors.New("delete message: receipt not found or lease expired")
	}
	return nil
}

// SendToDeadLetter parks a failed message with its failure reason.
func (q *Queue) SendToDeadLetter(ctx context.Context, deadLetterQueue, originalBody, reason string) error {
	envelope := DeadLetterEnvelope{
		OriginalMessage: json.RawMessage(originalBody),
		ErrorReason:     reason,
	}
	if !json.Valid([]byte(originalBody)) {
		raw, err := json.Marshal(originalBody)
		if err != nil {
			return fmt.Errorf("marshal dead letter body: %w", err)
		}
		envelope.OriginalMessage = raw
	}
	return q.SendJSON(ctx, deadLetterQueue, envelope)
}

// Depth returns the number of messages on a queue, leased or not.
func (q *Queue) Depth(ctx context.Context, queue string) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM queue_messages WHERE queue = ?`, queue).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return count, nil
}
