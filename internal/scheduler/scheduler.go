// Package scheduler delivers queue messages at scheduled times. Triggers
// live in the shared database: one-shot triggers fire once and are
// removed, recurring triggers advance by their rate after each firing.
package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"manifold/internal/dates"
	"manifold/internal/logging"
	"manifold/internal/mqueue"
	"manifold/internal/records"
)

// Trigger is one scheduled message.
type Trigger struct {
	Name        string
	TargetQueue string
	Payload     string
	FireAt      string
	RateMinutes int
	CreatedAt   string
}

// Scheduler owns trigger persistence and the dispatch loop.
type Scheduler struct {
	db     *sql.DB
	queue  *mqueue.Queue
	logger *slog.Logger
	now    func() time.Time
}

// New returns a scheduler sharing the record store's database.
func New(store *records.Store, queue *mqueue.Queue, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		db:     store.DB(),
		queue:  queue,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the scheduler clock. Intended for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// CreateOneShot registers a trigger that fires once. An existing trigger
// with the same name is replaced.
func (s *Scheduler) CreateOneShot(ctx context.Context, name, targetQueue, payload string, fireAt time.Time) error {
	return s.upsert(ctx, name, targetQueue, payload, fireAt, 0)
}

// CreateRecurring registers a trigger that fires every rateMinutes
// starting at the given time. An existing trigger with the same name is
// replaced.
func (s *Scheduler) CreateRecurring(ctx context.Context, name, targetQueue, payload string, start time.Time, rateMinutes int) error {
	if rateMinutes <= 0 {
		return fmt.Errorf("recurring trigger %s: rate must be positive", name)
	}
	return s.upsert(ctx, name, targetQueue, payload, start, rateMinutes)
}

// CreateOneShotJSON marshals a payload and registers a one-shot trigger.
func (s *Scheduler) CreateOneShotJSON(ctx context.Context, name, targetQueue string, payload any, fireAt time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for trigger %s: %w", name, err)
	}
	return s.CreateOneShot(ctx, name, targetQueue, string(body), fireAt)
}

// CreateRecurringJSON marshals a payload and registers a recurring trigger.
func (s *Scheduler) CreateRecurringJSON(ctx context.Context, name, targetQueue string, payload any, start time.Time, rateMinutes int) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for trigger %s: %w", name, err)
	}
	return s.CreateRecurring(ctx, name, targetQueue, string(body), start, rateMinutes)
}

func (s *Scheduler) upsert(ctx context.Context, name, targetQueue, payload string, fireAt time.Time, rateMinutes int) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO triggers (name, target_queue, payload, fire_at, rate_minutes, created_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(name) DO UPDATE SET
             target_queue = excluded.target_queue,
             payload = excluded.payload,
             fire_at = excluded.fire_at,
             rate_minutes = excluded.rate_minutes`,
		name,
		targetQueue,
		payload,
		dates.Format(fireAt),
		rateMinutes,
		dates.Format(s.now()),
	)
	if err != nil {
		return fmt.Errorf("upsert trigger %s: %w", name, err)
	}
	return nil
}

// Delete removes a trigger by name. Deleting a missing trigger is not an
// error so fire-once cleanup stays idempotent.
func (s *Scheduler) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM triggers WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete trigger %s: %w", name, err)
	}
	return nil
}

// Get fetches a trigger by name.
func (s *Scheduler) Get(ctx context.Context, name string) (*Trigger, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT name, target_queue, payload, fire_at, rate_minutes, created_at FROM triggers WHERE name = ?`,
		name,
	)
	var t Trigger
	err := row.Scan(&t.Name, &t.TargetQueue, &t.Payload, &t.FireAt, &t.RateMinutes, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trigger %s: %w", name, records.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get trigger: %w", err)
	}
	return &t, nil
}

// DispatchDue fires every trigger whose time has arrived and returns the
// number dispatched. One-shot triggers are removed after firing; recurring
// triggers advance by whole rate intervals until they are in the future.
func (s *Scheduler) DispatchDue(ctx context.Context) (int, error) {
	now := s.now()
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT name, target_queue, payload, fire_at, rate_minutes, created_at
         FROM triggers WHERE fire_at <= ? ORDER BY fire_at`,
		dates.Format(now),
	)
	if err != nil {
		return 0, fmt.Errorf("query due triggers: %w", err)
	}
	var due []Trigger
	for rows.Next() {
		var t Trigger
		if err := rows.Scan(&t.Name, &t.TargetQueue, &t.Payload, &t.FireAt, &t.RateMinutes, &t.CreatedAt); err != nil {
			rows.Close()
			return 0, err
		}
		due = append(due, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	dispatched := 0
	for _, t := range due {
		if err := s.queue.Send(ctx, t.TargetQueue, t.Payload); err != nil {
			s.logger.Error("trigger dispatch failed",
				logging.String(logging.FieldComponent, "scheduler"),
				logging.String("trigger", t.Name),
				logging.Error(err))
			continue
		}
		dispatched++
		if t.RateMinutes <= 0 {
			if err := s.Delete(ctx, t.Name); err != nil {
				return dispatched, err
			}
			continue
		}
		next, err := nextFiring(t.FireAt, t.RateMinutes, now)
		if err != nil {
			return dispatched, fmt.Errorf("advance trigger %s: %w", t.Name, err)
		}
		if _, err := s.db.ExecContext(ctx, `UPDATE triggers SET fire_at = ? WHERE name = ?`, next, t.Name); err != nil {
			return dispatched, fmt.Errorf("advance trigger %s: %w", t.Name, err)
		}
	}
	return dispatched, nil
}

// Run dispatches due triggers on every tick until the context is canceled.
func (s *Scheduler) Run(ctx context.Context, tick time.Duration) error {
	if tick <= 0 {
		tick = time.Minute
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.DispatchDue(ctx); err != nil {
				s.logger.Error("dispatch pass failed",
					logging.String(logging.FieldComponent, "scheduler"),
					logging.Error(err))
			}
		}
	}
}

func nextFiring(fireAt string, rateMinutes int, now time.Time) (string, error) {
	t, err := dates.Parse(fireAt)
	if err != nil {
		return "", err
	}
	step := time.Duration(rateMinutes) * time.Minute
	for !t.After(now) {
		t = t.Add(step)
	}
	return dates.Format(t), nil
}
