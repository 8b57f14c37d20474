package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"manifold/internal/mqueue"
	"manifold/internal/records"
	"manifold/internal/scheduler"
	"manifold/internal/testsupport"
)

func TestOneShotFiresOnceAndIsRemoved(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	queue := mqueue.New(store).WithClock(func() time.Time { return current })
	sched := scheduler.New(store, queue, nil).WithClock(func() time.Time { return current })
	ctx := context.Background()

	fireAt := current.Add(10 * time.Minute)
	if err := sched.CreateOneShot(ctx, "manifest-DA1", "manifest-generation", `{"da_id":"DA1"}`, fireAt); err != nil {
		t.Fatalf("CreateOneShot: %v", err)
	}

	// Not due yet.
	dispatched, err := sched.DispatchDue(ctx)
	if err != nil || dispatched != 0 {
		t.Fatalf("early dispatch: n=%d err=%v", dispatched, err)
	}

	current = current.Add(11 * time.Minute)
	dispatched, err = sched.DispatchDue(ctx)
	if err != nil || dispatched != 1 {
		t.Fatalf("due dispatch: n=%d err=%v", dispatched, err)
	}

	msg, err := queue.Receive(ctx, "manifest-generation", time.Minute)
	if err != nil || msg == nil || msg.Body != `{"da_id":"DA1"}` {
		t.Fatalf("dispatched message: %+v err=%v", msg, err)
	}

	if _, err := sched.Get(ctx, "manifest-DA1"); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("expected one-shot trigger removed, got %v", err)
	}
}

func TestRecurringTriggerAdvancesPastNow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	queue := mqueue.New(store).WithClock(func() time.Time { return current })
	sched := scheduler.New(store, queue, nil).WithClock(func() time.Time { return current })
	ctx := context.Background()

	start := current.Add(-45 * time.Minute)
	if err := sched.CreateRecurring(ctx, "asset-validation", "asset-validation", `{"trigger":"asset_validation_check"}`, start, 30); err != nil {
		t.Fatalf("CreateRecurring: %v", err)
	}

	dispatched, err := sched.DispatchDue(ctx)
	if err != nil || dispatched != 1 {
		t.Fatalf("dispatch: n=%d err=%v", dispatched, err)
	}

	// The trigger advances by whole intervals past now, not just one step.
	trigger, err := sched.Get(ctx, "asset-validation")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if trigger.FireAt != "2024-06-01T12:15:00Z" {
		t.Fatalf("advanced fire_at: got %q", trigger.FireAt)
	}

	// A second pass in the same instant fires nothing.
	dispatched, err = sched.DispatchDue(ctx)
	if err != nil || dispatched != 0 {
		t.Fatalf("second dispatch: n=%d err=%v", dispatched, err)
	}
}

func TestCreateRecurringRejectsNonPositiveRate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	queue := mqueue.New(store)
	sched := scheduler.New(store, queue, nil)

	if err := sched.CreateRecurring(context.Background(), "bad", "q", "{}", time.Now(), 0); err == nil {
		t.Fatal("expected error for zero rate")
	}
}

func TestUpsertReplacesExistingTrigger(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	queue := mqueue.New(store).WithClock(func() time.Time { return current })
	sched := scheduler.New(store, queue, nil).WithClock(func() time.Time { return current })
	ctx := context.Background()

	if err := sched.CreateOneShot(ctx, "exception-DA1", "exception-notification", `{"da_id":"DA1"}`, current.Add(time.Hour)); err != nil {
		t.Fatalf("CreateOneShot: %v", err)
	}
	if err := sched.CreateOneShot(ctx, "exception-DA1", "exception-notification", `{"da_id":"DA1","retry":true}`, current.Add(2*time.Hour)); err != nil {
		t.Fatalf("second CreateOneShot: %v", err)
	}

	trigger, err := sched.Get(ctx, "exception-DA1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if trigger.FireAt != "2024-06-01T14:00:00Z" {
		t.Fatalf("fire_at not replaced: %q", trigger.FireAt)
	}

	if err := sched.Delete(ctx, "exception-DA1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := sched.Delete(ctx, "exception-DA1"); err != nil {
		t.Fatalf("Delete of missing trigger should be nil, got %v", err)
	}
}

func TestTriggerNameHelpers(t *testing.T) {
	if got := scheduler.ManifestTriggerName("DA1"); got != "manifest-DA1" {
		t.Fatalf("ManifestTriggerName: %q", got)
	}
	if got := scheduler.ExceptionTriggerName("DA1"); got != "exception-DA1" {
		t.Fatalf("ExceptionTriggerName: %q", got)
	}
}
