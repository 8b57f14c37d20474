package mqueue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"manifold/internal/mqueue"
	"manifold/internal/services"
	"manifold/internal/testsupport"
)

func TestSendReceiveDelete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	queue := mqueue.New(store)
	ctx := context.Background()

	if err := queue.Send(ctx, "work", `{"da_id":"DA1"}`); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msg, err := queue.Receive(ctx, "work", time.Minute)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if msg == nil || msg.Body != `{"da_id":"DA1"}` {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.ReceiptHandle == "" {
		t.Fatal("expected receipt handle")
	}

	// Leased message is invisible to a second consumer.
	second, err := queue.Receive(ctx, "work", time.Minute)
	if err != nil {
		t.Fatalf("second Receive: %v", err)
	}
	if second != nil {
		t.Fatalf("expected leased message to be hidden, got %+v", second)
	}

	if err := queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := queue.Delete(ctx, msg.ReceiptHandle); err == nil {
		t.Fatal("expected second delete to fail")
	}

	depth, err := queue.Depth(ctx, "work")
	if err != nil || depth != 0 {
		t.Fatalf("Depth: %d err=%v", depth, err)
	}
}

func TestLeaseExpiryRedelivers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	queue := mqueue.New(store).WithClock(func() time.Time { return current })
	ctx := context.Background()

	if err := queue.Send(ctx, "work", "payload"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	msg, err := queue.Receive(ctx, "work", 5*time.Minute)
	if err != nil || msg == nil {
		t.Fatalf("Receive: msg=%v err=%v", msg, err)
	}

	current = current.Add(4 * time.Minute)
	if redelivered, _ := queue.Receive(ctx, "work", 5*time.Minute); redelivered != nil {
		t.Fatal("message visible before lease expiry")
	}

	current = current.Add(2 * time.Minute)
	redelivered, err := queue.Receive(ctx, "work", 5*time.Minute)
	if err != nil || redelivered == nil {
		t.Fatalf("expected redelivery after lease expiry: msg=%v err=%v", redelivered, err)
	}
	if redelivered.Body != "payload" {
		t.Fatalf("redelivered body: %q", redelivered.Body)
	}
	if redelivered.ReceiptHandle == msg.ReceiptHandle {
		t.Fatal("expected a fresh receipt handle on redelivery")
	}
}

func TestSendToDeadLetterWrapsBody(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	queue := mqueue.New(store)
	ctx := context.Background()

	if err := queue.SendToDeadLetter(ctx, "dead", `{"da_id":"DA1"}`, "boom"); err != nil {
		t.Fatalf("SendToDeadLetter: %v", err)
	}
	msg, err := queue.Receive(ctx, "dead", time.Minute)
	if err != nil || msg == nil {
		t.Fatalf("Receive: msg=%v err=%v", msg, err)
	}

	var envelope mqueue.DeadLetterEnvelope
	if err := json.Unmarshal([]byte(msg.Body), &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.ErrorReason != "boom" {
		t.Fatalf("error reason: %q", envelope.ErrorReason)
	}
	if string(envelope.OriginalMessage) != `{"da_id":"DA1"}` {
		t.Fatalf("original message: %s", envelope.OriginalMessage)
	}

	// Non-JSON bodies are carried as a JSON string.
	if err := queue.SendToDeadLetter(ctx, "dead", "plain text", "bad"); err != nil {
		t.Fatalf("SendToDeadLetter plain: %v", err)
	}
}

func TestProcessorDispositions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	queue := mqueue.New(store)
	ctx := context.Background()

	opts := mqueue.ProcessorOptions{
		Queue:             "work",
		DeadLetterQueue:   "dead",
		PollWait:          time.Millisecond,
		VisibilityTimeout: time.Minute,
		ErrorRetryWait:    time.Millisecond,
	}

	// Success deletes the message.
	if err := queue.Send(ctx, "work", "ok"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	proc := mqueue.NewProcessor(queue, opts, func(context.Context, string) error { return nil }, nil)
	if processed, err := proc.ProcessOne(ctx); err != nil || !processed {
		t.Fatalf("ProcessOne success: processed=%v err=%v", processed, err)
	}
	if depth, _ := queue.Depth(ctx, "work"); depth != 0 {
		t.Fatalf("expected empty queue, depth=%d", depth)
	}

	// Validation failures drop without dead-lettering.
	if err := queue.Send(ctx, "work", "bad"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	proc = mqueue.NewProcessor(queue, opts, func(context.Context, string) error {
		return services.Wrap(services.ErrValidation, "test", "handle", "bad payload", nil)
	}, nil)
	if _, err := proc.ProcessOne(ctx); err != nil {
		t.Fatalf("ProcessOne drop: %v", err)
	}
	if depth, _ := queue.Depth(ctx, "work"); depth != 0 {
		t.Fatalf("dropped message still queued, depth=%d", depth)
	}
	if depth, _ := queue.Depth(ctx, "dead"); depth != 0 {
		t.Fatalf("dropped message dead-lettered, depth=%d", depth)
	}

	// Integrity failures park the message on the dead-letter queue.
	if err := queue.Send(ctx, "work", `{"da_id":"DA1"}`); err != nil {
		t.Fatalf("Send: %v", err)
	}
	proc = mqueue.NewProcessor(queue, opts, func(context.Context, string) error {
		return services.Wrap(services.ErrIntegrity, "test", "handle", "missing parent", nil)
	}, nil)
	if _, err := proc.ProcessOne(ctx); err != nil {
		t.Fatalf("ProcessOne dead-letter: %v", err)
	}
	if depth, _ := queue.Depth(ctx, "work"); depth != 0 {
		t.Fatalf("dead-lettered message still queued, depth=%d", depth)
	}
	if depth, _ := queue.Depth(ctx, "dead"); depth != 1 {
		t.Fatalf("expected one dead letter, depth=%d", depth)
	}

	// Transient failures leave the lease in place for redelivery.
	if err := queue.Send(ctx, "work", "retry"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	proc = mqueue.NewProcessor(queue, opts, func(context.Context, string) error {
		return errors.New("dependency down")
	}, nil)
	if _, err := proc.ProcessOne(ctx); err != nil {
		t.Fatalf("ProcessOne retry: %v", err)
	}
	if depth, _ := queue.Depth(ctx, "work"); depth != 1 {
		t.Fatalf("retried message missing, depth=%d", depth)
	}
}
