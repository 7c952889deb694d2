package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// reminderCapture records deliveries made by a reminder engine under test.
type reminderCapture struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (rc *reminderCapture) send(ownerID int64, text string) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.err != nil {
		return rc.err
	}
	rc.sent = append(rc.sent, fmt.Sprintf("%d|%s", ownerID, text))
	return nil
}

func (rc *reminderCapture) messages() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]string(nil), rc.sent...)
}

func TestScheduleAndDeliver(t *testing.T) {
	rec := &reminderCapture{}
	re := newReminderEngine(testStateDB(t), ReminderConfig{}, rec.send)

	if err := re.Schedule(42, "Buy milk", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := re.Schedule(42, "Later task", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	re.tick()

	msgs := rec.messages()
	if len(msgs) != 1 {
		t.Fatalf("deliveries = %d, want 1 (only the due job fires)", len(msgs))
	}
	if !strings.HasPrefix(msgs[0], "42|🔔 Reminder!") || !strings.Contains(msgs[0], "“Buy milk”") {
		t.Errorf("message = %q", msgs[0])
	}

	jobs, err := re.listJobs(42)
	if err != nil {
		t.Fatalf("listJobs: %v", err)
	}
	byTitle := map[string]string{}
	for _, j := range jobs {
		byTitle[j.TaskTitle] = j.Status
	}
	if byTitle["Buy milk"] != "sent" || byTitle["Later task"] != "pending" {
		t.Errorf("statuses = %v", byTitle)
	}

	// A second tick must not re-send the delivered job.
	re.tick()
	if got := len(rec.messages()); got != 1 {
		t.Errorf("deliveries after second tick = %d, want 1", got)
	}
}

func TestDeliveryFailureMarksFailed(t *testing.T) {
	rec := &reminderCapture{err: fmt.Errorf("chat unavailable")}
	re := newReminderEngine(testStateDB(t), ReminderConfig{}, rec.send)

	if err := re.Schedule(42, "Buy milk", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	re.tick()

	jobs, err := re.listJobs(42)
	if err != nil {
		t.Fatalf("listJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != "failed" {
		t.Fatalf("jobs = %+v, want one failed", jobs)
	}
	if !strings.Contains(jobs[0].Error, "chat unavailable") {
		t.Errorf("job error = %q", jobs[0].Error)
	}

	// Failed jobs are terminal: no retry on the next tick.
	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()
	re.tick()
	if got := len(rec.messages()); got != 0 {
		t.Errorf("failed job was retried: %d deliveries", got)
	}
}

func TestSchedulePerUserCap(t *testing.T) {
	rec := &reminderCapture{}
	re := newReminderEngine(testStateDB(t), ReminderConfig{MaxPerUser: 2}, rec.send)

	fireAt := time.Now().Add(time.Hour)
	for i := 0; i < 2; i++ {
		if err := re.Schedule(42, fmt.Sprintf("task %d", i), fireAt); err != nil {
			t.Fatalf("Schedule %d: %v", i, err)
		}
	}
	if err := re.Schedule(42, "one too many", fireAt); err == nil {
		t.Error("Schedule: want cap error, got nil")
	}
	// The cap is per user.
	if err := re.Schedule(7, "other user", fireAt); err != nil {
		t.Errorf("Schedule for another user: %v", err)
	}
}

func TestScheduleNotBlockedByDelivery(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	re := newReminderEngine(testStateDB(t), ReminderConfig{}, func(int64, string) error {
		close(started)
		<-release
		return nil
	})

	if err := re.Schedule(42, "Slow delivery", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	tickDone := make(chan struct{})
	go func() {
		re.tick()
		close(tickDone)
	}()
	<-started

	// Saving a task must not wait for the delivery batch to drain.
	schedDone := make(chan error, 1)
	go func() {
		schedDone <- re.Schedule(42, "New task", time.Now().Add(time.Hour))
	}()
	select {
	case err := <-schedDone:
		if err != nil {
			t.Fatalf("Schedule during delivery: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Schedule blocked behind an in-flight delivery")
	}

	close(release)
	<-tickDone
}

func TestWorkerDeliversOnSchedule(t *testing.T) {
	delivered := make(chan string, 1)
	re := newReminderEngine(testStateDB(t), ReminderConfig{CheckInterval: "10ms"}, func(ownerID int64, text string) error {
		select {
		case delivered <- text:
		default:
		}
		return nil
	})

	if err := re.Schedule(42, "Buy milk", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	re.Start(ctx)
	defer re.Stop()

	select {
	case text := <-delivered:
		if !strings.Contains(text, "Buy milk") {
			t.Errorf("delivered = %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker never delivered the due reminder")
	}
}
