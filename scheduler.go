package main

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// --- Reminder Scheduler ---
// Converts a task's due date into a durable, delayed one-shot job. Schedule
// returns as soon as the job row is committed; a ticker worker delivers jobs
// whose fire time has passed. Delivery is at-least-once: a job fires at the
// first tick at or after fire_at, even if the worker was down at that moment,
// and re-running the job body only re-sends the same message.

type ReminderJob struct {
	ID        string
	OwnerID   int64
	TaskTitle string
	FireAt    string // RFC3339
	Status    string // pending, sent, failed
	Error     string
	CreatedAt string
}

// ReminderEngine owns the reminder_jobs table and the delivery worker.
type ReminderEngine struct {
	db     *sql.DB
	cfg    ReminderConfig
	sendFn func(ownerID int64, text string) error

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newReminderEngine(db *sql.DB, cfg ReminderConfig, sendFn func(int64, string) error) *ReminderEngine {
	return &ReminderEngine{db: db, cfg: cfg, sendFn: sendFn, stopCh: make(chan struct{})}
}

// Schedule enqueues one reminder job. It never blocks on delivery.
func (re *ReminderEngine) Schedule(ownerID int64, taskTitle string, fireAt time.Time) error {
	re.mu.Lock()
	defer re.mu.Unlock()

	var pending int
	err := re.db.QueryRow(
		`SELECT COUNT(*) FROM reminder_jobs WHERE owner_id = ? AND status = 'pending'`, ownerID).Scan(&pending)
	if err != nil {
		return fmt.Errorf("count pending reminders: %w", err)
	}
	if pending >= re.cfg.maxPerUserOrDefault() {
		return fmt.Errorf("user %d has reached the maximum of %d pending reminders", ownerID, re.cfg.maxPerUserOrDefault())
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = re.db.Exec(
		`INSERT INTO reminder_jobs (id, owner_id, task_title, fire_at, status, created_at)
		 VALUES (?, ?, ?, ?, 'pending', ?)`,
		id, ownerID, taskTitle, fireAt.UTC().Format(time.RFC3339), now)
	if err != nil {
		return fmt.Errorf("insert reminder job: %w", err)
	}
	logInfo("reminder scheduled", "id", id, "owner", ownerID, "fireAt", fireAt.UTC().Format(time.RFC3339))
	return nil
}

// Start begins the periodic delivery worker.
func (re *ReminderEngine) Start(ctx context.Context) {
	interval := re.cfg.checkIntervalOrDefault()
	re.wg.Add(1)
	go func() {
		defer re.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logInfo("reminder worker started", "interval", interval.String())

		for {
			select {
			case <-ctx.Done():
				return
			case <-re.stopCh:
				return
			case <-ticker.C:
				re.tick()
			}
		}
	}()
}

// Stop halts the worker and waits for an in-flight tick to finish.
func (re *ReminderEngine) Stop() {
	close(re.stopCh)
	re.wg.Wait()
}

// tick delivers every pending job whose fire time has passed. Due rows are
// collected under the lock but delivered outside it, so Schedule never waits
// on a delivery batch. Delivery failures mark the job failed with the error
// recorded; there is no automatic retry.
func (re *ReminderEngine) tick() {
	re.mu.Lock()
	now := time.Now().UTC().Format(time.RFC3339)
	rows, err := re.db.Query(
		`SELECT id, owner_id, task_title FROM reminder_jobs
		 WHERE status = 'pending' AND fire_at <= ?
		 ORDER BY fire_at ASC LIMIT 100`, now)
	if err != nil {
		re.mu.Unlock()
		logWarn("reminder tick query failed", "error", err)
		return
	}

	type due struct {
		id    string
		owner int64
		title string
	}
	var dues []due
	for rows.Next() {
		var d due
		if err := rows.Scan(&d.id, &d.owner, &d.title); err != nil {
			logWarn("reminder row scan failed", "error", err)
			continue
		}
		dues = append(dues, d)
	}
	rows.Close()
	re.mu.Unlock()

	for _, d := range dues {
		text := fmt.Sprintf("🔔 Reminder!\n\nYour task is due today: “%s”", d.title)
		if err := re.sendFn(d.owner, text); err != nil {
			logError("reminder delivery failed", "id", d.id, "owner", d.owner, "error", err)
			re.markJob(d.id, "failed", err.Error())
			continue
		}
		logInfo("reminder sent", "id", d.id, "owner", d.owner, "title", d.title)
		re.markJob(d.id, "sent", "")
	}
}

func (re *ReminderEngine) markJob(id, status, errMsg string) {
	if _, err := re.db.Exec(
		`UPDATE reminder_jobs SET status = ?, error = ? WHERE id = ?`, status, errMsg, id); err != nil {
		logWarn("reminder status update failed", "id", id, "status", status, "error", err)
	}
}

// listJobs returns jobs for one owner, newest first. Used by tests and the
// pending-cap check path.
func (re *ReminderEngine) listJobs(ownerID int64) ([]ReminderJob, error) {
	rows, err := re.db.Query(
		`SELECT id, owner_id, task_title, fire_at, status, error, created_at
		 FROM reminder_jobs WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list reminder jobs: %w", err)
	}
	defer rows.Close()

	var jobs []ReminderJob
	for rows.Next() {
		var j ReminderJob
		if err := rows.Scan(&j.ID, &j.OwnerID, &j.TaskTitle, &j.FireAt, &j.Status, &j.Error, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reminder job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
