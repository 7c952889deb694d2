package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// --- Steps ---

type StepID string

// Browse flow.
const (
	StepViewTasks     StepID = "view_tasks"
	StepViewCompleted StepID = "view_completed"
	StepTaskDetail    StepID = "task_detail"
)

// Create flow.
const (
	StepSelectCategory   StepID = "select_category"
	StepInputTitle       StepID = "input_title"
	StepInputDescription StepID = "input_description"
	StepInputDueDate     StepID = "input_due_date"
	StepTaskSaved        StepID = "task_saved"
)

// --- Flow Data ---

// FlowData is the per-flow session record. Exactly one branch is set,
// matching Kind; starting a new top-level flow replaces the whole value, so
// nothing from an abandoned flow can leak into the next one.
type FlowData struct {
	Kind   string         `json:"kind"` // "browse" or "create"
	Browse *BrowseContext `json:"browse,omitempty"`
	Create *CreateDraft   `json:"create,omitempty"`
}

type BrowseContext struct {
	TaskID int `json:"taskId,omitempty"` // selected task, set when entering the detail step
}

// CreateDraft accumulates the create-task flow's input across steps. The
// category list is fetched once on entering SelectCategory and cached here
// for the lifetime of this draft only.
type CreateDraft struct {
	Categories   []Category `json:"categories,omitempty"`
	CategoryID   int        `json:"categoryId,omitempty"`
	CategoryName string     `json:"categoryName,omitempty"`
	Title        string     `json:"title,omitempty"`
	Description  string     `json:"description,omitempty"`
	DueDate      string     `json:"dueDate,omitempty"` // ISO date, empty = skipped
}

func browseData() FlowData {
	return FlowData{Kind: "browse", Browse: &BrowseContext{}}
}

func createData() FlowData {
	return FlowData{Kind: "create", Create: &CreateDraft{}}
}

// --- Session ---

// Session is one user's durable conversation state.
type Session struct {
	UserID    int64
	Step      StepID
	Data      FlowData
	CreatedAt string
	UpdatedAt string
}

// errSessionUnavailable wraps any session-store failure. The transport must
// surface it as a "try again" message, never swallow it.
var errSessionUnavailable = errors.New("session store unavailable")

// --- Store ---

// SessionStore persists sessions and serializes all mutations per user:
// concurrent actions from the same user queue behind each other, while
// different users proceed in parallel.
type SessionStore struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db, locks: make(map[int64]*sync.Mutex)}
}

func (s *SessionStore) userLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// GetOrCreate returns the user's session, creating one at the browse entry
// step on first contact.
func (s *SessionStore) GetOrCreate(userID int64) (Session, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()
	return s.loadOrCreate(userID)
}

// Update applies mutate to the user's session under the per-user lock and
// persists the result. The mutator may perform blocking work (gateway calls);
// only this user's actions wait on it.
func (s *SessionStore) Update(userID int64, mutate func(*Session) error) (Session, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	sess, err := s.loadOrCreate(userID)
	if err != nil {
		return Session{}, err
	}
	if err := mutate(&sess); err != nil {
		return sess, err
	}
	if err := s.save(sess); err != nil {
		return sess, err
	}
	return sess, nil
}

// Reset clears the flow data and moves the session to the given entry step.
func (s *SessionStore) Reset(userID int64, entry StepID) (Session, error) {
	return s.Update(userID, func(sess *Session) error {
		resetSession(sess, entry)
		return nil
	})
}

// resetSession rewrites the session for a fresh top-level flow.
func resetSession(sess *Session, entry StepID) {
	sess.Step = entry
	if entry == StepSelectCategory {
		sess.Data = createData()
	} else {
		sess.Data = browseData()
	}
}

// --- Persistence ---

func (s *SessionStore) loadOrCreate(userID int64) (Session, error) {
	row := s.db.QueryRow(
		`SELECT user_id, step, data, created_at, updated_at FROM sessions WHERE user_id = ?`, userID)

	var sess Session
	var data string
	err := row.Scan(&sess.UserID, &sess.Step, &data, &sess.CreatedAt, &sess.UpdatedAt)
	switch {
	case err == nil:
		if jerr := json.Unmarshal([]byte(data), &sess.Data); jerr != nil {
			// Unreadable flow data: fall back to a fresh browse flow rather
			// than leaving the session pointing at a step with no state.
			logWarn("session data corrupt, resetting", "user", userID, "error", jerr)
			resetSession(&sess, StepViewTasks)
		}
		return sess, nil
	case errors.Is(err, sql.ErrNoRows):
		now := time.Now().UTC().Format(time.RFC3339)
		sess = Session{UserID: userID, Step: StepViewTasks, Data: browseData(), CreatedAt: now, UpdatedAt: now}
		if err := s.save(sess); err != nil {
			return Session{}, err
		}
		return sess, nil
	default:
		return Session{}, fmt.Errorf("%w: load user %d: %v", errSessionUnavailable, userID, err)
	}
}

func (s *SessionStore) save(sess Session) error {
	data, err := json.Marshal(sess.Data)
	if err != nil {
		return fmt.Errorf("%w: marshal data: %v", errSessionUnavailable, err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	created := sess.CreatedAt
	if created == "" {
		created = now
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (user_id, step, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET step = excluded.step, data = excluded.data, updated_at = excluded.updated_at`,
		sess.UserID, string(sess.Step), string(data), created, now)
	if err != nil {
		return fmt.Errorf("%w: save user %d: %v", errSessionUnavailable, sess.UserID, err)
	}
	return nil
}
