package main

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSessionFirstContact(t *testing.T) {
	store := newSessionStore(testStateDB(t))

	sess, err := store.GetOrCreate(7)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if sess.Step != StepViewTasks {
		t.Errorf("step = %q, want %q", sess.Step, StepViewTasks)
	}
	if sess.Data.Kind != "browse" || sess.Data.Browse == nil {
		t.Errorf("data = %+v, want fresh browse flow", sess.Data)
	}
	if sess.CreatedAt == "" || sess.UpdatedAt == "" {
		t.Errorf("timestamps missing: %+v", sess)
	}
}

func TestSessionUpdatePersists(t *testing.T) {
	store := newSessionStore(testStateDB(t))

	_, err := store.Update(7, func(sess *Session) error {
		sess.Step = StepInputTitle
		sess.Data = createData()
		sess.Data.Create.CategoryID = 3
		sess.Data.Create.CategoryName = "Errands"
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	sess, err := store.GetOrCreate(7)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if sess.Step != StepInputTitle {
		t.Errorf("step = %q, want %q", sess.Step, StepInputTitle)
	}
	want := &CreateDraft{CategoryID: 3, CategoryName: "Errands"}
	if diff := cmp.Diff(want, sess.Data.Create); diff != "" {
		t.Errorf("draft mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionResetClearsFlowData(t *testing.T) {
	store := newSessionStore(testStateDB(t))

	_, err := store.Update(7, func(sess *Session) error {
		sess.Step = StepInputDueDate
		sess.Data = createData()
		sess.Data.Create.Title = "half-finished"
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	sess, err := store.Reset(7, StepSelectCategory)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if sess.Step != StepSelectCategory {
		t.Errorf("step = %q, want %q", sess.Step, StepSelectCategory)
	}
	if sess.Data.Create == nil || sess.Data.Create.Title != "" {
		t.Errorf("draft not cleared: %+v", sess.Data.Create)
	}

	sess, err = store.Reset(7, StepViewTasks)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if sess.Data.Kind != "browse" || sess.Data.Create != nil {
		t.Errorf("data = %+v, want browse flow with no draft", sess.Data)
	}
}

func TestSessionCorruptDataResets(t *testing.T) {
	db := testStateDB(t)
	store := newSessionStore(db)

	_, err := db.Exec(
		`INSERT INTO sessions (user_id, step, data, created_at, updated_at) VALUES (7, 'input_title', 'not json', '', '')`)
	if err != nil {
		t.Fatalf("seed row: %v", err)
	}

	sess, err := store.GetOrCreate(7)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if sess.Step != StepViewTasks || sess.Data.Kind != "browse" {
		t.Errorf("session = %+v, want reset to browse entry", sess)
	}
}

func TestSessionUpdatesSerializedPerUser(t *testing.T) {
	store := newSessionStore(testStateDB(t))

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(7, func(sess *Session) error {
				if sess.Data.Kind != "create" {
					sess.Data = createData()
					sess.Step = StepInputTitle
				}
				sess.Data.Create.Title += "x"
				return nil
			})
			if err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()

	sess, err := store.GetOrCreate(7)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got := len(sess.Data.Create.Title); got != n {
		t.Errorf("title length = %d, want %d (updates must not race)", got, n)
	}
}

func TestSessionsIndependentAcrossUsers(t *testing.T) {
	store := newSessionStore(testStateDB(t))

	for _, u := range []struct {
		id    int64
		title string
	}{{1, "first"}, {2, "second"}} {
		_, err := store.Update(u.id, func(sess *Session) error {
			sess.Data = createData()
			sess.Data.Create.Title = u.title
			return nil
		})
		if err != nil {
			t.Fatalf("Update user %d: %v", u.id, err)
		}
	}

	one, _ := store.GetOrCreate(1)
	two, _ := store.GetOrCreate(2)
	if one.Data.Create.Title != "first" || two.Data.Create.Title != "second" {
		t.Errorf("sessions bled across users: %q / %q", one.Data.Create.Title, two.Data.Create.Title)
	}
}
