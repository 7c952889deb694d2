package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return newGateway(APIConfig{BaseURL: srv.URL + "/"})
}

func TestCreateTaskPayload(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Task{ID: 10, Title: "Buy milk", Category: []int{3}, OwnerID: 42})
	})

	created, err := gw.CreateTask(context.Background(), TaskDraft{
		Title:    "Buy milk",
		Category: []int{3},
		OwnerID:  42,
		DueDate:  "2025-05-01",
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if created.ID != 10 {
		t.Errorf("created id = %d, want 10", created.ID)
	}
	if gotPath != "POST /tasks/" {
		t.Errorf("request = %q, want POST /tasks/", gotPath)
	}

	want := map[string]any{
		"title":       "Buy milk",
		"description": "",
		"category":    []any{float64(3)},
		"owner_tg_id": float64(42),
		"due_date":    "2025-05-01",
	}
	if diff := cmp.Diff(want, gotBody); diff != "" {
		t.Errorf("create payload mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateTaskOmitsEmptyDueDate(t *testing.T) {
	var gotBody map[string]any
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Task{ID: 1})
	})

	if _, err := gw.CreateTask(context.Background(), TaskDraft{Title: "x", Category: []int{1}, OwnerID: 7}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, ok := gotBody["due_date"]; ok {
		t.Errorf("payload carries due_date for a skipped date: %v", gotBody)
	}
	if _, ok := gotBody["description"]; !ok {
		t.Errorf("payload must always carry description: %v", gotBody)
	}
}

func TestStatusErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{"not found", http.StatusNotFound, func(t *testing.T, err error) {
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		}},
		{"forbidden", http.StatusForbidden, func(t *testing.T, err error) {
			if !errors.Is(err, ErrForbidden) {
				t.Errorf("err = %v, want ErrForbidden", err)
			}
		}},
		{"server error", http.StatusInternalServerError, func(t *testing.T, err error) {
			if !isTransport(err) {
				t.Errorf("err = %v, want TransportError", err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := gw.GetTask(context.Background(), 5, 42)
			if err == nil {
				t.Fatal("GetTask: want error, got nil")
			}
			tt.check(t, err)
		})
	}
}

func TestCreateTaskValidationError(t *testing.T) {
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"title":["This field may not be blank."]}`)
	})

	_, err := gw.CreateTask(context.Background(), TaskDraft{Category: []int{1}, OwnerID: 7})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	want := map[string][]string{"title": {"This field may not be blank."}}
	if diff := cmp.Diff(want, ve.Fields); diff != "" {
		t.Errorf("validation fields mismatch (-want +got):\n%s", diff)
	}
}

func TestNetworkFailureIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	gw := newGateway(APIConfig{BaseURL: srv.URL + "/"})
	srv.Close()

	_, err := gw.ListTasks(context.Background(), 42)
	if !isTransport(err) {
		t.Errorf("err = %v, want TransportError", err)
	}
}

func TestListTasksScopedToOwner(t *testing.T) {
	var gotQuery string
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]Task{
			{ID: 1, Title: "Alpha", OwnerID: 42},
			{ID: 2, Title: "Beta", OwnerID: 42, Completed: true},
		})
	})

	tasks, err := gw.ListTasks(context.Background(), 42)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if gotQuery != "user=42" {
		t.Errorf("query = %q, want user=42", gotQuery)
	}
	if len(tasks) != 2 || tasks[0].Title != "Alpha" || !tasks[1].Completed {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestCompleteTaskPatch(t *testing.T) {
	var gotMethod, gotBody string
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
	})

	if err := gw.CompleteTask(context.Background(), 5, 42); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("method = %q, want PATCH", gotMethod)
	}
	if gotBody != `{"completed":true}` {
		t.Errorf("body = %q", gotBody)
	}
}

func TestDeleteTask(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		if err := gw.DeleteTask(context.Background(), 5); err != nil {
			t.Errorf("DeleteTask: %v", err)
		}
	})
	t.Run("already gone", func(t *testing.T) {
		gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		if err := gw.DeleteTask(context.Background(), 5); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}
