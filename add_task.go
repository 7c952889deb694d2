package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// --- Create Task Flow ---
// SelectCategory → InputTitle → InputDescription → InputDueDate → TaskSaved.
// The due-date step carries the terminal save operation: either picking a
// date or skipping it creates the task, and a set due date additionally
// enqueues a reminder job.

// ensureDraft returns the session's create draft, starting a fresh create
// flow if the session somehow lost it.
func ensureDraft(sess *Session) *CreateDraft {
	if sess.Data.Kind != "create" || sess.Data.Create == nil {
		sess.Data = createData()
	}
	return sess.Data.Create
}

func renderSelectCategory(ctx context.Context, e *Engine, sess *Session) (StepView, error) {
	draft := ensureDraft(sess)

	// Always refetch on entry: the prior flow's cached list is gone with its
	// draft, and category data may have changed since.
	cats, err := e.gw.ListCategories(ctx, sess.UserID)
	if err != nil {
		return StepView{}, err
	}
	draft.Categories = cats

	view := StepView{Text: "Pick a category for the new task:"}
	var row []Button
	for _, c := range cats {
		row = append(row, Button{Text: c.Name, Data: fmt.Sprintf("cat:%d", c.ID)})
		if len(row) == 2 {
			view.Keyboard = append(view.Keyboard, row)
			row = nil
		}
	}
	if len(row) > 0 {
		view.Keyboard = append(view.Keyboard, row)
	}
	view.Keyboard = append(view.Keyboard, []Button{{Text: "⬅️ Back", Data: "back"}})
	return view, nil
}

func handleSelectCategory(ctx context.Context, e *Engine, sess *Session, act Action) (StepID, error) {
	draft := ensureDraft(sess)

	switch {
	case act.Data == "back":
		sess.Data = browseData()
		return StepViewTasks, nil
	case strings.HasPrefix(act.Data, "cat:"):
		id, err := strconv.Atoi(strings.TrimPrefix(act.Data, "cat:"))
		if err != nil {
			return sess.Step, invalidInput("category", "Pick a category from the list.")
		}
		for _, c := range draft.Categories {
			if c.ID == id {
				draft.CategoryID = c.ID
				draft.CategoryName = c.Name
				return StepInputTitle, nil
			}
		}
		return sess.Step, invalidInput("category", "Pick a category from the list.")
	default:
		return sess.Step, invalidInput("category", "Use the buttons to pick a category.")
	}
}

func renderInputTitle(ctx context.Context, e *Engine, sess *Session) (StepView, error) {
	return StepView{
		Text:     "Now enter a title for the task:",
		Keyboard: [][]Button{{{Text: "⬅️ Back", Data: "back"}}},
	}, nil
}

func handleInputTitle(ctx context.Context, e *Engine, sess *Session, act Action) (StepID, error) {
	draft := ensureDraft(sess)

	if act.Data == "back" {
		return StepSelectCategory, nil
	}
	title := strings.TrimSpace(act.Text)
	if title == "" {
		return sess.Step, invalidInput("title", "The title cannot be empty.")
	}
	draft.Title = title
	return StepInputDescription, nil
}

func renderInputDescription(ctx context.Context, e *Engine, sess *Session) (StepView, error) {
	return StepView{
		Text: "Enter a description (optional):",
		Keyboard: [][]Button{
			{{Text: "Skip", Data: "skip"}},
			{{Text: "⬅️ Back", Data: "back"}},
		},
	}, nil
}

func handleInputDescription(ctx context.Context, e *Engine, sess *Session, act Action) (StepID, error) {
	draft := ensureDraft(sess)

	switch act.Data {
	case "skip":
		draft.Description = ""
		return StepInputDueDate, nil
	case "back":
		return StepInputTitle, nil
	}
	draft.Description = strings.TrimSpace(act.Text)
	return StepInputDueDate, nil
}

func renderInputDueDate(ctx context.Context, e *Engine, sess *Session) (StepView, error) {
	return StepView{
		Text: "Pick a due date (optional): send a date like 2025-05-01, or use the buttons.",
		Keyboard: [][]Button{
			{{Text: "Today", Data: "date:today"}, {Text: "Tomorrow", Data: "date:tomorrow"}},
			{{Text: "Skip and save", Data: "skip"}},
			{{Text: "⬅️ Back", Data: "back"}},
		},
	}, nil
}

func handleInputDueDate(ctx context.Context, e *Engine, sess *Session, act Action) (StepID, error) {
	draft := ensureDraft(sess)

	switch {
	case act.Data == "back":
		return StepInputDescription, nil
	case act.Data == "skip":
		draft.DueDate = ""
		return saveDraft(ctx, e, sess)
	}

	input := act.Text
	if strings.HasPrefix(act.Data, "date:") {
		input = strings.TrimPrefix(act.Data, "date:")
	}
	due, err := parseDueDate(input, timeNow())
	if err != nil {
		return sess.Step, invalidInput("due_date", "Enter a date like 2025-05-01.")
	}
	draft.DueDate = due
	return saveDraft(ctx, e, sess)
}

// saveDraft is the terminal save operation: create the task through the
// gateway and, when a due date is set, enqueue one reminder job. Validation
// failures keep the user on the due-date step; transport failures abort the
// flow (both via the engine's error policy).
func saveDraft(ctx context.Context, e *Engine, sess *Session) (StepID, error) {
	draft := ensureDraft(sess)

	created, err := e.gw.CreateTask(ctx, TaskDraft{
		Title:       draft.Title,
		Description: draft.Description,
		Category:    []int{draft.CategoryID},
		OwnerID:     sess.UserID,
		DueDate:     draft.DueDate,
	})
	if err != nil {
		return sess.Step, err
	}
	logInfo("task created", "user", sess.UserID, "task", created.ID, "title", draft.Title)

	if draft.DueDate != "" {
		fireAt, err := reminderFireTime(draft.DueDate, e.cfg.Reminders.notifyHourOrDefault())
		if err != nil {
			logError("bad due date for reminder", "user", sess.UserID, "dueDate", draft.DueDate, "error", err)
		} else if err := e.sched.Schedule(sess.UserID, draft.Title, fireAt); err != nil {
			// The task is already committed; delivery outcome is invisible
			// to the dialog by contract.
			logError("schedule reminder failed", "user", sess.UserID, "task", created.ID, "error", err)
		}
	}
	return StepTaskSaved, nil
}

func renderTaskSaved(ctx context.Context, e *Engine, sess *Session) (StepView, error) {
	draft := ensureDraft(sess)
	text := fmt.Sprintf("Task “%s” added.\nCategory — %s, due — %s.",
		draft.Title, draft.CategoryName, displayDate(draft.DueDate))
	return StepView{
		Text: text,
		Keyboard: [][]Button{
			{{Text: "📋 My tasks", Data: "view"}},
			{{Text: "➕ Add another", Data: "add"}},
		},
	}, nil
}

func handleTaskSaved(ctx context.Context, e *Engine, sess *Session, act Action) (StepID, error) {
	switch act.Data {
	case "view":
		sess.Data = browseData()
		return StepViewTasks, nil
	case "add":
		sess.Data = createData()
		return StepSelectCategory, nil
	default:
		return sess.Step, nil
	}
}
