package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// --- Browse Flow ---
// ViewTasks and ViewCompleted partition the user's tasks by completion on
// every render (no cross-turn caching: task state may have changed). The
// detail step is shared between the two lists.

func renderViewTasks(ctx context.Context, e *Engine, sess *Session) (StepView, error) {
	tasks, err := e.gw.ListTasks(ctx, sess.UserID)
	if err != nil {
		return StepView{}, err
	}
	cats, err := e.gw.ListCategories(ctx, sess.UserID)
	if err != nil {
		return StepView{}, err
	}

	var active []Task
	for _, t := range tasks {
		if !t.Completed {
			active = append(active, t)
		}
	}

	view := StepView{}
	if len(active) == 0 {
		view.Text = "You have no tasks yet."
	} else {
		view.Text = "Your active tasks:"
		for _, t := range active {
			label := fmt.Sprintf("📝 %s (%s)", t.Title, categoryNames(t.Category, cats))
			view.Keyboard = append(view.Keyboard, []Button{{Text: label, Data: fmt.Sprintf("task:%d", t.ID)}})
		}
	}
	view.Keyboard = append(view.Keyboard, []Button{
		{Text: "➕ Add", Data: "add"},
		{Text: "✅ Completed", Data: "completed"},
	})
	return view, nil
}

func handleViewTasks(ctx context.Context, e *Engine, sess *Session, act Action) (StepID, error) {
	switch {
	case act.Data == "add":
		sess.Data = createData()
		return StepSelectCategory, nil
	case act.Data == "completed":
		sess.Data = browseData()
		return StepViewCompleted, nil
	case strings.HasPrefix(act.Data, "task:"):
		id, err := strconv.Atoi(strings.TrimPrefix(act.Data, "task:"))
		if err != nil {
			return sess.Step, nil
		}
		sess.Data = FlowData{Kind: "browse", Browse: &BrowseContext{TaskID: id}}
		return StepTaskDetail, nil
	default:
		// Plain text or a stale button: just re-render the list.
		return sess.Step, nil
	}
}

func renderViewCompleted(ctx context.Context, e *Engine, sess *Session) (StepView, error) {
	tasks, err := e.gw.ListTasks(ctx, sess.UserID)
	if err != nil {
		return StepView{}, err
	}

	var done []Task
	for _, t := range tasks {
		if t.Completed {
			done = append(done, t)
		}
	}

	view := StepView{}
	if len(done) == 0 {
		view.Text = "You have no completed tasks."
	} else {
		view.Text = "Your completed tasks:"
		for _, t := range done {
			view.Keyboard = append(view.Keyboard, []Button{{Text: "✅ " + t.Title, Data: fmt.Sprintf("task:%d", t.ID)}})
		}
	}
	view.Keyboard = append(view.Keyboard, []Button{{Text: "⬅️ Active tasks", Data: "back"}})
	return view, nil
}

func handleViewCompleted(ctx context.Context, e *Engine, sess *Session, act Action) (StepID, error) {
	switch {
	case act.Data == "back":
		sess.Data = browseData()
		return StepViewTasks, nil
	case strings.HasPrefix(act.Data, "task:"):
		id, err := strconv.Atoi(strings.TrimPrefix(act.Data, "task:"))
		if err != nil {
			return sess.Step, nil
		}
		sess.Data = FlowData{Kind: "browse", Browse: &BrowseContext{TaskID: id}}
		return StepTaskDetail, nil
	default:
		return sess.Step, nil
	}
}

// --- Detail ---

func renderTaskDetail(ctx context.Context, e *Engine, sess *Session) (StepView, error) {
	if sess.Data.Browse == nil || sess.Data.Browse.TaskID == 0 {
		return notFoundDetailView(), nil
	}
	id := sess.Data.Browse.TaskID

	task, err := e.gw.GetTask(ctx, id, sess.UserID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			logInfo("task detail: not found", "user", sess.UserID, "task", id)
			return notFoundDetailView(), nil
		case errors.Is(err, ErrForbidden):
			// Ownership mismatch reads as "not found" to the user.
			logWarn("task detail: forbidden", "user", sess.UserID, "task", id)
			return notFoundDetailView(), nil
		default:
			return StepView{}, err
		}
	}

	cats, err := e.gw.ListCategories(ctx, sess.UserID)
	if err != nil {
		return StepView{}, err
	}

	status := "In progress"
	if task.Completed {
		status = "Done"
	}
	description := task.Description
	if description == "" {
		description = "—"
	}
	text := strings.Join([]string{
		"Title: " + task.Title,
		"Description: " + description,
		"Category: " + categoryNames(task.Category, cats),
		"Created: " + displayDateTime(task.CreatedAt),
		"Due: " + displayDate(task.DueDate),
		"Status: " + status,
	}, "\n\n")

	row := []Button{{Text: "⬅️ Back to list", Data: "back"}}
	if !task.Completed {
		row = append(row, Button{Text: "✅ Done", Data: "done"})
	}
	row = append(row, Button{Text: "🗑 Delete", Data: "delete"})

	return StepView{Text: text, Keyboard: [][]Button{row}}, nil
}

func notFoundDetailView() StepView {
	return StepView{
		Text:     "Task not found.\n\nIt may have been deleted.",
		Keyboard: [][]Button{{{Text: "⬅️ Back to list", Data: "back"}}},
	}
}

func handleTaskDetail(ctx context.Context, e *Engine, sess *Session, act Action) (StepID, error) {
	id := 0
	if sess.Data.Browse != nil {
		id = sess.Data.Browse.TaskID
	}

	switch act.Data {
	case "done":
		if err := e.gw.CompleteTask(ctx, id, sess.UserID); err != nil {
			switch {
			case errors.Is(err, ErrNotFound):
				logInfo("mark done: task gone", "user", sess.UserID, "task", id)
			case errors.Is(err, ErrForbidden):
				logWarn("mark done: forbidden", "user", sess.UserID, "task", id)
			default:
				return sess.Step, err
			}
		}
		sess.Data = browseData()
		return StepViewTasks, nil

	case "delete":
		if err := e.gw.DeleteTask(ctx, id); err != nil {
			// Already gone counts as deleted.
			switch {
			case errors.Is(err, ErrNotFound):
				logInfo("delete: task already gone", "user", sess.UserID, "task", id)
			case errors.Is(err, ErrForbidden):
				logWarn("delete: forbidden", "user", sess.UserID, "task", id)
			default:
				return sess.Step, err
			}
		}
		sess.Data = browseData()
		return StepViewTasks, nil

	case "back":
		sess.Data = browseData()
		return StepViewTasks, nil

	default:
		return sess.Step, nil
	}
}
