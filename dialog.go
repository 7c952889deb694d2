package main

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// --- View / Action ---

type Button struct {
	Text string
	Data string // callback payload
}

// StepView is the rendered content of one step: display text plus the
// available actions as an inline keyboard.
type StepView struct {
	Text     string
	Keyboard [][]Button
	Notice   string // validation or failure annotation, shown above the text
}

// Action is one user input: a button press (Data set) or a plain text
// message (Text set).
type Action struct {
	Data string
	Text string
}

func (a Action) isButton() bool { return a.Data != "" }

// --- Step Handlers ---

// A step is a pure description: render produces the view from the session
// (optionally via fresh gateway reads), handle consumes one action and
// returns the next step. Handlers mutate only the session they are given.
type stepHandler struct {
	render func(ctx context.Context, e *Engine, sess *Session) (StepView, error)
	handle func(ctx context.Context, e *Engine, sess *Session, act Action) (StepID, error)
}

// --- Engine ---

// Engine drives the per-user dialog state machine. Step lookup is an
// explicit map; there is no hidden dispatch table.
type Engine struct {
	cfg   *Config
	gw    *Gateway
	store *SessionStore
	sched *ReminderEngine
	steps map[StepID]stepHandler
}

func newEngine(cfg *Config, gw *Gateway, store *SessionStore, sched *ReminderEngine) *Engine {
	e := &Engine{cfg: cfg, gw: gw, store: store, sched: sched}
	e.steps = map[StepID]stepHandler{
		StepViewTasks:        {render: renderViewTasks, handle: handleViewTasks},
		StepViewCompleted:    {render: renderViewCompleted, handle: handleViewCompleted},
		StepTaskDetail:       {render: renderTaskDetail, handle: handleTaskDetail},
		StepSelectCategory:   {render: renderSelectCategory, handle: handleSelectCategory},
		StepInputTitle:       {render: renderInputTitle, handle: handleInputTitle},
		StepInputDescription: {render: renderInputDescription, handle: handleInputDescription},
		StepInputDueDate:     {render: renderInputDueDate, handle: handleInputDueDate},
		StepTaskSaved:        {render: renderTaskSaved, handle: handleTaskSaved},
	}
	return e
}

// Start resets the user to the browse entry step and renders it. Used for
// /start and first contact.
func (e *Engine) Start(ctx context.Context, userID int64) (StepView, error) {
	var view StepView
	_, err := e.store.Update(userID, func(sess *Session) error {
		resetSession(sess, StepViewTasks)
		view = e.renderOrFallback(ctx, sess)
		return nil
	})
	if err != nil {
		return StepView{}, err
	}
	return view, nil
}

// HandleAction runs one user action against the user's current step and
// returns the view to display. Error policy:
//   - validation: re-render the same step with the message as a notice;
//   - session store failure: propagate (the transport shows a retry prompt);
//   - anything else (storage unreachable, unexpected statuses): abort the
//     flow, reset to the top-level menu, and show a generic failure notice.
func (e *Engine) HandleAction(ctx context.Context, userID int64, act Action) (StepView, error) {
	var view StepView
	_, err := e.store.Update(userID, func(sess *Session) error {
		h, ok := e.steps[sess.Step]
		if !ok {
			logWarn("session at unknown step, resetting", "user", userID, "step", sess.Step)
			resetSession(sess, StepViewTasks)
			h = e.steps[sess.Step]
		}

		next, err := h.handle(ctx, e, sess, act)
		if err != nil {
			var ve *ValidationError
			switch {
			case errors.As(err, &ve):
				view = e.renderOrFallback(ctx, sess)
				view.Notice = validationNotice(ve)
				return nil
			case errors.Is(err, errSessionUnavailable):
				return err
			default:
				logWarn("flow aborted", "user", userID, "step", sess.Step, "error", err)
				resetSession(sess, StepViewTasks)
				view = e.renderOrFallback(ctx, sess)
				view.Notice = "Something went wrong. Please try again."
				return nil
			}
		}

		sess.Step = next
		view = e.renderOrFallback(ctx, sess)
		return nil
	})
	if err != nil {
		return StepView{}, err
	}
	return view, nil
}

// renderOrFallback renders the session's current step. If rendering fails
// (storage unreachable while building a list, say), the session falls back
// to the top-level menu; if even that cannot render, a static retry view is
// returned so the user is never left without a way forward.
func (e *Engine) renderOrFallback(ctx context.Context, sess *Session) StepView {
	view, err := e.steps[sess.Step].render(ctx, e, sess)
	if err == nil {
		return view
	}
	logWarn("render failed", "user", sess.UserID, "step", sess.Step, "error", err)
	if sess.Step != StepViewTasks {
		resetSession(sess, StepViewTasks)
		if view, err = e.steps[sess.Step].render(ctx, e, sess); err == nil {
			view.Notice = "Something went wrong. Please try again."
			return view
		}
	}
	return StepView{
		Text:     "Storage is unavailable right now. Please try again in a moment.",
		Keyboard: [][]Button{{{Text: "🔄 Retry", Data: "refresh"}}},
	}
}

// --- Validation Helpers ---

// invalidInput builds a local single-field validation error.
func invalidInput(field, msg string) error {
	return &ValidationError{Fields: map[string][]string{field: {msg}}}
}

// validationNotice flattens a validation error into a short user-facing line.
func validationNotice(ve *ValidationError) string {
	if len(ve.Fields) == 0 {
		return "That input was not accepted."
	}
	keys := make([]string, 0, len(ve.Fields))
	for k := range ve.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		parts = append(parts, strings.Join(ve.Fields[k], " "))
	}
	return strings.Join(parts, " ")
}

// categoryNames resolves a task's category ids against a fetched list.
func categoryNames(ids []int, cats []Category) string {
	byID := make(map[int]string, len(cats))
	for _, c := range cats {
		byID[c.ID] = c.Name
	}
	var names []string
	for _, id := range ids {
		if name, ok := byID[id]; ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "no category"
	}
	return strings.Join(names, ", ")
}
