package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// --- Telegram Types ---

type tgUpdate struct {
	UpdateID      int              `json:"update_id"`
	Message       *tgMessage       `json:"message"`
	CallbackQuery *tgCallbackQuery `json:"callback_query"`
}

type tgMessage struct {
	MessageID int     `json:"message_id"`
	From      *tgUser `json:"from"`
	Chat      tgChat  `json:"chat"`
	Text      string  `json:"text"`
}

type tgChat struct {
	ID int64 `json:"id"`
}

type tgCallbackQuery struct {
	ID      string     `json:"id"`
	From    tgUser     `json:"from"`
	Message *tgMessage `json:"message"`
	Data    string     `json:"data"`
}

type tgUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type tgInlineKeyboard struct {
	InlineKeyboard [][]tgInlineButton `json:"inline_keyboard"`
}

type tgInlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
}

// --- Bot ---

// Bot is the chat transport adapter: it pulls updates off the Telegram long
// poll, feeds them to the dialog engine as actions, and delivers rendered
// step views back as messages with inline keyboards. It also carries
// reminder delivery for the scheduler.
type Bot struct {
	token       string
	pollTimeout int
	apiBase     string
	client      *http.Client
	engine      *Engine
}

func newBot(cfg *Config) *Bot {
	return &Bot{
		token:       cfg.Telegram.BotToken,
		pollTimeout: cfg.Telegram.pollTimeoutOrDefault(),
		apiBase:     "https://api.telegram.org",
		client:      &http.Client{Timeout: time.Duration(cfg.Telegram.pollTimeoutOrDefault()+10) * time.Second},
	}
}

const pollBackoff = 5 * time.Second

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (b *Bot) pollLoop(ctx context.Context) {
	offset := 0
	logInfo("telegram bot polling started")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		url := fmt.Sprintf("%s/bot%s/getUpdates?offset=%d&timeout=%d",
			b.apiBase, b.token, offset, b.pollTimeout)

		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := b.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logError("telegram poll error", "error", err)
			sleepCtx(ctx, pollBackoff)
			continue
		}

		var body struct {
			OK          bool       `json:"ok"`
			Description string     `json:"description"`
			Result      []tgUpdate `json:"result"`
		}
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil {
			logError("telegram poll decode failed", "error", err)
			sleepCtx(ctx, pollBackoff)
			continue
		}
		// A rejected poll (401 bad token, 409 conflicting getUpdates) would
		// otherwise spin at full rate.
		if !body.OK {
			logError("telegram poll rejected", "description", body.Description)
			sleepCtx(ctx, pollBackoff)
			continue
		}

		for _, u := range body.Result {
			offset = u.UpdateID + 1
			// One goroutine per update: the session store's per-user lock
			// serializes same-user actions, distinct users run in parallel.
			go b.handleUpdate(ctx, u)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, u tgUpdate) {
	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		b.handleMessage(ctx, u.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgMessage) {
	userID := msg.Chat.ID
	if msg.From != nil {
		userID = msg.From.ID
	}

	if msg.Text == "/start" {
		view, err := b.engine.Start(ctx, userID)
		if err != nil {
			logError("start failed", "user", userID, "error", err)
			b.sendMessage(msg.Chat.ID, "Something went wrong. Please try again.", nil)
			return
		}
		greeting := "Hi!"
		if msg.From != nil && msg.From.Username != "" {
			greeting = fmt.Sprintf("Hi, @%s!", msg.From.Username)
		}
		b.sendView(msg.Chat.ID, view, greeting)
		return
	}

	view, err := b.engine.HandleAction(ctx, userID, Action{Text: msg.Text})
	if err != nil {
		logError("dialog action failed", "user", userID, "error", err)
		b.sendMessage(msg.Chat.ID, "Something went wrong. Please try again.", nil)
		return
	}
	b.sendView(msg.Chat.ID, view, "")
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgCallbackQuery) {
	b.answerCallback(cb.ID)

	view, err := b.engine.HandleAction(ctx, cb.From.ID, Action{Data: cb.Data})
	if err != nil {
		logError("dialog callback failed", "user", cb.From.ID, "error", err)
		if cb.Message != nil {
			b.sendMessage(cb.Message.Chat.ID, "Something went wrong. Please try again.", nil)
		}
		return
	}

	// Button presses replace the originating step message in place.
	if cb.Message != nil {
		b.editMessage(cb.Message.Chat.ID, cb.Message.MessageID, view)
	}
}

// sendReminder delivers a reminder text to the owner's chat. Passed to the
// reminder engine as its delivery function.
func (b *Bot) sendReminder(ownerID int64, text string) error {
	return b.sendMessage(ownerID, text, nil)
}

// --- Rendering ---

func viewText(view StepView) string {
	if view.Notice != "" {
		return "⚠️ " + view.Notice + "\n\n" + view.Text
	}
	return view.Text
}

func viewKeyboard(view StepView) *tgInlineKeyboard {
	if len(view.Keyboard) == 0 {
		return nil
	}
	kb := &tgInlineKeyboard{}
	for _, row := range view.Keyboard {
		var tgRow []tgInlineButton
		for _, btn := range row {
			tgRow = append(tgRow, tgInlineButton{Text: btn.Text, CallbackData: btn.Data})
		}
		kb.InlineKeyboard = append(kb.InlineKeyboard, tgRow)
	}
	return kb
}

func (b *Bot) sendView(chatID int64, view StepView, prefix string) {
	text := viewText(view)
	if prefix != "" {
		text = prefix + "\n\n" + text
	}
	if err := b.sendMessage(chatID, text, viewKeyboard(view)); err != nil {
		logError("telegram send failed", "chat", chatID, "error", err)
	}
}

// --- Telegram API Calls ---

func (b *Bot) sendMessage(chatID int64, text string, keyboard *tgInlineKeyboard) error {
	payload := map[string]any{"chat_id": chatID, "text": text}
	if keyboard != nil {
		payload["reply_markup"] = keyboard
	}
	return b.call("sendMessage", payload)
}

func (b *Bot) editMessage(chatID int64, messageID int, view StepView) {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       viewText(view),
	}
	if kb := viewKeyboard(view); kb != nil {
		payload["reply_markup"] = kb
	}
	if err := b.call("editMessageText", payload); err != nil {
		// Editing can fail when the content is unchanged; fall back to a
		// fresh message so the user still sees the step.
		logDebug("telegram edit failed, sending new message", "chat", chatID, "error", err)
		b.sendView(chatID, view, "")
	}
}

func (b *Bot) answerCallback(callbackID string) {
	if err := b.call("answerCallbackQuery", map[string]any{"callback_query_id": callbackID}); err != nil {
		logDebug("answer callback failed", "error", err)
	}
}

func (b *Bot) call(method string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram %s: marshal: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", b.apiBase, b.token, method)
	resp, err := b.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Description string `json:"description"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("telegram %s: HTTP %d: %s", method, resp.StatusCode, apiErr.Description)
	}
	return nil
}
