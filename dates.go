package main

import (
	"fmt"
	"strings"
	"time"
)

// timeNow is swapped in tests.
var timeNow = time.Now

const isoDate = "2006-01-02"

// parseDueDate accepts an ISO date, a dd.mm.yyyy date, or the shortcuts
// "today"/"tomorrow", and returns the ISO form.
func parseDueDate(input string, now time.Time) (string, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	switch input {
	case "":
		return "", fmt.Errorf("empty date")
	case "today":
		return now.Format(isoDate), nil
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format(isoDate), nil
	}
	for _, layout := range []string{isoDate, "02.01.2006"} {
		if t, err := time.Parse(layout, input); err == nil {
			return t.Format(isoDate), nil
		}
	}
	return "", fmt.Errorf("cannot parse date: %q", input)
}

// reminderFireTime converts an ISO due date into the reminder's absolute
// fire time: the given local hour on that day.
func reminderFireTime(due string, hour int) (time.Time, error) {
	d, err := time.ParseInLocation(isoDate, due, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse due date %q: %w", due, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.Local), nil
}

// displayDate renders an ISO date as dd.mm.yyyy, or "not set" when empty.
func displayDate(iso string) string {
	if iso == "" {
		return "not set"
	}
	t, err := time.Parse(isoDate, iso)
	if err != nil {
		// Some backends return a full timestamp for due_date.
		if tt, err2 := time.Parse(time.RFC3339, iso); err2 == nil {
			return tt.Format("02.01.2006")
		}
		return iso
	}
	return t.Format("02.01.2006")
}

// displayDateTime renders an RFC3339 timestamp as dd.mm.yyyy hh:mm.
func displayDateTime(ts string) string {
	if ts == "" {
		return "—"
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Format("02.01.2006 15:04")
}
