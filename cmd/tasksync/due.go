package main

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// parseDue turns a natural-language due expression ("tomorrow 5pm", "next
// friday", "in 2 hours") or an RFC 3339 date into a time.
func parseDue(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot parse due date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("cannot parse due date %q", s)
	}
	return r.Time, nil
}

// formatDue renders a due date compactly, flagging overdue ones.
func formatDue(due time.Time, now time.Time) (text string, overdue bool) {
	overdue = due.Before(now)
	if due.Year() == now.Year() {
		return due.Format("Jan 2 15:04"), overdue
	}
	return due.Format("2006-01-02 15:04"), overdue
}
