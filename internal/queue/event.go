// Package queue defines the notification events exchanged over the message
// broker and the consumer that renders them.
package queue

import (
	"fmt"
	"strings"
	"time"
)

// QueueName is the durable queue every notification goes through.
const QueueName = "segregate.notifications"

// Event types.
const (
	UserRegistered  = "user.registered"
	ReportSubmitted = "report.submitted"
	ReportReviewed  = "report.reviewed"
)

// Event is one notification. It carries enough for the consumer to render a
// message without querying the primary database; fields that do not apply
// to Type are left empty.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	UserID     uint64    `json:"user_id"`
	Email      string    `json:"email,omitempty"`
	Name       string    `json:"name,omitempty"`
	ReportID   uint64    `json:"report_id,omitempty"`
	Location   string    `json:"location,omitempty"`
	Status     string    `json:"status,omitempty"`
	ReviewerID uint64    `json:"reviewer_id,omitempty"`
	Note       string    `json:"note,omitempty"`
}

// Line renders ev as a single human-readable log line, newline included.
func (ev Event) Line() string {
	ts := ev.OccurredAt.UTC().Format(time.RFC3339)
	var msg string
	switch ev.Type {
	case UserRegistered:
		msg = fmt.Sprintf("Welcome email | user_id=%d | name=%q | email=%s", ev.UserID, ev.Name, ev.Email)
	case ReportSubmitted:
		msg = fmt.Sprintf("Report submitted | report_id=%d | user_id=%d | location=%q", ev.ReportID, ev.UserID, ev.Location)
	case ReportReviewed:
		msg = fmt.Sprintf("Report %s | report_id=%d | user_id=%d | reviewer_id=%d | note=%q",
			ev.Status, ev.ReportID, ev.UserID, ev.ReviewerID, ev.Note)
	default:
		msg = fmt.Sprintf("Unknown event %q | user_id=%d", ev.Type, ev.UserID)
	}
	return "[" + ts + "] " + strings.ReplaceAll(msg, "\n", " ") + "\n"
}
