// Package notify carries notification intents out of the registration core.
//
// The core only builds an Intent and hands it to a Dispatcher. Dispatchers
// must return without waiting for delivery; delivery failures are logged by
// the queue workers and never reach the caller.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
)

// ErrQueueFull is returned when an intent cannot be buffered.
var ErrQueueFull = errors.New("notification queue is full")

// Kind names the message an intent asks for.
type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindPending      Kind = "pending"
	KindRejection    Kind = "rejection"
	KindCancellation Kind = "cancellation"
	KindReminder     Kind = "reminder"
)

// Intent is a fully formed request to notify one attendee.
type Intent struct {
	Kind           Kind      `json:"kind"`
	RegistrationID string    `json:"registration_id"`
	EventID        string    `json:"event_id"`
	EventName      string    `json:"event_name"`
	StartsAt       time.Time `json:"starts_at"`
	RecipientEmail string    `json:"recipient_email"`
	RecipientName  string    `json:"recipient_name"`
	Reason         string    `json:"reason,omitempty"`
}

// Dispatcher accepts intents without blocking on delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, intent Intent) error
}

// Message is a rendered email.
type Message struct {
	To        string
	ToName    string
	Subject   string
	PlainText string
	HTML      string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Render turns an intent into the email sent for it.
func Render(in Intent) (Message, error) {
	if in.RecipientEmail == "" {
		return Message{}, fmt.Errorf("render %s: no recipient", in.Kind)
	}

	var subject, body string
	switch in.Kind {
	case KindConfirmation:
		subject = fmt.Sprintf("You're registered: %s", in.EventName)
		body = fmt.Sprintf("Your registration for %s is confirmed.", in.EventName)
	case KindPending:
		subject = fmt.Sprintf("Registration received: %s", in.EventName)
		body = fmt.Sprintf("Your registration for %s is awaiting approval by the organizer.", in.EventName)
	case KindRejection:
		subject = fmt.Sprintf("Registration update: %s", in.EventName)
		body = fmt.Sprintf("Your registration for %s was not approved.\n\nReason: %s", in.EventName, in.Reason)
	case KindCancellation:
		subject = fmt.Sprintf("Registration cancelled: %s", in.EventName)
		body = fmt.Sprintf("Your registration for %s has been cancelled and your seat released.", in.EventName)
	case KindReminder:
		subject = fmt.Sprintf("Reminder: %s", in.EventName)
		body = fmt.Sprintf("%s starts %s.", in.EventName, in.StartsAt.Format("Mon, 02 Jan 2006 15:04 MST"))
	default:
		return Message{}, fmt.Errorf("render: unknown kind %q", in.Kind)
	}

	greeting := "Hello"
	if name := strings.TrimSpace(in.RecipientName); name != "" {
		greeting = "Hello " + name
	}
	plain := fmt.Sprintf("%s,\n\n%s\n\nRegistration: %s", greeting, body, in.RegistrationID)

	return Message{
		To:        in.RecipientEmail,
		ToName:    in.RecipientName,
		Subject:   subject,
		PlainText: plain,
		HTML:      "<p>" + strings.ReplaceAll(html.EscapeString(plain), "\n", "<br>") + "</p>",
	}, nil
}
