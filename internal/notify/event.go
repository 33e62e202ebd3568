// Package notify pushes events about persisted mail to subscribers.
// Delivery is best effort: nothing here can fail a pipeline unit.
package notify

import "github.com/mailstash/mailstash/internal/message"

// Event is the envelope every subscriber-bound message uses.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ErrorPayload carries the message of an "error" event.
type ErrorPayload struct {
	Msg string `json:"msg"`
}

// NewMailEvent wraps a persisted record. The record's JSON tags keep
// the storage ID off the wire; the timestamp serializes as RFC 3339.
func NewMailEvent(rec *message.Record) Event {
	return Event{Type: "new_mail", Payload: rec}
}

// ErrorEvent wraps msg for delivery to a client before disconnecting it.
func ErrorEvent(msg string) Event {
	return Event{Type: "error", Payload: ErrorPayload{Msg: msg}}
}
