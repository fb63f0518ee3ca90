// Package queue defines the auth audit events exchanged over the message
// broker and the consumer that records them.
package queue

import "time"

// AuthEventsQueue is the durable queue carrying AuthEvent messages.
const AuthEventsQueue = "auth.events"

// Event types.
const (
	EventAccountCreated = "account.created"
	EventAccountLinked  = "account.linked"
	EventAccountLogin   = "account.login"
)

// AuthEvent is published after an external login resolved to an account.
// It carries enough for an audit trail without querying the database.
type AuthEvent struct {
	Type       string    `json:"type"`
	AccountID  string    `json:"account_id"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	Provider   string    `json:"provider"`
	OccurredAt time.Time `json:"occurred_at"`
}
