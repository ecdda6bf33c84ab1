// Package queue defines message payloads exchanged over the message broker
// and the background consumer that delivers them.
package queue

// Email kinds understood by the consumer. Each kind selects a template in
// internal/mail.
const (
	EmailVerification  = "verification"
	EmailPasswordReset = "password_reset"
	EmailEventDecision = "event_decision"
)

// EmailEvent is published whenever the API wants a mail sent: account
// verification, password reset, or an event approval/rejection notice.
// It carries everything the consumer needs so delivery never queries the
// primary database.
type EmailEvent struct {
	Kind       string `json:"kind"`
	To         string `json:"to"`
	Name       string `json:"name"`
	Role       string `json:"role,omitempty"`
	Token      string `json:"token,omitempty"`
	EventTitle string `json:"event_title,omitempty"`
	Decision   string `json:"decision,omitempty"`
	Note       string `json:"note,omitempty"`
	QueuedAt   string `json:"queued_at"`
}
