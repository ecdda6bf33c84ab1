package model

import "time"

// Event statuses form the approval workflow: hosts submit PENDING events,
// administrators move them to APPROVED or REJECTED. Edits by the host send
// an event back to PENDING.
const (
	EventPending  = "PENDING"
	EventApproved = "APPROVED"
	EventRejected = "REJECTED"
)

// Event mirrors the `events` table.
//
// Fields:
//
//	ID          – primary key.
//	HostID      – identities.id of the creating host.
//	Title       – short event title.
//	Description – free-form description.
//	Category    – coarse grouping used by the public catalogue filter.
//	Venue       – human-readable location.
//	StartsAt    – scheduled start (UTC).
//	EndsAt      – scheduled end (UTC).
//	Capacity    – maximum registrations; 0 means unlimited.
//	FeeCents    – entry fee in cents; 0 means free.
//	Status      – PENDING | APPROVED | REJECTED.
//	ReviewedBy  – administrator who decided (nil while pending).
//	ReviewNote  – optional note attached to the decision.
type Event struct {
	ID          uint64     `json:"id"`
	HostID      uint64     `json:"host_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Venue       string     `json:"venue"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      time.Time  `json:"ends_at"`
	Capacity    uint32     `json:"capacity"`
	FeeCents    uint32     `json:"fee_cents"`
	Status      string     `json:"status"`
	ReviewedBy  *uint64    `json:"reviewed_by,omitempty"`
	ReviewNote  string     `json:"review_note,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Registration links a participant to an event.
type Registration struct {
	ID            uint64    `json:"id"`
	EventID       uint64    `json:"event_id"`
	ParticipantID uint64    `json:"participant_id"`
	CreatedAt     time.Time `json:"created_at"`
}
