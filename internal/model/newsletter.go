package model

import "time"

// Subscriber mirrors the `subscribers` table. Token is an opaque uuid used
// in the one-click unsubscribe link, issued at subscription time.
type Subscriber struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Donation mirrors the `donations` table. Reference is an opaque uuid the
// donor can quote; amounts are recorded in cents, never floats.
type Donation struct {
	ID          uint64    `json:"id"`
	DonorName   string    `json:"donor_name"`
	Email       string    `json:"email"`
	AmountCents uint32    `json:"amount_cents"`
	Message     string    `json:"message,omitempty"`
	Reference   string    `json:"reference"`
	CreatedAt   time.Time `json:"created_at"`
}
