package models

import "time"

// Expense represents a single spending record. Date is an ISO-8601
// calendar date (YYYY-MM-DD) stored as text, so range filters are a
// plain lexical comparison. OwnerID is nil for rows created before
// accounts existed.
type Expense struct {
	ID          int64   `json:"id"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
	OwnerID     *int64  `json:"owner_id,omitempty"`
}

// User represents a registered account. Email is optional.
type User struct {
	ID           int64   `json:"id"`
	Nickname     string  `json:"nickname"`
	Email        *string `json:"email,omitempty"`
	PasswordHash string  `json:"-"`
	CreatedAt    string  `json:"created_at"`
}

// Session represents a server-side login session.
type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
