package models

import "time"

// Session is one resumable conversation thread owned by a single user.
// Sessions have no expiry and no closed state.
type Session struct {
	ID        string    `json:"session_id"`
	Username  string    `json:"username"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
