package models

import "time"

// User is a provisioned account. Rows are created out of band (cmd/seed)
// and are read-only at runtime.
type User struct {
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Email        string    `json:"email"`
	Firm         string    `json:"firm,omitempty"`
	Unit         string    `json:"unit,omitempty"`
	Location     string    `json:"location,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Preferences holds the mentoring context saved per user. Role selects the
// prompt profile; the remaining fields feed the system context.
type Preferences struct {
	Username     string    `json:"username"`
	LearningGoal string    `json:"learning_goal,omitempty"`
	Skills       []string  `json:"skills"`
	Difficulty   string    `json:"difficulty"`
	Role         string    `json:"role"`
	UpdatedAt    time.Time `json:"updated_at"`
}
