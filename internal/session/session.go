package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mentora/internal/models"

	"github.com/google/uuid"
)

// Manager decides whether a request resumes an existing session or starts a
// new one. Sessions have a single state, open; nothing here closes them.
type Manager struct {
	db *sql.DB
}

func New(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// Resolve returns the session unchanged when sessionID exists and belongs to
// username. Any other input (empty, unknown, or owned by someone else) mints
// a fresh session. Concurrent resolves for the same missing id may each mint
// their own session; creation is rare and not deduplicated.
func (m *Manager) Resolve(ctx context.Context, username, sessionID string) (*models.Session, bool, error) {
	if strings.TrimSpace(username) == "" {
		return nil, false, errors.New("username is required")
	}
	if sessionID != "" {
		existing, err := m.Get(ctx, username, sessionID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, err
		}
	}
	created, err := m.create(ctx, username, "")
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// Start mints a new session with the given title regardless of any existing
// session id.
func (m *Manager) Start(ctx context.Context, username, title string) (*models.Session, error) {
	if strings.TrimSpace(username) == "" {
		return nil, errors.New("username is required")
	}
	return m.create(ctx, username, title)
}

// Get returns the session only when it belongs to username; otherwise
// sql.ErrNoRows.
func (m *Manager) Get(ctx context.Context, username, sessionID string) (*models.Session, error) {
	var se models.Session
	err := m.db.QueryRowContext(ctx,
		`SELECT session_id, username, title, created_at FROM sessions WHERE session_id = ? AND username = ?`,
		sessionID, username,
	).Scan(&se.ID, &se.Username, &se.Title, &se.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &se, nil
}

// List returns the user's sessions, newest first.
func (m *Manager) List(ctx context.Context, username string) ([]models.Session, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT session_id, username, title, created_at FROM sessions WHERE username = ? ORDER BY created_at DESC`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var se models.Session
		if err := rows.Scan(&se.ID, &se.Username, &se.Title, &se.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, se)
	}
	return sessions, rows.Err()
}

func (m *Manager) create(ctx context.Context, username, title string) (*models.Session, error) {
	now := time.Now().UTC()
	if title == "" {
		title = "Session_" + now.Format("20060102150405")
	}
	se := &models.Session{
		ID:        uuid.NewString(),
		Username:  username,
		Title:     title,
		CreatedAt: now,
	}
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, username, title, created_at) VALUES (?, ?, ?, ?)`,
		se.ID, se.Username, se.Title, se.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return se, nil
}
