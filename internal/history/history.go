package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"mentora/internal/models"
)

// ErrSessionNotFound is returned when a turn is appended to a session that
// does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Store persists ordered chat turns per session.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts one turn at the end of the session's history.
func (s *Store) Append(ctx context.Context, sessionID string, role models.Role, content string) (*models.ChatTurn, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("session_id is required")
	}
	if content == "" {
		return nil, errors.New("content cannot be empty")
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM sessions WHERE session_id = ?)`, sessionID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("verify session: %w", err)
	}
	if !exists {
		return nil, ErrSessionNotFound
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_history (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, role, content, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert turn: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("turn id: %w", err)
	}
	return &models.ChatTurn{
		ID:        id,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}, nil
}

// Fetch returns the session's turns in append order, oldest first. When
// limit > 0 only the most recent limit turns are returned, still oldest
// first.
func (s *Store) Fetch(ctx context.Context, sessionID string, limit int) ([]models.ChatTurn, error) {
	query := `SELECT id, session_id, role, content, created_at FROM chat_history WHERE session_id = ? ORDER BY id ASC`
	args := []any{sessionID}
	if limit > 0 {
		// Take the newest rows, then flip back to append order.
		query = `SELECT id, session_id, role, content, created_at FROM (
			SELECT id, session_id, role, content, created_at FROM chat_history
			WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) recent ORDER BY id ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []models.ChatTurn
	for rows.Next() {
		var t models.ChatTurn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Count reports the number of turns recorded for a session.
func (s *Store) Count(ctx context.Context, sessionID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_history WHERE session_id = ?`, sessionID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count turns: %w", err)
	}
	return n, nil
}
