package credstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"mentora/internal/models"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultRole       = "default"
	defaultDifficulty = "medium"
)

// Store answers credential and profile lookups against the users tables.
// It never creates or deletes accounts at runtime; provisioning happens
// out of band through CreateUser (see cmd/seed).
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Verify reports whether the username/password pair is valid. Unknown users
// and wrong passwords are indistinguishable to the caller. The comparison is
// exact: case variants or padded passwords do not match.
func (s *Store) Verify(ctx context.Context, username, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, nil
	}
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE username = ?`, username,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}

// GetUser returns the account profile without its credential hash exposed to
// JSON encoders.
func (s *Store) GetUser(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	var firm, unit, location sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT username, name, password_hash, email, firm, unit, location, created_at
		 FROM users WHERE username = ?`, username,
	).Scan(&u.Username, &u.Name, &u.PasswordHash, &u.Email, &firm, &unit, &location, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	u.Firm = firm.String
	u.Unit = unit.String
	u.Location = location.String
	return &u, nil
}

// CreateUser provisions an account with a bcrypt credential hash.
func (s *Store) CreateUser(ctx context.Context, user models.User, password string) error {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" || password == "" {
		return errors.New("username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (username, name, password_hash, email, firm, unit, location, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Username, user.Name, string(hash), user.Email, user.Firm, user.Unit, user.Location, now,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Preferences returns the stored mentoring preferences for a user, filling
// role and difficulty defaults when the user has never saved any.
func (s *Store) Preferences(ctx context.Context, username string) (*models.Preferences, error) {
	prefs := &models.Preferences{
		Username:   username,
		Role:       defaultRole,
		Difficulty: defaultDifficulty,
	}
	var goal, skillsJSON sql.NullString
	var difficulty, role string
	err := s.db.QueryRowContext(ctx,
		`SELECT learning_goal, skills, difficulty, role, updated_at
		 FROM user_preferences WHERE username = ?`, username,
	).Scan(&goal, &skillsJSON, &difficulty, &role, &prefs.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return prefs, nil
		}
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	prefs.LearningGoal = goal.String
	if difficulty != "" {
		prefs.Difficulty = difficulty
	}
	if role != "" {
		prefs.Role = role
	}
	if skillsJSON.Valid && skillsJSON.String != "" {
		if err := json.Unmarshal([]byte(skillsJSON.String), &prefs.Skills); err != nil {
			return nil, fmt.Errorf("decode skills: %w", err)
		}
	}
	return prefs, nil
}

// SavePreferences upserts the mentoring preferences for a user.
func (s *Store) SavePreferences(ctx context.Context, prefs models.Preferences) error {
	prefs.Username = strings.TrimSpace(prefs.Username)
	if prefs.Username == "" {
		return errors.New("username is required")
	}
	if prefs.Role == "" {
		prefs.Role = defaultRole
	}
	if prefs.Difficulty == "" {
		prefs.Difficulty = defaultDifficulty
	}
	skillsJSON, err := json.Marshal(prefs.Skills)
	if err != nil {
		return fmt.Errorf("encode skills: %w", err)
	}
	// Insert-then-update keeps the upsert portable across sqlite and mysql.
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_preferences (username, learning_goal, skills, difficulty, role, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		prefs.Username, prefs.LearningGoal, string(skillsJSON), prefs.Difficulty, prefs.Role, now,
	)
	if err == nil {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE user_preferences
		 SET learning_goal = ?, skills = ?, difficulty = ?, role = ?, updated_at = ?
		 WHERE username = ?`,
		prefs.LearningGoal, string(skillsJSON), prefs.Difficulty, prefs.Role, now, prefs.Username,
	)
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}
