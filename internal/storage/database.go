package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"mentora/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			dbCfg.Params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				username TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				password_hash TEXT NOT NULL,
				email TEXT NOT NULL,
				firm TEXT,
				unit TEXT,
				location TEXT,
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS user_preferences (
				username TEXT PRIMARY KEY,
				learning_goal TEXT,
				skills TEXT,
				difficulty TEXT NOT NULL,
				role TEXT NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY(username) REFERENCES users(username) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS sessions (
				session_id TEXT PRIMARY KEY,
				username TEXT NOT NULL,
				title TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(username) REFERENCES users(username) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS chat_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS user_tokens (
				token TEXT PRIMARY KEY,
				username TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				FOREIGN KEY(username) REFERENCES users(username) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(username)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_history_session ON chat_history(session_id)`,
			`CREATE INDEX IF NOT EXISTS idx_user_tokens_user ON user_tokens(username)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				username VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				password_hash VARCHAR(255) NOT NULL,
				email VARCHAR(255) NOT NULL,
				firm VARCHAR(255),
				unit VARCHAR(255),
				location VARCHAR(255),
				created_at DATETIME NOT NULL,
				PRIMARY KEY (username)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS user_preferences (
				username VARCHAR(255) NOT NULL,
				learning_goal TEXT,
				skills TEXT,
				difficulty VARCHAR(50) NOT NULL,
				role VARCHAR(100) NOT NULL,
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (username),
				CONSTRAINT fk_prefs_user FOREIGN KEY (username) REFERENCES users(username) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS sessions (
				session_id VARCHAR(64) NOT NULL,
				username VARCHAR(255) NOT NULL,
				title VARCHAR(255) NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (session_id),
				INDEX idx_sessions_user (username),
				CONSTRAINT fk_sessions_user FOREIGN KEY (username) REFERENCES users(username) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS chat_history (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				session_id VARCHAR(64) NOT NULL,
				role VARCHAR(50) NOT NULL,
				content MEDIUMTEXT NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_chat_history_session (session_id),
				CONSTRAINT fk_history_session FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS user_tokens (
				token VARCHAR(255) NOT NULL,
				username VARCHAR(255) NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				PRIMARY KEY (token),
				INDEX idx_user_tokens_user (username),
				CONSTRAINT fk_user_tokens_user FOREIGN KEY (username) REFERENCES users(username) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
