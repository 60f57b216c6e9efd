package main

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// auditLog persists every observed fabric notification to a local
// SQLite file, for offline inspection: this keeps the full history
// instead of only the current screen.
type auditLog struct {
	db *sql.DB
}

// openAuditLog opens (creating if necessary) a SQLite database at path
// and ensures its schema exists.
func openAuditLog(path string) (*auditLog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS observations (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			observed_at TEXT    NOT NULL,
			path        TEXT    NOT NULL,
			unit        TEXT    NOT NULL,
			status      TEXT    NOT NULL,
			message_id  TEXT    NOT NULL,
			payload_len INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &auditLog{db: db}, nil
}

// Record inserts one observed notification.
func (a *auditLog) Record(path, unit, status, messageID string, payloadLen int) error {
	_, err := a.db.Exec(
		`INSERT INTO observations (observed_at, path, unit, status, message_id, payload_len) VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), path, unit, status, messageID, payloadLen,
	)
	return err
}

// Close releases the underlying database handle.
func (a *auditLog) Close() error {
	return a.db.Close()
}
