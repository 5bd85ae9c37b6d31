// Package repository provides data access for command history.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CommandRecord is one executed command as stored in the history table.
type CommandRecord struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"sessionId"`
	RoomID     string    `json:"roomId"`
	Command    string    `json:"command"`
	ExitCode   int       `json:"exitCode"`
	WorkingDir string    `json:"workingDir"`
	ExecutedAt time.Time `json:"executedAt"`
}

// HistoryRepository provides data access for the command_history table.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Insert stores a command record.
func (r *HistoryRepository) Insert(ctx context.Context, rec *CommandRecord) error {
	query := `
		INSERT INTO command_history (session_id, room_id, command, exit_code, working_dir, executed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		rec.SessionID,
		rec.RoomID,
		rec.Command,
		rec.ExitCode,
		rec.WorkingDir,
		rec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert command record: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// ListRecent returns the most recent command records, newest first.
func (r *HistoryRepository) ListRecent(ctx context.Context, limit int) ([]*CommandRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, session_id, room_id, command, exit_code, working_dir, executed_at
		FROM command_history
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list command history: %w", err)
	}
	defer rows.Close()

	var records []*CommandRecord
	for rows.Next() {
		rec := &CommandRecord{}
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.RoomID,
			&rec.Command,
			&rec.ExitCode,
			&rec.WorkingDir,
			&rec.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan command record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate command history: %w", err)
	}

	return records, nil
}

// ListBySession returns a session's command records, oldest first.
func (r *HistoryRepository) ListBySession(ctx context.Context, sessionID string) ([]*CommandRecord, error) {
	query := `
		SELECT id, session_id, room_id, command, exit_code, working_dir, executed_at
		FROM command_history
		WHERE session_id = ?
		ORDER BY executed_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session history: %w", err)
	}
	defer rows.Close()

	var records []*CommandRecord
	for rows.Next() {
		rec := &CommandRecord{}
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.RoomID,
			&rec.Command,
			&rec.ExitCode,
			&rec.WorkingDir,
			&rec.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan command record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session history: %w", err)
	}

	return records, nil
}
