// Package tracking records playback sessions in a SQLite journal.
// Recording is best-effort: any database failure disables the journal
// with a warning and playback continues untouched.
package tracking

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Session identifies one playback run from open to close
type Session struct {
	ID            string
	Source        string
	Backend       string
	Device        string
	RequestedRate int
	GrantedRate   int
	StartedAt     time.Time
}

// Outcome carries the final counters of a finished session
type Outcome struct {
	BytesWritten int64
	Chunks       int64
	Underruns    int
	Duration     time.Duration
	Completed    bool
}

// Record is one stored session row
type Record struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    time.Time // zero when the session never finished
	Source        string
	Backend       string
	Device        string
	RequestedRate int
	GrantedRate   int
	BytesWritten  int64
	Chunks        int64
	Underruns     int
	Duration      time.Duration
	Completed     bool
}

// Journal writes playback sessions to the database
type Journal struct {
	db       *sql.DB
	disabled bool
}

// NewJournal creates a journal over an open database. A nil database
// yields a disabled journal whose methods are all no-ops.
func NewJournal(db *sql.DB) *Journal {
	return &Journal{
		db:       db,
		disabled: db == nil,
	}
}

// Begin records the start of a playback session and returns its handle.
// The handle is always usable, even when recording failed.
func (j *Journal) Begin(source, backend, device string, requestedRate, grantedRate int) *Session {
	session := &Session{
		ID:            uuid.New().String(),
		Source:        source,
		Backend:       backend,
		Device:        device,
		RequestedRate: requestedRate,
		GrantedRate:   grantedRate,
		StartedAt:     time.Now(),
	}

	if j.disabled {
		return session
	}

	_, err := j.db.Exec(
		`INSERT INTO playback_sessions (id, started_at, source, backend, device, requested_rate, granted_rate)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.StartedAt.UnixMilli(),
		session.Source,
		session.Backend,
		session.Device,
		session.RequestedRate,
		session.GrantedRate,
	)
	if err != nil {
		slog.Warn("session tracking failed to record start", "error", err, "session_id", session.ID)
		j.disabled = true
		return session
	}

	slog.Debug("session tracking recorded start",
		"session_id", session.ID,
		"source", session.Source,
		"backend", session.Backend,
		"granted_rate", session.GrantedRate)

	return session
}

// Finish records the outcome of a session started with Begin
func (j *Journal) Finish(session *Session, outcome Outcome) {
	if j.disabled || session == nil {
		return
	}

	_, err := j.db.Exec(
		`UPDATE playback_sessions
		 SET finished_at = ?, bytes_written = ?, chunks = ?, underruns = ?, duration_ms = ?, completed = ?
		 WHERE id = ?`,
		time.Now().UnixMilli(),
		outcome.BytesWritten,
		outcome.Chunks,
		outcome.Underruns,
		outcome.Duration.Milliseconds(),
		boolToInt(outcome.Completed),
		session.ID,
	)
	if err != nil {
		slog.Warn("session tracking failed to record outcome", "error", err, "session_id", session.ID)
		j.disabled = true
		return
	}

	slog.Debug("session tracking recorded outcome",
		"session_id", session.ID,
		"bytes_written", outcome.BytesWritten,
		"underruns", outcome.Underruns,
		"completed", outcome.Completed)
}

// Recent returns the most recently started sessions, newest first
func (j *Journal) Recent(limit int) ([]Record, error) {
	if j.disabled {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.Query(
		`SELECT id, started_at, finished_at, source, backend, device,
		        requested_rate, granted_rate, bytes_written, chunks,
		        underruns, duration_ms, completed
		 FROM playback_sessions
		 ORDER BY started_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec        Record
			startedAt  int64
			finishedAt sql.NullInt64
			durationMs int64
			completed  int
		)
		err := rows.Scan(&rec.ID, &startedAt, &finishedAt, &rec.Source, &rec.Backend,
			&rec.Device, &rec.RequestedRate, &rec.GrantedRate, &rec.BytesWritten,
			&rec.Chunks, &rec.Underruns, &durationMs, &completed)
		if err != nil {
			return nil, err
		}

		rec.StartedAt = time.UnixMilli(startedAt)
		if finishedAt.Valid {
			rec.FinishedAt = time.UnixMilli(finishedAt.Int64)
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.Completed = completed != 0

		records = append(records, rec)
	}

	return records, rows.Err()
}

// Disabled reports whether the journal has shut itself off
func (j *Journal) Disabled() bool {
	return j.disabled
}

// Close closes the underlying database
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
