// Package journal persists a record of every capture span to SQLite so
// field operators can audit what a unit recorded after the fact. One row
// covers one START..STOP span.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Status is the lifecycle of a recorded span.
type Status string

const (
	// StatusRecording marks a span whose gate is still open.
	StatusRecording Status = "recording"
	// StatusCompleted marks a span closed by STOP or CLOSE.
	StatusCompleted Status = "completed"
	// StatusAborted marks a span ended by a fatal error or a crash; rows
	// still marked recording at open time are folded into this state.
	StatusAborted Status = "aborted"
)

// Span is one capture span row.
type Span struct {
	ID         int64
	SessionID  string
	SpanIndex  int
	Preset     string
	ExposureUS int64
	StartedAt  time.Time
	EndedAt    time.Time
	Frames     uint64
	Bytes      uint64
	Restarts   int
	Status     Status
}

// Journal is the capture-span store backed by SQLite.
type Journal struct {
	db   *sql.DB
	path string
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS spans (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  TEXT    NOT NULL,
    span_index  INTEGER NOT NULL,
    preset      TEXT    NOT NULL,
    exposure_us INTEGER NOT NULL DEFAULT 0,
    started_at  TEXT    NOT NULL,
    ended_at    TEXT,
    frames      INTEGER NOT NULL DEFAULT 0,
    bytes       INTEGER NOT NULL DEFAULT 0,
    restarts    INTEGER NOT NULL DEFAULT 0,
    status      TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_spans_session ON spans(session_id);
CREATE INDEX IF NOT EXISTS idx_spans_started ON spans(started_at);
`

// Open initializes or connects to the journal database, applies the
// schema, and folds spans left open by a crash into the aborted state.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	j := &Journal{db: db, path: path}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	if err := j.foldCrashedSpans(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// foldCrashedSpans marks rows never ended by a clean shutdown as aborted.
func (j *Journal) foldCrashedSpans(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE spans SET status = ?, ended_at = COALESCE(ended_at, started_at) WHERE status = ?`,
		StatusAborted, StatusRecording)
	if err != nil {
		return fmt.Errorf("fold crashed spans: %w", err)
	}
	return nil
}

// BeginSpan inserts a recording row and returns its id.
func (j *Journal) BeginSpan(ctx context.Context, sessionID string, spanIndex int, preset string, exposureUS int64) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO spans (session_id, span_index, preset, exposure_us, started_at, status)
         VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, spanIndex, preset, exposureUS,
		time.Now().UTC().Format(time.RFC3339Nano), StatusRecording)
	if err != nil {
		return 0, fmt.Errorf("insert span: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("span insert id: %w", err)
	}
	return id, nil
}

// EndSpan finalizes a recording row with its tallies and closing status.
func (j *Journal) EndSpan(ctx context.Context, id int64, frames, bytes uint64, restarts int, status Status) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE spans SET ended_at = ?, frames = ?, bytes = ?, restarts = ?, status = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		frames, bytes, restarts, status, id)
	if err != nil {
		return fmt.Errorf("finalize span %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize span %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("finalize span %d: no such row", id)
	}
	return nil
}

const spanColumns = "id, session_id, span_index, preset, exposure_us, started_at, ended_at, frames, bytes, restarts, status"

// Recent returns up to limit spans, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Span, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+spanColumns+` FROM spans ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query spans: %w", err)
	}
	defer rows.Close()

	var spans []Span
	for rows.Next() {
		span, scanErr := scanSpan(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		spans = append(spans, span)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spans: %w", err)
	}
	return spans, nil
}

// BySession returns every span of one session in capture order.
func (j *Journal) BySession(ctx context.Context, sessionID string) ([]Span, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+spanColumns+` FROM spans WHERE session_id = ? ORDER BY span_index ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session spans: %w", err)
	}
	defer rows.Close()

	var spans []Span
	for rows.Next() {
		span, scanErr := scanSpan(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		spans = append(spans, span)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session spans: %w", err)
	}
	return spans, nil
}

func scanSpan(scanner interface{ Scan(dest ...any) error }) (Span, error) {
	var (
		span      Span
		statusStr string
		startRaw  string
		endRaw    sql.NullString
	)
	if err := scanner.Scan(
		&span.ID,
		&span.SessionID,
		&span.SpanIndex,
		&span.Preset,
		&span.ExposureUS,
		&startRaw,
		&endRaw,
		&span.Frames,
		&span.Bytes,
		&span.Restarts,
		&statusStr,
	); err != nil {
		return Span{}, fmt.Errorf("scan span: %w", err)
	}

	span.Status = Status(statusStr)
	if t, err := time.Parse(time.RFC3339Nano, startRaw); err == nil {
		span.StartedAt = t
	}
	if endRaw.Valid {
		if t, err := time.Parse(time.RFC3339Nano, endRaw.String); err == nil {
			span.EndedAt = t
		}
	}
	return span, nil
}
