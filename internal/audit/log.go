// Package audit keeps an in-process record of notifications and
// interaction resolutions for the lifetime of the host process. It is
// not durable storage — the store is ":memory:" and vanishes with the
// process — it exists to answer "what did we already tell this client"
// and "was this interaction ever resolved" within one run.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kandev/kaiak/pkg/jsonrpc"
)

// Log is an in-memory sqlite-backed audit trail of outbound
// notifications and resolved interactions.
type Log struct {
	db *sqlx.DB
}

// Open creates a fresh in-memory audit database.
func Open() (*Log, error) {
	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	l := &Log{db: db}
	if err := l.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Log) initSchema() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS notifications (
			message_id  TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL,
			request_id  TEXT,
			kind        TEXT NOT NULL,
			sequence    INTEGER NOT NULL,
			timestamp   TEXT NOT NULL,
			payload     TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_notifications_session
			ON notifications(session_id, sequence);

		CREATE TABLE IF NOT EXISTS interactions (
			interaction_id TEXT PRIMARY KEY,
			session_id     TEXT NOT NULL,
			kind           TEXT NOT NULL,
			resolved_at    TEXT NOT NULL,
			outcome        TEXT
		);
	`
	_, err := l.db.Exec(schema)
	return err
}

// RecordNotification appends one outbound notification to the trail.
// Failures are the caller's to log, never fatal to the request they're
// recording.
func (l *Log) RecordNotification(ctx context.Context, n jsonrpc.OutboundNotification) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO notifications (message_id, session_id, request_id, kind, sequence, timestamp, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.MessageID, n.SessionID, n.RequestID, string(n.Kind), n.Sequence, n.Timestamp, string(n.Payload))
	return err
}

// RecordInteractionResolution stores the resolution of a pending
// interaction (tool-confirmation or elicitation), replacing any earlier
// resolution recorded for the same interaction id.
func (l *Log) RecordInteractionResolution(ctx context.Context, sessionID, interactionID, kind, outcome string) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO interactions (interaction_id, session_id, kind, resolved_at, outcome)
		VALUES (?, ?, ?, ?, ?)`,
		interactionID, sessionID, kind, time.Now().UTC().Format(time.RFC3339), outcome)
	return err
}

// NotificationRow is one row returned by ForSession.
type NotificationRow struct {
	MessageID string `db:"message_id"`
	SessionID string `db:"session_id"`
	RequestID string `db:"request_id"`
	Kind      string `db:"kind"`
	Sequence  int64  `db:"sequence"`
	Timestamp string `db:"timestamp"`
	Payload   string `db:"payload"`
}

// ForSession returns every recorded notification for sessionID in
// sequence order.
func (l *Log) ForSession(ctx context.Context, sessionID string) ([]NotificationRow, error) {
	var rows []NotificationRow
	err := l.db.SelectContext(ctx, &rows, `
		SELECT message_id, session_id, COALESCE(request_id, '') AS request_id, kind, sequence, timestamp, COALESCE(payload, '') AS payload
		FROM notifications
		WHERE session_id = ?
		ORDER BY sequence ASC`, sessionID)
	return rows, err
}

// Close closes the underlying database handle.
func (l *Log) Close() error {
	return l.db.Close()
}
