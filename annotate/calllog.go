package annotate

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const createBatchEventsSQL = `
CREATE TABLE IF NOT EXISTS batch_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at_utc TEXT NOT NULL,
	run_id TEXT NOT NULL,
	source TEXT NOT NULL,
	batch_index INTEGER NOT NULL,
	stage TEXT NOT NULL,
	status TEXT NOT NULL,
	message TEXT NOT NULL,
	model TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_batch_events_run ON batch_events(run_id);
`

const insertBatchEventSQL = `
INSERT INTO batch_events (created_at_utc, run_id, source, batch_index, stage, status, message, model)
VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`

const maxCallLogMessageLen = 300

// CallLog records batch lifecycle events in a SQLite file for post-run
// inspection. Strictly observational: write failures are swallowed so the
// log can never affect annotation results. All methods are nil-safe, so a
// pipeline without a log database configured just passes a nil *CallLog.
type CallLog struct {
	mu    sync.Mutex
	db    *sql.DB
	runID string
	model string
}

// OpenCallLog opens (creating if needed) the call-log database and ensures
// its schema.
func OpenCallLog(path, runID, model string) (*CallLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create call log directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open call log db: %w", err)
	}
	if _, err := db.Exec(createBatchEventsSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure call log schema: %w", err)
	}
	return &CallLog{db: db, runID: runID, model: model}, nil
}

// Write appends one event row. Safe for concurrent batch workers.
func (l *CallLog) Write(source string, batchIndex int, stage, status, message string) {
	if l == nil || l.db == nil {
		return
	}
	if status == "" {
		status = "info"
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.db.Exec(
		insertBatchEventSQL,
		time.Now().UTC().Format(time.RFC3339),
		l.runID,
		strings.TrimSpace(source),
		batchIndex,
		strings.TrimSpace(stage),
		status,
		shortEventText(message, maxCallLogMessageLen),
		l.model,
	)
}

// Count reports how many events the current run has written so far.
func (l *CallLog) Count() (int, error) {
	if l == nil || l.db == nil {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM batch_events WHERE run_id = ?`, l.runID).Scan(&n)
	return n, err
}

func (l *CallLog) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func shortEventText(text string, maxLen int) string {
	clean := strings.Join(strings.Fields(strings.TrimSpace(text)), " ")
	if maxLen <= 0 || len(clean) <= maxLen {
		return clean
	}
	if maxLen <= 3 {
		return clean[:maxLen]
	}
	return clean[:maxLen-3] + "..."
}
