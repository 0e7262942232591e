// Package audit is a supplementary, append-only record of save, join/leave,
// and image-job events. It is never the source of truth for document
// content — that is always the plain-text file the Document Store owns.
package audit

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "github.com/mattn/go-sqlite3"

	"github.com/inkdrift/scriptorium/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var log = logger.With("component", "audit")

// Kind enumerates the audit event kinds.
type Kind string

const (
	KindSave  Kind = "save"
	KindJoin  Kind = "join"
	KindLeave Kind = "leave"
	KindImage Kind = "image"
)

// Log is a SQLite-backed append-only audit trail.
type Log struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and applies
// pending goose migrations.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Log{db: db}, nil
}

// Close closes the underlying database handle.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// RecordSave logs a document save with its byte size. The Persistence
// Scheduler calls it when it schedules a save, so a row does not confirm that
// the write succeeded. Fire-and-forget: an insert failure is logged, never
// returned, and never disturbs the save it's recording.
func (l *Log) RecordSave(byteSize int) {
	l.insert(KindSave, "document", fmt.Sprintf("%d bytes", byteSize))
}

// RecordJoin logs a session join.
func (l *Log) RecordJoin(userID string) {
	l.insert(KindJoin, userID, "")
}

// RecordLeave logs a session departure.
func (l *Log) RecordLeave(userID string) {
	l.insert(KindLeave, userID, "")
}

// RecordImageOutcome logs an image processing outcome, success or failure.
func (l *Log) RecordImageOutcome(placeholderID string, err error) {
	detail := "ok"
	if err != nil {
		detail = err.Error()
	}
	l.insert(KindImage, placeholderID, detail)
}

func (l *Log) insert(kind Kind, subjectID, detail string) {
	if l == nil || l.db == nil {
		return
	}
	go func() {
		_, err := l.db.Exec(
			"INSERT INTO audit_events (kind, subject_id, detail, occurred_at) VALUES (?, ?, ?, ?)",
			string(kind), subjectID, detail, time.Now().Unix(),
		)
		if err != nil {
			log.Field("kind", string(kind)).Error("audit insert failed: %v", err)
		}
	}()
}

// Count returns the total number of recorded events, used by tests.
func (l *Log) Count() (int, error) {
	if l == nil || l.db == nil {
		return 0, nil
	}
	var count int
	if err := l.db.QueryRow("SELECT COUNT(*) FROM audit_events").Scan(&count); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}
