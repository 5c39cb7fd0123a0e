// Package reportstore persists session transcripts and scored reports in
// SQLite so past analyses survive restarts and can be re-scored.
package reportstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oratia-labs/oratia-core/internal/config"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a session or report does not exist.
var ErrNotFound = errors.New("reportstore: not found")

// Session holds the immutable inputs of one analysis run. Issues and Metrics
// are stored as the JSON the pipeline produced.
type Session struct {
	SessionID       string
	Transcript      string
	DurationSeconds float64
	Issues          []byte
	Metrics         []byte
	CreatedAt       time.Time
}

// Report is one scored revision of a session.
type Report struct {
	ID        int64
	SessionID string
	Revision  int64
	Payload   []byte
	Score     float64
	CreatedAt time.Time
}

// Store wraps the SQLite-backed report history.
type Store struct {
	db    *sql.DB
	cfg   config.ReportStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the report store according to config.
func Open(ctx context.Context, cfg config.ReportStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("report store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("report store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    transcript TEXT NOT NULL,
    duration_seconds REAL NOT NULL,
    issues BLOB,
    metrics BLOB,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    revision INTEGER NOT NULL,
    payload BLOB NOT NULL,
    score REAL NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_reports_session_revision ON reports(session_id, revision);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSession upserts the analysis inputs for a session.
func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, transcript, duration_seconds, issues, metrics, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   transcript=excluded.transcript,
		   duration_seconds=excluded.duration_seconds,
		   issues=excluded.issues,
		   metrics=excluded.metrics`,
		sess.SessionID, sess.Transcript, sess.DurationSeconds, sess.Issues, sess.Metrics, sess.CreatedAt)
	return err
}

// GetSession loads the stored inputs for a session.
func (s *Store) GetSession(ctx context.Context, sessionID string) (Session, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return Session{}, ErrNotFound
	}
	var sess Session
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, transcript, duration_seconds, issues, metrics, created_at
		 FROM sessions WHERE session_id = ?`, sessionID).
		Scan(&sess.SessionID, &sess.Transcript, &sess.DurationSeconds, &sess.Issues, &sess.Metrics, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		sess.CreatedAt = ts
	}
	return sess, nil
}

// SaveReport appends a scored revision for a session.
func (s *Store) SaveReport(ctx context.Context, r Report) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports(session_id, revision, payload, score, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		r.SessionID, r.Revision, r.Payload, r.Score, r.CreatedAt)
	return err
}

// LatestReport returns the highest-revision report for a session.
func (s *Store) LatestReport(ctx context.Context, sessionID string) (Report, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return Report{}, ErrNotFound
	}
	var r Report
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, revision, payload, score, created_at
		 FROM reports WHERE session_id = ? ORDER BY revision DESC LIMIT 1`, sessionID).
		Scan(&r.ID, &r.SessionID, &r.Revision, &r.Payload, &r.Score, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
		r.CreatedAt = ts
	}
	return r, nil
}

// ListReports retrieves up to limit revisions for a session ordered ascending.
func (s *Store) ListReports(ctx context.Context, sessionID string, limit int) ([]Report, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, revision, payload, score, created_at
		 FROM reports WHERE session_id = ? ORDER BY revision ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var r Report
		var created string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Revision, &r.Payload, &r.Score, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			r.CreatedAt = ts
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionMode != "persistent" && s.cfg.RetentionMode != "session" {
		// nothing to prune
		return tx.Commit()
	}
	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM reports WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
			SELECT session_id FROM sessions ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
