package reportstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/oratia-labs/oratia-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.ReportStoreConfig{RetentionMode: "ephemeral"}
	rs, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })

	if err := rs.SaveSession(ctx, Session{SessionID: "s1", Transcript: "hello"}); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if _, err := rs.GetSession(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.ReportStoreConfig{Path: filepath.Join(tmp, "reports.db"), RetentionMode: "session"}
	rs, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open report store: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })

	sess := Session{
		SessionID:       "session-123",
		Transcript:      "the quick brown fox",
		DurationSeconds: 4.2,
		Issues:          []byte(`[]`),
		Metrics:         []byte(`{"words":4}`),
	}
	if err := rs.SaveSession(context.Background(), sess); err != nil {
		t.Fatalf("save session: %v", err)
	}

	got, err := rs.GetSession(context.Background(), "session-123")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Transcript != sess.Transcript || got.DurationSeconds != sess.DurationSeconds {
		t.Fatalf("unexpected session: %+v", got)
	}

	for rev := int64(1); rev <= 2; rev++ {
		if err := rs.SaveReport(context.Background(), Report{
			SessionID: "session-123",
			Revision:  rev,
			Payload:   []byte(`{"composite_score":90}`),
			Score:     90,
		}); err != nil {
			t.Fatalf("save report rev %d: %v", rev, err)
		}
	}

	latest, err := rs.LatestReport(context.Background(), "session-123")
	if err != nil {
		t.Fatalf("latest report: %v", err)
	}
	if latest.Revision != 2 {
		t.Fatalf("expected revision 2, got %d", latest.Revision)
	}

	all, err := rs.ListReports(context.Background(), "session-123", 10)
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(all))
	}
}

func TestSaveSessionUpsert(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.ReportStoreConfig{Path: filepath.Join(tmp, "reports.db"), RetentionMode: "session"}
	rs, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open report store: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })

	if err := rs.SaveSession(context.Background(), Session{SessionID: "s1", Transcript: "first"}); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := rs.SaveSession(context.Background(), Session{SessionID: "s1", Transcript: "second"}); err != nil {
		t.Fatalf("upsert session: %v", err)
	}
	got, err := rs.GetSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Transcript != "second" {
		t.Fatalf("expected upserted transcript, got %q", got.Transcript)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.ReportStoreConfig{Path: filepath.Join(tmp, "reports.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	rs, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open report store: %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })

	rs.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := rs.SaveSession(context.Background(), Session{SessionID: "old-session", Transcript: "old"}); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := rs.SaveReport(context.Background(), Report{SessionID: "old-session", Revision: 1, Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("save report: %v", err)
	}

	rs.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := rs.SaveSession(context.Background(), Session{SessionID: "new-session", Transcript: "new"}); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := rs.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	if _, err := rs.GetSession(context.Background(), "old-session"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old session pruned, got %v", err)
	}
	if _, err := rs.GetSession(context.Background(), "new-session"); err != nil {
		t.Fatalf("expected new session kept: %v", err)
	}
}
