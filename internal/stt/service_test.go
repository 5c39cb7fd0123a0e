package stt

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/oratia-labs/oratia-core/internal/config"
)

func TestPruneStaleDropsIdleSessions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewService(context.Background(), config.STTConfig{Mode: "mock"}, nil, NewMockRecognizer(), logger)

	now := time.Now()
	s.sessions["idle"] = &sessionState{Buffer: make([]byte, 320), LastFrame: now.Add(-5 * time.Minute)}
	s.sessions["live"] = &sessionState{Buffer: make([]byte, 320), LastFrame: now}

	dropped := s.pruneStale(now.Add(-sessionIdleTimeout))
	if len(dropped) != 1 || dropped[0] != "idle" {
		t.Fatalf("expected only the idle session dropped, got %v", dropped)
	}
	if _, ok := s.sessions["live"]; !ok {
		t.Fatal("live session must be kept")
	}
	if _, ok := s.sessions["idle"]; ok {
		t.Fatal("idle session must be removed")
	}
}
