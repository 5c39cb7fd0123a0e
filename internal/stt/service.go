package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oratia-labs/oratia-core/internal/bus"
	"github.com/oratia-labs/oratia-core/internal/config"
	"github.com/oratia-labs/oratia-core/internal/protocol"
)

const (
	transcribeTimeout = 120 * time.Second

	// Sessions whose final frame never arrives are dropped after this much
	// idle time so their buffers do not accumulate.
	sessionIdleTimeout = 2 * time.Minute
	reapInterval       = 30 * time.Second
)

// Service buffers audio frames per session and transcribes the complete
// capture once the final frame arrives. One attempt per session; failures
// become pipeline error events.
type Service struct {
	cfg        config.STTConfig
	bus        *bus.Client
	recognizer Recognizer
	logger     *slog.Logger
	sessions   map[string]*sessionState
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	sub        *nats.Subscription
	wg         sync.WaitGroup
	ready      bool
}

type sessionState struct {
	Buffer     []byte
	SampleRate int
	Channels   int
	LastFrame  time.Time
}

func NewService(parent context.Context, cfg config.STTConfig, busClient *bus.Client, recognizer Recognizer, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:        cfg,
		bus:        busClient,
		recognizer: recognizer,
		logger:     logger.With(slog.String("component", "stt-service")),
		sessions:   make(map[string]*sessionState),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Service) Start() error {
	subject := protocol.SubjectAudioFramePrefix + ".>"
	sub, err := s.bus.Conn().Subscribe(subject, s.handleFrame)
	if err != nil {
		return fmt.Errorf("subscribe audio frames: %w", err)
	}
	s.sub = sub
	s.ready = true

	s.wg.Add(1)
	go s.reapStaleSessions()
	return nil
}

// reapStaleSessions drops session buffers that stopped receiving frames
// without a final marker.
func (s *Service) reapStaleSessions() {
	defer s.wg.Done()
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			for _, sessionID := range s.pruneStale(time.Now().Add(-sessionIdleTimeout)) {
				s.logger.Warn("dropping stale session buffer", slog.String("session_id", sessionID))
			}
		}
	}
}

// pruneStale removes sessions whose last frame arrived before cutoff and
// returns their ids.
func (s *Service) pruneStale(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var dropped []string
	for sessionID, state := range s.sessions {
		if state.LastFrame.Before(cutoff) {
			delete(s.sessions, sessionID)
			dropped = append(dropped, sessionID)
		}
	}
	return dropped
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.ready
}

func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.logger.Warn("failed to decode audio frame", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	state := s.sessions[frame.SessionID]
	if state == nil {
		state = &sessionState{SampleRate: frame.SampleRate, Channels: frame.Channels}
		s.sessions[frame.SessionID] = state
	}
	state.Buffer = append(state.Buffer, frame.PCM...)
	state.LastFrame = time.Now()
	s.mu.Unlock()

	if frame.Final {
		s.transcribeSession(frame.SessionID, frame.DurationMS)
	}
}

func (s *Service) transcribeSession(sessionID string, durationMS int64) {
	s.mu.Lock()
	state := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if state == nil {
		return
	}

	if len(state.Buffer) == 0 {
		s.publishError(sessionID, "transcription failed: no audio captured")
		return
	}

	pcm := state.Buffer
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, transcribeTimeout)
		defer cancel()

		start := time.Now()
		result, err := s.recognizer.Transcribe(ctx, pcm, state.SampleRate, state.Channels)
		if err != nil {
			s.logger.Warn("transcription failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()))
			s.publishError(sessionID, "transcription failed: "+err.Error())
			return
		}
		s.logger.Info("transcription complete",
			slog.String("session_id", sessionID),
			slog.Duration("latency", time.Since(start)))
		s.publishTranscript(sessionID, result, durationMS)
	}()
}

func (s *Service) publishTranscript(sessionID string, result TranscriptResult, durationMS int64) {
	msg := protocol.Transcript{
		SessionID:       sessionID,
		Text:            result.Text,
		DurationSeconds: float64(durationMS) / 1000,
		Confidence:      result.Confidence,
		Timestamp:       time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("failed to marshal transcript", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectTranscriptFinal, data); err != nil {
		s.logger.Warn("failed to publish transcript", slog.String("error", err.Error()))
	}
}

func (s *Service) publishError(sessionID, message string) {
	event := protocol.ErrorEvent{
		SessionID: sessionID,
		Stage:     "stt",
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectPipelineError, data); err != nil {
		s.logger.Warn("failed to publish error event", slog.String("error", err.Error()))
	}
}
