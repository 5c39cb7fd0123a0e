package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/oratia-labs/oratia-core/internal/bus"
	"github.com/oratia-labs/oratia-core/internal/config"
	"github.com/oratia-labs/oratia-core/internal/protocol"
)

// fileChunkSeconds bounds frame payloads well under the NATS message limit.
const fileChunkSeconds = 5

// Service is the ingest stage: it answers record/upload control requests and
// publishes audio frames for the recognizer.
type Service struct {
	cfg      config.AudioConfig
	bus      *bus.Client
	recorder *Recorder
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	sub      *nats.Subscription
	wg       sync.WaitGroup

	mu     sync.Mutex
	active *activeRecording
}

type activeRecording struct {
	sessionID string
	capture   *Capture
	sequence  int
	byteCount int
}

// NewService builds the ingest service. The recorder is optional: without a
// configured record command only file uploads work.
func NewService(parent context.Context, cfg config.AudioConfig, busClient *bus.Client, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:    cfg,
		bus:    busClient,
		logger: logger.With(slog.String("component", "audio-ingest")),
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.RecordCommand != "" {
		recorder, err := NewRecorder(cfg)
		if err != nil {
			s.logger.Warn("recorder unavailable", slog.String("error", err.Error()))
		} else {
			s.recorder = recorder
		}
	}
	return s
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectIngestControl, s.handleControl)
	if err != nil {
		return fmt.Errorf("subscribe ingest control: %w", err)
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.mu.Lock()
	if s.active != nil {
		s.active.capture.Stop()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.sub != nil
}

func (s *Service) handleControl(msg *nats.Msg) {
	var control protocol.IngestControl
	if err := json.Unmarshal(msg.Data, &control); err != nil {
		s.logger.Warn("failed to decode ingest control", slog.String("error", err.Error()))
		s.ack(msg, protocol.IngestAck{Error: "malformed control message"})
		return
	}

	switch control.Action {
	case protocol.IngestActionStart:
		s.startRecording(msg)
	case protocol.IngestActionStop:
		s.stopRecording(msg)
	case protocol.IngestActionFile:
		s.ingestFile(msg, control.Path)
	default:
		s.ack(msg, protocol.IngestAck{Error: fmt.Sprintf("unknown ingest action %q", control.Action)})
	}
}

func (s *Service) startRecording(msg *nats.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		s.ack(msg, protocol.IngestAck{SessionID: s.active.sessionID, Error: "recording already in progress"})
		return
	}
	if s.recorder == nil {
		s.ack(msg, protocol.IngestAck{Error: "no recording device configured"})
		return
	}

	capture, err := s.recorder.Start(s.ctx)
	if err != nil {
		s.ack(msg, protocol.IngestAck{Error: "failed to start recording: " + err.Error()})
		return
	}

	rec := &activeRecording{
		sessionID: uuid.NewString(),
		capture:   capture,
	}
	s.active = rec
	s.logger.Info("recording started", slog.String("session_id", rec.sessionID))

	s.wg.Add(1)
	go s.pump(rec)

	s.ack(msg, protocol.IngestAck{SessionID: rec.sessionID})
}

func (s *Service) stopRecording(msg *nats.Msg) {
	s.mu.Lock()
	rec := s.active
	s.mu.Unlock()

	if rec == nil {
		s.ack(msg, protocol.IngestAck{Error: "no recording in progress"})
		return
	}
	rec.capture.Stop()
	s.ack(msg, protocol.IngestAck{SessionID: rec.sessionID})
}

func (s *Service) ingestFile(msg *nats.Msg, path string) {
	if path == "" {
		s.ack(msg, protocol.IngestAck{Error: "no file path supplied"})
		return
	}
	sessionID := uuid.NewString()
	s.ack(msg, protocol.IngestAck{SessionID: sessionID})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		clip, err := Decode(s.ctx, path, s.cfg)
		if err != nil {
			s.logger.Warn("file decode failed",
				slog.String("session_id", sessionID),
				slog.String("path", path),
				slog.String("error", err.Error()))
			s.publishError(sessionID, "audio acquisition failed: "+err.Error())
			return
		}
		s.logger.Info("file decoded",
			slog.String("session_id", sessionID),
			slog.Duration("duration", clip.Duration))
		s.publishClip(sessionID, clip)
	}()
}

func (s *Service) pump(rec *activeRecording) {
	defer s.wg.Done()

	maxBytes := s.cfg.MaxRecordSeconds * s.cfg.SampleRate * s.cfg.Channels * 2
	for chunk := range rec.capture.Chunks {
		s.publishFrame(protocol.AudioFrame{
			SessionID:  rec.sessionID,
			Sequence:   rec.sequence,
			SampleRate: s.cfg.SampleRate,
			Channels:   s.cfg.Channels,
			PCM:        chunk,
		})
		rec.sequence++
		rec.byteCount += len(chunk)
		if maxBytes > 0 && rec.byteCount >= maxBytes {
			s.logger.Warn("recording hit max duration, stopping",
				slog.String("session_id", rec.sessionID))
			rec.capture.Stop()
		}
	}

	s.mu.Lock()
	if s.active == rec {
		s.active = nil
	}
	s.mu.Unlock()

	if err := <-rec.Err(); err != nil {
		s.logger.Warn("recording failed",
			slog.String("session_id", rec.sessionID),
			slog.String("error", err.Error()))
		s.publishError(rec.sessionID, "audio acquisition failed: "+err.Error())
		return
	}
	if rec.byteCount == 0 {
		s.publishError(rec.sessionID, "audio acquisition failed: no audio data recorded")
		return
	}

	duration := PCMDuration(rec.byteCount, s.cfg.SampleRate, s.cfg.Channels)
	s.publishFrame(protocol.AudioFrame{
		SessionID:  rec.sessionID,
		Sequence:   rec.sequence,
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		Final:      true,
		DurationMS: duration.Milliseconds(),
	})
	s.logger.Info("recording finished",
		slog.String("session_id", rec.sessionID),
		slog.Duration("duration", duration))
}

func (r *activeRecording) Err() <-chan error {
	return r.capture.Err
}

func (s *Service) publishClip(sessionID string, clip Clip) {
	chunkBytes := clip.SampleRate * clip.Channels * 2 * fileChunkSeconds
	sequence := 0
	for offset := 0; offset < len(clip.PCM); offset += chunkBytes {
		end := offset + chunkBytes
		if end > len(clip.PCM) {
			end = len(clip.PCM)
		}
		s.publishFrame(protocol.AudioFrame{
			SessionID:  sessionID,
			Sequence:   sequence,
			SampleRate: clip.SampleRate,
			Channels:   clip.Channels,
			PCM:        clip.PCM[offset:end],
		})
		sequence++
	}
	s.publishFrame(protocol.AudioFrame{
		SessionID:  sessionID,
		Sequence:   sequence,
		SampleRate: clip.SampleRate,
		Channels:   clip.Channels,
		Final:      true,
		DurationMS: clip.Duration.Milliseconds(),
	})
}

func (s *Service) publishFrame(frame protocol.AudioFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Warn("failed to marshal audio frame", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Conn().Publish(protocol.AudioFrameSubject(frame.SessionID), data); err != nil {
		s.logger.Warn("failed to publish audio frame", slog.String("error", err.Error()))
	}
}

func (s *Service) publishError(sessionID, message string) {
	event := protocol.ErrorEvent{
		SessionID: sessionID,
		Stage:     "audio",
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

func (s *Service) ack(msg *nats.Msg, ack protocol.IngestAck) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(ack)
	if err != nil {
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to respond to ingest control", slog.String("error", err.Error()))
	}
}
