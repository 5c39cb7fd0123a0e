// Package analysis orchestrates the scoring pipeline: it reacts to final
// transcripts, runs the grammar checker and readability analyzer, computes
// the weighted score, and publishes versioned session reports.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/oratia-labs/oratia-core/internal/bus"
	"github.com/oratia-labs/oratia-core/internal/config"
	"github.com/oratia-labs/oratia-core/internal/grammar"
	"github.com/oratia-labs/oratia-core/internal/protocol"
	"github.com/oratia-labs/oratia-core/internal/readability"
	"github.com/oratia-labs/oratia-core/internal/report"
	"github.com/oratia-labs/oratia-core/internal/reportstore"
	"github.com/oratia-labs/oratia-core/internal/score"
)

type Service struct {
	cfg      config.Config
	bus      *bus.Client
	checker  grammar.Checker
	analyzer *readability.Analyzer
	store    *reportstore.Store
	logger   *slog.Logger

	sessions map[string]*sessionState
	mu       sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	subs   []*nats.Subscription

	meter           metric.Meter
	analysesCounter metric.Int64Counter
	failureCounter  metric.Int64Counter
	issueCounter    metric.Int64Counter
}

// sessionState is the latest analysis input set for one session. Rescore and
// correct operate on this snapshot; Revision grows with every published
// report so consumers can drop anything stale.
type sessionState struct {
	Transcript      string
	DurationSeconds float64
	Issues          []protocol.GrammarIssue
	Metrics         protocol.ReadabilityMetrics
	Weights         protocol.Weights
	Revision        int
}

func NewService(parent context.Context, cfg config.Config, busClient *bus.Client, checker grammar.Checker, analyzer *readability.Analyzer, store *reportstore.Store, logger *slog.Logger) (*Service, error) {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:      cfg,
		bus:      busClient,
		checker:  checker,
		analyzer: analyzer,
		store:    store,
		logger:   logger.With(slog.String("component", "analysis")),
		sessions: make(map[string]*sessionState),
		ctx:      ctx,
		cancel:   cancel,
		meter:    otel.Meter("github.com/oratia-labs/oratia-core/analysis"),
	}
	if err := s.initMetrics(); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

func (s *Service) initMetrics() error {
	if s.meter == nil {
		return nil
	}
	analyses, err := s.meter.Int64Counter("oratia.analysis.reports", metric.WithDescription("Published analysis reports"))
	if err != nil {
		return err
	}
	failures, err := s.meter.Int64Counter("oratia.analysis.failures", metric.WithDescription("Failed analysis attempts"))
	if err != nil {
		return err
	}
	issues, err := s.meter.Int64Counter("oratia.analysis.issues", metric.WithDescription("Grammar issues flagged"))
	if err != nil {
		return err
	}
	s.analysesCounter = analyses
	s.failureCounter = failures
	s.issueCounter = issues
	return nil
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectTranscriptFinal, s.handleTranscript)
	if err != nil {
		return fmt.Errorf("subscribe transcripts: %w", err)
	}
	s.subs = append(s.subs, sub)

	sub, err = s.bus.Conn().Subscribe(protocol.SubjectAnalysisRescore, s.handleRescore)
	if err != nil {
		s.drainSubs()
		return fmt.Errorf("subscribe rescore: %w", err)
	}
	s.subs = append(s.subs, sub)

	sub, err = s.bus.Conn().Subscribe(protocol.SubjectAnalysisCorrect, s.handleCorrect)
	if err != nil {
		s.drainSubs()
		return fmt.Errorf("subscribe correct: %w", err)
	}
	s.subs = append(s.subs, sub)
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.drainSubs()
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return len(s.subs) == 3
}

func (s *Service) drainSubs() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
}

func (s *Service) handleTranscript(msg *nats.Msg) {
	var transcript protocol.Transcript
	if err := json.Unmarshal(msg.Data, &transcript); err != nil {
		s.logger.Warn("failed to decode transcript", slog.String("error", err.Error()))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.analyze(transcript.SessionID, transcript.Text, transcript.DurationSeconds)
	}()
}

// analyze runs the full pipeline for a transcript and publishes the report.
// A checker failure aborts the run; later transcripts or rescore requests
// start fresh.
func (s *Service) analyze(sessionID, text string, durationSeconds float64) {
	var issues []protocol.GrammarIssue
	if text != "" {
		timeout := time.Duration(s.cfg.Grammar.TimeoutMS) * time.Millisecond
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()

		var err error
		issues, err = s.checker.Check(ctx, text)
		if err != nil {
			s.logger.Warn("grammar check failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()))
			s.countFailure()
			s.publishError(sessionID, "grammar", err.Error())
			return
		}
	}

	metrics := s.analyzer.Analyze(text)
	weights := score.ClampWeights(score.WeightsFromConfig(s.cfg.Scoring))

	s.mu.Lock()
	state := s.sessions[sessionID]
	if state == nil {
		state = &sessionState{}
		s.sessions[sessionID] = state
	}
	if state.Revision > 0 && state.Weights != (protocol.Weights{}) {
		weights = state.Weights
	}
	state.Transcript = text
	state.DurationSeconds = durationSeconds
	state.Issues = issues
	state.Metrics = metrics
	state.Weights = weights
	state.Revision++
	revision := state.Revision
	s.mu.Unlock()

	s.publishReport(sessionID, revision, text, durationSeconds, issues, metrics, weights, true)
}

func (s *Service) handleRescore(msg *nats.Msg) {
	var req protocol.RescoreRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode rescore request", slog.String("error", err.Error()))
		return
	}

	weights := score.ClampWeights(req.Weights)

	s.mu.Lock()
	state := s.sessions[req.SessionID]
	if state == nil {
		s.mu.Unlock()
		if !s.restoreSession(req.SessionID) {
			s.publishError(req.SessionID, "analysis", "no analysis found for session")
			return
		}
		s.mu.Lock()
		state = s.sessions[req.SessionID]
	}
	state.Weights = weights
	state.Revision++
	revision := state.Revision
	text := state.Transcript
	duration := state.DurationSeconds
	issues := state.Issues
	metrics := state.Metrics
	s.mu.Unlock()

	s.publishReport(req.SessionID, revision, text, duration, issues, metrics, weights, false)
}

// restoreSession rebuilds in-memory state from the report store after a
// restart. Returns false when the session is unknown there too.
func (s *Service) restoreSession(sessionID string) bool {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return false
	}
	state := &sessionState{
		Transcript:      sess.Transcript,
		DurationSeconds: sess.DurationSeconds,
		Weights:         score.ClampWeights(score.WeightsFromConfig(s.cfg.Scoring)),
	}
	if len(sess.Issues) > 0 {
		_ = json.Unmarshal(sess.Issues, &state.Issues)
	}
	if len(sess.Metrics) > 0 {
		_ = json.Unmarshal(sess.Metrics, &state.Metrics)
	}
	if rep, err := s.store.LatestReport(ctx, sessionID); err == nil {
		state.Revision = int(rep.Revision)
	}

	s.mu.Lock()
	s.sessions[sessionID] = state
	s.mu.Unlock()
	return true
}

func (s *Service) handleCorrect(msg *nats.Msg) {
	var req protocol.CorrectRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode correct request", slog.String("error", err.Error()))
		return
	}

	resp := s.applyCorrection(req)
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if msg.Reply != "" {
		if err := msg.Respond(data); err != nil {
			s.logger.Warn("failed to respond to correct request", slog.String("error", err.Error()))
		}
	}

	if resp.Error == "" && resp.Corrected != resp.Original {
		duration := s.sessionDuration(req.SessionID)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.analyze(req.SessionID, resp.Corrected, duration)
		}()
	}
}

func (s *Service) applyCorrection(req protocol.CorrectRequest) protocol.CorrectResponse {
	s.mu.Lock()
	state := s.sessions[req.SessionID]
	s.mu.Unlock()
	if state == nil {
		if !s.restoreSession(req.SessionID) {
			return protocol.CorrectResponse{SessionID: req.SessionID, Error: "no analysis found for session"}
		}
		s.mu.Lock()
		state = s.sessions[req.SessionID]
		s.mu.Unlock()
	}

	s.mu.Lock()
	text := state.Transcript
	issues := state.Issues
	s.mu.Unlock()

	resp := protocol.CorrectResponse{SessionID: req.SessionID, Original: text}
	if req.IssueIndex < 0 {
		resp.Corrected = grammar.Correct(text, issues)
		return resp
	}
	if req.IssueIndex >= len(issues) {
		resp.Error = fmt.Sprintf("issue index %d out of range", req.IssueIndex)
		return resp
	}
	corrected, err := grammar.ApplyIssue(text, issues[req.IssueIndex])
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Corrected = corrected
	return resp
}

func (s *Service) sessionDuration(sessionID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state := s.sessions[sessionID]; state != nil {
		return state.DurationSeconds
	}
	return 0
}

func (s *Service) publishReport(sessionID string, revision int, text string, durationSeconds float64, issues []protocol.GrammarIssue, metrics protocol.ReadabilityMetrics, weights protocol.Weights, persistSession bool) {
	summary := score.Compute(text, durationSeconds, issues, metrics, weights, s.cfg.Scoring.FillerWords)

	rep := protocol.AnalysisReport{
		SessionID:       sessionID,
		Revision:        revision,
		Transcript:      text,
		DurationSeconds: durationSeconds,
		Issues:          issues,
		Breakdown:       summary.Breakdown,
		Metrics:         metrics,
		Weights:         weights,
		CompositeScore:  summary.Composite,
		WordCount:       summary.WordCount,
		WordsPerMinute:  summary.WordsPerMinute,
		FillerCount:     summary.FillerCount,
		Feedback:        summary.Feedback,
		Timestamp:       time.Now().UTC(),
	}
	rep.ReportText = report.Render(rep)

	s.persist(rep, persistSession)

	data, err := json.Marshal(rep)
	if err != nil {
		s.logger.Warn("failed to marshal report", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Conn().Publish(protocol.AnalysisReportSubject(sessionID), data); err != nil {
		s.logger.Warn("failed to publish report", slog.String("error", err.Error()))
		return
	}
	if s.analysesCounter != nil {
		s.analysesCounter.Add(s.ctx, 1)
	}
	if s.issueCounter != nil && len(issues) > 0 {
		s.issueCounter.Add(s.ctx, int64(len(issues)))
	}
	s.logger.Info("analysis report published",
		slog.String("session_id", sessionID),
		slog.Int("revision", revision),
		slog.Float64("score", summary.Composite),
		slog.Int("issues", len(issues)))
}

func (s *Service) persist(rep protocol.AnalysisReport, persistSession bool) {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if persistSession {
		issues, _ := json.Marshal(rep.Issues)
		metrics, _ := json.Marshal(rep.Metrics)
		if err := s.store.SaveSession(ctx, reportstore.Session{
			SessionID:       rep.SessionID,
			Transcript:      rep.Transcript,
			DurationSeconds: rep.DurationSeconds,
			Issues:          issues,
			Metrics:         metrics,
		}); err != nil {
			s.logger.Warn("failed to persist session", slog.String("error", err.Error()))
		}
	}

	payload, err := json.Marshal(rep)
	if err != nil {
		return
	}
	if err := s.store.SaveReport(ctx, reportstore.Report{
		SessionID: rep.SessionID,
		Revision:  int64(rep.Revision),
		Payload:   payload,
		Score:     rep.CompositeScore,
	}); err != nil {
		s.logger.Warn("failed to persist report", slog.String("error", err.Error()))
	}
}

func (s *Service) countFailure() {
	if s.failureCounter != nil {
		s.failureCounter.Add(s.ctx, 1)
	}
}

func (s *Service) publishError(sessionID, stage, message string) {
	event := protocol.ErrorEvent{
		SessionID: sessionID,
		Stage:     stage,
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
