package app

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nats-io/nats.go"

	"github.com/oratia-labs/oratia-core/internal/config"
	"github.com/oratia-labs/oratia-core/internal/protocol"
)

func natsMsg(t *testing.T, subject string, payload any) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &nats.Msg{Subject: subject, Data: data}
}

func newModel() Model {
	m := New(config.Default())
	m.width = 80
	m.height = 24
	return m
}

func TestNewModel(t *testing.T) {
	m := newModel()
	if m.connected {
		t.Error("new model should not be connected")
	}
	if m.recording {
		t.Error("new model should not be recording")
	}
	if m.weights.Grammar != 3 {
		t.Errorf("default grammar weight = %v, want 3", m.weights.Grammar)
	}
}

func TestConnectError(t *testing.T) {
	m := newModel()

	updated, _ := m.Update(ConnectErrorMsg{Err: fmt.Errorf("connection refused")})
	model := updated.(Model)

	if model.connected {
		t.Error("should not be connected after error")
	}
	if model.connError == "" {
		t.Error("should record connection error")
	}
}

func TestStartAckBeginsSession(t *testing.T) {
	m := newModel()
	m.connected = true

	updated, _ := m.Update(AckMsg{Action: protocol.IngestActionStart, Ack: protocol.IngestAck{SessionID: "sess-1"}})
	model := updated.(Model)

	if !model.recording {
		t.Error("should be recording after start ack")
	}
	if model.pendingSessionID != "sess-1" {
		t.Errorf("pendingSessionID = %q, want %q", model.pendingSessionID, "sess-1")
	}
}

func TestReportPromotesPendingSession(t *testing.T) {
	m := newModel()
	m.sessionID = "sess-1"
	m.lastRevision = 4
	m.current = &protocol.AnalysisReport{SessionID: "sess-1", Revision: 4, CompositeScore: 80}
	m.pendingSessionID = "sess-2"

	m.applyReport(protocol.AnalysisReport{SessionID: "sess-2", Revision: 1, CompositeScore: 60})

	if m.sessionID != "sess-2" || m.pendingSessionID != "" {
		t.Errorf("pending session should become current, got session %q pending %q", m.sessionID, m.pendingSessionID)
	}
	if m.lastRevision != 1 {
		t.Errorf("lastRevision = %d, want 1", m.lastRevision)
	}
	if m.previous == nil || m.previous.SessionID != "sess-1" {
		t.Error("prior report should be kept for comparison")
	}
}

func TestPriorReportSurvivesFailedUpload(t *testing.T) {
	m := newModel()
	m.connected = true
	m.sessionID = "sess-1"
	m.lastRevision = 1
	m.current = &protocol.AnalysisReport{SessionID: "sess-1", Revision: 1, CompositeScore: 85}

	updated, _ := m.Update(AckMsg{Action: protocol.IngestActionFile, Ack: protocol.IngestAck{SessionID: "sess-2"}})
	m = updated.(Model)
	if m.current == nil {
		t.Fatal("report should stay on screen while the upload decodes")
	}

	event := protocol.ErrorEvent{SessionID: "sess-2", Stage: "audio", Message: "unable to read audio file"}
	m.handleBusEvent(natsMsg(t, protocol.SubjectPipelineError, event))

	if m.current == nil || m.current.SessionID != "sess-1" {
		t.Fatal("failed upload must leave the prior report unchanged")
	}
	if m.sessionID != "sess-1" {
		t.Errorf("sessionID = %q, want %q", m.sessionID, "sess-1")
	}
	if m.pendingSessionID != "" {
		t.Errorf("pending session should be cleared, got %q", m.pendingSessionID)
	}
	if m.errorMessage == "" {
		t.Error("error banner should be set")
	}
}

func TestAckErrorShowsBanner(t *testing.T) {
	m := newModel()
	m.connected = true

	updated, _ := m.Update(AckMsg{Action: protocol.IngestActionStart, Ack: protocol.IngestAck{Error: "no recorder configured"}})
	model := updated.(Model)

	if model.recording {
		t.Error("should not be recording after error ack")
	}
	if model.errorMessage != "no recorder configured" {
		t.Errorf("errorMessage = %q", model.errorMessage)
	}
}

func TestApplyReportDropsStaleRevision(t *testing.T) {
	m := newModel()
	m.sessionID = "sess-1"

	m.applyReport(protocol.AnalysisReport{SessionID: "sess-1", Revision: 2, CompositeScore: 90, ReportText: "rev 2"})
	if m.current == nil || m.current.Revision != 2 {
		t.Fatal("revision 2 should be applied")
	}

	m.applyReport(protocol.AnalysisReport{SessionID: "sess-1", Revision: 1, CompositeScore: 50, ReportText: "rev 1"})
	if m.current.Revision != 2 {
		t.Error("stale revision 1 should be dropped")
	}

	m.applyReport(protocol.AnalysisReport{SessionID: "sess-1", Revision: 3, CompositeScore: 95, ReportText: "rev 3"})
	if m.current.Revision != 3 {
		t.Error("revision 3 should replace revision 2")
	}
	if m.previous == nil || m.previous.Revision != 2 {
		t.Error("previous report should hold revision 2")
	}
}

func TestApplyReportIgnoresOtherSessions(t *testing.T) {
	m := newModel()
	m.sessionID = "sess-1"
	m.applyReport(protocol.AnalysisReport{SessionID: "sess-1", Revision: 1, ReportText: "mine"})

	m.applyReport(protocol.AnalysisReport{SessionID: "sess-2", Revision: 5, ReportText: "other"})
	if m.current.SessionID != "sess-1" {
		t.Error("report for another session should be ignored")
	}
}

func TestWeightAdjustClamps(t *testing.T) {
	m := newModel()
	m.weightIndex = 0
	for i := 0; i < 30; i++ {
		m.adjustWeight(0.5)
	}
	if m.weights.Grammar != 10 {
		t.Errorf("grammar weight should clamp at 10, got %v", m.weights.Grammar)
	}
	for i := 0; i < 30; i++ {
		m.adjustWeight(-0.5)
	}
	if m.weights.Grammar != 0 {
		t.Errorf("grammar weight should clamp at 0, got %v", m.weights.Grammar)
	}
}

func TestFixIndexValidation(t *testing.T) {
	m := newModel()
	m.connected = true
	m.sessionID = "sess-1"
	m.current = &protocol.AnalysisReport{
		SessionID: "sess-1",
		Issues:    []protocol.GrammarIssue{{Offset: 0, Length: 3}},
	}
	m.mode = modeFixIndex
	m.input = "9"

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model := updated.(Model)

	if cmd == nil {
		t.Fatal("expected transient error command")
	}
	if model.errorMessage == "" {
		t.Error("out of range issue number should show an error")
	}
}

func TestPipelineErrorStopsRecording(t *testing.T) {
	m := newModel()
	m.connected = true
	m.recording = true
	m.sessionID = "sess-1"

	event := protocol.ErrorEvent{SessionID: "sess-1", Stage: "stt", Message: "transcription failed: timeout"}
	cmd := m.handleBusEvent(natsMsg(t, protocol.SubjectPipelineError, event))
	if cmd == nil {
		t.Error("expected clear error command")
	}
	if m.recording {
		t.Error("stt failure should end the recording state")
	}
	if m.errorMessage == "" {
		t.Error("error banner should be set")
	}
}

func TestCompareViewShowsBothTranscripts(t *testing.T) {
	m := newModel()
	m.height = 40
	m.connected = true
	m.sessionID = "sess-1"
	m.previous = &protocol.AnalysisReport{
		SessionID: "sess-1", Revision: 1, CompositeScore: 70,
		Transcript: "I definately like teh idea",
	}
	m.current = &protocol.AnalysisReport{
		SessionID: "sess-1", Revision: 2, CompositeScore: 90,
		Transcript: "I definitely like the idea",
	}
	m.compare = true

	view := m.View()
	if !strings.Contains(view, "I definately like teh idea") {
		t.Error("compare view should show the original transcript")
	}
	if !strings.Contains(view, "I definitely like the idea") {
		t.Error("compare view should show the corrected transcript")
	}
	if !strings.Contains(view, "(+20.0)") {
		t.Error("compare view should show the score delta")
	}
}

func TestViewShowsHintWithoutReport(t *testing.T) {
	m := newModel()
	m.connected = true

	view := m.View()
	if view == "" {
		t.Fatal("view should render")
	}
}
