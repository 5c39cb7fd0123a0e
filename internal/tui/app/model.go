// Package app is the root bubbletea model for the oratia terminal frontend.
// It drives the daemon over the bus: ingest control requests, correction and
// rescore requests, and live report subscriptions.
package app

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nats-io/nats.go"

	"github.com/oratia-labs/oratia-core/internal/bus"
	"github.com/oratia-labs/oratia-core/internal/config"
	"github.com/oratia-labs/oratia-core/internal/protocol"
	"github.com/oratia-labs/oratia-core/internal/report"
	"github.com/oratia-labs/oratia-core/internal/score"
	"github.com/oratia-labs/oratia-core/internal/tui/ui"
)

const requestTimeout = 5 * time.Second

// inputMode tracks what the keyboard is currently editing.
type inputMode int

const (
	modeNormal inputMode = iota
	modeUploadPath
	modeExportPath
	modeFixIndex
	modeWeights
)

var weightLabels = [5]string{"Grammar", "Spelling", "Punctuation", "Style", "Readability"}

// Model is the root bubbletea model.
type Model struct {
	cfg config.Config

	// Connection state
	client    *bus.Client
	events    chan *nats.Msg
	connected bool
	connError string

	// Session state. A newly acked session stays pending until its first
	// report arrives, so a failed ingest never disturbs the shown report.
	recording        bool
	sessionID        string
	pendingSessionID string
	lastRevision     int

	// Reports. previous is kept for the compare view.
	current  *protocol.AnalysisReport
	previous *protocol.AnalysisReport

	// Weight editing
	weights     protocol.Weights
	weightIndex int

	// Input state
	mode  inputMode
	input string

	// UI state
	compare bool
	scroll  int
	width   int
	height  int

	errorMessage   string
	errorTransient bool
	statusText     string
}

// New creates a Model with default state.
func New(cfg config.Config) Model {
	return Model{
		cfg:        cfg,
		weights:    score.ClampWeights(score.WeightsFromConfig(cfg.Scoring)),
		statusText: "Connecting to oratiad...",
	}
}

// Init returns the initial command, connecting to the bus.
func (m Model) Init() tea.Cmd {
	return connectCmd(m.cfg)
}

// connectCmd connects to the bus and subscribes to report and error events.
func connectCmd(cfg config.Config) tea.Cmd {
	return func() tea.Msg {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		client, err := bus.Connect(cfg.Bus, "oratia-tui", logger)
		if err != nil {
			return ConnectErrorMsg{Err: err}
		}

		events := make(chan *nats.Msg, 64)
		if _, err := client.Conn().ChanSubscribe(protocol.SubjectAnalysisReportPrefix+".>", events); err != nil {
			client.Close()
			return ConnectErrorMsg{Err: err}
		}
		if _, err := client.Conn().ChanSubscribe(protocol.SubjectPipelineError, events); err != nil {
			client.Close()
			return ConnectErrorMsg{Err: err}
		}
		return ConnectedMsg{Client: client, Events: events}
	}
}

// waitEventCmd reads the next bus event.
func waitEventCmd(events chan *nats.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return EventStreamClosedMsg{}
		}
		return BusEventMsg{Msg: msg}
	}
}

// controlCmd sends an ingest control request and waits for the ack.
func controlCmd(client *bus.Client, action, sessionID, path string) tea.Cmd {
	return func() tea.Msg {
		req := protocol.IngestControl{
			Action:    action,
			SessionID: sessionID,
			Path:      path,
			Timestamp: time.Now().UTC(),
		}
		data, err := json.Marshal(req)
		if err != nil {
			return RequestErrorMsg{Action: action, Err: err}
		}
		reply, err := client.Request(protocol.SubjectIngestControl, data, requestTimeout)
		if err != nil {
			return RequestErrorMsg{Action: action, Err: err}
		}
		var ack protocol.IngestAck
		if err := json.Unmarshal(reply.Data, &ack); err != nil {
			return RequestErrorMsg{Action: action, Err: err}
		}
		return AckMsg{Action: action, Ack: ack}
	}
}

// correctCmd asks the daemon for the transcript with suggestions applied.
func correctCmd(client *bus.Client, sessionID string, issueIndex int) tea.Cmd {
	return func() tea.Msg {
		req := protocol.CorrectRequest{SessionID: sessionID, IssueIndex: issueIndex}
		data, err := json.Marshal(req)
		if err != nil {
			return RequestErrorMsg{Action: "correct", Err: err}
		}
		reply, err := client.Request(protocol.SubjectAnalysisCorrect, data, requestTimeout)
		if err != nil {
			return RequestErrorMsg{Action: "correct", Err: err}
		}
		var resp protocol.CorrectResponse
		if err := json.Unmarshal(reply.Data, &resp); err != nil {
			return RequestErrorMsg{Action: "correct", Err: err}
		}
		return CorrectResponseMsg{Response: resp}
	}
}

// rescoreCmd publishes new weights for the current session.
func rescoreCmd(client *bus.Client, sessionID string, weights protocol.Weights) tea.Cmd {
	return func() tea.Msg {
		req := protocol.RescoreRequest{SessionID: sessionID, Weights: weights}
		data, err := json.Marshal(req)
		if err != nil {
			return RequestErrorMsg{Action: "rescore", Err: err}
		}
		if err := client.Conn().Publish(protocol.SubjectAnalysisRescore, data); err != nil {
			return RequestErrorMsg{Action: "rescore", Err: err}
		}
		return RescoreSentMsg{}
	}
}

// exportCmd writes the current report text to disk.
func exportCmd(path, text string) tea.Cmd {
	return func() tea.Msg {
		return ExportDoneMsg{Path: path, Err: report.Export(path, text)}
	}
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case ConnectedMsg:
		m.client = msg.Client
		m.events = msg.Events
		m.connected = true
		m.connError = ""
		m.statusText = "Connected"
		return m, waitEventCmd(m.events)

	case ConnectErrorMsg:
		m.connected = false
		m.connError = msg.Err.Error()
		m.statusText = "Daemon unreachable"
		return m, nil

	case BusEventMsg:
		cmd := m.handleBusEvent(msg.Msg)
		return m, tea.Batch(cmd, waitEventCmd(m.events))

	case EventStreamClosedMsg:
		m.connected = false
		m.statusText = "Disconnected"
		return m, nil

	case AckMsg:
		return m.handleAck(msg)

	case RequestErrorMsg:
		m.errorMessage = fmt.Sprintf("%s failed: %v", msg.Action, msg.Err)
		m.errorTransient = true
		return m, clearTransientErrorCmd()

	case CorrectResponseMsg:
		if msg.Response.Error != "" {
			m.errorMessage = msg.Response.Error
			m.errorTransient = true
			return m, clearTransientErrorCmd()
		}
		m.statusText = "Corrections applied, re-analyzing"
		return m, nil

	case RescoreSentMsg:
		m.statusText = "Rescoring"
		return m, nil

	case ExportDoneMsg:
		if msg.Err != nil {
			m.errorMessage = "export failed: " + msg.Err.Error()
			m.errorTransient = true
			return m, clearTransientErrorCmd()
		}
		m.statusText = "Exported to " + msg.Path
		return m, nil

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil
	}

	return m, nil
}

// handleBusEvent decodes a raw event and applies it.
func (m *Model) handleBusEvent(msg *nats.Msg) tea.Cmd {
	switch {
	case strings.HasPrefix(msg.Subject, protocol.SubjectAnalysisReportPrefix+"."):
		var rep protocol.AnalysisReport
		if err := json.Unmarshal(msg.Data, &rep); err != nil {
			return nil
		}
		m.applyReport(rep)
		return nil

	case msg.Subject == protocol.SubjectPipelineError:
		var event protocol.ErrorEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return nil
		}
		if event.SessionID != "" && event.SessionID != m.sessionID && event.SessionID != m.pendingSessionID {
			if m.sessionID != "" || m.pendingSessionID != "" {
				return nil
			}
		}
		if event.Stage == "audio" || event.Stage == "stt" {
			m.recording = false
			if event.SessionID == "" || event.SessionID == m.pendingSessionID {
				m.pendingSessionID = ""
			}
			if m.current != nil {
				m.statusText = fmt.Sprintf("Score %.1f/100", m.current.CompositeScore)
			} else {
				m.statusText = "Idle"
			}
		}
		m.errorMessage = event.Message
		m.errorTransient = true
		return clearTransientErrorCmd()
	}
	return nil
}

// applyReport replaces the displayed report unless the event is stale. The
// first report of a pending session makes that session current.
func (m *Model) applyReport(rep protocol.AnalysisReport) {
	switch rep.SessionID {
	case m.pendingSessionID:
		m.pendingSessionID = ""
	case m.sessionID:
		if rep.Revision <= m.lastRevision {
			return
		}
	default:
		if m.sessionID != "" || m.pendingSessionID != "" {
			return
		}
	}

	if m.current != nil {
		prev := *m.current
		m.previous = &prev
	}
	m.sessionID = rep.SessionID
	m.lastRevision = rep.Revision
	m.current = &rep
	m.weights = rep.Weights
	m.scroll = 0
	m.statusText = fmt.Sprintf("Score %.1f/100", rep.CompositeScore)
}

func (m Model) handleAck(msg AckMsg) (tea.Model, tea.Cmd) {
	if msg.Ack.Error != "" {
		m.errorMessage = msg.Ack.Error
		m.errorTransient = true
		return m, clearTransientErrorCmd()
	}
	switch msg.Action {
	case protocol.IngestActionStart:
		m.recording = true
		m.pendingSessionID = msg.Ack.SessionID
		m.statusText = "Recording"
	case protocol.IngestActionStop:
		m.recording = false
		m.statusText = "Transcribing"
	case protocol.IngestActionFile:
		m.recording = false
		m.pendingSessionID = msg.Ack.SessionID
		m.statusText = "Analyzing file"
	}
	return m, nil
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode == modeUploadPath || m.mode == modeExportPath || m.mode == modeFixIndex {
		return m.handleInputKey(msg)
	}
	if m.mode == modeWeights {
		return m.handleWeightsKey(msg)
	}

	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		if m.client != nil {
			m.client.Close()
		}
		return m, tea.Quit

	case KeySpace:
		if !m.connected {
			return m, nil
		}
		if m.recording {
			sessionID := m.sessionID
			if m.pendingSessionID != "" {
				sessionID = m.pendingSessionID
			}
			return m, controlCmd(m.client, protocol.IngestActionStop, sessionID, "")
		}
		return m, controlCmd(m.client, protocol.IngestActionStart, "", "")

	case KeyUpload:
		if !m.connected || m.recording {
			return m, nil
		}
		m.mode = modeUploadPath
		m.input = ""
		return m, nil

	case KeyCorrect:
		if !m.connected || m.current == nil {
			return m, nil
		}
		return m, correctCmd(m.client, m.sessionID, -1)

	case KeyFix:
		if !m.connected || m.current == nil || len(m.current.Issues) == 0 {
			return m, nil
		}
		m.mode = modeFixIndex
		m.input = ""
		return m, nil

	case KeyWeights:
		if m.current == nil {
			return m, nil
		}
		m.mode = modeWeights
		m.weightIndex = 0
		return m, nil

	case KeyExport:
		if m.current == nil {
			return m, nil
		}
		m.mode = modeExportPath
		m.input = fmt.Sprintf("report-%s.txt", m.sessionID)
		return m, nil

	case KeyCompare:
		m.compare = !m.compare
		return m, nil

	case KeyUp, KeyK:
		if m.scroll > 0 {
			m.scroll--
		}
		return m, nil

	case KeyDown, KeyJ:
		if m.scroll < m.maxScroll() {
			m.scroll++
		}
		return m, nil
	}

	return m, nil
}

// handleInputKey edits the path or index prompt.
func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEscape:
		m.mode = modeNormal
		m.input = ""
		return m, nil

	case KeyBackspace:
		if m.input != "" {
			m.input = m.input[:len(m.input)-1]
		}
		return m, nil

	case KeyEnter:
		mode := m.mode
		value := strings.TrimSpace(m.input)
		m.mode = modeNormal
		m.input = ""
		if value == "" {
			return m, nil
		}
		switch mode {
		case modeUploadPath:
			return m, controlCmd(m.client, protocol.IngestActionFile, "", value)
		case modeExportPath:
			return m, exportCmd(value, m.current.ReportText)
		case modeFixIndex:
			index, err := strconv.Atoi(value)
			if err != nil || index < 1 || index > len(m.current.Issues) {
				m.errorMessage = "invalid issue number"
				m.errorTransient = true
				return m, clearTransientErrorCmd()
			}
			return m, correctCmd(m.client, m.sessionID, index-1)
		}
		return m, nil
	}

	if msg.Type == tea.KeyRunes {
		m.input += string(msg.Runes)
	}
	return m, nil
}

// handleWeightsKey adjusts the weight panel.
func (m Model) handleWeightsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEscape, KeyQuit:
		m.mode = modeNormal
		if m.current != nil {
			m.weights = m.current.Weights
		}
		return m, nil

	case KeyJ, KeyDown:
		if m.weightIndex < len(weightLabels)-1 {
			m.weightIndex++
		}
		return m, nil

	case KeyK, KeyUp:
		if m.weightIndex > 0 {
			m.weightIndex--
		}
		return m, nil

	case KeyPlus:
		m.adjustWeight(0.5)
		return m, nil

	case KeyMinus:
		m.adjustWeight(-0.5)
		return m, nil

	case KeyEnter:
		m.mode = modeNormal
		return m, rescoreCmd(m.client, m.sessionID, m.weights)
	}
	return m, nil
}

func (m *Model) adjustWeight(delta float64) {
	switch m.weightIndex {
	case 0:
		m.weights.Grammar += delta
	case 1:
		m.weights.Typos += delta
	case 2:
		m.weights.Punctuation += delta
	case 3:
		m.weights.Style += delta
	case 4:
		m.weights.Readability += delta
	}
	m.weights = score.ClampWeights(m.weights)
}

func (m Model) weightValue(index int) float64 {
	switch index {
	case 0:
		return m.weights.Grammar
	case 1:
		return m.weights.Typos
	case 2:
		return m.weights.Punctuation
	case 3:
		return m.weights.Style
	default:
		return m.weights.Readability
	}
}

func (m Model) reportLines() []string {
	if m.current == nil {
		return nil
	}
	var lines []string
	if m.current.Transcript != "" {
		lines = append(lines, ui.PanelTitleStyle.Render("Transcript"))
		lines = append(lines, strings.Split(m.current.Transcript, "\n")...)
		lines = append(lines, "")
	}
	lines = append(lines, strings.Split(strings.TrimRight(m.current.ReportText, "\n"), "\n")...)
	if len(m.current.Issues) > 0 {
		lines = append(lines, "", ui.PanelTitleStyle.Render("Issues"))
		for i, issue := range m.current.Issues {
			line := fmt.Sprintf("%d. %s", i+1, issue.Message)
			if len(issue.Replacements) > 0 {
				line += fmt.Sprintf(" (suggestion: %s)", issue.Replacements[0])
			}
			lines = append(lines, line)
		}
	}
	return lines
}

// contentLines picks the body content for the current view.
func (m Model) contentLines() []string {
	if m.compare && m.previous != nil && m.current != nil {
		return m.compareLines()
	}
	return m.reportLines()
}

func (m Model) maxScroll() int {
	lines := len(m.contentLines())
	visible := m.visibleLines()
	if lines <= visible {
		return 0
	}
	return lines - visible
}

func (m Model) visibleLines() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + status(1) + dividers(2) + prompt/error(2) + footer(1)
	return max(5, m.height-7)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderBody())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	if prompt := m.renderPrompt(); prompt != "" {
		sections = append(sections, prompt)
	}
	if m.errorMessage != "" {
		sections = append(sections, ui.ErrorStyle.Render("Error: ")+ui.ErrorTextStyle.Render(m.errorMessage))
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("ORATIA")
	sessionID := m.sessionID
	if m.pendingSessionID != "" {
		sessionID = m.pendingSessionID
	}
	var session string
	if sessionID != "" {
		session = ui.DimStyle.Render(" - session " + sessionID)
	}
	return title + session
}

func (m Model) renderStatusBar() string {
	var dot string
	if m.recording {
		dot = ui.RecordingDotStyle.Render("● REC")
	} else {
		dot = ui.IdleDotStyle.Render("○ IDLE")
	}
	return dot + "  " + ui.DimStyle.Render(m.statusText)
}

func (m Model) renderBody() string {
	if m.mode == modeWeights {
		return m.renderWeightsPanel()
	}

	var lines []string
	if !m.connected {
		lines = append(lines, "")
		if m.connError != "" {
			lines = append(lines, ui.ErrorStyle.Render("  Daemon not running."))
			lines = append(lines, ui.DimStyle.Render("  Start with: oratiad -config oratia.yaml"))
		} else {
			lines = append(lines, ui.DimStyle.Render("  Connecting to oratiad..."))
		}
	} else if m.current == nil {
		lines = append(lines, "")
		lines = append(lines, ui.DimStyle.Render("  Press Space to record or u to analyze an audio file"))
	} else {
		content := m.contentLines()
		start := min(m.scroll, m.maxScroll())
		end := min(len(content), start+m.visibleLines())
		for _, line := range content[start:end] {
			lines = append(lines, "  "+line)
		}
	}

	visible := m.visibleLines()
	for len(lines) < visible {
		lines = append(lines, "")
	}
	if len(lines) > visible {
		lines = lines[:visible]
	}
	return strings.Join(lines, "\n")
}

// compareLines renders the original transcript next to the corrected one,
// stacked, with the score delta on top.
func (m Model) compareLines() []string {
	delta := m.current.CompositeScore - m.previous.CompositeScore
	deltaText := fmt.Sprintf("Previous %.1f → Current %.1f (%+.1f)",
		m.previous.CompositeScore, m.current.CompositeScore, delta)
	deltaStyle := ui.DeltaUpStyle
	if delta < 0 {
		deltaStyle = ui.DeltaDownStyle
	}

	lines := []string{deltaStyle.Render(deltaText), ""}
	lines = append(lines, ui.PanelTitleStyle.Render(fmt.Sprintf("Original (score %.1f)", m.previous.CompositeScore)))
	lines = append(lines, strings.Split(m.previous.Transcript, "\n")...)
	lines = append(lines, "")
	lines = append(lines, ui.PanelTitleStyle.Render(fmt.Sprintf("Corrected (score %.1f)", m.current.CompositeScore)))
	lines = append(lines, strings.Split(m.current.Transcript, "\n")...)
	return lines
}

func (m Model) renderWeightsPanel() string {
	var lines []string
	lines = append(lines, ui.PanelTitleActiveStyle.Render("  SCORING WEIGHTS"))
	lines = append(lines, "")
	for i, label := range weightLabels {
		row := fmt.Sprintf("%-12s %5.1f", label, m.weightValue(i))
		if i == m.weightIndex {
			lines = append(lines, ui.SelectedStyle.Render("  > "+row))
		} else {
			lines = append(lines, "    "+row)
		}
	}
	lines = append(lines, "")
	lines = append(lines, ui.DimStyle.Render("  +/- adjust, j/k select, Enter apply, Esc cancel"))

	visible := m.visibleLines()
	for len(lines) < visible {
		lines = append(lines, "")
	}
	return strings.Join(lines[:visible], "\n")
}

func (m Model) renderPrompt() string {
	switch m.mode {
	case modeUploadPath:
		return ui.PromptStyle.Render("Audio file path: ") + m.input + "▌"
	case modeExportPath:
		return ui.PromptStyle.Render("Export to: ") + m.input + "▌"
	case modeFixIndex:
		return ui.PromptStyle.Render(fmt.Sprintf("Issue number (1-%d): ", len(m.current.Issues))) + m.input + "▌"
	}
	return ""
}

func (m Model) renderFooter() string {
	var parts []string
	if m.connected {
		if m.recording {
			parts = append(parts, ui.FooterKeyStyle.Render("Space")+ui.FooterDescStyle.Render(" Stop"))
		} else {
			parts = append(parts, ui.FooterKeyStyle.Render("Space")+ui.FooterDescStyle.Render(" Record"))
		}
		parts = append(parts, ui.FooterKeyStyle.Render("u")+ui.FooterDescStyle.Render(" Upload"))
		if m.current != nil {
			parts = append(parts, ui.FooterKeyStyle.Render("c")+ui.FooterDescStyle.Render(" Correct"))
			parts = append(parts, ui.FooterKeyStyle.Render("f")+ui.FooterDescStyle.Render(" Fix one"))
			parts = append(parts, ui.FooterKeyStyle.Render("w")+ui.FooterDescStyle.Render(" Weights"))
			parts = append(parts, ui.FooterKeyStyle.Render("e")+ui.FooterDescStyle.Render(" Export"))
			parts = append(parts, ui.FooterKeyStyle.Render("v")+ui.FooterDescStyle.Render(" Compare"))
		}
	}
	parts = append(parts, ui.FooterKeyStyle.Render("q")+ui.FooterDescStyle.Render(" Quit"))
	return strings.Join(parts, "  ")
}
