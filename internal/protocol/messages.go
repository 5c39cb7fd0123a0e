package protocol

import "time"

// Issue categories assigned by the grammar adapter.
const (
	CategoryGrammar     = "GRAMMAR"
	CategoryTypos       = "TYPOS"
	CategoryPunctuation = "PUNCTUATION"
	CategoryStyle       = "STYLE"
)

// Ingest actions accepted on SubjectIngestControl.
const (
	IngestActionStart = "start"
	IngestActionStop  = "stop"
	IngestActionFile  = "file"
)

// IngestControl starts or stops a recording, or submits an audio file.
type IngestControl struct {
	Action    string    `json:"action"`
	SessionID string    `json:"session_id,omitempty"`
	Path      string    `json:"path,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IngestAck is the reply to an IngestControl request.
type IngestAck struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error,omitempty"`
}

// AudioFrame carries PCM audio from the ingest service to the recognizer.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
	// DurationMS is the total captured duration, set on the final frame.
	DurationMS int64 `json:"duration_ms,omitempty"`
}

// Transcript is the recognizer output broadcast on the bus.
type Transcript struct {
	SessionID       string    `json:"session_id"`
	Text            string    `json:"text"`
	DurationSeconds float64   `json:"duration_seconds"`
	Confidence      float64   `json:"confidence,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// GrammarIssue is one flagged span. All fields come from the external
// checker; the runtime only classifies the category.
type GrammarIssue struct {
	Offset       int      `json:"offset"`
	Length       int      `json:"length"`
	Message      string   `json:"message"`
	RuleID       string   `json:"rule_id"`
	Category     string   `json:"category"`
	Context      string   `json:"context,omitempty"`
	Replacements []string `json:"replacements,omitempty"`
}

// ReadabilityMetrics are the numeric style scores for a transcript.
type ReadabilityMetrics struct {
	FleschReadingEase  float64 `json:"flesch_reading_ease"`
	FleschKincaidGrade float64 `json:"flesch_kincaid_grade"`
	GunningFog         float64 `json:"gunning_fog"`
	Sentences          int     `json:"sentences"`
	Words              int     `json:"words"`
	Syllables          int     `json:"syllables"`
	Comment            string  `json:"comment"`
	Recommendations    string  `json:"recommendations"`
}

// Weights are per-category multipliers plus the readability weight.
type Weights struct {
	Grammar     float64 `json:"grammar"`
	Typos       float64 `json:"typos"`
	Punctuation float64 `json:"punctuation"`
	Style       float64 `json:"style"`
	Readability float64 `json:"readability"`
}

// AnalysisReport is the full session report published after each analysis.
// Revision increases monotonically per session so the UI can drop stale ones.
type AnalysisReport struct {
	SessionID       string             `json:"session_id"`
	Revision        int                `json:"revision"`
	Transcript      string             `json:"transcript"`
	DurationSeconds float64            `json:"duration_seconds"`
	Issues          []GrammarIssue     `json:"issues"`
	Breakdown       map[string]int     `json:"breakdown"`
	Metrics         ReadabilityMetrics `json:"metrics"`
	Weights         Weights            `json:"weights"`
	CompositeScore  float64            `json:"composite_score"`
	WordCount       int                `json:"word_count"`
	WordsPerMinute  float64            `json:"words_per_minute"`
	FillerCount     int                `json:"filler_count"`
	Feedback        string             `json:"feedback"`
	ReportText      string             `json:"report_text"`
	Timestamp       time.Time          `json:"timestamp"`
}

// RescoreRequest reweights the last analysis of a session.
type RescoreRequest struct {
	SessionID string  `json:"session_id"`
	Weights   Weights `json:"weights"`
}

// CorrectRequest asks for the stored transcript with checker suggestions
// applied. IssueIndex selects a single issue; -1 applies every suggestion.
type CorrectRequest struct {
	SessionID  string `json:"session_id"`
	IssueIndex int    `json:"issue_index"`
}

// CorrectResponse is the reply to a CorrectRequest.
type CorrectResponse struct {
	SessionID string `json:"session_id"`
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
	Error     string `json:"error,omitempty"`
}

// ErrorEvent reports a user-visible pipeline failure. Stage is one of
// "audio", "stt", "grammar", "analysis".
type ErrorEvent struct {
	SessionID string    `json:"session_id,omitempty"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectIngestControl        = "ingest.control"
	SubjectAudioFramePrefix     = "audio.frame"
	SubjectTranscriptFinal      = "stt.text.final"
	SubjectAnalysisReportPrefix = "analysis.report"
	SubjectAnalysisRescore      = "analysis.rescore"
	SubjectAnalysisCorrect      = "analysis.correct"
	SubjectPipelineError        = "pipeline.error"
)

// AnalysisReportSubject returns the per-session report subject.
func AnalysisReportSubject(sessionID string) string {
	return SubjectAnalysisReportPrefix + "." + sessionID
}

// AudioFrameSubject returns the per-session audio frame subject.
func AudioFrameSubject(sessionID string) string {
	return SubjectAudioFramePrefix + "." + sessionID
}
