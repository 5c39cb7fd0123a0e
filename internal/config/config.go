package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	Audio       AudioConfig       `yaml:"audio"`
	STT         STTConfig         `yaml:"stt"`
	Grammar     GrammarConfig     `yaml:"grammar"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	ReportStore ReportStoreConfig `yaml:"report_store"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type AudioConfig struct {
	RecordCommand    string `yaml:"record_command"`
	FFmpegPath       string `yaml:"ffmpeg_path"`
	SampleRate       int    `yaml:"sample_rate"`
	Channels         int    `yaml:"channels"`
	ChunkDurationMS  int    `yaml:"chunk_duration_ms"`
	MaxRecordSeconds int    `yaml:"max_record_seconds"`
}

type STTConfig struct {
	Mode      string `yaml:"mode"` // mock, exec, openai
	Command   string `yaml:"command"`
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type GrammarConfig struct {
	Mode      string `yaml:"mode"` // mock, languagetool
	Endpoint  string `yaml:"endpoint"`
	Language  string `yaml:"language"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// ScoringConfig carries the default weight policy. Weights are clamped at
// load time and again whenever the UI submits new values.
type ScoringConfig struct {
	WeightGrammar     float64  `yaml:"weight_grammar"`
	WeightTypos       float64  `yaml:"weight_typos"`
	WeightPunctuation float64  `yaml:"weight_punctuation"`
	WeightStyle       float64  `yaml:"weight_style"`
	WeightReadability float64  `yaml:"weight_readability"`
	FillerWords       []string `yaml:"filler_words"`
}

type ReportStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		RuntimeName: "oratia-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8090,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Audio: AudioConfig{
			FFmpegPath:       "ffmpeg",
			SampleRate:       16000,
			Channels:         1,
			ChunkDurationMS:  200,
			MaxRecordSeconds: 600,
		},
		STT: STTConfig{
			Mode:      "mock",
			Language:  "en",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Grammar: GrammarConfig{
			Mode:      "mock",
			Endpoint:  "http://localhost:8010",
			Language:  "en-US",
			TimeoutMS: 15000,
		},
		Scoring: ScoringConfig{
			WeightGrammar:     3,
			WeightTypos:       2,
			WeightPunctuation: 1,
			WeightStyle:       1.5,
			WeightReadability: 0,
			FillerWords:       []string{"um", "uh", "like", "you know", "ah", "er"},
		},
		ReportStore: ReportStoreConfig{
			Path:          "./data/oratia-reports.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "ORATIA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "ORATIA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "ORATIA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "ORATIA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "ORATIA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "ORATIA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "ORATIA_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "ORATIA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "ORATIA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "ORATIA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "ORATIA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "ORATIA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "ORATIA_BUS_TOKEN")
	overrideInt(&cfg.Bus.ConnectTimeout, "ORATIA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Audio.RecordCommand, "ORATIA_AUDIO_RECORD_COMMAND")
	overrideString(&cfg.Audio.FFmpegPath, "ORATIA_AUDIO_FFMPEG_PATH")
	overrideInt(&cfg.Audio.SampleRate, "ORATIA_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "ORATIA_AUDIO_CHANNELS")
	overrideInt(&cfg.Audio.ChunkDurationMS, "ORATIA_AUDIO_CHUNK_DURATION_MS")
	overrideInt(&cfg.Audio.MaxRecordSeconds, "ORATIA_AUDIO_MAX_RECORD_SECONDS")
	overrideString(&cfg.STT.Mode, "ORATIA_STT_MODE")
	overrideString(&cfg.STT.Command, "ORATIA_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "ORATIA_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "ORATIA_STT_LANGUAGE")
	overrideString(&cfg.STT.APIKeyEnv, "ORATIA_STT_API_KEY_ENV")
	overrideString(&cfg.Grammar.Mode, "ORATIA_GRAMMAR_MODE")
	overrideString(&cfg.Grammar.Endpoint, "ORATIA_GRAMMAR_ENDPOINT")
	overrideString(&cfg.Grammar.Language, "ORATIA_GRAMMAR_LANGUAGE")
	overrideInt(&cfg.Grammar.TimeoutMS, "ORATIA_GRAMMAR_TIMEOUT_MS")
	overrideFloat(&cfg.Scoring.WeightGrammar, "ORATIA_SCORING_WEIGHT_GRAMMAR")
	overrideFloat(&cfg.Scoring.WeightTypos, "ORATIA_SCORING_WEIGHT_TYPOS")
	overrideFloat(&cfg.Scoring.WeightPunctuation, "ORATIA_SCORING_WEIGHT_PUNCTUATION")
	overrideFloat(&cfg.Scoring.WeightStyle, "ORATIA_SCORING_WEIGHT_STYLE")
	overrideFloat(&cfg.Scoring.WeightReadability, "ORATIA_SCORING_WEIGHT_READABILITY")
	overrideString(&cfg.ReportStore.Path, "ORATIA_REPORT_STORE_PATH")
	overrideString(&cfg.ReportStore.RetentionMode, "ORATIA_REPORT_STORE_RETENTION_MODE")
	overrideInt(&cfg.ReportStore.RetentionDays, "ORATIA_REPORT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.ReportStore.MaxSessions, "ORATIA_REPORT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.ReportStore.VacuumOnStart, "ORATIA_REPORT_STORE_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	if cfg.Audio.ChunkDurationMS <= 0 {
		return errors.New("audio.chunk_duration_ms must be positive")
	}
	if cfg.Audio.MaxRecordSeconds <= 0 {
		return errors.New("audio.max_record_seconds must be positive")
	}
	switch cfg.STT.Mode {
	case "mock", "exec", "openai":
	default:
		return errors.New("stt.mode must be one of mock|exec|openai")
	}
	if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when mode=exec")
	}
	if cfg.STT.Mode == "openai" && cfg.STT.APIKeyEnv == "" {
		return errors.New("stt.api_key_env must be set when mode=openai")
	}
	switch cfg.Grammar.Mode {
	case "mock", "languagetool":
	default:
		return errors.New("grammar.mode must be one of mock|languagetool")
	}
	if cfg.Grammar.Mode == "languagetool" && cfg.Grammar.Endpoint == "" {
		return errors.New("grammar.endpoint must be set when mode=languagetool")
	}
	if cfg.Grammar.TimeoutMS <= 0 {
		return errors.New("grammar.timeout_ms must be positive")
	}
	if cfg.ReportStore.Path == "" {
		return errors.New("report_store.path must not be empty")
	}
	switch cfg.ReportStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("report_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.ReportStore.RetentionDays < 0 {
		return errors.New("report_store.retention_days must be >= 0")
	}
	return nil
}
