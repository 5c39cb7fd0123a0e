package stt

import (
	"context"
	"fmt"
	"os"

	"github.com/oratia-labs/oratia-core/internal/config"
)

// TranscriptResult captures recognizer output.
type TranscriptResult struct {
	Text       string
	Confidence float64
}

// Recognizer abstracts STT backends. Input is 16-bit little-endian PCM.
type Recognizer interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, channels int) (TranscriptResult, error)
}

// NewRecognizer selects a backend from config.
func NewRecognizer(cfg config.STTConfig) (Recognizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockRecognizer(), nil
	case "exec":
		return NewExecRecognizer(cfg)
	case "openai":
		apiKey := os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("stt mode openai requires %s to be set", cfg.APIKeyEnv)
		}
		return NewOpenAIRecognizer(apiKey, cfg.Language), nil
	default:
		return nil, fmt.Errorf("unknown stt mode %q", cfg.Mode)
	}
}
