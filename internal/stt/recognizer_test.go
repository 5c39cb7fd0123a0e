package stt

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/oratia-labs/oratia-core/internal/config"
)

func TestNewRecognizerModes(t *testing.T) {
	if _, err := NewRecognizer(config.STTConfig{Mode: "mock"}); err != nil {
		t.Fatalf("mock recognizer: %v", err)
	}
	if _, err := NewRecognizer(config.STTConfig{Mode: "exec", Command: "whisper-cli --json"}); err != nil {
		t.Fatalf("exec recognizer: %v", err)
	}
	if _, err := NewRecognizer(config.STTConfig{Mode: "exec"}); err == nil {
		t.Fatal("expected error for exec mode without command")
	}
	if _, err := NewRecognizer(config.STTConfig{Mode: "nope"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestNewRecognizerOpenAINeedsKey(t *testing.T) {
	t.Setenv("ORATIA_TEST_API_KEY", "")
	if _, err := NewRecognizer(config.STTConfig{Mode: "openai", APIKeyEnv: "ORATIA_TEST_API_KEY"}); err == nil {
		t.Fatal("expected error when api key env is empty")
	}
	t.Setenv("ORATIA_TEST_API_KEY", "sk-test")
	if _, err := NewRecognizer(config.STTConfig{Mode: "openai", APIKeyEnv: "ORATIA_TEST_API_KEY", Language: "en"}); err != nil {
		t.Fatalf("openai recognizer: %v", err)
	}
}

func TestMockRecognizer(t *testing.T) {
	r := NewMockRecognizer()
	result, err := r.Transcribe(context.Background(), make([]byte, 320), 16000, 1)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if !strings.Contains(result.Text, "320") {
		t.Fatalf("unexpected mock text: %q", result.Text)
	}
}

func TestPCMToTempWav(t *testing.T) {
	path, cleanup, err := pcmToTempWav(make([]byte, 3200), 16000, 1)
	if err != nil {
		t.Fatalf("pcm to wav: %v", err)
	}
	defer cleanup()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat wav: %v", err)
	}
	if info.Size() <= 44 {
		t.Fatalf("wav file suspiciously small: %d bytes", info.Size())
	}
}

func TestPCMToTempWavRejectsUnaligned(t *testing.T) {
	if _, _, err := pcmToTempWav(make([]byte, 3), 16000, 1); err == nil {
		t.Fatal("expected error for unaligned pcm")
	}
}
