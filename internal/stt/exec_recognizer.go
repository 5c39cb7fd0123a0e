package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
	"github.com/oratia-labs/oratia-core/internal/config"
)

// execRecognizer shells out to a transcription command (e.g. a whisper-cli
// wrapper) that reads a WAV file and prints {"text": ..., "confidence": ...}.
type execRecognizer struct {
	cmd []string
	cfg config.STTConfig
	mu  sync.Mutex
}

type execResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func NewExecRecognizer(cfg config.STTConfig) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &execRecognizer{cmd: args, cfg: cfg}, nil
}

func (r *execRecognizer) Transcribe(ctx context.Context, pcm []byte, sampleRate int, channels int) (TranscriptResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	path, cleanup, err := pcmToTempWav(pcm, sampleRate, channels)
	if err != nil {
		return TranscriptResult{}, err
	}
	defer cleanup()

	args := append([]string{}, r.cmd[1:]...)
	args = append(args, "--audio", path)
	if r.cfg.ModelPath != "" {
		args = append(args, "--model", r.cfg.ModelPath)
	}
	if r.cfg.Language != "" {
		args = append(args, "--language", r.cfg.Language)
	}

	command := exec.CommandContext(ctx, r.cmd[0], args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return TranscriptResult{}, fmt.Errorf("stt command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return TranscriptResult{}, fmt.Errorf("decode stt response: %w", err)
	}
	return TranscriptResult{Text: resp.Text, Confidence: resp.Confidence}, nil
}

// pcmToTempWav writes PCM into a temp WAV file and returns its path and a
// cleanup func.
func pcmToTempWav(pcm []byte, sampleRate int, channels int) (string, func(), error) {
	if len(pcm)%2 != 0 {
		return "", nil, fmt.Errorf("pcm payload not aligned")
	}

	file, err := os.CreateTemp(os.TempDir(), "oratia_stt_*.wav")
	if err != nil {
		return "", nil, fmt.Errorf("temp file: %w", err)
	}
	cleanup := func() {
		file.Close()
		os.Remove(file.Name())
	}

	buffer := &audio.IntBuffer{Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate}}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return file.Name(), cleanup, nil
}
