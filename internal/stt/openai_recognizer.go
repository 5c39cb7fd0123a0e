package stt

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// openaiRecognizer sends audio to the hosted Whisper API.
type openaiRecognizer struct {
	client   *openai.Client
	language string
}

func NewOpenAIRecognizer(apiKey, language string) Recognizer {
	return &openaiRecognizer{
		client:   openai.NewClient(apiKey),
		language: language,
	}
}

func (r *openaiRecognizer) Transcribe(ctx context.Context, pcm []byte, sampleRate int, channels int) (TranscriptResult, error) {
	path, cleanup, err := pcmToTempWav(pcm, sampleRate, channels)
	if err != nil {
		return TranscriptResult{}, err
	}
	defer cleanup()

	resp, err := r.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: path,
		Language: r.language,
	})
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("whisper transcription failed: %w", err)
	}
	return TranscriptResult{Text: resp.Text}, nil
}
