// Package audio acquires PCM for the pipeline: decoding user-selected files
// and capturing the microphone through an external recorder command.
package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/oratia-labs/oratia-core/internal/config"
)

// ErrUnreadable marks acquisition failures the user can act on (missing,
// empty, or corrupt input).
var ErrUnreadable = errors.New("audio unreadable")

// Clip is decoded mono/interleaved 16-bit little-endian PCM.
type Clip struct {
	PCM        []byte
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// Decode reads an audio file into PCM. WAV files are decoded natively;
// MP3/M4A and anything else go through ffmpeg resampling to the configured
// rate and channel count.
func Decode(ctx context.Context, path string, cfg config.AudioConfig) (Clip, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %s", ErrUnreadable, err)
	}
	if info.Size() == 0 {
		return Clip{}, fmt.Errorf("%w: file is empty", ErrUnreadable)
	}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return decodeWav(path)
	}
	return decodeWithFFmpeg(ctx, path, cfg)
}

func decodeWav(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %s", ErrUnreadable, err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return Clip{}, fmt.Errorf("%w: not a valid wav file", ErrUnreadable)
	}

	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("%w: decode wav: %s", ErrUnreadable, err)
	}
	if buffer == nil || len(buffer.Data) == 0 {
		return Clip{}, fmt.Errorf("%w: wav file contains no samples", ErrUnreadable)
	}

	sampleRate := buffer.Format.SampleRate
	channels := buffer.Format.NumChannels
	pcm := make([]byte, len(buffer.Data)*2)
	for i, sample := range buffer.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(sample)))
	}

	return Clip{
		PCM:        pcm,
		SampleRate: sampleRate,
		Channels:   channels,
		Duration:   PCMDuration(len(pcm), sampleRate, channels),
	}, nil
}

func decodeWithFFmpeg(ctx context.Context, path string, cfg config.AudioConfig) (Clip, error) {
	args := []string{
		"-v", "error",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-",
	}
	cmd := exec.CommandContext(ctx, cfg.FFmpegPath, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Clip{}, fmt.Errorf("%w: ffmpeg decode failed: %s: %s", ErrUnreadable, err, strings.TrimSpace(stderr.String()))
	}
	pcm := stdout.Bytes()
	if len(pcm) == 0 {
		return Clip{}, fmt.Errorf("%w: file contains no audio", ErrUnreadable)
	}

	return Clip{
		PCM:        pcm,
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Duration:   PCMDuration(len(pcm), cfg.SampleRate, cfg.Channels),
	}, nil
}

// PCMDuration converts a 16-bit PCM byte count into wall time.
func PCMDuration(byteLen, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := byteLen / (2 * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
