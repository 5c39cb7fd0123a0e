package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
	"github.com/oratia-labs/oratia-core/internal/config"
)

// Recorder captures microphone audio by running an external command that
// writes raw s16le PCM to stdout, e.g.
// "arecord -q -f S16_LE -r 16000 -c 1 -t raw".
type Recorder struct {
	cmd []string
	cfg config.AudioConfig
}

func NewRecorder(cfg config.AudioConfig) (*Recorder, error) {
	if cfg.RecordCommand == "" {
		return nil, errors.New("audio.record_command is not configured")
	}
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.RecordCommand)
	if err != nil {
		return nil, fmt.Errorf("parse record command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("record command is empty")
	}
	return &Recorder{cmd: args, cfg: cfg}, nil
}

// Capture is one in-flight recording. Chunks carries PCM in
// chunk_duration_ms slices and is closed when the recorder stops; Err
// reports at most one failure.
type Capture struct {
	Chunks <-chan []byte
	Err    <-chan error

	stop    context.CancelFunc
	stopped sync.Once
}

// Stop terminates the recording process. Safe to call more than once.
func (c *Capture) Stop() {
	c.stopped.Do(c.stop)
}

// Start launches the record command and streams its output.
func (r *Recorder) Start(ctx context.Context) (*Capture, error) {
	ctx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(ctx, r.cmd[0], r.cmd[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start record command: %w", err)
	}

	chunkBytes := r.cfg.SampleRate * r.cfg.Channels * 2 * r.cfg.ChunkDurationMS / 1000
	if chunkBytes <= 0 {
		chunkBytes = 4096
	}

	chunks := make(chan []byte)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		defer cmd.Wait()

		buf := make([]byte, chunkBytes)
		for {
			n, err := io.ReadFull(stdout, buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				// EOF after cancellation is the normal stop path.
				if ctx.Err() == nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					errs <- fmt.Errorf("read recorder output: %w", err)
				}
				return
			}
		}
	}()

	return &Capture{Chunks: chunks, Err: errs, stop: cancel}, nil
}
