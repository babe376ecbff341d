package transcode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cuongbtq/media-transcoder/internal/domain"
)

const stderrTailBytes = 8 << 10

// Encoder drives ffmpeg and ffprobe as subprocesses
type Encoder struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

func NewEncoder(ffmpegPath, ffprobePath string, logger *slog.Logger) *Encoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Encoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		logger:      logger,
	}
}

// Probe returns the media duration in seconds
func (e *Encoder) Probe(ctx context.Context, input string) (float64, error) {
	cmd := exec.CommandContext(ctx, e.ffprobePath, "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", input)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	durationStr := strings.TrimSpace(string(output))
	if durationStr == "" || durationStr == "N/A" {
		return 0, errors.New("empty duration")
	}
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", durationStr, err)
	}
	return duration, nil
}

// Encode converts input into output in one pass. Progress callbacks run on the
// calling goroutine, in order, before Encode returns.
func (e *Encoder) Encode(ctx context.Context, input, output string, opts domain.Options, onProgress ProgressFunc) error {
	args, err := BuildArgs(input, output, opts)
	if err != nil {
		return err
	}

	duration, err := e.Probe(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn("Duration probe failed, progress will be coarse",
			slog.String("input", input),
			slog.Any("error", err),
		)
	}

	return e.run(ctx, args, duration, onProgress)
}

// Concat joins the files listed in listPath by stream copy
func (e *Encoder) Concat(ctx context.Context, listPath, output string, format domain.Format, onProgress ProgressFunc) error {
	args, err := ConcatArgs(listPath, output, format)
	if err != nil {
		return err
	}
	return e.run(ctx, args, 0, onProgress)
}

func (e *Encoder) run(ctx context.Context, args []string, duration float64, onProgress ProgressFunc) error {
	if onProgress == nil {
		onProgress = func(Event) {}
	}

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := &tailBuffer{max: stderrTailBytes}
	cmd.Stderr = stderr

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return Classify(fmt.Errorf("ffmpeg start: %w", err), "")
	}

	e.logger.Debug("FFmpeg started",
		slog.String("command", e.ffmpegPath+" "+strings.Join(args, " ")),
	)

	parser := &progressParser{duration: duration}
	done := false

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if ev, ok := parser.feed(scanner.Text()); ok {
			done = done || ev.Done
			onProgress(ev)
		}
	}
	scanErr := scanner.Err()

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		return Classify(fmt.Errorf("ffmpeg execution: %w", waitErr), stderr.String())
	}
	if scanErr != nil {
		return Classify(fmt.Errorf("read ffmpeg progress: %w", scanErr), stderr.String())
	}

	if !done {
		final := parser.current
		final.Percent = 100
		final.Done = true
		onProgress(final)
	}

	e.logger.Debug("FFmpeg finished",
		slog.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// tailBuffer keeps the last max bytes written to it
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
