package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuongbtq/media-transcoder/internal/domain"
)

// Share of the percent scale given to the encode passes; the rest belongs to concatenation
const encodeShare = 95.0

// Engine is the encoding engine the orchestrator sequences
type Engine interface {
	Encode(ctx context.Context, input, output string, opts domain.Options, onProgress ProgressFunc) error
	Concat(ctx context.Context, listPath, output string, format domain.Format, onProgress ProgressFunc) error
}

// ReportFunc receives the job-wide percent, never decreasing within one run
type ReportFunc func(percent int, detail domain.ProgressDetail)

// Orchestrator runs the encode pass RepeatCount times and joins the results
type Orchestrator struct {
	engine  Engine
	workDir string
	logger  *slog.Logger
}

func NewOrchestrator(engine Engine, workDir string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		engine:  engine,
		workDir: workDir,
		logger:  logger,
	}
}

// ArtifactPaths are the worker-local files of one job run
type ArtifactPaths struct {
	Iterations []string
	ConcatList string
	Final      string
}

// Paths returns the deterministic artifact paths of a job; a redelivered run reuses them
func (o *Orchestrator) Paths(jobID string, format domain.Format, n int) ArtifactPaths {
	ext := format.Extension()
	paths := ArtifactPaths{
		ConcatList: filepath.Join(o.workDir, jobID+"_concat_list.txt"),
		Final:      filepath.Join(o.workDir, jobID+"."+ext),
	}
	for i := 1; i <= n; i++ {
		paths.Iterations = append(paths.Iterations, filepath.Join(o.workDir, fmt.Sprintf("%s_iteration_%d.%s", jobID, i, ext)))
	}
	return paths
}

// Run produces the final artifact for a job and returns its path.
// Iteration files and the concat manifest are removed on every path;
// the final artifact is removed too when the run fails.
func (o *Orchestrator) Run(ctx context.Context, jobID, input string, opts domain.Options, report ReportFunc) (finalPath string, err error) {
	opts = opts.WithDefaults()
	if report == nil {
		report = func(int, domain.ProgressDetail) {}
	}

	n := opts.RepeatCount
	if n < 1 {
		n = 1
	}

	if err := os.MkdirAll(o.workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}

	paths := o.Paths(jobID, opts.TargetFormat, n)

	defer func() {
		for _, p := range paths.Iterations {
			o.remove(p)
		}
		o.remove(paths.ConcatList)
		if err != nil {
			o.remove(paths.Final)
		}
	}()

	last := 0
	emit := func(percent float64, detail domain.ProgressDetail) {
		p := int(math.Floor(percent))
		if p > 100 {
			p = 100
		}
		if p < last {
			p = last
		}
		last = p
		report(p, detail)
	}

	for i := 1; i <= n; i++ {
		lo := float64(i-1) / float64(n) * encodeShare
		hi := float64(i) / float64(n) * encodeShare
		iteration := i

		message := "Transcoding..."
		if n > 1 {
			message = fmt.Sprintf("Iteration %d of %d", iteration, n)
		}

		o.logger.Info("Starting encode pass",
			slog.String("job_id", jobID),
			slog.Int("iteration", iteration),
			slog.Int("iterations", n),
		)

		err := o.engine.Encode(ctx, input, paths.Iterations[i-1], opts, func(ev Event) {
			emit(lo+(hi-lo)*ev.Percent/100, domain.ProgressDetail{
				Stage:      "encoding",
				Message:    message,
				Timemark:   ev.Timemark,
				KBPS:       ev.KBPS,
				FPS:        ev.FPS,
				Iteration:  iteration,
				Iterations: n,
			})
		})
		if err != nil {
			return "", fmt.Errorf("iteration %d of %d: %w", iteration, n, err)
		}
	}

	if n == 1 {
		if err := os.Rename(paths.Iterations[0], paths.Final); err != nil {
			return "", fmt.Errorf("move artifact into place: %w", err)
		}
	} else {
		if err := writeConcatList(paths.ConcatList, paths.Iterations); err != nil {
			return "", err
		}

		message := fmt.Sprintf("Stitching %d iterations together...", n)
		emit(encodeShare, domain.ProgressDetail{Stage: "finalizing", Message: message, Iterations: n})

		err := o.engine.Concat(ctx, paths.ConcatList, paths.Final, opts.TargetFormat, func(ev Event) {
			emit(encodeShare+(100-encodeShare)*ev.Percent/100, domain.ProgressDetail{
				Stage:      "finalizing",
				Message:    message,
				Timemark:   ev.Timemark,
				Iterations: n,
			})
		})
		if err != nil {
			return "", fmt.Errorf("concatenate %d iterations: %w", n, err)
		}
	}

	emit(100, domain.ProgressDetail{Stage: "finalizing", Message: "Transcoding complete", Iterations: n})
	return paths.Final, nil
}

func (o *Orchestrator) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		o.logger.Warn("Could not clean up artifact",
			slog.String("path", path),
			slog.Any("error", err),
		)
	}
}

// writeConcatList writes an ffmpeg concat demuxer manifest
func writeConcatList(listPath string, files []string) error {
	var b strings.Builder
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", f, err)
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}
