package transcode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/media-transcoder/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript installs an executable shell script standing in for ffmpeg or ffprobe
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-ins need a POSIX shell")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

const fakeProbe = `echo "10.000000"
`

// fakeEncode records its arguments, reports two progress blocks and writes the output file
const fakeEncode = `echo "$@" > "$(dirname "$0")/args.txt"
for last; do :; done
echo "frame=60"
echo "fps=30.00"
echo "bitrate= 812.5kbits/s"
echo "out_time_us=5000000"
echo "out_time=00:00:05.000000"
echo "progress=continue"
echo "out_time_us=10000000"
echo "out_time=00:00:10.000000"
echo "progress=end"
printf 'encoded' > "$last"
`

var testOpts = domain.Options{
	TargetResolution: "640x360",
	TargetFormat:     domain.FormatMP4,
	QualityPreset:    domain.PresetUltrafast,
	Bitrate:          "500k",
	RepeatCount:      1,
}

func newTestEncoder(t *testing.T, ffmpegBody, ffprobeBody string) (*Encoder, string) {
	t.Helper()
	dir := t.TempDir()
	ffmpeg := writeScript(t, dir, "ffmpeg", ffmpegBody)
	ffprobe := writeScript(t, dir, "ffprobe", ffprobeBody)
	return NewEncoder(ffmpeg, ffprobe, slog.New(slog.NewTextHandler(io.Discard, nil))), dir
}

func TestEncoder_Encode(t *testing.T) {
	enc, dir := newTestEncoder(t, fakeEncode, fakeProbe)
	output := filepath.Join(dir, "out.mp4")

	var events []Event
	err := enc.Encode(context.Background(), "in.mov", output, testOpts, func(ev Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.InDelta(t, 50, events[0].Percent, 0.001)
	assert.Equal(t, "00:00:05.000000", events[0].Timemark)
	assert.InDelta(t, 812.5, events[0].KBPS, 0.001)
	assert.InDelta(t, 30, events[0].FPS, 0.001)
	assert.Equal(t, float64(100), events[1].Percent)
	assert.True(t, events[1].Done)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "encoded", string(data))

	args, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(args), "-c:v libx264")
	assert.Contains(t, string(args), "-preset ultrafast")
	assert.Contains(t, string(args), "-s 640x360")
}

func TestEncoder_ProbeFailureIsCoarse(t *testing.T) {
	enc, dir := newTestEncoder(t, fakeEncode, "exit 1\n")

	var events []Event
	err := enc.Encode(context.Background(), "in.mov", filepath.Join(dir, "out.mp4"), testOpts, func(ev Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Zero(t, events[0].Percent)
	assert.Equal(t, float64(100), events[1].Percent)
}

func TestEncoder_FinalEventWithoutProgressEnd(t *testing.T) {
	enc, dir := newTestEncoder(t, "for last; do :; done\nprintf x > \"$last\"\n", fakeProbe)

	var events []Event
	err := enc.Encode(context.Background(), "in.mov", filepath.Join(dir, "out.mp4"), testOpts, func(ev Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, float64(100), events[0].Percent)
}

func TestEncoder_Failures(t *testing.T) {
	tests := []struct {
		name         string
		script       string
		wantCategory Category
	}{
		{
			name:         "killed",
			script:       "echo \"progress=continue\"\nkill -9 $$\n",
			wantCategory: CategoryResources,
		},
		{
			name:         "disk full",
			script:       "echo 'av_interleaved_write_frame(): No space left on device' >&2\nexit 1\n",
			wantCategory: CategoryDisk,
		},
		{
			name:         "corrupt input",
			script:       "echo 'in.mov: Invalid data found when processing input' >&2\nexit 1\n",
			wantCategory: CategoryCorruptInput,
		},
		{
			name:         "unknown failure",
			script:       "echo 'Conversion failed!' >&2\nexit 1\n",
			wantCategory: CategoryEngine,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, dir := newTestEncoder(t, tt.script, fakeProbe)

			err := enc.Encode(context.Background(), "in.mov", filepath.Join(dir, "out.mp4"), testOpts, nil)
			require.Error(t, err)

			var engineErr *EngineError
			require.True(t, errors.As(err, &engineErr), "got %v", err)
			assert.Equal(t, tt.wantCategory, engineErr.Category)
			assert.NotEmpty(t, engineErr.Detail)
		})
	}
}

func TestEncoder_Cancellation(t *testing.T) {
	enc, dir := newTestEncoder(t, "exec sleep 5\n", fakeProbe)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := enc.Encode(ctx, "in.mov", filepath.Join(dir, "out.mp4"), testOpts, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)

	var engineErr *EngineError
	assert.False(t, errors.As(err, &engineErr))
}

func TestEncoder_Concat(t *testing.T) {
	enc, dir := newTestEncoder(t, fakeEncode, fakeProbe)
	output := filepath.Join(dir, "final.webm")

	var events []Event
	err := enc.Concat(context.Background(), filepath.Join(dir, "list.txt"), output, domain.FormatWebM, func(ev Event) {
		events = append(events, ev)
	})
	require.NoError(t, err)

	args, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(args), "-y -f concat -safe 0 -i "))
	assert.Contains(t, string(args), "-c copy")

	// no duration is known for concat, only the end event carries a percent
	require.Len(t, events, 2)
	assert.Zero(t, events[0].Percent)
	assert.Equal(t, float64(100), events[1].Percent)
}

func TestEncoder_Probe(t *testing.T) {
	enc, _ := newTestEncoder(t, fakeEncode, fakeProbe)
	duration, err := enc.Probe(context.Background(), "in.mov")
	require.NoError(t, err)
	assert.Equal(t, 10.0, duration)

	enc, _ = newTestEncoder(t, fakeEncode, "echo N/A\n")
	_, err = enc.Probe(context.Background(), "in.mov")
	assert.Error(t, err)
}

func TestTailBuffer(t *testing.T) {
	tail := &tailBuffer{max: 8}
	_, _ = tail.Write([]byte("0123456789"))
	_, _ = tail.Write([]byte("ab"))
	assert.Equal(t, "456789ab", tail.String())
}
