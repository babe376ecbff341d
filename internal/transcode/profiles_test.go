package transcode

import (
	"testing"

	"github.com/cuongbtq/media-transcoder/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name    string
		opts    domain.Options
		want    []string
		wantErr bool
	}{
		{
			name: "mp4 uses x264 preset and faststart",
			opts: domain.Options{TargetResolution: "640x360", TargetFormat: domain.FormatMP4, QualityPreset: domain.PresetFast, Bitrate: "2000k", RepeatCount: 1},
			want: []string{
				"-y", "-i", "in.mov",
				"-c:v", "libx264", "-c:a", "aac",
				"-preset", "fast", "-movflags", "+faststart",
				"-threads", "0", "-b:v", "2000k", "-maxrate", "2000k", "-bufsize", "2M", "-b:a", "128k",
				"-s", "640x360", "-f", "mp4", "-progress", "pipe:1", "-nostats", "out.mp4",
			},
		},
		{
			name: "webm maps preset to cpu-used",
			opts: domain.Options{TargetResolution: "1280x720", TargetFormat: domain.FormatWebM, QualityPreset: domain.PresetVeryslow, Bitrate: "500k", RepeatCount: 1},
			want: []string{
				"-y", "-i", "in.mov",
				"-c:v", "libvpx", "-c:a", "libvorbis",
				"-cpu-used", "5",
				"-threads", "0", "-b:v", "500k", "-maxrate", "500k", "-bufsize", "2M", "-b:a", "128k",
				"-s", "1280x720", "-f", "webm", "-progress", "pipe:1", "-nostats", "out.mp4",
			},
		},
		{
			name: "defaults applied",
			opts: domain.Options{TargetResolution: "320x240", TargetFormat: domain.FormatMP4},
			want: []string{
				"-y", "-i", "in.mov",
				"-c:v", "libx264", "-c:a", "aac",
				"-preset", "medium", "-movflags", "+faststart",
				"-threads", "0", "-b:v", "1000k", "-maxrate", "1000k", "-bufsize", "2M", "-b:a", "128k",
				"-s", "320x240", "-f", "mp4", "-progress", "pipe:1", "-nostats", "out.mp4",
			},
		},
		{
			name:    "unknown format",
			opts:    domain.Options{TargetResolution: "320x240", TargetFormat: "avi"},
			wantErr: true,
		},
		{
			name:    "bad resolution",
			opts:    domain.Options{TargetResolution: "big", TargetFormat: domain.FormatMP4},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := BuildArgs("in.mov", "out.mp4", tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, args)
		})
	}
}

func TestVPXCPUUsed(t *testing.T) {
	tests := []struct {
		preset domain.Preset
		want   int
	}{
		{domain.PresetUltrafast, 0},
		{domain.PresetSuperfast, 0},
		{domain.PresetVeryfast, 0},
		{domain.PresetFaster, 1},
		{domain.PresetFast, 1},
		{domain.PresetMedium, 2},
		{domain.PresetSlow, 4},
		{domain.PresetSlower, 4},
		{domain.PresetVeryslow, 5},
		{"unknown", 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.preset), func(t *testing.T) {
			assert.Equal(t, tt.want, vpxCPUUsed(tt.preset))
		})
	}
}

func TestConcatArgs(t *testing.T) {
	args, err := ConcatArgs("/work/job_concat_list.txt", "/work/job.webm", domain.FormatWebM)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-y", "-f", "concat", "-safe", "0", "-i", "/work/job_concat_list.txt",
		"-c", "copy", "-f", "webm", "-progress", "pipe:1", "-nostats", "/work/job.webm",
	}, args)

	_, err = ConcatArgs("list", "out", "avi")
	assert.Error(t, err)
}
