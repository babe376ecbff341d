package transcode

import (
	"fmt"
	"strconv"

	"github.com/cuongbtq/media-transcoder/internal/domain"
)

const (
	audioBitrate = "128k"
	bufferSize   = "2M"
)

// profile is the codec pairing and speed tuning for one container format
type profile struct {
	videoCodec string
	audioCodec string
	muxer      string
	tuning     func(preset domain.Preset) []string
}

var profiles = map[domain.Format]profile{
	domain.FormatMP4: {
		videoCodec: "libx264",
		audioCodec: "aac",
		muxer:      "mp4",
		tuning: func(preset domain.Preset) []string {
			return []string{"-preset", string(preset), "-movflags", "+faststart"}
		},
	},
	domain.FormatWebM: {
		videoCodec: "libvpx",
		audioCodec: "libvorbis",
		muxer:      "webm",
		tuning: func(preset domain.Preset) []string {
			return []string{"-cpu-used", strconv.Itoa(vpxCPUUsed(preset))}
		},
	},
}

// vpxCPUUsed maps x264-style preset names onto libvpx -cpu-used levels
func vpxCPUUsed(preset domain.Preset) int {
	switch preset {
	case domain.PresetUltrafast, domain.PresetSuperfast, domain.PresetVeryfast:
		return 0
	case domain.PresetFaster, domain.PresetFast:
		return 1
	case domain.PresetSlow, domain.PresetSlower:
		return 4
	case domain.PresetVeryslow:
		return 5
	default:
		return 2
	}
}

func profileFor(format domain.Format) (profile, error) {
	p, ok := profiles[format]
	if !ok {
		return profile{}, fmt.Errorf("unsupported target format %q", format)
	}
	return p, nil
}

// BuildArgs returns the ffmpeg arguments for one encode pass
func BuildArgs(input, output string, opts domain.Options) ([]string, error) {
	opts = opts.WithDefaults()

	p, err := profileFor(opts.TargetFormat)
	if err != nil {
		return nil, err
	}
	res, err := domain.ParseResolution(opts.TargetResolution)
	if err != nil {
		return nil, err
	}

	args := []string{
		"-y",
		"-i", input,
		"-c:v", p.videoCodec,
		"-c:a", p.audioCodec,
	}
	args = append(args, p.tuning(opts.QualityPreset)...)
	args = append(args,
		"-threads", "0",
		"-b:v", string(opts.Bitrate),
		"-maxrate", string(opts.Bitrate),
		"-bufsize", bufferSize,
		"-b:a", audioBitrate,
		"-s", res.String(),
		"-f", p.muxer,
		"-progress", "pipe:1",
		"-nostats",
		output,
	)
	return args, nil
}

// ConcatArgs returns the ffmpeg arguments that join the files named in listPath without re-encoding
func ConcatArgs(listPath, output string, format domain.Format) ([]string, error) {
	p, err := profileFor(format)
	if err != nil {
		return nil, err
	}

	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-f", p.muxer,
		"-progress", "pipe:1",
		"-nostats",
		output,
	}, nil
}
