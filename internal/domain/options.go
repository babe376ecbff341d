package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// DefaultMaxInputSize is the largest source file accepted for transcoding (5 GiB)
const DefaultMaxInputSize int64 = 5 << 30

// Preset is an encoder speed/quality trade-off
type Preset string

const (
	PresetUltrafast Preset = "ultrafast"
	PresetSuperfast Preset = "superfast"
	PresetVeryfast  Preset = "veryfast"
	PresetFaster    Preset = "faster"
	PresetFast      Preset = "fast"
	PresetMedium    Preset = "medium"
	PresetSlow      Preset = "slow"
	PresetSlower    Preset = "slower"
	PresetVeryslow  Preset = "veryslow"
)

// Presets lists the accepted quality presets from fastest to slowest
var Presets = []Preset{
	PresetUltrafast, PresetSuperfast, PresetVeryfast, PresetFaster, PresetFast,
	PresetMedium, PresetSlow, PresetSlower, PresetVeryslow,
}

// Bitrate is a target video bitrate in ffmpeg notation
type Bitrate string

// Bitrates lists the accepted target bitrates
var Bitrates = []Bitrate{"500k", "1000k", "2000k", "4000k", "8000k"}

// Format is a target container format
type Format string

const (
	FormatMP4  Format = "mp4"
	FormatWebM Format = "webm"
)

// Formats lists the supported target containers
var Formats = []Format{FormatMP4, FormatWebM}

// Extension returns the file extension (without dot) for the format
func (f Format) Extension() string {
	return string(f)
}

// ContentType returns the MIME type used when storing artifacts of this format
func (f Format) ContentType() string {
	switch f {
	case FormatMP4:
		return "video/mp4"
	case FormatWebM:
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}

const (
	DefaultPreset  = PresetMedium
	DefaultBitrate = Bitrate("1000k")
)

// Resolution is a WIDTHxHEIGHT frame size
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

var resolutionPattern = regexp.MustCompile(`^(\d{1,5})x(\d{1,5})$`)

const (
	maxWidth  = 7680
	maxHeight = 4320
)

// ParseResolution parses a WIDTHxHEIGHT string such as "1920x1080"
func ParseResolution(s string) (Resolution, error) {
	m := resolutionPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Resolution{}, &ValidationError{Field: "target_resolution", Message: fmt.Sprintf("%q is not WIDTHxHEIGHT", s)}
	}

	width, _ := strconv.Atoi(m[1])
	height, _ := strconv.Atoi(m[2])
	if width <= 0 || height <= 0 {
		return Resolution{}, &ValidationError{Field: "target_resolution", Message: "width and height must be positive"}
	}
	if width > maxWidth || height > maxHeight {
		return Resolution{}, &ValidationError{Field: "target_resolution", Message: fmt.Sprintf("maximum supported resolution is %dx%d", maxWidth, maxHeight)}
	}

	return Resolution{Width: width, Height: height}, nil
}

// Options are the immutable conversion parameters of a job
type Options struct {
	TargetResolution string  `json:"target_resolution"`
	TargetFormat     Format  `json:"target_format"`
	QualityPreset    Preset  `json:"quality_preset"`
	Bitrate          Bitrate `json:"bitrate"`
	RepeatCount      int     `json:"repeat_count"`
}

// WithDefaults fills the optional fields the way the submission path does
func (o Options) WithDefaults() Options {
	if o.QualityPreset == "" {
		o.QualityPreset = DefaultPreset
	}
	if o.Bitrate == "" {
		o.Bitrate = DefaultBitrate
	}
	if o.RepeatCount == 0 {
		o.RepeatCount = 1
	}
	return o
}

// Validate checks every field against its enumerated domain
func (o Options) Validate() error {
	if _, err := ParseResolution(o.TargetResolution); err != nil {
		return err
	}

	if !containsFormat(o.TargetFormat) {
		return &ValidationError{Field: "target_format", Message: "valid options: " + joinFormats()}
	}

	if !containsPreset(o.QualityPreset) {
		return &ValidationError{Field: "quality_preset", Message: "valid options: " + joinPresets()}
	}

	if !containsBitrate(o.Bitrate) {
		return &ValidationError{Field: "bitrate", Message: "valid options: " + joinBitrates()}
	}

	if o.RepeatCount < 1 {
		return &ValidationError{Field: "repeat_count", Message: "must be 1 or greater"}
	}

	return nil
}

// CheckInputSize rejects sources above maxSize with guidance to use a faster preset
func CheckInputSize(size, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxInputSize
	}
	if size > maxSize {
		return fmt.Errorf("%w: %s exceeds the maximum supported %s; try using 'fast' or 'ultrafast' preset for large files",
			ErrInputTooLarge, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(maxSize)))
	}
	return nil
}

func containsPreset(p Preset) bool {
	for _, v := range Presets {
		if v == p {
			return true
		}
	}
	return false
}

func containsBitrate(b Bitrate) bool {
	for _, v := range Bitrates {
		if v == b {
			return true
		}
	}
	return false
}

func containsFormat(f Format) bool {
	for _, v := range Formats {
		if v == f {
			return true
		}
	}
	return false
}

func joinPresets() string {
	parts := make([]string, len(Presets))
	for i, p := range Presets {
		parts[i] = string(p)
	}
	return strings.Join(parts, ", ")
}

func joinBitrates() string {
	parts := make([]string, len(Bitrates))
	for i, b := range Bitrates {
		parts[i] = string(b)
	}
	return strings.Join(parts, ", ")
}

func joinFormats() string {
	parts := make([]string, len(Formats))
	for i, f := range Formats {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}
