package transcode

import (
	"strconv"
	"strings"
)

// Event is one progress report from the engine
type Event struct {
	Percent  float64 // 0..100 of the current pass, 0 while the duration is unknown
	Timemark string
	KBPS     float64
	FPS      float64
	Done     bool
}

// ProgressFunc receives events in order from the goroutine running the engine
type ProgressFunc func(Event)

// progressParser folds ffmpeg's "-progress" key=value stream into events.
// ffmpeg ends each block with a progress=continue or progress=end line.
type progressParser struct {
	duration float64 // seconds
	current  Event
}

func (p *progressParser) feed(line string) (Event, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return Event{}, false
	}
	value = strings.TrimSpace(value)

	switch key {
	case "out_time_us", "out_time_ms":
		// both keys carry microseconds
		us, err := strconv.ParseFloat(value, 64)
		if err != nil || p.duration <= 0 {
			return Event{}, false
		}
		p.current.Percent = clampPercent(us / 1e6 / p.duration * 100)
	case "out_time":
		p.current.Timemark = value
	case "bitrate":
		if kbps, err := strconv.ParseFloat(strings.TrimSuffix(value, "kbits/s"), 64); err == nil {
			p.current.KBPS = kbps
		}
	case "fps":
		if fps, err := strconv.ParseFloat(value, 64); err == nil {
			p.current.FPS = fps
		}
	case "progress":
		if value == "end" {
			p.current.Percent = 100
			p.current.Done = true
		}
		return p.current, true
	}

	return Event{}, false
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
