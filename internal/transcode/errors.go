package transcode

import (
	"context"
	"errors"
	"strings"
)

// Category groups engine failures by what the user can do about them
type Category string

const (
	CategoryResources    Category = "resources"
	CategoryDisk         Category = "disk"
	CategoryCorruptInput Category = "corrupt_input"
	CategoryEngine       Category = "engine"
)

// EngineError is a classified engine failure. Message is safe to show users,
// Detail keeps the raw engine output for logs.
type EngineError struct {
	Category Category
	Message  string
	Detail   string
	Err      error
}

func (e *EngineError) Error() string {
	return e.Message
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

var classifications = []struct {
	category Category
	needles  []string
	message  string
}{
	{
		category: CategoryResources,
		needles:  []string{"SIGKILL", "signal: killed", "killed", "Cannot allocate memory"},
		message:  "Processing failed due to insufficient memory or CPU resources. Try a faster preset (ultrafast/fast) or smaller resolution.",
	},
	{
		category: CategoryDisk,
		needles:  []string{"No space left"},
		message:  "Processing failed due to insufficient disk space.",
	},
	{
		category: CategoryCorruptInput,
		needles:  []string{"Input/output error", "Invalid data found", "moov atom not found"},
		message:  "Input file may be corrupted or in an unsupported format.",
	},
}

// Classify turns a failed engine run into an EngineError.
// Context cancellation is returned unchanged: it is not an engine failure.
func Classify(err error, stderrTail string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return err
	}

	haystack := err.Error() + "\n" + stderrTail
	detail := strings.TrimSpace(err.Error() + "\n" + stderrTail)

	for _, c := range classifications {
		for _, needle := range c.needles {
			if strings.Contains(haystack, needle) {
				return &EngineError{Category: c.category, Message: c.message, Detail: detail, Err: err}
			}
		}
	}

	message := "Transcoding failed"
	if last := lastLine(stderrTail); last != "" {
		message += ": " + last
	} else {
		message += ": " + err.Error()
	}
	return &EngineError{Category: CategoryEngine, Message: message, Detail: detail, Err: err}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
