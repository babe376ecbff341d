package transcode

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		stderr       string
		wantCategory Category
		wantMessage  string
	}{
		{
			name:         "killed by signal",
			err:          errors.New("ffmpeg execution: signal: killed"),
			wantCategory: CategoryResources,
			wantMessage:  "Processing failed due to insufficient memory or CPU resources. Try a faster preset (ultrafast/fast) or smaller resolution.",
		},
		{
			name:         "out of memory in stderr",
			err:          errors.New("exit status 1"),
			stderr:       "[libx264 @ 0x1] malloc failed: Cannot allocate memory",
			wantCategory: CategoryResources,
		},
		{
			name:         "disk full",
			err:          errors.New("exit status 1"),
			stderr:       "av_interleaved_write_frame(): No space left on device",
			wantCategory: CategoryDisk,
			wantMessage:  "Processing failed due to insufficient disk space.",
		},
		{
			name:         "io error",
			err:          errors.New("exit status 1"),
			stderr:       "in.mov: Input/output error",
			wantCategory: CategoryCorruptInput,
			wantMessage:  "Input file may be corrupted or in an unsupported format.",
		},
		{
			name:         "missing moov atom",
			err:          errors.New("exit status 1"),
			stderr:       "[mov,mp4 @ 0x1] moov atom not found\nin.mp4: Invalid data found when processing input",
			wantCategory: CategoryCorruptInput,
		},
		{
			name:         "generic failure names last stderr line",
			err:          errors.New("exit status 1"),
			stderr:       "ffmpeg version 6.0\nUnknown encoder 'libfoo'\n",
			wantCategory: CategoryEngine,
			wantMessage:  "Transcoding failed: Unknown encoder 'libfoo'",
		},
		{
			name:         "generic failure without stderr",
			err:          errors.New("exit status 1"),
			wantCategory: CategoryEngine,
			wantMessage:  "Transcoding failed: exit status 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.err, tt.stderr)

			var engineErr *EngineError
			require.True(t, errors.As(err, &engineErr))
			assert.Equal(t, tt.wantCategory, engineErr.Category)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, engineErr.Message)
				assert.Equal(t, tt.wantMessage, err.Error())
			}
			assert.Contains(t, engineErr.Detail, tt.err.Error())
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassify_PassThrough(t *testing.T) {
	assert.NoError(t, Classify(nil, "anything"))

	canceled := fmt.Errorf("wrapped: %w", context.Canceled)
	assert.Same(t, canceled, Classify(canceled, "signal: killed"))

	assert.ErrorIs(t, Classify(context.DeadlineExceeded, ""), context.DeadlineExceeded)

	already := fmt.Errorf("iteration 1: %w", &EngineError{Category: CategoryDisk, Message: "disk"})
	assert.Same(t, already, Classify(already, "Input/output error"))
}
