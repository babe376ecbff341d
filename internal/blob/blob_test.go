package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitRef(t *testing.T) {
	tests := []struct {
		name         string
		ref          string
		wantCategory Category
		wantName     string
		wantErr      bool
	}{
		{name: "original", ref: "original/abc.mov", wantCategory: CategoryOriginal, wantName: "abc.mov"},
		{name: "processed nested", ref: "processed/2024/out.mp4", wantCategory: CategoryProcessed, wantName: "2024/out.mp4"},
		{name: "missing name", ref: "original/", wantErr: true},
		{name: "no separator", ref: "abc.mov", wantErr: true},
		{name: "unknown category", ref: "thumbs/abc.png", wantErr: true},
		{name: "parent traversal", ref: "original/../secret", wantErr: true},
		{name: "leading traversal", ref: "original/../../etc/passwd", wantErr: true},
		{name: "dot name", ref: "original/.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category, name, err := SplitRef(tt.ref)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRef)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCategory, category)
			assert.Equal(t, tt.wantName, name)
		})
	}

	assert.Equal(t, "processed/out.mp4", Ref(CategoryProcessed, "out.mp4"))
}

func TestLocalFS(t *testing.T) {
	ctx := context.Background()
	store := LocalFS{Root: t.TempDir()}
	ref := Ref(CategoryProcessed, "transcoded_job_640x360.mp4")

	obj, err := store.Upload(ctx, ref, strings.NewReader("first"), UploadOptions{ContentType: "video/mp4", Size: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(5), obj.Size)
	assert.True(t, strings.HasPrefix(obj.Location, "file://"))

	// uploads to the same ref overwrite
	_, err = store.Upload(ctx, ref, strings.NewReader("second!"), UploadOptions{Size: -1})
	require.NoError(t, err)

	rc, err := store.Download(ctx, ref)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "second!", string(data))

	stat, err := store.Stat(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stat.Size)

	signed, err := store.SignedURL(ctx, ref, time.Hour, "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, stat.Location, signed)

	// no temp files are left behind
	entries, err := os.ReadDir(filepath.Join(store.Root, string(CategoryProcessed)))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalFS_NotFound(t *testing.T) {
	ctx := context.Background()
	store := LocalFS{Root: t.TempDir()}

	_, err := store.Download(ctx, "original/missing.mov")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Stat(ctx, "original/missing.mov")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.SignedURL(ctx, "processed/missing.mp4", time.Hour, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Upload(ctx, "bogus/x", bytes.NewReader(nil), UploadOptions{})
	assert.ErrorIs(t, err, ErrInvalidRef)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestLocalFS_FailedUploadLeavesNothing(t *testing.T) {
	ctx := context.Background()
	store := LocalFS{Root: t.TempDir()}
	ref := "original/partial.mov"

	_, err := store.Upload(ctx, ref, failingReader{}, UploadOptions{})
	require.Error(t, err)

	_, err = store.Stat(ctx, ref)
	assert.ErrorIs(t, err, ErrNotFound)

	err = filepath.WalkDir(store.Root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			t.Errorf("unexpected file left behind: %s", path)
		}
		return err
	})
	require.NoError(t, err)
}

func TestMinioStore_SignedURL(t *testing.T) {
	store, err := NewMinioStore(MinioConfig{
		Endpoint:     "localhost:9000",
		AccessKey:    "minio",
		SecretKey:    "minio123",
		Region:       "us-east-1",
		BucketPrefix: "videotranscoder-",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	assert.Equal(t, "videotranscoder-processed", store.Bucket(CategoryProcessed))

	signed, err := store.SignedURL(context.Background(), "processed/transcoded_job_640x360.mp4", time.Hour, "transcoded_clip_640x360.mp4")
	require.NoError(t, err)
	assert.Contains(t, signed, "http://localhost:9000/videotranscoder-processed/transcoded_job_640x360.mp4")
	assert.Contains(t, signed, "X-Amz-Expires=3600")
	assert.Contains(t, signed, "response-content-disposition")

	_, err = store.SignedURL(context.Background(), "processed/", time.Hour, "")
	assert.ErrorIs(t, err, ErrInvalidRef)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("dial tcp: connection refused")))
}

var (
	_ Store = LocalFS{}
	_ Store = (*MinioStore)(nil)
)
