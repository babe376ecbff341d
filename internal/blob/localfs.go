package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// LocalFS keeps blobs on the local filesystem, one directory per category.
// Signed URLs are plain file:// URLs, suitable for single-host deployments and tests.
type LocalFS struct {
	Root string
}

func (l LocalFS) path(ref string) (string, error) {
	category, name, err := SplitRef(ref)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.Root, string(category), filepath.FromSlash(name)), nil
}

func (l LocalFS) Upload(ctx context.Context, ref string, r io.Reader, opts UploadOptions) (Object, error) {
	abs, err := l.path(ref)
	if err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return Object{}, fmt.Errorf("create blob directory: %w", err)
	}

	// write then rename so readers never observe a partial object
	tmp, err := os.CreateTemp(filepath.Dir(abs), ".upload-*")
	if err != nil {
		return Object{}, fmt.Errorf("create blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Object{}, fmt.Errorf("write blob: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	if err := os.Rename(tmp.Name(), abs); err != nil {
		return Object{}, fmt.Errorf("commit blob: %w", err)
	}

	return Object{Ref: ref, Size: n, Location: fileURL(abs)}, nil
}

func (l LocalFS) Download(ctx context.Context, ref string) (io.ReadCloser, error) {
	abs, err := l.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

func (l LocalFS) Stat(ctx context.Context, ref string) (Object, error) {
	abs, err := l.path(ref)
	if err != nil {
		return Object{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Object{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return Object{}, fmt.Errorf("stat blob: %w", err)
	}
	return Object{Ref: ref, Size: info.Size(), Location: fileURL(abs)}, nil
}

func (l LocalFS) SignedURL(ctx context.Context, ref string, ttl time.Duration, downloadName string) (string, error) {
	obj, err := l.Stat(ctx, ref)
	if err != nil {
		return "", err
	}
	return obj.Location, nil
}

func fileURL(abs string) string {
	if a, err := filepath.Abs(abs); err == nil {
		abs = a
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}
