package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Category is a namespace inside the Blob Store
type Category string

const (
	CategoryOriginal  Category = "original"
	CategoryProcessed Category = "processed"
)

var Categories = []Category{CategoryOriginal, CategoryProcessed}

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidRef = errors.New("invalid blob reference")
)

// UploadOptions describes the object being written
type UploadOptions struct {
	ContentType string
	Size        int64 // -1 when unknown
}

// Object is a stored blob
type Object struct {
	Ref      string
	Size     int64
	Location string
}

// Store persists input and output media under "<category>/<name>" references
type Store interface {
	Upload(ctx context.Context, ref string, r io.Reader, opts UploadOptions) (Object, error)
	Download(ctx context.Context, ref string) (io.ReadCloser, error)
	Stat(ctx context.Context, ref string) (Object, error)
	// SignedURL returns a time-limited URL; downloadName sets the filename offered to the browser
	SignedURL(ctx context.Context, ref string, ttl time.Duration, downloadName string) (string, error)
}

// Ref joins a category and an object name
func Ref(category Category, name string) string {
	return string(category) + "/" + name
}

// SplitRef validates a reference and returns its parts
func SplitRef(ref string) (Category, string, error) {
	category, name, ok := strings.Cut(ref, "/")
	if !ok || name == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}

	known := false
	for _, c := range Categories {
		if Category(category) == c {
			known = true
			break
		}
	}
	if !known {
		return "", "", fmt.Errorf("%w: unknown category %q", ErrInvalidRef, category)
	}

	if cleaned := path.Clean(name); cleaned != name || cleaned == "." || strings.HasPrefix(cleaned, "..") || strings.HasPrefix(cleaned, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}

	return Category(category), name, nil
}
