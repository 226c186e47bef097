package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when an asset does not exist.
	ErrNotFound = errors.New("assets: not found")

	// ErrInvalidName is returned for names that escape the source root.
	ErrInvalidName = errors.New("assets: invalid name")
)

// Asset is an open asset. The caller closes Body.
type Asset struct {
	Name        string
	Body        io.ReadCloser
	Size        int64
	ContentType string
	ModTime     time.Time
	ETag        string
}

// Source opens assets by slash-separated name.
type Source interface {
	Open(ctx context.Context, name string) (*Asset, error)
}

// cleanName validates name and returns it without a leading slash.
func cleanName(name string) (string, error) {
	if strings.Contains(name, "\\") || strings.Contains(name, "\x00") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	clean := strings.TrimPrefix(path.Clean("/"+name), "/")
	if clean == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return clean, nil
}

// ContentType guesses a MIME type from the file extension.
func ContentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Dir serves files below a local directory.
type Dir struct {
	root string
}

// NewDir creates a Dir source rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Open opens a regular file below the root.
func (d *Dir) Open(_ context.Context, name string) (*Asset, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(d.root, filepath.FromSlash(clean)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, clean)
		}
		return nil, fmt.Errorf("assets: open %s: %w", clean, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("assets: stat %s: %w", clean, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, clean)
	}
	return &Asset{
		Name:        clean,
		Body:        f,
		Size:        info.Size(),
		ContentType: ContentType(clean),
		ModTime:     info.ModTime(),
	}, nil
}
