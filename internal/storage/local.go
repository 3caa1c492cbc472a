package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalURLPrefix is the route local objects are served under.
const LocalURLPrefix = "/uploads/"

// LocalStorage keeps objects on disk below baseDir.
type LocalStorage struct {
	baseDir string
	baseURL string
}

func NewLocalStorage(baseDir, baseURL string) (*LocalStorage, error) {
	absBaseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage directory: %w", err)
	}

	err = os.MkdirAll(absBaseDir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &LocalStorage{baseDir: absBaseDir, baseURL: baseURL}, nil
}

// Dir is the absolute storage root.
func (s *LocalStorage) Dir() string {
	return s.baseDir
}

func (s *LocalStorage) Upload(ctx context.Context, key, contentType string, body io.Reader) (*Object, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	absPath := filepath.Join(s.baseDir, filepath.FromSlash(key))

	err = os.MkdirAll(filepath.Dir(absPath), 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	dst, err := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	_, err = io.Copy(dst, &ctxReader{ctx: ctx, r: body})
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(absPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	url := s.baseURL + key
	return &Object{ID: key, URL: url, SecureURL: url}, nil
}

func (s *LocalStorage) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, err := cleanKey(id)
	if err != nil {
		return err
	}

	err = os.Remove(filepath.Join(s.baseDir, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// ctxReader stops a copy once ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
