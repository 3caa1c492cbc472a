package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/templui/fileshare/internal/config"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidKey     = errors.New("invalid object key")
)

// Object identifies a stored blob and where it can be fetched.
type Object struct {
	ID        string
	URL       string
	SecureURL string
}

// Storage defines the interface for object storage operations
type Storage interface {
	// Upload stores body under key
	Upload(ctx context.Context, key, contentType string, body io.Reader) (*Object, error)

	// Delete removes the object with the given id
	Delete(ctx context.Context, id string) error
}

// URLSigner is implemented by backends that can hand out time-limited links.
type URLSigner interface {
	SignedURL(ctx context.Context, id string, public bool) (string, error)
}

// New creates the storage backend selected by STORAGE_DRIVER.
func New(ctx context.Context, c *config.Config) (Storage, error) {
	switch c.StorageDriver {
	case "s3":
		slog.Info("initializing S3 storage",
			"bucket", c.S3Bucket,
			"region", c.S3Region,
			"endpoint", c.S3Endpoint,
		)
		return NewS3Storage(ctx, S3Config{
			Region:               c.S3Region,
			Bucket:               c.S3Bucket,
			AccessKey:            c.S3AccessKey,
			SecretKey:            c.S3SecretKey,
			Endpoint:             c.S3Endpoint,
			PresignExpiryPublic:  c.S3PresignExpiryPublic,
			PresignExpiryPrivate: c.S3PresignExpiryPrivate,
		})
	case "local":
		slog.Info("initializing local storage", "path", c.LocalStoragePath)
		return NewLocalStorage(c.LocalStoragePath, c.AppURL+LocalURLPrefix)
	}
	return nil, fmt.Errorf("unknown storage driver %q", c.StorageDriver)
}

// ObjectKey builds a key under folder from an id and the original file extension.
func ObjectKey(folder, id, originalName string) string {
	ext := strings.ToLower(path.Ext(originalName))
	return path.Join(folder, id+ext)
}

// cleanKey rejects keys that would escape the storage root.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if key == "" || key == "." {
		return "", ErrInvalidKey
	}
	return key, nil
}
