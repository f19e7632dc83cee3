package artifact

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Store is the object storage used for payloads, rendered documents and bundles.
type Store interface {
	Put(ctx context.Context, path string, content []byte, contentType string, metadata map[string]string) error
	Get(ctx context.Context, path string) ([]byte, error)
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

var ErrNotFound = errors.New("artifact not found")

func normalizePath(path string) string {
	return strings.TrimLeft(strings.TrimSpace(path), "/")
}
