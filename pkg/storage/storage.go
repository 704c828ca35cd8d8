// Package storage keeps uploaded payment screenshots on local disk or in an
// S3-compatible bucket behind a single interface.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/noah-isme/academy-api/pkg/config"
)

var (
	// ErrObjectNotFound is returned when a key does not resolve to a stored object.
	ErrObjectNotFound = errors.New("storage: object not found")
	// ErrInvalidKey is returned for empty keys or keys escaping the storage root.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// ObjectStore is implemented by every screenshot backend.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(ctx context.Context, key string) (string, time.Time, error)
}

// New selects a backend from configuration.
func New(cfg config.Config) (ObjectStore, error) {
	switch cfg.Storage.Driver {
	case "", config.StorageDriverLocal:
		signer := NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)
		base := cfg.PublicURL + cfg.APIPrefix + "/files/screenshots"
		return NewLocalStorage(cfg.Storage.LocalDir, signer, base)
	case config.StorageDriverS3:
		return NewS3Storage(cfg.Storage.S3, cfg.Storage.SignedURLTTL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// CleanKey normalises a storage key and rejects traversal.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean("/" + key)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." || strings.HasPrefix(cleaned, "..") || cleaned != strings.TrimPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
