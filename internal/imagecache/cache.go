// Package imagecache stores preview image bytes keyed by link id.
package imagecache

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when no image is cached for the id.
var ErrNotFound = errors.New("image not cached")

// Cache is a keyed binary store. Implementations accept concurrent writes
// for distinct ids.
type Cache interface {
	Get(ctx context.Context, id uuid.UUID) ([]byte, error)
	Put(ctx context.Context, id uuid.UUID, data []byte) error
	// Delete removes the image. Deleting an absent image is not an error.
	Delete(ctx context.Context, id uuid.UUID) error
}
