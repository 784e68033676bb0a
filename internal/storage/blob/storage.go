package blob

import (
	"context"
	"errors"
	"io"
)

// ErrDisabled is returned by a backend that was constructed without the
// configuration it needs. Upload endpoints surface it as a storage error;
// everything else keeps working.
var ErrDisabled = errors.New("object storage is not configured")

// ErrNotFound is returned when the referenced object does not exist.
var ErrNotFound = errors.New("object not found")

// Storage is the object store behind media files and thumbnails. Keys are
// opaque references of the form galleries/<gallery-id>/<media-id>[_thumb].
type Storage interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
	Health(ctx context.Context) error
}
