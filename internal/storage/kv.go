package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load for a key that was never saved.
var ErrNotFound = errors.New("storage: key not found")

// KV persists opaque values by key.
type KV interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
}
