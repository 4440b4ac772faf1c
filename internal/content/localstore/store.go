package localstore

import (
	"context"
	"errors"
)

var ErrQuotaExceeded = errors.New("local storage quota exceeded")

// Storage is a string key-value store. Only single-key operations are atomic.
type Storage interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
