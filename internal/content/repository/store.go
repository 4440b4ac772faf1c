package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Paths used by the site.
const (
	PathWebsiteData          = "websiteData"
	PathQuizResults          = "quizResults"
	PathGalleryInteractions  = "interactions/gallery"
	PathSurpriseInteractions = "interactions/surprises"
	PathVisitorCount         = "analytics/visitorCount"
)

var (
	ErrNotFound = errors.New("no value at path")
	// ErrConflict is returned when a transaction keeps losing to concurrent writers.
	ErrConflict = errors.New("transaction aborted after too many conflicts")
)

// maxTransactionAttempts bounds the optimistic retry loop of Transaction.
const maxTransactionAttempts = 25

// UpdateFunc receives the current value at a path (nil when absent) and returns
// the value to store.
type UpdateFunc func(current json.RawMessage) (any, error)

// Store is a path-addressed JSON document store.
type Store interface {
	// Get returns the raw value at path and its version tag. The version is
	// empty when the backend does not expose one.
	Get(ctx context.Context, path string) (json.RawMessage, string, error)
	// Set overwrites the value at path and returns the new version tag.
	Set(ctx context.Context, path string, value any) (string, error)
	// Push appends value under path with a generated key and returns the key.
	Push(ctx context.Context, path string, value any) (string, error)
	// Transaction atomically replaces the value at path with update's result.
	Transaction(ctx context.Context, path string, update UpdateFunc) (json.RawMessage, error)
	// Children returns the values pushed under path keyed by their generated
	// key. An empty path yields an empty map, not ErrNotFound.
	Children(ctx context.Context, path string) (map[string]json.RawMessage, error)
}

func cleanPath(path string) string {
	return strings.Trim(path, "/")
}
