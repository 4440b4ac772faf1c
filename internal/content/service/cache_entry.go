package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"birthdaysite/internal/content/model"
	"birthdaysite/pkg/logger"
)

// CacheKey is the local-storage key of the cached document.
const CacheKey = "birthdayWebsiteData"

// CacheEntry is the cached document with its write time (unix milliseconds)
// and the remote version it was read from, if any. Pending marks a local edit
// the remote store has not taken yet.
type CacheEntry struct {
	Document  *model.ContentDocument `json:"document"`
	Timestamp int64                  `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Pending   bool                   `json:"pending,omitempty"`
}

// Fresh reports whether the entry is younger than maxAge at now.
func (e *CacheEntry) Fresh(now time.Time, maxAge time.Duration) bool {
	return now.Sub(time.UnixMilli(e.Timestamp)) < maxAge
}

// readCache returns the cached entry, or nil when there is none. A corrupted
// entry is removed and reported as an error so the caller treats it as a miss.
func (s *Session) readCache(ctx context.Context) (*CacheEntry, error) {
	raw, ok, err := s.cache.Get(ctx, CacheKey)
	if err != nil || !ok {
		return nil, err
	}

	var stored struct {
		Document  json.RawMessage `json:"document"`
		Timestamp int64           `json:"timestamp"`
		Version   string          `json:"version"`
		Pending   bool            `json:"pending"`
	}
	err = json.Unmarshal([]byte(raw), &stored)
	var doc *model.ContentDocument
	if err == nil {
		doc, err = model.Parse(stored.Document)
	}
	if err != nil {
		if rmErr := s.cache.Remove(ctx, CacheKey); rmErr != nil {
			logger.Sugar.Warnf("Failed to remove corrupted cache entry: %v", rmErr)
		}
		return nil, fmt.Errorf("corrupted cache entry: %w", err)
	}
	return &CacheEntry{Document: doc, Timestamp: stored.Timestamp, Version: stored.Version, Pending: stored.Pending}, nil
}

func (s *Session) writeCache(ctx context.Context, doc *model.ContentDocument, version string, pending bool) error {
	entry := CacheEntry{Document: doc, Timestamp: s.now().UnixMilli(), Version: version, Pending: pending}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return s.cache.Set(ctx, CacheKey, string(raw))
}

// ClearCache drops the cached document so the next load goes to the remote store.
func (s *Session) ClearCache(ctx context.Context) error {
	return s.cache.Remove(ctx, CacheKey)
}
