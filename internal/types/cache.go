package types

import (
	"time"

	"github.com/google/uuid"
)

// CacheEntry is one row of the weather_cache table. At most one live row exists
// per cache key; an entry whose ExpiresAt has passed is logically absent.
type CacheEntry struct {
	Key        string     `json:"key"`
	Source     string     `json:"source"`
	LocationID *uuid.UUID `json:"location_id,omitempty"`
	Params     []byte     `json:"params,omitempty"`
	Payload    []byte     `json:"payload"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

// SourceCount is a per-source entry count inside CacheStats.
type SourceCount struct {
	Source string `json:"source"`
	Count  int64  `json:"count"`
}

// CacheStats is the admin-facing snapshot of the cache table.
type CacheStats struct {
	TotalEntries   int64         `json:"total_entries"`
	ExpiredEntries int64         `json:"expired_entries"`
	BySource       []SourceCount `json:"by_source"`
	OldestEntry    *time.Time    `json:"oldest_entry,omitempty"`
	NewestEntry    *time.Time    `json:"newest_entry,omitempty"`
}
