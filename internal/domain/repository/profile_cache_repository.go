package repository

import (
	"context"
	"time"

	"lens/internal/domain/entity"
	"lens/internal/errors"
)

// ErrCacheMiss is returned when no entry is stored for a DID.
var ErrCacheMiss = errors.New("cache miss")

// ProfileCacheRepository is the durable profile metadata cache. It is an
// optimization, never a source of truth: implementations fail open, and
// staleness on the plain Get path is the caller's responsibility via the
// entry's FetchedAt.
type ProfileCacheRepository interface {
	// Get returns the stored entry regardless of age, or ErrCacheMiss.
	Get(ctx context.Context, did string) (*entity.ProfileEntry, error)

	// Set overwrites the entry for a DID unconditionally and persists it
	// synchronously.
	Set(ctx context.Context, did string, entry *entity.ProfileEntry) error

	// Delete removes the entry for a DID. Absent entries are not an error.
	Delete(ctx context.Context, did string) error

	// Clean evicts every entry older than the retention window in one
	// traversal and returns the number evicted.
	Clean(ctx context.Context, retention time.Duration) (int, error)
}
