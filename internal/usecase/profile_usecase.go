package usecase

import (
	"context"

	"lens/internal/domain/entity"
)

// ProfileUsecase serves actor profiles through the durable cache.
type ProfileUsecase interface {
	// ResolveProfile returns the profile for the DID, from cache when fresh
	// enough, refetching otherwise. A failed refetch falls back to a stale
	// cached copy when one exists.
	ResolveProfile(ctx context.Context, did string) (*entity.Profile, error)

	// InvalidateProfile drops the cached entry for the DID.
	InvalidateProfile(ctx context.Context, did string) error

	// CleanCache evicts entries older than the retention window and
	// reports how many were removed.
	CleanCache(ctx context.Context) (int, error)
}
