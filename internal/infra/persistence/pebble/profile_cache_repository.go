package pebble

import (
	"context"
	"encoding/json"
	"time"

	"lens/internal/domain/entity"
	"lens/internal/domain/repository"

	"github.com/pkg/errors"
)

const profileKeyPrefix = "profile/"

type profileCacheRepository struct {
	store *Store
}

// NewProfileCacheRepository is the constructor for the pebble-backed
// profile cache.
func NewProfileCacheRepository(store *Store) repository.ProfileCacheRepository {
	return &profileCacheRepository{store: store}
}

func (r *profileCacheRepository) Get(_ context.Context, did string) (*entity.ProfileEntry, error) {
	value, found, err := r.store.get([]byte(profileKeyPrefix + did))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Wrapf(repository.ErrCacheMiss, "did %s", did)
	}

	var entry entity.ProfileEntry
	if err := json.Unmarshal(value, &entry); err != nil {
		// A corrupt entry is indistinguishable from an absent one for
		// cache purposes.
		return nil, errors.Wrapf(repository.ErrCacheMiss, "corrupt entry for %s", did)
	}

	return &entry, nil
}

func (r *profileCacheRepository) Set(_ context.Context, did string, entry *entity.ProfileEntry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "encode cache entry")
	}

	return r.store.set([]byte(profileKeyPrefix+did), value)
}

func (r *profileCacheRepository) Delete(_ context.Context, did string) error {
	return r.store.delete([]byte(profileKeyPrefix + did))
}

// Clean evicts every entry older than the retention window in a single
// traversal.
func (r *profileCacheRepository) Clean(_ context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)

	var expired []string
	err := r.store.scanPrefix([]byte(profileKeyPrefix), func(key, value []byte) error {
		var entry entity.ProfileEntry
		if err := json.Unmarshal(value, &entry); err != nil || entry.FetchedAt.Before(cutoff) {
			expired = append(expired, string(key))
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, key := range expired {
		if err := r.store.delete([]byte(key)); err != nil {
			return 0, err
		}
	}

	return len(expired), nil
}
