package impl

import (
	"context"
	"log/slog"
	"time"

	"lens/config"
	"lens/internal/domain/entity"
	"lens/internal/domain/repository"
	"lens/internal/domain/service"
	"lens/internal/usecase"

	"github.com/pkg/errors"
)

// profileService implements the ProfileUsecase interface on top of the
// durable profile cache and the public appview API.
type profileService struct {
	cache      repository.ProfileCacheRepository
	clients    service.RecordClientFactory
	appviewURL string
	freshness  time.Duration
	retention  time.Duration
	logger     *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewProfileService is the constructor for profileService.
func NewProfileService(
	cache repository.ProfileCacheRepository,
	clients service.RecordClientFactory,
	cfg *config.Config,
	logger *slog.Logger,
) usecase.ProfileUsecase {
	return &profileService{
		cache:      cache,
		clients:    clients,
		appviewURL: cfg.ATProto.AppviewURL,
		freshness:  cfg.Cache.Freshness,
		retention:  cfg.Cache.Retention,
		logger:     logger,
		now:        time.Now,
	}
}

// ResolveProfile returns the actor's profile, served from cache while the
// entry is within the freshness window. Cache failures never fail the
// lookup; a failed refetch falls back to a stale entry when one exists.
func (srv *profileService) ResolveProfile(ctx context.Context, did string) (*entity.Profile, error) {
	now := srv.now()

	cached, err := srv.cache.Get(ctx, did)
	if err != nil && !errors.Is(err, repository.ErrCacheMiss) {
		srv.logger.Warn("profile cache read failed", slog.String("did", did), slog.Any("error", err))
		cached = nil
	}
	if cached != nil && cached.FreshAt(now, srv.freshness) {
		return &cached.Profile, nil
	}

	profile, err := srv.clients.Client(srv.appviewURL).GetProfile(ctx, did)
	if err != nil {
		if cached != nil {
			srv.logger.Warn("profile refetch failed, serving stale entry",
				slog.String("did", did), slog.Any("error", err))

			return &cached.Profile, nil
		}

		return nil, errors.Wrap(err, "fetch profile")
	}

	entry := &entity.ProfileEntry{Profile: *profile, FetchedAt: now}
	if err := srv.cache.Set(ctx, did, entry); err != nil {
		srv.logger.Warn("profile cache write failed", slog.String("did", did), slog.Any("error", err))
	}

	return profile, nil
}

// InvalidateProfile drops the cached entry so the next lookup refetches.
func (srv *profileService) InvalidateProfile(ctx context.Context, did string) error {
	return errors.Wrap(srv.cache.Delete(ctx, did), "invalidate profile")
}

// CleanCache evicts entries older than the retention window.
func (srv *profileService) CleanCache(ctx context.Context) (int, error) {
	evicted, err := srv.cache.Clean(ctx, srv.retention)
	if err != nil {
		return 0, errors.Wrap(err, "clean profile cache")
	}
	if evicted > 0 {
		srv.logger.Info("cleaned profile cache", slog.Int("evicted", evicted))
	}

	return evicted, nil
}
