package main

import (
	"context"
	"log/slog"
	"os"

	"lens/config"
	"lens/internal/delivery"
	"lens/internal/delivery/http"
	"lens/internal/delivery/http/middleware"
	"lens/internal/delivery/http/router/handler"
	"lens/internal/domain/service"
	"lens/internal/infra/auth"
	"lens/internal/infra/identity"
	logs "lens/internal/infra/log"
	pebblestore "lens/internal/infra/persistence/pebble"
	"lens/internal/infra/qrcode"
	"lens/internal/infra/xrpc"
	"lens/internal/usecase"
	"lens/internal/usecase/impl"

	"go.uber.org/fx"
)

type startServerParams struct {
	fx.In
	fx.Lifecycle

	Deliveries []delivery.Delivery `group:"deliveries"`
}

func main() {
	fx.New(
		injectInfra(),
		injectRepo(),
		injectService(),
		injectUsecase(),
		injectDelivery(),
		injectMiddleware(),
		injectHandler(),
		fx.Invoke(
			resumeSessions,
			startServer,
		),
	).Run()
}

func injectInfra() fx.Option {
	return fx.Provide(
		config.New,
		logs.New,
		context.Background,
		pebblestore.New,
	)
}

func injectRepo() fx.Option {
	return fx.Options(
		fx.Provide(
			pebblestore.NewSessionRepository,
			pebblestore.NewProfileCacheRepository,
		),
	)
}

func injectService() fx.Option {
	return fx.Options(
		fx.Provide(
			identity.NewResolver,
			xrpc.NewClientFactory,
			auth.NewOAuthService,
			newQRCodeService,
		),
	)
}

// newQRCodeService creates a QR code service with dependency injection
func newQRCodeService(cfg *config.Config) service.QRCodeService {
	if cfg.QRCode == nil {
		// Use default values if not configured
		return qrcode.NewQRCodeService(256, "M")
	}

	return qrcode.NewQRCodeService(cfg.QRCode.Size, cfg.QRCode.ErrorCorrectionLevel)
}

func injectUsecase() fx.Option {
	return fx.Options(
		fx.Provide(
			impl.NewSessionService,
			impl.NewProfileService,
			impl.NewBrowseService,
		),
	)
}

func injectMiddleware() fx.Option {
	return fx.Options(
		fx.Provide(
			middleware.NewRequestIDMiddleware,
			middleware.NewErrorMiddleware,
		),
	)
}

func injectHandler() fx.Option {
	return fx.Options(
		fx.Provide(
			handler.NewAuthHandler,
			handler.NewIdentityHandler,
			handler.NewRecordHandler,
		),
	)
}

func injectDelivery() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				http.NewServer,
				fx.ResultTags(`group:"deliveries"`),
			),
		),
	)
}

// resumeSessions restores persisted accounts and sweeps the profile cache
// before any request is served.
func resumeSessions(ctx context.Context, sessions usecase.SessionUsecase, profiles usecase.ProfileUsecase, logger *slog.Logger) error {
	if err := sessions.Resume(ctx); err != nil {
		return err
	}

	if _, err := profiles.CleanCache(ctx); err != nil {
		logger.Warn("startup cache clean failed", slog.Any("error", err))
	}

	return nil
}

func startServer(ctx context.Context, params startServerParams) {
	for _, delivery := range params.Deliveries {
		go func() {
			if err := delivery.Serve(ctx); err != nil {
				slog.Error("Failed to start server", slog.Any("error", err))
				os.Exit(1)
			}
		}()
	}
}
