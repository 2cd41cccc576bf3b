package impl

import (
	"context"
	"log/slog"

	"lens/internal/domain/entity"
	domainerrors "lens/internal/domain/errors"
	"lens/internal/domain/service"
	"lens/internal/usecase"

	"github.com/pkg/errors"
)

// browseService implements the BrowseUsecase interface. Reads resolve the
// target actor and talk to that actor's own data server; writes always go
// through the session store's authorized client.
type browseService struct {
	resolver service.IdentityResolver
	clients  service.RecordClientFactory
	sessions usecase.SessionUsecase
	logger   *slog.Logger
}

// NewBrowseService is the constructor for browseService.
func NewBrowseService(
	resolver service.IdentityResolver,
	clients service.RecordClientFactory,
	sessions usecase.SessionUsecase,
	logger *slog.Logger,
) usecase.BrowseUsecase {
	return &browseService{
		resolver: resolver,
		clients:  clients,
		sessions: sessions,
		logger:   logger,
	}
}

// ResolveIdentity resolves a handle or DID to its identity.
func (srv *browseService) ResolveIdentity(ctx context.Context, actor string) (*entity.Identity, error) {
	identity, err := srv.resolver.Resolve(ctx, actor)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", actor)
	}

	return identity, nil
}

// clientFor resolves the actor and returns a read-only client bound to the
// actor's data server, plus the resolved identity.
func (srv *browseService) clientFor(ctx context.Context, actor string) (service.RecordClient, *entity.Identity, error) {
	identity, err := srv.resolver.Resolve(ctx, actor)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "resolve %s", actor)
	}

	return srv.clients.Client(identity.PDSEndpoint), identity, nil
}

func (srv *browseService) DescribeRepo(ctx context.Context, actor string) (*entity.RepoDescription, error) {
	client, identity, err := srv.clientFor(ctx, actor)
	if err != nil {
		return nil, err
	}

	return client.DescribeRepo(ctx, identity.DID)
}

func (srv *browseService) GetRecord(ctx context.Context, actor, collection, rkey string) (*entity.Record, error) {
	client, identity, err := srv.clientFor(ctx, actor)
	if err != nil {
		return nil, err
	}

	return client.GetRecord(ctx, identity.DID, collection, rkey)
}

func (srv *browseService) ListRecords(ctx context.Context, actor, collection string, limit int, cursor string) (*entity.RecordPage, error) {
	client, identity, err := srv.clientFor(ctx, actor)
	if err != nil {
		return nil, err
	}

	return client.ListRecords(ctx, identity.DID, collection, limit, cursor)
}

// CreateRecord writes into the current account's repository.
func (srv *browseService) CreateRecord(ctx context.Context, collection, rkey string, value any) (*entity.Record, error) {
	client, session, err := srv.sessions.AuthorizedClient(ctx)
	if err != nil {
		return nil, err
	}
	srv.logger.Info("creating record",
		slog.String("did", session.DID), slog.String("collection", collection))

	return client.CreateRecord(ctx, session.DID, collection, rkey, value)
}

// PutRecord replaces the record at a known key in the current account's
// repository.
func (srv *browseService) PutRecord(ctx context.Context, collection, rkey string, value any) (*entity.Record, error) {
	client, session, err := srv.sessions.AuthorizedClient(ctx)
	if err != nil {
		return nil, err
	}
	srv.logger.Info("putting record",
		slog.String("did", session.DID), slog.String("collection", collection), slog.String("rkey", rkey))

	return client.PutRecord(ctx, session.DID, collection, rkey, value)
}

// UploadBlob uploads binary data to the current account's data server.
func (srv *browseService) UploadBlob(ctx context.Context, data []byte, mimeType string) (*entity.BlobRef, error) {
	client, _, err := srv.sessions.AuthorizedClient(ctx)
	if err != nil {
		return nil, err
	}

	return client.UploadBlob(ctx, data, mimeType)
}

// ListRepos enumerates repositories on a data server. An empty pdsURL
// targets the current account's server.
func (srv *browseService) ListRepos(ctx context.Context, pdsURL string, limit int, cursor string) (*entity.RepoPage, error) {
	if pdsURL == "" {
		session := srv.sessions.Current()
		if session == nil {
			return nil, errors.Wrap(domainerrors.ErrInvalidFormat, "no data server given and no active account")
		}
		pdsURL = session.PDSEndpoint
	}

	return srv.clients.Client(pdsURL).ListRepos(ctx, limit, cursor)
}

// NewPager builds a pager over the actor's collection. The actor is
// resolved once here; every page fetch reuses the same client.
func (srv *browseService) NewPager(ctx context.Context, actor, collection string, pageSize int) (*usecase.Pager, error) {
	client, identity, err := srv.clientFor(ctx, actor)
	if err != nil {
		return nil, err
	}

	return usecase.NewPager(func(ctx context.Context, cursor string) (*entity.RecordPage, error) {
		return client.ListRecords(ctx, identity.DID, collection, pageSize, cursor)
	}), nil
}
