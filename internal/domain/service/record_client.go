package service

import (
	"context"
	"net/http"

	"lens/internal/domain/entity"
)

// CredentialSource signs outbound requests with a live access token. It is
// handed to record clients by the session store; delivery layers never see
// the underlying material.
type CredentialSource interface {
	// Authorize attaches authentication to the request, refreshing the
	// underlying token first when it has expired.
	Authorize(ctx context.Context, req *http.Request) error
}

// RecordClient is a thin typed surface over the repository XRPC API, bound
// to one service base URL. Instances without a credential source may only
// perform reads; write verbs fail fast with ErrUnauthorized before any
// network call. A canceled context surfaces as ErrAborted, which callers
// filter out of error handling. The client never retries: a single network
// failure is surfaced immediately, since verbs like CreateRecord are not
// idempotent.
type RecordClient interface {
	DescribeRepo(ctx context.Context, repo string) (*entity.RepoDescription, error)
	GetRecord(ctx context.Context, repo, collection, rkey string) (*entity.Record, error)
	ListRecords(ctx context.Context, repo, collection string, limit int, cursor string) (*entity.RecordPage, error)
	CreateRecord(ctx context.Context, repo, collection, rkey string, value any) (*entity.Record, error)
	PutRecord(ctx context.Context, repo, collection, rkey string, value any) (*entity.Record, error)
	UploadBlob(ctx context.Context, data []byte, mimeType string) (*entity.BlobRef, error)
	ListRepos(ctx context.Context, limit int, cursor string) (*entity.RepoPage, error)
	ResolveHandle(ctx context.Context, handle string) (did string, err error)
	GetProfile(ctx context.Context, actor string) (*entity.Profile, error)
}

// RecordClientFactory builds record clients bound to a service endpoint.
type RecordClientFactory interface {
	// Client returns an unauthenticated, read-only client for the endpoint.
	Client(serviceURL string) RecordClient

	// AuthenticatedClient returns a client whose requests are signed by the
	// given credential source.
	AuthenticatedClient(serviceURL string, creds CredentialSource) RecordClient
}
