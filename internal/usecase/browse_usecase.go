package usecase

import (
	"context"

	"lens/internal/domain/entity"
)

// BrowseUsecase navigates repositories by handle or DID. Reads address any
// actor's data server without authentication; writes go to the current
// account's own repository.
type BrowseUsecase interface {
	// ResolveIdentity resolves a handle or DID to its identity.
	ResolveIdentity(ctx context.Context, actor string) (*entity.Identity, error)

	// DescribeRepo returns the collection inventory of the actor's repo.
	DescribeRepo(ctx context.Context, actor string) (*entity.RepoDescription, error)

	// GetRecord fetches one record by collection and record key.
	GetRecord(ctx context.Context, actor, collection, rkey string) (*entity.Record, error)

	// ListRecords fetches one page of records from a collection.
	ListRecords(ctx context.Context, actor, collection string, limit int, cursor string) (*entity.RecordPage, error)

	// CreateRecord writes a record into the current account's repository.
	// An empty rkey lets the server mint one.
	CreateRecord(ctx context.Context, collection, rkey string, value any) (*entity.Record, error)

	// PutRecord writes a record at a known key in the current account's
	// repository, replacing any existing record there.
	PutRecord(ctx context.Context, collection, rkey string, value any) (*entity.Record, error)

	// UploadBlob uploads binary data to the current account's data server.
	UploadBlob(ctx context.Context, data []byte, mimeType string) (*entity.BlobRef, error)

	// ListRepos enumerates repositories hosted on a data server. An empty
	// pdsURL targets the current account's server.
	ListRepos(ctx context.Context, pdsURL string, limit int, cursor string) (*entity.RepoPage, error)

	// NewPager builds a pager over the actor's collection, resolving the
	// actor once up front. It serves in-process consumers that accumulate
	// pages across calls; the HTTP surface instead passes cursors through
	// per request via ListRecords.
	NewPager(ctx context.Context, actor, collection string, pageSize int) (*Pager, error)
}
