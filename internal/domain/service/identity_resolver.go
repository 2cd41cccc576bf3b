// Package service defines the domain service interfaces implemented by the
// infrastructure layer.
package service

import (
	"context"

	"lens/internal/domain/entity"
)

// IdentityResolver resolves atproto identities. Resolution is a pure fetch:
// it mutates nothing and callers decide whether to cache results. Every
// method honors context cancellation so in-flight lookups can be abandoned.
type IdentityResolver interface {
	// Resolve resolves a handle or DID to complete identity information.
	Resolve(ctx context.Context, identifier string) (*entity.Identity, error)

	// ResolveHandle resolves a handle to its DID via DNS TXT and the HTTPS
	// well-known endpoint.
	ResolveHandle(ctx context.Context, handle string) (did string, err error)

	// ResolveDID retrieves the DID document for a did:web or did:plc DID.
	ResolveDID(ctx context.Context, did string) (*entity.DIDDocument, error)
}
