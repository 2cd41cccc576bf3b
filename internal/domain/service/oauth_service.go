package service

import (
	"context"

	"lens/internal/domain/entity"
)

// AuthorizationRequest is the outcome of starting a login: the URL the user
// must visit and the state that correlates the callback.
type AuthorizationRequest struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// CallbackParams carries the authorization-code callback query parameters.
type CallbackParams struct {
	State  string
	Code   string
	Issuer string
}

// OAuthService drives the authorization-code flow against the account's
// protocol-discovered authorization server, and refreshes or revokes the
// resulting credential material.
type OAuthService interface {
	// StartAuthorization discovers the authorization server for the resolved
	// identity, generates PKCE and DPoP material, and returns the URL to
	// send the user to. Pending state is held until FinalizeAuthorization
	// or expiry.
	StartAuthorization(ctx context.Context, identity *entity.Identity) (*AuthorizationRequest, error)

	// FinalizeAuthorization exchanges the callback code for tokens and
	// returns the new session. Fails on unknown or expired state.
	FinalizeAuthorization(ctx context.Context, params CallbackParams) (*entity.Session, error)

	// Refresh exchanges the session's refresh token for fresh credential
	// material. The returned session carries rotated tokens; the input is
	// not mutated.
	Refresh(ctx context.Context, session *entity.Session) (*entity.Session, error)

	// Revoke invalidates the session's credential material upstream.
	Revoke(ctx context.Context, session *entity.Session) error

	// Credentials builds a request signer for the session. onRotate is
	// invoked with the replacement session whenever an expired access
	// token is refreshed, so the caller can persist the rotated material.
	Credentials(session *entity.Session, onRotate func(*entity.Session)) CredentialSource
}
