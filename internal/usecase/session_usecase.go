// Package usecase contains the application-specific business rules.
package usecase

import (
	"context"

	"lens/internal/domain/entity"
	"lens/internal/domain/service"
)

// SessionUsecase is the multi-account session store. All mutations are
// serialized, persisted before any observer sees them, and announced to
// subscribers in mutation order.
type SessionUsecase interface {
	// Resume loads every persisted session at startup. Accounts whose
	// stored material cannot be loaded are logged and dropped; a partial
	// resume is not an error.
	Resume(ctx context.Context) error

	// StartLogin resolves the identifier and begins the authorization flow
	// for it. No session state changes until the callback lands.
	StartLogin(ctx context.Context, identifier string) (*service.AuthorizationRequest, error)

	// FinalizeLogin completes the flow from the callback parameters. The new
	// account becomes current, joining the account list if it is new.
	FinalizeLogin(ctx context.Context, params service.CallbackParams) (*entity.Session, error)

	// SwitchAccount makes a stored account the current one.
	SwitchAccount(ctx context.Context, did string) error

	// Logout revokes and removes the account's session. Removing the
	// current account falls back to another stored account, or to the
	// logged-out state when none remain.
	Logout(ctx context.Context, did string) error

	// Current returns the active session, nil when logged out.
	Current() *entity.Session

	// State returns a snapshot of the current session and account list.
	State() entity.SessionState

	// Subscribe registers a state observer. Observers run synchronously in
	// mutation order and must not call back into the store. The returned
	// function removes the subscription.
	Subscribe(fn func(entity.SessionState)) func()

	// AuthorizedClient returns a record client for the current account's
	// data server, signing requests with its credential material. Fails
	// with ErrNoStoredSession when logged out.
	AuthorizedClient(ctx context.Context) (service.RecordClient, *entity.Session, error)
}
