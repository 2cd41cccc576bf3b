// Package impl contains the application-specific business rules implementations.
package impl

import (
	"context"
	"log/slog"
	"sync"

	"lens/internal/domain/entity"
	domainerrors "lens/internal/domain/errors"
	"lens/internal/domain/repository"
	"lens/internal/domain/service"
	"lens/internal/usecase"

	"github.com/pkg/errors"
)

type subscriber struct {
	id int
	fn func(entity.SessionState)
}

// sessionService implements the SessionUsecase interface. A single mutex
// serializes every mutation, so storage writes, in-memory state, and
// subscriber notifications always agree on ordering.
type sessionService struct {
	repo     repository.SessionRepository
	oauth    service.OAuthService
	resolver service.IdentityResolver
	clients  service.RecordClientFactory
	logger   *slog.Logger

	mu          sync.Mutex
	current     *entity.Session
	previousDID string
	accounts    []string
	subscribers []subscriber
	nextSubID   int
}

// NewSessionService is the constructor for sessionService.
func NewSessionService(
	repo repository.SessionRepository,
	oauth service.OAuthService,
	resolver service.IdentityResolver,
	clients service.RecordClientFactory,
	logger *slog.Logger,
) usecase.SessionUsecase {
	return &sessionService{
		repo:     repo,
		oauth:    oauth,
		resolver: resolver,
		clients:  clients,
		logger:   logger,
	}
}

// Resume loads the persisted account list and each account's session.
// Accounts whose material is missing or unreadable are dropped with a
// warning; the survivors become the resumed state.
func (srv *sessionService) Resume(ctx context.Context) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	stored, storedCurrent, err := srv.repo.LoadAccounts(ctx)
	if err != nil {
		return errors.Wrap(err, "load account list")
	}

	var accounts []string
	sessions := make(map[string]*entity.Session, len(stored))

	for _, did := range stored {
		session, err := srv.repo.FindSession(ctx, did)
		if err != nil {
			srv.logger.Warn("dropping account with unreadable session",
				slog.String("did", did), slog.Any("error", err))

			continue
		}
		accounts = append(accounts, did)
		sessions[did] = session
	}

	var current *entity.Session
	if session, ok := sessions[storedCurrent]; ok {
		current = session
	} else if len(accounts) > 0 {
		current = sessions[accounts[0]]
	}

	if len(accounts) != len(stored) || (current != nil && current.DID != storedCurrent) {
		if err := srv.repo.SaveAccounts(ctx, accounts, currentDID(current)); err != nil {
			return errors.Wrap(err, "persist repaired account list")
		}
	}

	srv.accounts = accounts
	srv.current = current
	srv.previousDID = ""
	srv.logger.Info("resumed sessions",
		slog.Int("accounts", len(accounts)), slog.String("current", currentDID(current)))
	srv.notifyLocked()

	return nil
}

// StartLogin resolves the identifier and opens an authorization flow
// against its account's authorization server.
func (srv *sessionService) StartLogin(ctx context.Context, identifier string) (*service.AuthorizationRequest, error) {
	identity, err := srv.resolver.Resolve(ctx, identifier)
	if err != nil {
		return nil, errors.Wrap(err, "resolve login identifier")
	}

	request, err := srv.oauth.StartAuthorization(ctx, identity)
	if err != nil {
		return nil, errors.Wrap(err, "start authorization")
	}
	srv.logger.Info("started login", slog.String("did", identity.DID))

	return request, nil
}

// FinalizeLogin completes the authorization flow and commits the new
// session: persisted first, then made current, then announced.
func (srv *sessionService) FinalizeLogin(ctx context.Context, params service.CallbackParams) (*entity.Session, error) {
	session, err := srv.oauth.FinalizeAuthorization(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "finalize authorization")
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if err := srv.repo.SaveSession(ctx, session); err != nil {
		return nil, errors.Wrap(err, "persist session")
	}

	accounts := srv.accounts
	if !contains(accounts, session.DID) {
		accounts = append(append([]string{}, accounts...), session.DID)
	}
	if err := srv.repo.SaveAccounts(ctx, accounts, session.DID); err != nil {
		return nil, errors.Wrap(err, "persist account list")
	}

	if srv.current != nil && srv.current.DID != session.DID {
		srv.previousDID = srv.current.DID
	}
	srv.accounts = accounts
	srv.current = session
	srv.logger.Info("logged in", slog.String("did", session.DID), slog.String("handle", session.Handle))
	srv.notifyLocked()

	return session, nil
}

// SwitchAccount makes a stored account current without touching its tokens.
func (srv *sessionService) SwitchAccount(ctx context.Context, did string) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if !contains(srv.accounts, did) {
		return errors.Wrapf(domainerrors.ErrNoStoredSession, "account %s", did)
	}

	session, err := srv.repo.FindSession(ctx, did)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return errors.Wrapf(domainerrors.ErrNoStoredSession, "account %s", did)
		}

		return errors.Wrap(err, "load session")
	}

	if err := srv.repo.SaveAccounts(ctx, srv.accounts, did); err != nil {
		return errors.Wrap(err, "persist account list")
	}

	if srv.current != nil && srv.current.DID != did {
		srv.previousDID = srv.current.DID
	}
	srv.current = session
	srv.logger.Info("switched account", slog.String("did", did))
	srv.notifyLocked()

	return nil
}

// Logout revokes the account's tokens upstream (best effort), deletes its
// stored session, and removes it from the account list. When the current
// account logs out, the previously-current account is restored if it still
// has stored material; otherwise the store is left logged out.
func (srv *sessionService) Logout(ctx context.Context, did string) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if !contains(srv.accounts, did) {
		return errors.Wrapf(domainerrors.ErrNoStoredSession, "account %s", did)
	}

	if session, err := srv.repo.FindSession(ctx, did); err == nil {
		if err := srv.oauth.Revoke(ctx, session); err != nil {
			srv.logger.Warn("token revocation failed",
				slog.String("did", did), slog.Any("error", err))
		}
	}

	if err := srv.repo.DeleteSession(ctx, did); err != nil {
		return errors.Wrap(err, "delete session")
	}

	accounts := remove(srv.accounts, did)

	previousDID := srv.previousDID
	if previousDID == did {
		previousDID = ""
	}

	current := srv.current
	if current != nil && current.DID == did {
		current = nil
		if previousDID != "" && contains(accounts, previousDID) {
			session, err := srv.repo.FindSession(ctx, previousDID)
			if err != nil {
				srv.logger.Warn("previous account unreadable after logout",
					slog.String("did", previousDID), slog.Any("error", err))
			} else {
				current = session
			}
		}
		previousDID = ""
	}

	if err := srv.repo.SaveAccounts(ctx, accounts, currentDID(current)); err != nil {
		return errors.Wrap(err, "persist account list")
	}

	srv.accounts = accounts
	srv.current = current
	srv.previousDID = previousDID
	srv.logger.Info("logged out",
		slog.String("did", did), slog.String("current", currentDID(current)))
	srv.notifyLocked()

	return nil
}

// Current returns the active session, nil when logged out.
func (srv *sessionService) Current() *entity.Session {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	return srv.current
}

// State returns a snapshot of the active session and account list.
func (srv *sessionService) State() entity.SessionState {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	return srv.stateLocked()
}

// Subscribe registers an observer for session state changes.
func (srv *sessionService) Subscribe(fn func(entity.SessionState)) func() {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	id := srv.nextSubID
	srv.nextSubID++
	srv.subscribers = append(srv.subscribers, subscriber{id: id, fn: fn})

	return func() {
		srv.mu.Lock()
		defer srv.mu.Unlock()

		for i, sub := range srv.subscribers {
			if sub.id == id {
				srv.subscribers = append(srv.subscribers[:i], srv.subscribers[i+1:]...)

				break
			}
		}
	}
}

// AuthorizedClient builds a record client for the current account's data
// server. Token rotation during use is persisted through the store so the
// in-memory session never runs ahead of durable state.
func (srv *sessionService) AuthorizedClient(_ context.Context) (service.RecordClient, *entity.Session, error) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.current == nil {
		return nil, nil, errors.Wrap(domainerrors.ErrNoStoredSession, "no active account")
	}

	session := srv.current
	creds := srv.oauth.Credentials(session, srv.onRotate)
	client := srv.clients.AuthenticatedClient(session.PDSEndpoint, creds)

	return client, session, nil
}

// onRotate persists refreshed credential material and swaps it into the
// in-memory state when the rotated account is still current.
func (srv *sessionService) onRotate(rotated *entity.Session) {
	ctx := context.Background()

	if err := srv.repo.SaveSession(ctx, rotated); err != nil {
		srv.logger.Error("persisting rotated tokens failed",
			slog.String("did", rotated.DID), slog.Any("error", err))

		return
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.current != nil && srv.current.DID == rotated.DID {
		srv.current = rotated
	}
}

// notifyLocked announces the state to every subscriber, in registration
// order, while still holding the mutation lock.
func (srv *sessionService) notifyLocked() {
	state := srv.stateLocked()
	for _, sub := range srv.subscribers {
		sub.fn(state)
	}
}

func (srv *sessionService) stateLocked() entity.SessionState {
	accounts := make([]string, len(srv.accounts))
	copy(accounts, srv.accounts)

	return entity.SessionState{Current: srv.current, Accounts: accounts}
}

func currentDID(session *entity.Session) string {
	if session == nil {
		return ""
	}

	return session.DID
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}

	return false
}

func remove(list []string, value string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item != value {
			out = append(out, item)
		}
	}

	return out
}
