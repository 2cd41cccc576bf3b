package impl

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"lens/internal/domain/entity"
	domainerrors "lens/internal/domain/errors"
	"lens/internal/domain/service"
	"lens/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sessionServiceFixtures holds all test dependencies for session service tests.
type sessionServiceFixtures struct {
	service  usecase.SessionUsecase
	repo     *fakeSessionRepo
	oauth    *fakeOAuth
	resolver *fakeResolver
	clients  *fakeClientFactory
}

func createTestSessionService(t *testing.T) sessionServiceFixtures {
	t.Helper()

	repo := newFakeSessionRepo()
	oauth := newFakeOAuth()
	resolver := &fakeResolver{identities: map[string]*entity.Identity{
		"alice.test": {DID: "did:plc:alice", Handle: "alice.test", PDSEndpoint: "https://pds.alice.test"},
		"bob.test":   {DID: "did:plc:bob", Handle: "bob.test", PDSEndpoint: "https://pds.bob.test"},
		"carol.test": {DID: "did:plc:carol", Handle: "carol.test", PDSEndpoint: "https://pds.carol.test"},
	}}
	clients := newFakeClientFactory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return sessionServiceFixtures{
		service:  NewSessionService(repo, oauth, resolver, clients, logger),
		repo:     repo,
		oauth:    oauth,
		resolver: resolver,
		clients:  clients,
	}
}

func testSession(did, handle string) *entity.Session {
	return &entity.Session{
		DID:              did,
		Handle:           handle,
		PDSEndpoint:      "https://pds." + handle,
		AuthServerIssuer: "https://auth.example",
		Tokens: entity.TokenSet{
			AccessToken:  "access-" + did,
			RefreshToken: "refresh-" + did,
			TokenType:    "DPoP",
			ExpiresAt:    time.Now().Add(time.Hour),
		},
		CreatedAt: time.Now(),
	}
}

// login drives a full scripted flow for the given account.
func login(t *testing.T, fx sessionServiceFixtures, did, handle string) *entity.Session {
	t.Helper()

	ctx := context.Background()

	request, err := fx.service.StartLogin(ctx, handle)
	require.NoError(t, err)

	fx.oauth.sessions[request.State] = testSession(did, handle)

	session, err := fx.service.FinalizeLogin(ctx, service.CallbackParams{
		State: request.State,
		Code:  "code",
	})
	require.NoError(t, err)

	return session
}

func TestSessionService_LoginMakesAccountCurrent(t *testing.T) {
	fx := createTestSessionService(t)

	session := login(t, fx, "did:plc:alice", "alice.test")

	assert.Equal(t, "did:plc:alice", session.DID)
	assert.Equal(t, session, fx.service.Current())

	state := fx.service.State()
	assert.Equal(t, []string{"did:plc:alice"}, state.Accounts)

	// Persisted before anything observed it.
	stored, err := fx.repo.FindSession(context.Background(), "did:plc:alice")
	require.NoError(t, err)
	assert.Equal(t, session, stored)
}

func TestSessionService_SecondLoginJoinsAccountList(t *testing.T) {
	fx := createTestSessionService(t)

	login(t, fx, "did:plc:alice", "alice.test")
	login(t, fx, "did:plc:bob", "bob.test")

	state := fx.service.State()
	assert.Equal(t, []string{"did:plc:alice", "did:plc:bob"}, state.Accounts)
	assert.Equal(t, "did:plc:bob", state.Current.DID)
}

func TestSessionService_CurrentIsAlwaysInAccountList(t *testing.T) {
	fx := createTestSessionService(t)
	ctx := context.Background()

	fx.service.Subscribe(func(state entity.SessionState) {
		if state.Current == nil {
			return
		}
		assert.Contains(t, state.Accounts, state.Current.DID,
			"current account must always appear in the account list")
	})

	login(t, fx, "did:plc:alice", "alice.test")
	login(t, fx, "did:plc:bob", "bob.test")
	require.NoError(t, fx.service.SwitchAccount(ctx, "did:plc:alice"))
	require.NoError(t, fx.service.Logout(ctx, "did:plc:alice"))
	require.NoError(t, fx.service.Logout(ctx, "did:plc:bob"))
}

func TestSessionService_SwitchUnknownAccountFails(t *testing.T) {
	fx := createTestSessionService(t)

	login(t, fx, "did:plc:alice", "alice.test")

	err := fx.service.SwitchAccount(context.Background(), "did:plc:stranger")

	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrNoStoredSession)
}

func TestSessionService_LogoutCurrentFallsBackToStoredAccount(t *testing.T) {
	fx := createTestSessionService(t)

	login(t, fx, "did:plc:alice", "alice.test")
	login(t, fx, "did:plc:bob", "bob.test")

	require.NoError(t, fx.service.Logout(context.Background(), "did:plc:bob"))

	current := fx.service.Current()
	require.NotNil(t, current)
	assert.Equal(t, "did:plc:alice", current.DID)
	assert.Equal(t, []string{"did:plc:alice"}, fx.service.State().Accounts)
	assert.Contains(t, fx.oauth.revoked, "did:plc:bob")
}

func TestSessionService_LogoutCurrentRestoresPreviouslyCurrentAccount(t *testing.T) {
	fx := createTestSessionService(t)
	ctx := context.Background()

	login(t, fx, "did:plc:alice", "alice.test")
	login(t, fx, "did:plc:bob", "bob.test")
	login(t, fx, "did:plc:carol", "carol.test")
	require.NoError(t, fx.service.SwitchAccount(ctx, "did:plc:bob"))

	require.NoError(t, fx.service.Logout(ctx, "did:plc:bob"))

	// Carol was current before the switch to bob; alice never was.
	current := fx.service.Current()
	require.NotNil(t, current)
	assert.Equal(t, "did:plc:carol", current.DID)
	assert.Equal(t, []string{"did:plc:alice", "did:plc:carol"}, fx.service.State().Accounts)
}

func TestSessionService_LogoutCurrentWithoutPreviousLeavesLoggedOut(t *testing.T) {
	fx := createTestSessionService(t)
	ctx := context.Background()

	require.NoError(t, fx.repo.SaveSession(ctx, testSession("did:plc:alice", "alice.test")))
	require.NoError(t, fx.repo.SaveSession(ctx, testSession("did:plc:bob", "bob.test")))
	require.NoError(t, fx.repo.SaveAccounts(ctx, []string{"did:plc:alice", "did:plc:bob"}, "did:plc:bob"))
	require.NoError(t, fx.service.Resume(ctx))

	require.NoError(t, fx.service.Logout(ctx, "did:plc:bob"))

	// No account was ever current before bob in this process, so nothing is
	// promoted even though alice remains stored.
	assert.Nil(t, fx.service.Current())
	assert.Equal(t, []string{"did:plc:alice"}, fx.service.State().Accounts)
}

func TestSessionService_LogoutCurrentAfterPreviousRemovedLeavesLoggedOut(t *testing.T) {
	fx := createTestSessionService(t)
	ctx := context.Background()

	login(t, fx, "did:plc:alice", "alice.test")
	login(t, fx, "did:plc:bob", "bob.test")
	login(t, fx, "did:plc:carol", "carol.test")

	// Bob was current before carol, but his material is gone by the time
	// carol logs out.
	require.NoError(t, fx.service.Logout(ctx, "did:plc:bob"))
	require.NoError(t, fx.service.Logout(ctx, "did:plc:carol"))

	assert.Nil(t, fx.service.Current())
	assert.Equal(t, []string{"did:plc:alice"}, fx.service.State().Accounts)
}

func TestSessionService_LogoutLastAccountLeavesLoggedOutState(t *testing.T) {
	fx := createTestSessionService(t)

	login(t, fx, "did:plc:alice", "alice.test")

	require.NoError(t, fx.service.Logout(context.Background(), "did:plc:alice"))

	assert.Nil(t, fx.service.Current())
	assert.Empty(t, fx.service.State().Accounts)

	// The stored material is gone too.
	_, _, err := fx.service.AuthorizedClient(context.Background())
	assert.ErrorIs(t, err, domainerrors.ErrNoStoredSession)
}

func TestSessionService_LogoutSucceedsWhenRevocationFails(t *testing.T) {
	fx := createTestSessionService(t)
	fx.oauth.revokeErr = assert.AnError

	login(t, fx, "did:plc:alice", "alice.test")

	require.NoError(t, fx.service.Logout(context.Background(), "did:plc:alice"))
	assert.Nil(t, fx.service.Current())
}

func TestSessionService_ResumeRestoresPersistedAccounts(t *testing.T) {
	fx := createTestSessionService(t)
	ctx := context.Background()

	require.NoError(t, fx.repo.SaveSession(ctx, testSession("did:plc:alice", "alice.test")))
	require.NoError(t, fx.repo.SaveSession(ctx, testSession("did:plc:bob", "bob.test")))
	require.NoError(t, fx.repo.SaveAccounts(ctx, []string{"did:plc:alice", "did:plc:bob"}, "did:plc:bob"))

	require.NoError(t, fx.service.Resume(ctx))

	state := fx.service.State()
	require.NotNil(t, state.Current)
	assert.Equal(t, "did:plc:bob", state.Current.DID)
	assert.Equal(t, []string{"did:plc:alice", "did:plc:bob"}, state.Accounts)
}

func TestSessionService_ResumeDropsUnreadableAccounts(t *testing.T) {
	fx := createTestSessionService(t)
	ctx := context.Background()

	require.NoError(t, fx.repo.SaveSession(ctx, testSession("did:plc:alice", "alice.test")))
	require.NoError(t, fx.repo.SaveAccounts(ctx, []string{"did:plc:alice", "did:plc:ghost"}, "did:plc:ghost"))

	require.NoError(t, fx.service.Resume(ctx))

	state := fx.service.State()
	require.NotNil(t, state.Current)
	assert.Equal(t, "did:plc:alice", state.Current.DID)
	assert.Equal(t, []string{"did:plc:alice"}, state.Accounts)

	// The repaired list was written back.
	accounts, current, err := fx.repo.LoadAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"did:plc:alice"}, accounts)
	assert.Equal(t, "did:plc:alice", current)
}

func TestSessionService_SubscribersSeeMutationsInOrder(t *testing.T) {
	fx := createTestSessionService(t)

	var currents []string
	unsubscribe := fx.service.Subscribe(func(state entity.SessionState) {
		did := ""
		if state.Current != nil {
			did = state.Current.DID
		}
		currents = append(currents, did)
	})

	login(t, fx, "did:plc:alice", "alice.test")
	login(t, fx, "did:plc:bob", "bob.test")
	require.NoError(t, fx.service.Logout(context.Background(), "did:plc:bob"))

	unsubscribe()
	require.NoError(t, fx.service.Logout(context.Background(), "did:plc:alice"))

	assert.Equal(t, []string{"did:plc:alice", "did:plc:bob", "did:plc:alice"}, currents)
}

func TestSessionService_AuthorizedClientTargetsCurrentPDS(t *testing.T) {
	fx := createTestSessionService(t)

	login(t, fx, "did:plc:alice", "alice.test")

	client, session, err := fx.service.AuthorizedClient(context.Background())
	require.NoError(t, err)
	require.NotNil(t, client)

	assert.Equal(t, "did:plc:alice", session.DID)
	assert.Equal(t, []string{"https://pds.alice.test"}, fx.clients.bases)
}
