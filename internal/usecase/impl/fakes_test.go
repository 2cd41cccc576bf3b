package impl

import (
	"context"
	"net/http"
	"sync"
	"time"

	"lens/internal/domain/entity"
	"lens/internal/domain/repository"
	"lens/internal/domain/service"

	"github.com/pkg/errors"
)

// fakeSessionRepo is an in-memory stand-in for the pebble-backed session
// repository.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*entity.Session
	accounts []string
	current  string

	findErr map[string]error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		sessions: make(map[string]*entity.Session),
		findErr:  make(map[string]error),
	}
}

func (r *fakeSessionRepo) SaveSession(_ context.Context, session *entity.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.DID] = session

	return nil
}

func (r *fakeSessionRepo) FindSession(_ context.Context, did string) (*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.findErr[did]; err != nil {
		return nil, err
	}
	session, ok := r.sessions[did]
	if !ok {
		return nil, errors.Wrapf(repository.ErrSessionNotFound, "did %s", did)
	}

	return session, nil
}

func (r *fakeSessionRepo) DeleteSession(_ context.Context, did string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, did)

	return nil
}

func (r *fakeSessionRepo) SaveAccounts(_ context.Context, accounts []string, current string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = append([]string{}, accounts...)
	r.current = current

	return nil
}

func (r *fakeSessionRepo) LoadAccounts(_ context.Context) ([]string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string{}, r.accounts...), r.current, nil
}

// fakeOAuth scripts the authorization flow without any network traffic.
type fakeOAuth struct {
	mu       sync.Mutex
	sessions map[string]*entity.Session
	revoked  []string

	revokeErr error
}

func newFakeOAuth() *fakeOAuth {
	return &fakeOAuth{sessions: make(map[string]*entity.Session)}
}

func (o *fakeOAuth) StartAuthorization(_ context.Context, identity *entity.Identity) (*service.AuthorizationRequest, error) {
	return &service.AuthorizationRequest{
		URL:   "https://auth.example/authorize?actor=" + identity.DID,
		State: "state-" + identity.DID,
	}, nil
}

func (o *fakeOAuth) FinalizeAuthorization(_ context.Context, params service.CallbackParams) (*entity.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	session, ok := o.sessions[params.State]
	if !ok {
		return nil, errors.New("unknown state")
	}

	return session, nil
}

func (o *fakeOAuth) Refresh(_ context.Context, session *entity.Session) (*entity.Session, error) {
	rotated := *session
	rotated.Tokens.AccessToken = session.Tokens.AccessToken + "-rotated"
	rotated.Tokens.ExpiresAt = time.Now().Add(time.Hour)

	return &rotated, nil
}

func (o *fakeOAuth) Revoke(_ context.Context, session *entity.Session) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.revoked = append(o.revoked, session.DID)

	return o.revokeErr
}

func (o *fakeOAuth) Credentials(session *entity.Session, _ func(*entity.Session)) service.CredentialSource {
	return staticCredentials{token: session.Tokens.AccessToken}
}

type staticCredentials struct {
	token string
}

func (c staticCredentials) Authorize(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	return nil
}

// fakeResolver resolves from a fixed table.
type fakeResolver struct {
	identities map[string]*entity.Identity
	err        error
}

func (r *fakeResolver) Resolve(_ context.Context, identifier string) (*entity.Identity, error) {
	if r.err != nil {
		return nil, r.err
	}
	identity, ok := r.identities[identifier]
	if !ok {
		return nil, errors.Errorf("unknown identifier %s", identifier)
	}

	return identity, nil
}

func (r *fakeResolver) ResolveHandle(ctx context.Context, handle string) (string, error) {
	identity, err := r.Resolve(ctx, handle)
	if err != nil {
		return "", err
	}

	return identity.DID, nil
}

func (r *fakeResolver) ResolveDID(_ context.Context, _ string) (*entity.DIDDocument, error) {
	return nil, errors.New("not scripted")
}

// fakeClientFactory records which base URLs clients were built for.
type fakeClientFactory struct {
	mu     sync.Mutex
	bases  []string
	client *fakeRecordClient
}

func newFakeClientFactory() *fakeClientFactory {
	return &fakeClientFactory{client: &fakeRecordClient{}}
}

func (f *fakeClientFactory) Client(serviceURL string) service.RecordClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bases = append(f.bases, serviceURL)

	return f.client
}

func (f *fakeClientFactory) AuthenticatedClient(serviceURL string, creds service.CredentialSource) service.RecordClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bases = append(f.bases, serviceURL)
	f.client.creds = creds

	return f.client
}

// fakeRecordClient scripts individual verbs; unset verbs return zero values.
type fakeRecordClient struct {
	creds service.CredentialSource

	getProfileFn  func(ctx context.Context, actor string) (*entity.Profile, error)
	listRecordsFn func(ctx context.Context, repo, collection string, limit int, cursor string) (*entity.RecordPage, error)
	createdRepo   string
}

func (c *fakeRecordClient) DescribeRepo(_ context.Context, repo string) (*entity.RepoDescription, error) {
	return &entity.RepoDescription{DID: repo}, nil
}

func (c *fakeRecordClient) GetRecord(_ context.Context, repo, collection, rkey string) (*entity.Record, error) {
	return &entity.Record{URI: "at://" + repo + "/" + collection + "/" + rkey}, nil
}

func (c *fakeRecordClient) ListRecords(ctx context.Context, repo, collection string, limit int, cursor string) (*entity.RecordPage, error) {
	if c.listRecordsFn != nil {
		return c.listRecordsFn(ctx, repo, collection, limit, cursor)
	}

	return &entity.RecordPage{}, nil
}

func (c *fakeRecordClient) CreateRecord(_ context.Context, repo, _, _ string, _ any) (*entity.Record, error) {
	c.createdRepo = repo

	return &entity.Record{}, nil
}

func (c *fakeRecordClient) PutRecord(_ context.Context, repo, _, _ string, _ any) (*entity.Record, error) {
	c.createdRepo = repo

	return &entity.Record{}, nil
}

func (c *fakeRecordClient) UploadBlob(_ context.Context, data []byte, mimeType string) (*entity.BlobRef, error) {
	return &entity.BlobRef{MimeType: mimeType, Size: int64(len(data))}, nil
}

func (c *fakeRecordClient) ListRepos(_ context.Context, _ int, _ string) (*entity.RepoPage, error) {
	return &entity.RepoPage{}, nil
}

func (c *fakeRecordClient) ResolveHandle(_ context.Context, _ string) (string, error) {
	return "", errors.New("not scripted")
}

func (c *fakeRecordClient) GetProfile(ctx context.Context, actor string) (*entity.Profile, error) {
	if c.getProfileFn != nil {
		return c.getProfileFn(ctx, actor)
	}

	return &entity.Profile{DID: actor}, nil
}

// fakeProfileCache is an in-memory profile cache with scriptable failures.
type fakeProfileCache struct {
	mu      sync.Mutex
	entries map[string]*entity.ProfileEntry

	getErr error
	setErr error
}

func newFakeProfileCache() *fakeProfileCache {
	return &fakeProfileCache{entries: make(map[string]*entity.ProfileEntry)}
}

func (c *fakeProfileCache) Get(_ context.Context, did string) (*entity.ProfileEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	entry, ok := c.entries[did]
	if !ok {
		return nil, errors.Wrapf(repository.ErrCacheMiss, "did %s", did)
	}

	return entry, nil
}

func (c *fakeProfileCache) Set(_ context.Context, did string, entry *entity.ProfileEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[did] = entry

	return nil
}

func (c *fakeProfileCache) Delete(_ context.Context, did string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, did)

	return nil
}

func (c *fakeProfileCache) Clean(_ context.Context, retention time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := time.Now().Add(-retention)
	evicted := 0
	for did, entry := range c.entries {
		if entry.FetchedAt.Before(cutoff) {
			delete(c.entries, did)
			evicted++
		}
	}

	return evicted, nil
}
