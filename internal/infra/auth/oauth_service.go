// Package auth implements the authorization-code flow against
// protocol-discovered authorization servers, with PKCE, pushed
// authorization requests and DPoP-bound tokens.
package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"lens/config"
	"lens/internal/domain/entity"
	domainerrors "lens/internal/domain/errors"
	"lens/internal/domain/service"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	pendingTTL     = 10 * time.Minute
	dpopNonceError = "use_dpop_nonce"
)

// serverMetadata is the subset of authorization server metadata the flow uses.
type serverMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	PAREndpoint           string `json:"pushed_authorization_request_endpoint"`
	RevocationEndpoint    string `json:"revocation_endpoint"`
}

// pendingAuthorization holds the per-login secrets between StartAuthorization
// and FinalizeAuthorization.
type pendingAuthorization struct {
	identity  entity.Identity
	metadata  serverMetadata
	verifier  string
	dpopKey   string
	expiresAt time.Time
}

// tokenResponse is the token endpoint response for both grant types.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Sub          string `json:"sub"`
}

type oauthService struct {
	clientID    string
	redirectURI string
	scope       string
	httpClient  *http.Client
	logger      *slog.Logger

	pendingMutex sync.Mutex
	pending      map[string]pendingAuthorization
}

// NewOAuthService is the constructor for the atproto OAuth service.
func NewOAuthService(cfg *config.Config, logger *slog.Logger) service.OAuthService {
	return &oauthService{
		clientID:    cfg.OAuth.ClientID,
		redirectURI: cfg.OAuth.RedirectURI,
		scope:       cfg.OAuth.Scope,
		httpClient:  &http.Client{Timeout: cfg.ATProto.RequestTimeout},
		logger:      logger,
		pending:     make(map[string]pendingAuthorization),
	}
}

// StartAuthorization discovers the identity's authorization server, pushes
// the authorization request and returns the URL to hand to the user.
func (s *oauthService) StartAuthorization(ctx context.Context, identity *entity.Identity) (*service.AuthorizationRequest, error) {
	meta, err := s.discoverServer(ctx, identity.PDSEndpoint)
	if err != nil {
		return nil, err
	}

	state := uuid.New().String()
	verifier := randomToken()
	challenge := pkceChallenge(verifier)

	key, err := generateDPoPKey()
	if err != nil {
		return nil, err
	}
	keyPEM, err := encodeDPoPKey(key)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("client_id", s.clientID)
	form.Set("redirect_uri", s.redirectURI)
	form.Set("response_type", "code")
	form.Set("scope", s.scope)
	form.Set("state", state)
	form.Set("code_challenge", challenge)
	form.Set("code_challenge_method", "S256")
	if identity.Handle != "" && !identity.HandleInvalid {
		form.Set("login_hint", identity.Handle)
	}

	requestURI, err := s.pushAuthorizationRequest(ctx, meta, key, form)
	if err != nil {
		return nil, err
	}

	authParams := form
	if requestURI != "" {
		authParams = url.Values{
			"client_id":   {s.clientID},
			"request_uri": {requestURI},
		}
	}
	authURL := fmt.Sprintf("%s?%s", meta.AuthorizationEndpoint, authParams.Encode())

	s.storePending(state, pendingAuthorization{
		identity:  *identity,
		metadata:  meta,
		verifier:  verifier,
		dpopKey:   keyPEM,
		expiresAt: time.Now().Add(pendingTTL),
	})

	return &service.AuthorizationRequest{URL: authURL, State: state}, nil
}

// FinalizeAuthorization completes the code exchange for a pending login.
func (s *oauthService) FinalizeAuthorization(ctx context.Context, params service.CallbackParams) (*entity.Session, error) {
	pending, ok := s.takePending(params.State)
	if !ok {
		return nil, domainerrors.ErrUnauthorized.WrapMessage("unknown or expired authorization state")
	}
	if params.Issuer != "" && params.Issuer != pending.metadata.Issuer {
		return nil, domainerrors.ErrUnauthorized.WrapMessage("authorization issuer mismatch")
	}

	key, err := decodeDPoPKey(pending.dpopKey)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", params.Code)
	form.Set("redirect_uri", s.redirectURI)
	form.Set("client_id", s.clientID)
	form.Set("code_verifier", pending.verifier)

	tokens, err := s.tokenRequest(ctx, pending.metadata.TokenEndpoint, key, form)
	if err != nil {
		return nil, err
	}
	if tokens.Sub != "" && tokens.Sub != pending.identity.DID {
		return nil, domainerrors.ErrUnauthorized.WrapMessage("token subject does not match the resolved identity")
	}

	now := time.Now()

	return &entity.Session{
		DID:              pending.identity.DID,
		Handle:           pending.identity.Handle,
		PDSEndpoint:      pending.identity.PDSEndpoint,
		AuthServerIssuer: pending.metadata.Issuer,
		Tokens: entity.TokenSet{
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken,
			TokenType:    tokens.TokenType,
			ExpiresAt:    now.Add(time.Duration(tokens.ExpiresIn) * time.Second),
		},
		DPoPKey:   pending.dpopKey,
		CreatedAt: now,
	}, nil
}

// Refresh exchanges the refresh token for fresh material. The returned
// session is a copy with rotated tokens.
func (s *oauthService) Refresh(ctx context.Context, session *entity.Session) (*entity.Session, error) {
	if session.Tokens.RefreshToken == "" {
		return nil, domainerrors.ErrNoStoredSession.WrapMessage("session has no refresh token")
	}

	meta, err := s.serverMetadataFor(ctx, session.AuthServerIssuer)
	if err != nil {
		return nil, err
	}

	key, err := decodeDPoPKey(session.DPoPKey)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", session.Tokens.RefreshToken)
	form.Set("client_id", s.clientID)

	tokens, err := s.tokenRequest(ctx, meta.TokenEndpoint, key, form)
	if err != nil {
		return nil, err
	}

	refreshed := *session
	refreshed.Tokens = entity.TokenSet{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    tokens.TokenType,
		ExpiresAt:    time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second),
	}
	if refreshed.Tokens.RefreshToken == "" {
		refreshed.Tokens.RefreshToken = session.Tokens.RefreshToken
	}

	return &refreshed, nil
}

// Revoke invalidates the refresh token upstream. Missing revocation support
// on the server is not an error.
func (s *oauthService) Revoke(ctx context.Context, session *entity.Session) error {
	meta, err := s.serverMetadataFor(ctx, session.AuthServerIssuer)
	if err != nil {
		return err
	}
	if meta.RevocationEndpoint == "" {
		return nil
	}

	key, err := decodeDPoPKey(session.DPoPKey)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("token", session.Tokens.RefreshToken)
	form.Set("client_id", s.clientID)

	_, err = s.signedForm(ctx, meta.RevocationEndpoint, key, form, "")

	return err
}

// Credentials returns a signer that attaches DPoP-bound authorization to
// outbound requests, refreshing through the token endpoint when needed.
func (s *oauthService) Credentials(session *entity.Session, onRotate func(*entity.Session)) service.CredentialSource {
	return &credentialSource{
		service:  s,
		session:  session,
		onRotate: onRotate,
	}
}

// credentialSource serializes refreshes so concurrent requests rotate the
// token at most once.
type credentialSource struct {
	service  *oauthService
	mutex    sync.Mutex
	session  *entity.Session
	onRotate func(*entity.Session)
}

func (c *credentialSource) Authorize(ctx context.Context, req *http.Request) error {
	c.mutex.Lock()
	if c.session.Tokens.Expired(time.Now()) {
		refreshed, err := c.service.Refresh(ctx, c.session)
		if err != nil {
			c.mutex.Unlock()

			return err
		}
		c.session = refreshed
		if c.onRotate != nil {
			c.onRotate(refreshed)
		}
	}
	session := c.session
	c.mutex.Unlock()

	key, err := decodeDPoPKey(session.DPoPKey)
	if err != nil {
		return err
	}

	proof, err := dpopProof(key, req.Method, proofURL(req), "", session.Tokens.AccessToken)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "DPoP "+session.Tokens.AccessToken)
	req.Header.Set("DPoP", proof)

	return nil
}

// discoverServer walks from the PDS to its authorization server metadata.
func (s *oauthService) discoverServer(ctx context.Context, pdsEndpoint string) (serverMetadata, error) {
	var resource struct {
		AuthorizationServers []string `json:"authorization_servers"`
	}
	resourceURL := strings.TrimSuffix(pdsEndpoint, "/") + "/.well-known/oauth-protected-resource"
	if err := s.getJSON(ctx, resourceURL, &resource); err != nil {
		return serverMetadata{}, err
	}
	if len(resource.AuthorizationServers) == 0 {
		return serverMetadata{}, domainerrors.ErrResolutionFailed.WrapMessage("pds declares no authorization server")
	}

	return s.serverMetadataFor(ctx, resource.AuthorizationServers[0])
}

func (s *oauthService) serverMetadataFor(ctx context.Context, issuer string) (serverMetadata, error) {
	var meta serverMetadata
	metadataURL := strings.TrimSuffix(issuer, "/") + "/.well-known/oauth-authorization-server"
	if err := s.getJSON(ctx, metadataURL, &meta); err != nil {
		return serverMetadata{}, err
	}
	if meta.TokenEndpoint == "" || meta.AuthorizationEndpoint == "" {
		return serverMetadata{}, domainerrors.ErrResolutionFailed.WrapMessage("incomplete authorization server metadata")
	}
	if meta.Issuer == "" {
		meta.Issuer = issuer
	}

	return meta, nil
}

func (s *oauthService) pushAuthorizationRequest(ctx context.Context, meta serverMetadata, key *ecdsa.PrivateKey, form url.Values) (string, error) {
	if meta.PAREndpoint == "" {
		// Servers without PAR accept the same parameters on the
		// authorization endpoint query string.
		return "", nil
	}

	body, err := s.signedForm(ctx, meta.PAREndpoint, key, form, "")
	if err != nil {
		return "", err
	}

	var out struct {
		RequestURI string `json:"request_uri"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.RequestURI == "" {
		return "", errors.Wrap(domainerrors.ErrUpstream, "malformed pushed authorization response")
	}

	return out.RequestURI, nil
}

func (s *oauthService) tokenRequest(ctx context.Context, endpoint string, key *ecdsa.PrivateKey, form url.Values) (*tokenResponse, error) {
	body, err := s.signedForm(ctx, endpoint, key, form, "")
	if err != nil {
		return nil, err
	}

	var tokens tokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, errors.Wrap(domainerrors.ErrUpstream, "malformed token response")
	}
	if tokens.AccessToken == "" {
		return nil, domainerrors.ErrUnauthorized.WrapMessage("token endpoint returned no access token")
	}

	return &tokens, nil
}

// signedForm POSTs a DPoP-signed form, retrying exactly once when the
// server demands a nonce via use_dpop_nonce.
func (s *oauthService) signedForm(ctx context.Context, endpoint string, key *ecdsa.PrivateKey, form url.Values, nonce string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	proof, err := dpopProof(key, http.MethodPost, endpoint, nonce, "")
	if err != nil {
		return nil, err
	}
	req.Header.Set("DPoP", proof)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domainerrors.ErrAborted.WrapMessage("authorization canceled")
		}

		return nil, errors.Wrap(domainerrors.ErrNetwork, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(domainerrors.ErrNetwork, err.Error())
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return body, nil
	}

	var oauthErr struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.Unmarshal(body, &oauthErr)

	if oauthErr.Error == dpopNonceError && nonce == "" {
		if serverNonce := resp.Header.Get("DPoP-Nonce"); serverNonce != "" {
			return s.signedForm(ctx, endpoint, key, form, serverNonce)
		}
	}

	detail := oauthErr.ErrorDescription
	if detail == "" {
		detail = fmt.Sprintf("status %d", resp.StatusCode)
	}
	s.logger.Debug("authorization server rejected request",
		slog.String("endpoint", endpoint), slog.String("error", oauthErr.Error))

	return nil, domainerrors.ErrUnauthorized.WithDetails(detail).WrapMessage(detail)
}

func (s *oauthService) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrap(err, "build metadata request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domainerrors.ErrAborted.WrapMessage("authorization canceled")
		}

		return errors.Wrap(domainerrors.ErrNetwork, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domainerrors.ErrUpstream.WrapMessage(fmt.Sprintf("status %d from %s", resp.StatusCode, rawURL))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(domainerrors.ErrUpstream, "malformed metadata response")
	}

	return nil
}

func (s *oauthService) storePending(state string, pending pendingAuthorization) {
	s.pendingMutex.Lock()
	defer s.pendingMutex.Unlock()

	now := time.Now()
	for key, value := range s.pending {
		if now.After(value.expiresAt) {
			delete(s.pending, key)
		}
	}
	s.pending[state] = pending
}

// takePending removes and returns the pending authorization for a state, so
// each state is usable exactly once.
func (s *oauthService) takePending(state string) (pendingAuthorization, bool) {
	s.pendingMutex.Lock()
	defer s.pendingMutex.Unlock()

	pending, ok := s.pending[state]
	if !ok || time.Now().After(pending.expiresAt) {
		delete(s.pending, state)

		return pendingAuthorization{}, false
	}
	delete(s.pending, state)

	return pending, true
}

func randomToken() string {
	buf := make([]byte, 48)
	rand.Read(buf)

	return base64.RawURLEncoding.EncodeToString(buf)
}

func pkceChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))

	return base64.RawURLEncoding.EncodeToString(hash[:])
}
