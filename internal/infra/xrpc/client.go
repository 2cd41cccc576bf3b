// Package xrpc implements the typed record client over the repository
// XRPC HTTP API.
package xrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"lens/config"
	"lens/internal/domain/entity"
	domainerrors "lens/internal/domain/errors"
	"lens/internal/domain/service"

	"github.com/pkg/errors"
)

const (
	nsidGetRecord     = "com.atproto.repo.getRecord"
	nsidListRecords   = "com.atproto.repo.listRecords"
	nsidCreateRecord  = "com.atproto.repo.createRecord"
	nsidPutRecord     = "com.atproto.repo.putRecord"
	nsidUploadBlob    = "com.atproto.repo.uploadBlob"
	nsidDescribeRepo  = "com.atproto.repo.describeRepo"
	nsidListRepos     = "com.atproto.sync.listRepos"
	nsidResolveHandle = "com.atproto.identity.resolveHandle"
	nsidGetProfile    = "app.bsky.actor.getProfile"
)

type clientFactory struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClientFactory builds the production record client factory. All clients
// produced by one factory share a single HTTP transport.
func NewClientFactory(cfg *config.Config, logger *slog.Logger) service.RecordClientFactory {
	return &clientFactory{
		httpClient: &http.Client{Timeout: cfg.ATProto.RequestTimeout},
		logger:     logger,
	}
}

func (f *clientFactory) Client(serviceURL string) service.RecordClient {
	return &client{
		baseURL:    strings.TrimSuffix(serviceURL, "/"),
		httpClient: f.httpClient,
		logger:     f.logger,
	}
}

func (f *clientFactory) AuthenticatedClient(serviceURL string, creds service.CredentialSource) service.RecordClient {
	return &client{
		baseURL:    strings.TrimSuffix(serviceURL, "/"),
		httpClient: f.httpClient,
		creds:      creds,
		logger:     f.logger,
	}
}

// client is bound to one service base URL. creds is nil for read-only
// public clients.
type client struct {
	baseURL    string
	httpClient *http.Client
	creds      service.CredentialSource
	logger     *slog.Logger
}

// xrpcError is the JSON error body XRPC endpoints return on non-2xx.
type xrpcError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *client) DescribeRepo(ctx context.Context, repo string) (*entity.RepoDescription, error) {
	params := url.Values{}
	params.Set("repo", repo)

	var out entity.RepoDescription
	if err := c.query(ctx, nsidDescribeRepo, params, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *client) GetRecord(ctx context.Context, repo, collection, rkey string) (*entity.Record, error) {
	params := url.Values{}
	params.Set("repo", repo)
	params.Set("collection", collection)
	params.Set("rkey", rkey)

	var out entity.Record
	if err := c.query(ctx, nsidGetRecord, params, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *client) ListRecords(ctx context.Context, repo, collection string, limit int, cursor string) (*entity.RecordPage, error) {
	params := url.Values{}
	params.Set("repo", repo)
	params.Set("collection", collection)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var out entity.RecordPage
	if err := c.query(ctx, nsidListRecords, params, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *client) CreateRecord(ctx context.Context, repo, collection, rkey string, value any) (*entity.Record, error) {
	if c.creds == nil {
		return nil, domainerrors.ErrUnauthorized.WrapMessage("createRecord requires an authenticated client")
	}

	input := map[string]any{
		"repo":       repo,
		"collection": collection,
		"record":     value,
	}
	if rkey != "" {
		input["rkey"] = rkey
	}

	var out entity.Record
	if err := c.procedure(ctx, nsidCreateRecord, input, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *client) PutRecord(ctx context.Context, repo, collection, rkey string, value any) (*entity.Record, error) {
	if c.creds == nil {
		return nil, domainerrors.ErrUnauthorized.WrapMessage("putRecord requires an authenticated client")
	}

	input := map[string]any{
		"repo":       repo,
		"collection": collection,
		"rkey":       rkey,
		"record":     value,
	}

	var out entity.Record
	if err := c.procedure(ctx, nsidPutRecord, input, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *client) UploadBlob(ctx context.Context, data []byte, mimeType string) (*entity.BlobRef, error) {
	if c.creds == nil {
		return nil, domainerrors.ErrUnauthorized.WrapMessage("uploadBlob requires an authenticated client")
	}

	req, err := c.newRequest(ctx, http.MethodPost, nsidUploadBlob, nil, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mimeType)

	var out struct {
		Blob entity.BlobRef `json:"blob"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}

	return &out.Blob, nil
}

func (c *client) ListRepos(ctx context.Context, limit int, cursor string) (*entity.RepoPage, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var out entity.RepoPage
	if err := c.query(ctx, nsidListRepos, params, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	params := url.Values{}
	params.Set("handle", handle)

	var out struct {
		DID string `json:"did"`
	}
	if err := c.query(ctx, nsidResolveHandle, params, &out); err != nil {
		return "", err
	}

	return out.DID, nil
}

func (c *client) GetProfile(ctx context.Context, actor string) (*entity.Profile, error) {
	params := url.Values{}
	params.Set("actor", actor)

	var out entity.Profile
	if err := c.query(ctx, nsidGetProfile, params, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *client) query(ctx context.Context, nsid string, params url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, nsid, params, nil)
	if err != nil {
		return err
	}

	return c.do(req, out)
}

func (c *client) procedure(ctx context.Context, nsid string, input, out any) error {
	body, err := json.Marshal(input)
	if err != nil {
		return errors.Wrap(err, "encode procedure input")
	}

	req, err := c.newRequest(ctx, http.MethodPost, nsid, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *client) newRequest(ctx context.Context, method, nsid string, params url.Values, body io.Reader) (*http.Request, error) {
	endpoint := fmt.Sprintf("%s/xrpc/%s", c.baseURL, nsid)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, errors.Wrap(err, "build xrpc request")
	}
	req.Header.Set("Accept", "application/json")

	if c.creds != nil {
		if err := c.creds.Authorize(ctx, req); err != nil {
			return nil, err
		}
	}

	return req, nil
}

// do performs the request exactly once and maps the outcome onto the domain
// taxonomy. Cancellation wins over any other classification.
func (c *client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return domainerrors.ErrAborted.WrapMessage("xrpc call canceled")
		}

		return errors.Wrap(domainerrors.ErrNetwork, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if req.Context().Err() != nil {
			return domainerrors.ErrAborted.WrapMessage("xrpc call canceled")
		}

		return errors.Wrap(domainerrors.ErrNetwork, err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(resp.StatusCode, body)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(domainerrors.ErrUpstream, "malformed xrpc response body")
	}

	return nil
}

func (c *client) statusError(status int, body []byte) error {
	var xe xrpcError
	_ = json.Unmarshal(body, &xe)
	detail := xe.Message
	if detail == "" {
		detail = xe.Error
	}
	if detail == "" {
		detail = fmt.Sprintf("status %d", status)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domainerrors.ErrUnauthorized.WithDetails(detail).WrapMessage(detail)
	case status == http.StatusNotFound || xe.Error == "RecordNotFound" || xe.Error == "RepoNotFound":
		return domainerrors.ErrNotFound.WithDetails(detail).WrapMessage(detail)
	default:
		c.logger.Debug("xrpc error response",
			slog.Int("status", status), slog.String("error", xe.Error))

		return domainerrors.ErrUpstream.WithDetails(detail).WrapMessage(fmt.Sprintf("status %d", status))
	}
}
