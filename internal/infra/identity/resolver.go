// Package identity implements handle and DID resolution over DNS-over-HTTPS
// and the protocol's HTTPS well-known endpoints.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"lens/config"
	"lens/internal/domain/entity"
	domainerrors "lens/internal/domain/errors"
	"lens/internal/domain/service"

	"github.com/pkg/errors"
)

const (
	dnsTXTType      = 16
	handleTXTPrefix = "did="
)

type resolver struct {
	plcDirectory string
	dohEndpoint  string
	client       *http.Client
	logger       *slog.Logger
}

// NewResolver builds the production identity resolver.
func NewResolver(cfg *config.Config, logger *slog.Logger) service.IdentityResolver {
	return &resolver{
		plcDirectory: strings.TrimSuffix(cfg.ATProto.PLCDirectory, "/"),
		dohEndpoint:  cfg.ATProto.DoHEndpoint,
		client:       &http.Client{Timeout: cfg.ATProto.RequestTimeout},
		logger:       logger,
	}
}

// Resolve resolves a handle or DID to complete identity information. The
// declared handle is re-verified against the DID; a mismatch flags the
// identity rather than failing the lookup.
func (r *resolver) Resolve(ctx context.Context, identifier string) (*entity.Identity, error) {
	identifier = strings.TrimPrefix(strings.TrimSpace(identifier), "@")
	if identifier == "" {
		return nil, domainerrors.ErrResolutionFailed.WrapMessage("empty identifier")
	}

	did := identifier
	verifiedHandle := ""
	if !entity.IsDID(identifier) {
		resolved, err := r.ResolveHandle(ctx, identifier)
		if err != nil {
			return nil, err
		}
		did = resolved
		verifiedHandle = strings.ToLower(identifier)
	}

	doc, err := r.ResolveDID(ctx, did)
	if err != nil {
		return nil, err
	}

	pds := doc.PDSEndpoint()
	if pds == "" {
		return nil, domainerrors.ErrResolutionFailed.WrapMessage("did document declares no pds endpoint")
	}

	ident := &entity.Identity{
		DID:         doc.ID,
		Handle:      doc.DeclaredHandle(),
		PDSEndpoint: pds,
	}

	if ident.Handle != "" && strings.ToLower(ident.Handle) != verifiedHandle {
		verified, err := r.ResolveHandle(ctx, ident.Handle)
		if err != nil || verified != ident.DID {
			if err != nil && domainerrors.IsAborted(err) {
				return nil, err
			}
			r.logger.Warn("declared handle does not resolve back to did",
				slog.String("did", ident.DID), slog.String("handle", ident.Handle))
			ident.HandleInvalid = true
		}
	}

	return ident, nil
}

// ResolveHandle resolves a handle to its DID, trying the DNS TXT record
// first and the HTTPS well-known endpoint second.
func (r *resolver) ResolveHandle(ctx context.Context, handle string) (string, error) {
	handle = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(handle)), "@")
	if handle == "" || strings.Contains(handle, "/") {
		return "", domainerrors.ErrResolutionFailed.WrapMessage("malformed handle")
	}

	if did, err := r.resolveHandleDNS(ctx, handle); err == nil {
		return did, nil
	} else if domainerrors.IsAborted(err) {
		return "", err
	}

	did, err := r.resolveHandleWellKnown(ctx, handle)
	if err != nil {
		return "", err
	}

	return did, nil
}

// ResolveDID retrieves the DID document for a did:web or did:plc DID.
func (r *resolver) ResolveDID(ctx context.Context, did string) (*entity.DIDDocument, error) {
	var docURL string
	switch {
	case strings.HasPrefix(did, "did:web:"):
		domain := strings.TrimPrefix(did, "did:web:")
		docURL = fmt.Sprintf("https://%s/.well-known/did.json", domain)
	case strings.HasPrefix(did, "did:plc:"):
		docURL = fmt.Sprintf("%s/%s", r.plcDirectory, url.PathEscape(did))
	default:
		return nil, domainerrors.ErrResolutionFailed.WrapMessage("unsupported did method")
	}

	body, err := r.fetch(ctx, docURL, "application/json")
	if err != nil {
		return nil, err
	}

	var doc entity.DIDDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, domainerrors.ErrResolutionFailed.WrapMessage("malformed did document")
	}
	if doc.ID != did {
		return nil, domainerrors.ErrResolutionFailed.WrapMessage("did document id mismatch")
	}

	return &doc, nil
}

// dohAnswer models the answer section of a DNS-over-HTTPS JSON response.
type dohAnswer struct {
	Answer []struct {
		Type int    `json:"type"`
		Data string `json:"data"`
	} `json:"Answer"`
}

func (r *resolver) resolveHandleDNS(ctx context.Context, handle string) (string, error) {
	query := url.Values{}
	query.Set("name", "_atproto."+handle)
	query.Set("type", "TXT")

	body, err := r.fetch(ctx, r.dohEndpoint+"?"+query.Encode(), "application/dns-json")
	if err != nil {
		return "", err
	}

	var resp dohAnswer
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", domainerrors.ErrResolutionFailed.WrapMessage("malformed dns response")
	}

	for _, answer := range resp.Answer {
		if answer.Type != dnsTXTType {
			continue
		}
		data := strings.Trim(answer.Data, `"`)
		if did, ok := strings.CutPrefix(data, handleTXTPrefix); ok && entity.IsDID(did) {
			return did, nil
		}
	}

	return "", domainerrors.ErrResolutionFailed.WrapMessage("no atproto txt record for handle")
}

func (r *resolver) resolveHandleWellKnown(ctx context.Context, handle string) (string, error) {
	body, err := r.fetch(ctx, fmt.Sprintf("https://%s/.well-known/atproto-did", handle), "text/plain")
	if err != nil {
		return "", err
	}

	did := strings.TrimSpace(string(body))
	if !entity.IsDID(did) {
		return "", domainerrors.ErrResolutionFailed.WrapMessage("well-known endpoint returned no did")
	}

	return did, nil
}

// fetch performs one GET and maps failures onto the domain taxonomy:
// cancellation to ErrAborted, everything else to ErrResolutionFailed.
func (r *resolver) fetch(ctx context.Context, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, domainerrors.ErrResolutionFailed.WrapMessage("build request")
	}
	req.Header.Set("Accept", accept)

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domainerrors.ErrAborted.WrapMessage("resolution canceled")
		}

		return nil, errors.Wrap(domainerrors.ErrResolutionFailed, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domainerrors.ErrResolutionFailed.WrapMessage(
			fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, rawURL))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if ctx.Err() != nil {
			return nil, domainerrors.ErrAborted.WrapMessage("resolution canceled")
		}

		return nil, errors.Wrap(domainerrors.ErrResolutionFailed, err.Error())
	}

	return body, nil
}
