package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lens/config"
	"lens/internal/domain/entity"
	domainerrors "lens/internal/domain/errors"
	"lens/internal/domain/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resolverFixtures wires a resolver against scripted DoH and PLC servers.
type resolverFixtures struct {
	resolver service.IdentityResolver

	// txt maps handle to the DID its DNS TXT record declares.
	txt map[string]string

	// docs maps DID to the document the directory serves.
	docs map[string]*entity.DIDDocument
}

func createTestResolver(t *testing.T) *resolverFixtures {
	t.Helper()

	fx := &resolverFixtures{
		txt:  make(map[string]string),
		docs: make(map[string]*entity.DIDDocument),
	}

	doh := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		handle := ""
		if len(name) > len("_atproto.") {
			handle = name[len("_atproto."):]
		}
		did, ok := fx.txt[handle]
		if !ok {
			fmt.Fprint(w, `{"Answer":[]}`)

			return
		}
		fmt.Fprintf(w, `{"Answer":[{"type":16,"data":"\"did=%s\""}]}`, did)
	}))
	t.Cleanup(doh.Close)

	plc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc, ok := fx.docs[r.URL.Path[1:]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)

			return
		}
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(plc.Close)

	cfg := &config.Config{ATProto: config.ATProtoConfig{
		PLCDirectory:   plc.URL,
		DoHEndpoint:    doh.URL,
		AppviewURL:     "https://appview.test",
		RequestTimeout: 5 * time.Second,
	}}
	fx.resolver = NewResolver(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	return fx
}

func testDoc(did, handle, pds string) *entity.DIDDocument {
	return &entity.DIDDocument{
		ID:          did,
		AlsoKnownAs: []string{"at://" + handle},
		Service: []entity.DIDService{{
			ID:              "#atproto_pds",
			Type:            "AtprotoPersonalDataServer",
			ServiceEndpoint: pds,
		}},
	}
}

func TestResolver_ResolveHandleViaDNS(t *testing.T) {
	fx := createTestResolver(t)
	fx.txt["alice.test"] = "did:plc:alice"

	did, err := fx.resolver.ResolveHandle(context.Background(), "alice.test")

	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", did)
}

func TestResolver_ResolveHandleNormalizesInput(t *testing.T) {
	fx := createTestResolver(t)
	fx.txt["alice.test"] = "did:plc:alice"

	did, err := fx.resolver.ResolveHandle(context.Background(), "  @Alice.Test ")

	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", did)
}

func TestResolver_ResolveHandleRejectsMalformedInput(t *testing.T) {
	fx := createTestResolver(t)

	for _, handle := range []string{"", "a/b.test"} {
		_, err := fx.resolver.ResolveHandle(context.Background(), handle)
		assert.ErrorIs(t, err, domainerrors.ErrResolutionFailed, "handle %q", handle)
	}
}

func TestResolver_ResolveDIDFromDirectory(t *testing.T) {
	fx := createTestResolver(t)
	fx.docs["did:plc:alice"] = testDoc("did:plc:alice", "alice.test", "https://pds.test")

	doc, err := fx.resolver.ResolveDID(context.Background(), "did:plc:alice")

	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", doc.ID)
	assert.Equal(t, "https://pds.test", doc.PDSEndpoint())
	assert.Equal(t, "alice.test", doc.DeclaredHandle())
}

func TestResolver_ResolveDIDRejectsDocumentIDMismatch(t *testing.T) {
	fx := createTestResolver(t)
	fx.docs["did:plc:alice"] = testDoc("did:plc:mallory", "alice.test", "https://pds.test")

	_, err := fx.resolver.ResolveDID(context.Background(), "did:plc:alice")

	assert.ErrorIs(t, err, domainerrors.ErrResolutionFailed)
}

func TestResolver_ResolveDIDRejectsUnsupportedMethod(t *testing.T) {
	fx := createTestResolver(t)

	_, err := fx.resolver.ResolveDID(context.Background(), "did:key:zQ3sh")

	assert.ErrorIs(t, err, domainerrors.ErrResolutionFailed)
}

func TestResolver_ResolveFullIdentityFromHandle(t *testing.T) {
	fx := createTestResolver(t)
	fx.txt["alice.test"] = "did:plc:alice"
	fx.docs["did:plc:alice"] = testDoc("did:plc:alice", "alice.test", "https://pds.test")

	identity, err := fx.resolver.Resolve(context.Background(), "alice.test")

	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", identity.DID)
	assert.Equal(t, "alice.test", identity.Handle)
	assert.Equal(t, "https://pds.test", identity.PDSEndpoint)
	assert.False(t, identity.HandleInvalid)
}

func TestResolver_ResolveFlagsHandleThatDoesNotResolveBack(t *testing.T) {
	fx := createTestResolver(t)
	// The document claims a handle whose TXT record points elsewhere.
	fx.txt["claimed.test"] = "did:plc:mallory"
	fx.docs["did:plc:alice"] = testDoc("did:plc:alice", "claimed.test", "https://pds.test")

	identity, err := fx.resolver.Resolve(context.Background(), "did:plc:alice")

	require.NoError(t, err)
	assert.True(t, identity.HandleInvalid,
		"a handle that resolves to a different did must be flagged")
}

func TestResolver_ResolveFailsWithoutPDSEndpoint(t *testing.T) {
	fx := createTestResolver(t)
	fx.docs["did:plc:alice"] = &entity.DIDDocument{
		ID:          "did:plc:alice",
		AlsoKnownAs: []string{"at://alice.test"},
	}

	_, err := fx.resolver.Resolve(context.Background(), "did:plc:alice")

	assert.ErrorIs(t, err, domainerrors.ErrResolutionFailed)
}

func TestResolver_CanceledContextSurfacesAsAborted(t *testing.T) {
	fx := createTestResolver(t)
	fx.txt["alice.test"] = "did:plc:alice"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.resolver.ResolveHandle(ctx, "alice.test")

	require.Error(t, err)
	assert.True(t, domainerrors.IsAborted(err))
}
