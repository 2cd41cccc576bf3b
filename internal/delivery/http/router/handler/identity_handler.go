package handler

import (
	"log/slog"
	"net/http"
	"time"

	"lens/internal/delivery/http/response"
	"lens/internal/domain/entity"
	"lens/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// IdentityHandler holds dependencies for identity and profile handlers.
type IdentityHandler struct {
	browse   usecase.BrowseUsecase
	profiles usecase.ProfileUsecase
	logger   *slog.Logger
}

// NewIdentityHandler is the constructor for IdentityHandler, injected by Fx.
func NewIdentityHandler(browse usecase.BrowseUsecase, profiles usecase.ProfileUsecase, logger *slog.Logger) *IdentityHandler {
	return &IdentityHandler{
		browse:   browse,
		profiles: profiles,
		logger:   logger,
	}
}

// ResolveIdentity resolves a handle or DID to full identity information.
func (h *IdentityHandler) ResolveIdentity(c echo.Context) error {
	actor := c.Param("actor")

	identity, err := h.browse.ResolveIdentity(c.Request().Context(), actor)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, identity, "")
}

// GetProfile returns the cached profile for an actor, resolving handles to
// DIDs first since the cache is keyed by DID.
func (h *IdentityHandler) GetProfile(c echo.Context) error {
	ctx := c.Request().Context()

	did := c.Param("did")
	if !entity.IsDID(did) {
		identity, err := h.browse.ResolveIdentity(ctx, did)
		if err != nil {
			return errors.WithStack(err)
		}
		did = identity.DID
	}

	profile, err := h.profiles.ResolveProfile(ctx, did)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, profile, "")
}

// InvalidateProfile drops the cached profile so the next lookup refetches.
func (h *IdentityHandler) InvalidateProfile(c echo.Context) error {
	if err := h.profiles.InvalidateProfile(c.Request().Context(), c.Param("did")); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Profile invalidated")
}

// CleanCache evicts profile cache entries past the retention window.
func (h *IdentityHandler) CleanCache(c echo.Context) error {
	evicted, err := h.profiles.CleanCache(c.Request().Context())
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, map[string]int{"evicted": evicted}, "")
}

// DecodeTID decodes a record-key timestamp identifier into its parts.
func (h *IdentityHandler) DecodeTID(c echo.Context) error {
	tid, err := entity.ParseTID(c.Param("tid"))
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, map[string]any{
		"tid":        tid.String(),
		"time":       tid.Time().UTC().Format(time.RFC3339Nano),
		"unixMicros": tid.UnixMicros(),
		"clockId":    tid.ClockID(),
	}, "")
}
