package handler

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"lens/internal/delivery/http/response"
	"lens/internal/domain/entity"
	domainservice "lens/internal/domain/service"
	"lens/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// AuthHandler holds dependencies for login and account management.
type AuthHandler struct {
	sessions usecase.SessionUsecase
	qr       domainservice.QRCodeService
	logger   *slog.Logger
}

// NewAuthHandler is the constructor for AuthHandler, injected by Fx.
func NewAuthHandler(sessions usecase.SessionUsecase, qr domainservice.QRCodeService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		qr:       qr,
		logger:   logger,
	}
}

// accountView is the session summary exposed over the API. Credential
// material never leaves the session store.
type accountView struct {
	DID         string    `json:"did"`
	Handle      string    `json:"handle,omitempty"`
	PDSEndpoint string    `json:"pdsEndpoint"`
	CreatedAt   time.Time `json:"createdAt"`
}

func viewOf(session *entity.Session) *accountView {
	if session == nil {
		return nil
	}

	return &accountView{
		DID:         session.DID,
		Handle:      session.Handle,
		PDSEndpoint: session.PDSEndpoint,
		CreatedAt:   session.CreatedAt,
	}
}

type loginRequest struct {
	Handle string `json:"handle" validate:"required"`
}

type loginResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
	QRPng string `json:"qrPng,omitempty"`
}

// Login starts the authorization flow for a handle or DID and returns the
// URL to visit, with a QR rendering for cross-device hand-off.
func (h *AuthHandler) Login(c echo.Context) error {
	var input loginRequest
	if err := c.Bind(&input); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid login input")
	}
	if err := c.Validate(&input); err != nil {
		return errors.WithStack(err)
	}

	request, err := h.sessions.StartLogin(c.Request().Context(), input.Handle)
	if err != nil {
		return errors.WithStack(err)
	}

	output := loginResponse{URL: request.URL, State: request.State}
	if png, err := h.qr.GenerateLoginQR(request.URL); err != nil {
		h.logger.Warn("login QR rendering failed", slog.Any("error", err))
	} else {
		output.QRPng = base64.StdEncoding.EncodeToString(png)
	}

	return response.Success(c, http.StatusOK, output, "Authorization started")
}

// Callback finalizes the authorization flow from the redirect parameters.
func (h *AuthHandler) Callback(c echo.Context) error {
	params := domainservice.CallbackParams{
		State:  c.QueryParam("state"),
		Code:   c.QueryParam("code"),
		Issuer: c.QueryParam("iss"),
	}
	if params.State == "" || params.Code == "" {
		return response.BadRequest(c, "INVALID_INPUT", "Missing state or code")
	}

	session, err := h.sessions.FinalizeLogin(c.Request().Context(), params)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, viewOf(session), "Login successful")
}

type accountsResponse struct {
	Current  *accountView `json:"current"`
	Accounts []string     `json:"accounts"`
}

// Accounts returns the current session and every stored account.
func (h *AuthHandler) Accounts(c echo.Context) error {
	state := h.sessions.State()

	return response.Success(c, http.StatusOK, accountsResponse{
		Current:  viewOf(state.Current),
		Accounts: state.Accounts,
	}, "")
}

type accountRequest struct {
	DID string `json:"did" validate:"required"`
}

// Switch makes a stored account the current one.
func (h *AuthHandler) Switch(c echo.Context) error {
	var input accountRequest
	if err := c.Bind(&input); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid switch input")
	}
	if err := c.Validate(&input); err != nil {
		return errors.WithStack(err)
	}

	if err := h.sessions.SwitchAccount(c.Request().Context(), input.DID); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, viewOf(h.sessions.Current()), "Account switched")
}

// Logout removes a stored account. Without a DID in the body, the current
// account logs out.
func (h *AuthHandler) Logout(c echo.Context) error {
	var input accountRequest
	if err := c.Bind(&input); err != nil {
		return response.BindingError(c, "INVALID_INPUT", "Invalid logout input")
	}
	if input.DID == "" {
		current := h.sessions.Current()
		if current == nil {
			return response.BadRequest(c, "INVALID_INPUT", "No account to log out")
		}
		input.DID = current.DID
	}

	if err := h.sessions.Logout(c.Request().Context(), input.DID); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, viewOf(h.sessions.Current()), "Logout successful")
}
