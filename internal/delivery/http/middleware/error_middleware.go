package middleware

import (
	"log/slog"
	"net/http"

	domainerrors "lens/internal/domain/errors"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// ErrorMiddleware error handling middleware
type ErrorMiddleware struct {
	logger *slog.Logger
}

// NewErrorMiddleware creates a new error handling middleware
func NewErrorMiddleware(logger *slog.Logger) *ErrorMiddleware {
	return &ErrorMiddleware{
		logger: logger,
	}
}

type errorEnvelope struct {
	Success bool          `json:"success"`
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Error   *errorDetails `json:"error"`
}

type errorDetails struct {
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// HandleHTTPError handles errors as Echo's HTTPErrorHandler. Canceled
// requests are not errors: they get their own status and are never logged
// at error level.
func (m *ErrorMiddleware) HandleHTTPError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	if domainerrors.IsAborted(err) {
		_ = c.JSON(domainerrors.ErrAborted.HTTPCode(), errorEnvelope{
			Code:    domainerrors.ErrAborted.HTTPCode(),
			Message: domainerrors.ErrAborted.Message(),
			Error:   &errorDetails{Code: domainerrors.ErrAborted.ErrorCode()},
		})

		return
	}

	var appErr domainerrors.AppError
	if errors.As(err, &appErr) {
		_ = c.JSON(appErr.HTTPCode(), errorEnvelope{
			Code:    appErr.HTTPCode(),
			Message: appErr.Message(),
			Error: &errorDetails{
				Code:    appErr.ErrorCode(),
				Details: appErr.Details(),
			},
		})

		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		message, _ := httpErr.Message.(string)
		_ = c.JSON(httpErr.Code, errorEnvelope{
			Code:    httpErr.Code,
			Message: message,
			Error:   &errorDetails{Code: "HTTP_ERROR", Details: message},
		})

		return
	}

	m.logger.Error("Unhandled error",
		slog.String("error", err.Error()),
		slog.String("path", c.Request().URL.Path),
		slog.String("method", c.Request().Method),
	)

	_ = c.JSON(http.StatusInternalServerError, errorEnvelope{
		Code:    http.StatusInternalServerError,
		Message: "Internal server error",
		Error:   &errorDetails{Code: "INTERNAL_ERROR", Details: err.Error()},
	})
}
