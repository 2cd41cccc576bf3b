// Package validator adapts go-playground validation to Echo's binding hook.
package validator

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// echoValidator implements echo.Validator.
type echoValidator struct {
	validate *validator.Validate
}

// New builds the request validator installed on the Echo server.
func New() echo.Validator {
	return &echoValidator{validate: validator.New()}
}

// Validate validates the bound request payload against its struct tags.
func (v *echoValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return nil
}
