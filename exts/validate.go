// Package exts holds request helpers shared by the HTTP handlers.
package exts

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/socialdist/fednode/types"
)

var validation = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct checks the validate tags of data. Failures are ErrValidation.
func ValidateStruct(data any) error {
	if err := validation.Struct(data); err != nil {
		return errors.Wrap(types.ErrValidation, err.Error())
	}
	return nil
}

// BindAndValidate decodes the request body into data and validates it.
func BindAndValidate(c echo.Context, data any) error {
	if err := c.Bind(data); err != nil {
		return errors.Wrapf(types.ErrValidation, "malformed body: %v", err)
	}
	return ValidateStruct(data)
}

// Error writes err as a JSON error with the status its class maps to.
func Error(c echo.Context, err error) error {
	return c.JSON(types.HTTPStatus(err), echo.Map{"error": err.Error()})
}
