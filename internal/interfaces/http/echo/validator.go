package echo

import (
	"github.com/go-playground/validator/v10"
	e "github.com/labstack/echo/v4"
)

type requestValidator struct {
	validate *validator.Validate
}

// NewValidator adapts go-playground/validator to echo's Validator.
func NewValidator() e.Validator {
	return &requestValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (v *requestValidator) Validate(i any) error {
	return v.validate.Struct(i)
}
