package handlers

import (
	"net/url"

	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/fadedpez/royalcharge/internal/validation"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// parse decodes the JSON body into req and validates it
func parse(c *fiber.Ctx, v *validator.Validate, req any) error {
	if err := c.BodyParser(req); err != nil {
		return types.WrapError(types.ErrValidation, "Malformed request body", err)
	}
	return validation.FromError(v.Struct(req))
}

// emailParam reads the :email path segment
func emailParam(c *fiber.Ctx) (string, error) {
	raw, err := url.PathUnescape(c.Params("email"))
	if err != nil || raw == "" {
		return "", types.NewStoreError(types.ErrValidation, "email is required")
	}
	return entities.NormalizeEmail(raw), nil
}
