package handlers

import (
	"context"

	"github.com/fadedpez/royalcharge/internal/api/presenters"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/fadedpez/royalcharge/pkg/services/catalog"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// CatalogService is the catalog surface the API depends on
type CatalogService interface {
	Snapshot(ctx context.Context) (*catalog.Catalog, error)
	SaveProduct(ctx context.Context, product *entities.Product) (*entities.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	SaveCategory(ctx context.Context, category *entities.Category) (*entities.Category, error)
	DeleteCategory(ctx context.Context, id string) error
	SaveMethod(ctx context.Context, method *entities.RechargeMethod) (*entities.RechargeMethod, error)
	DeleteMethod(ctx context.Context, id string) error
	UpdateConfig(ctx context.Context, cfg *entities.AppConfig) (*entities.AppConfig, error)
}

type (
	CatalogHandler interface {
		GetCatalog(c *fiber.Ctx) error

		SaveProduct(c *fiber.Ctx) error
		DeleteProduct(c *fiber.Ctx) error
		SaveCategory(c *fiber.Ctx) error
		DeleteCategory(c *fiber.Ctx) error
		SaveMethod(c *fiber.Ctx) error
		DeleteMethod(c *fiber.Ctx) error
		UpdateConfig(c *fiber.Ctx) error
	}

	catalogHandler struct {
		catalog   CatalogService
		validator *validator.Validate
	}
)

func NewCatalogHandler(catalog CatalogService, validator *validator.Validate) CatalogHandler {
	return &catalogHandler{
		catalog:   catalog,
		validator: validator,
	}
}

func (h *catalogHandler) GetCatalog(c *fiber.Ctx) error {
	snapshot, err := h.catalog.Snapshot(c.UserContext())
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, snapshot, fiber.StatusOK, "")
}

// SaveProduct creates (POST) or replaces (PUT /:id) a product
func (h *catalogHandler) SaveProduct(c *fiber.Ctx) error {
	product := new(entities.Product)
	if err := parse(c, h.validator, product); err != nil {
		return presenters.ErrorResponse(c, err)
	}
	product.ID = c.Params("id")

	saved, err := h.catalog.SaveProduct(c.UserContext(), product)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, saved, savedStatus(c), "Product saved")
}

func (h *catalogHandler) DeleteProduct(c *fiber.Ctx) error {
	if err := h.catalog.DeleteProduct(c.UserContext(), c.Params("id")); err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, nil, fiber.StatusOK, "Product deleted")
}

func (h *catalogHandler) SaveCategory(c *fiber.Ctx) error {
	category := new(entities.Category)
	if err := parse(c, h.validator, category); err != nil {
		return presenters.ErrorResponse(c, err)
	}
	category.ID = c.Params("id")

	saved, err := h.catalog.SaveCategory(c.UserContext(), category)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, saved, savedStatus(c), "Category saved")
}

func (h *catalogHandler) DeleteCategory(c *fiber.Ctx) error {
	if err := h.catalog.DeleteCategory(c.UserContext(), c.Params("id")); err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, nil, fiber.StatusOK, "Category deleted")
}

func (h *catalogHandler) SaveMethod(c *fiber.Ctx) error {
	method := new(entities.RechargeMethod)
	if err := parse(c, h.validator, method); err != nil {
		return presenters.ErrorResponse(c, err)
	}
	method.ID = c.Params("id")

	saved, err := h.catalog.SaveMethod(c.UserContext(), method)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, saved, savedStatus(c), "Recharge method saved")
}

func (h *catalogHandler) DeleteMethod(c *fiber.Ctx) error {
	if err := h.catalog.DeleteMethod(c.UserContext(), c.Params("id")); err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, nil, fiber.StatusOK, "Recharge method deleted")
}

func (h *catalogHandler) UpdateConfig(c *fiber.Ctx) error {
	cfg := new(entities.AppConfig)
	if err := parse(c, h.validator, cfg); err != nil {
		return presenters.ErrorResponse(c, err)
	}

	saved, err := h.catalog.UpdateConfig(c.UserContext(), cfg)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, saved, fiber.StatusOK, "Settings saved")
}

func savedStatus(c *fiber.Ctx) int {
	if c.Method() == fiber.MethodPost {
		return fiber.StatusCreated
	}
	return fiber.StatusOK
}
