package handlers

import (
	"context"

	"github.com/fadedpez/royalcharge/internal/api/middleware"
	"github.com/fadedpez/royalcharge/internal/api/presenters"
	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/fadedpez/royalcharge/pkg/repositories/archive"
	"github.com/fadedpez/royalcharge/pkg/services/store"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// StoreService is the order lifecycle surface the API depends on
type StoreService interface {
	Purchase(ctx context.Context, email string, req *store.PurchaseRequest) (*store.Result, error)
	RequestRecharge(ctx context.Context, email string, req *store.RechargeRequest) (*store.Result, error)
	UpdateOrderStatus(ctx context.Context, actor, orderID string, status entities.OrderStatus, reply string) (*store.Result, error)
	GetOrder(ctx context.Context, viewer *entities.Account, id string) (*entities.Order, error)
	ListOrders(ctx context.Context, viewer *entities.Account) ([]*entities.Order, error)
	PendingOrders(ctx context.Context) ([]*entities.Order, error)
	DeleteAllOrders(ctx context.Context, actor string, confirm store.Confirmation) (int64, error)
	SearchArchive(ctx context.Context, q archive.Query) ([]*archive.OrderDocument, error)
}

type (
	OrderHandler interface {
		Purchase(c *fiber.Ctx) error
		RequestRecharge(c *fiber.Ctx) error
		ListOrders(c *fiber.Ctx) error
		GetOrder(c *fiber.Ctx) error

		PendingOrders(c *fiber.Ctx) error
		UpdateOrderStatus(c *fiber.Ctx) error
		DeleteAllOrders(c *fiber.Ctx) error
		SearchArchive(c *fiber.Ctx) error
	}

	orderHandler struct {
		store     StoreService
		validator *validator.Validate
	}

	StatusRequest struct {
		Status entities.OrderStatus `json:"status" validate:"required,oneof=completed rejected"`
		Reply  string               `json:"reply" validate:"max=1024"`
	}

	DeleteAllResponse struct {
		Deleted int64 `json:"deleted"`
	}
)

func NewOrderHandler(store StoreService, validator *validator.Validate) OrderHandler {
	return &orderHandler{
		store:     store,
		validator: validator,
	}
}

func (h *orderHandler) Purchase(c *fiber.Ctx) error {
	req := new(store.PurchaseRequest)
	if err := c.BodyParser(req); err != nil {
		return presenters.ErrorResponse(c, types.WrapError(types.ErrValidation, "Malformed request body", err))
	}
	req.IdempotencyKey = idempotencyKey(c, req.IdempotencyKey)

	result, err := h.store.Purchase(c.UserContext(), middleware.CurrentAccount(c).Email, req)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, result, createdStatus(result), "Order placed")
}

func (h *orderHandler) RequestRecharge(c *fiber.Ctx) error {
	req := new(store.RechargeRequest)
	if err := c.BodyParser(req); err != nil {
		return presenters.ErrorResponse(c, types.WrapError(types.ErrValidation, "Malformed request body", err))
	}
	req.IdempotencyKey = idempotencyKey(c, req.IdempotencyKey)

	result, err := h.store.RequestRecharge(c.UserContext(), middleware.CurrentAccount(c).Email, req)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, result, createdStatus(result), "Recharge request sent")
}

func (h *orderHandler) ListOrders(c *fiber.Ctx) error {
	orders, err := h.store.ListOrders(c.UserContext(), middleware.CurrentAccount(c))
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, orders, fiber.StatusOK, "")
}

func (h *orderHandler) GetOrder(c *fiber.Ctx) error {
	order, err := h.store.GetOrder(c.UserContext(), middleware.CurrentAccount(c), c.Params("id"))
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, order, fiber.StatusOK, "")
}

func (h *orderHandler) PendingOrders(c *fiber.Ctx) error {
	orders, err := h.store.PendingOrders(c.UserContext())
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, orders, fiber.StatusOK, "")
}

func (h *orderHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	req := new(StatusRequest)
	if err := parse(c, h.validator, req); err != nil {
		return presenters.ErrorResponse(c, err)
	}

	actor := middleware.CurrentAccount(c).Email
	result, err := h.store.UpdateOrderStatus(c.UserContext(), actor, c.Params("id"), req.Status, req.Reply)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, result, fiber.StatusOK, "Order "+string(req.Status))
}

func (h *orderHandler) DeleteAllOrders(c *fiber.Ctx) error {
	confirm := new(store.Confirmation)
	if err := c.BodyParser(confirm); err != nil {
		return presenters.ErrorResponse(c, types.WrapError(types.ErrValidation, "Malformed request body", err))
	}

	deleted, err := h.store.DeleteAllOrders(c.UserContext(), middleware.CurrentAccount(c).Email, *confirm)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, DeleteAllResponse{Deleted: deleted}, fiber.StatusOK, "All orders deleted")
}

func (h *orderHandler) SearchArchive(c *fiber.Ctx) error {
	q := archive.Query{
		UserID: entities.NormalizeEmail(c.Query("user")),
		Status: entities.OrderStatus(c.Query("status")),
		Type:   entities.OrderType(c.Query("type")),
		Size:   c.QueryInt("size", 0),
	}
	if q.Status != "" && !q.Status.Valid() {
		return presenters.ErrorResponse(c, types.NewStoreError(types.ErrValidation, "unknown status"))
	}

	docs, err := h.store.SearchArchive(c.UserContext(), q)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, docs, fiber.StatusOK, "")
}

// idempotencyKey prefers the Idempotency-Key header over the body field
func idempotencyKey(c *fiber.Ctx, fromBody string) string {
	if key := c.Get("Idempotency-Key"); key != "" {
		return key
	}
	return fromBody
}

// createdStatus answers a replayed request with 200 instead of 201
func createdStatus(result *store.Result) int {
	if result.Replayed {
		return fiber.StatusOK
	}
	return fiber.StatusCreated
}
