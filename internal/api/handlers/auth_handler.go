package handlers

import (
	"time"

	"github.com/fadedpez/royalcharge/internal/api/presenters"
	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/fadedpez/royalcharge/pkg/jwt"
	"github.com/fadedpez/royalcharge/pkg/services/account"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type (
	AuthHandler interface {
		Signup(c *fiber.Ctx) error
		Login(c *fiber.Ctx) error
	}

	authHandler struct {
		accounts  account.AccountService
		tokens    jwt.JWTService
		validator *validator.Validate
	}

	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	SessionResponse struct {
		Token     string            `json:"token"`
		ExpiresAt time.Time         `json:"expiresAt"`
		Account   *entities.Account `json:"account"`
	}
)

func NewAuthHandler(accounts account.AccountService, tokens jwt.JWTService, validator *validator.Validate) AuthHandler {
	return &authHandler{
		accounts:  accounts,
		tokens:    tokens,
		validator: validator,
	}
}

func (h *authHandler) Signup(c *fiber.Ctx) error {
	req := new(account.Registration)
	if err := parse(c, h.validator, req); err != nil {
		return presenters.ErrorResponse(c, err)
	}

	created, err := h.accounts.Register(c.UserContext(), req)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}

	return h.session(c, created, fiber.StatusCreated, "Account created")
}

func (h *authHandler) Login(c *fiber.Ctx) error {
	req := new(LoginRequest)
	if err := parse(c, h.validator, req); err != nil {
		return presenters.ErrorResponse(c, err)
	}

	acc, err := h.accounts.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}

	return h.session(c, acc, fiber.StatusOK, "Logged in")
}

func (h *authHandler) session(c *fiber.Ctx, acc *entities.Account, status int, message string) error {
	token, expires, err := h.tokens.GenerateToken(acc.Email, acc.IsAdmin)
	if err != nil {
		return presenters.ErrorResponse(c, types.WrapError(types.ErrInternalError, "Failed to start session", err))
	}
	return presenters.SuccessResponse(c, SessionResponse{Token: token, ExpiresAt: expires, Account: acc}, status, message)
}
