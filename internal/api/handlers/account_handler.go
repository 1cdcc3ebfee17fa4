package handlers

import (
	"context"

	"github.com/fadedpez/royalcharge/internal/api/middleware"
	"github.com/fadedpez/royalcharge/internal/api/presenters"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/fadedpez/royalcharge/pkg/services/account"
	"github.com/fadedpez/royalcharge/pkg/services/media"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// ImageResolver stores inline images and returns their URL
type ImageResolver interface {
	Resolve(ctx context.Context, kind media.Kind, ref string) (string, error)
}

type (
	AccountHandler interface {
		Me(c *fiber.Ctx) error
		UpdateMe(c *fiber.Ctx) error

		ListAccounts(c *fiber.Ctx) error
		UpdateAccount(c *fiber.Ctx) error
		AdjustBalance(c *fiber.Ctx) error
		PromoteAdmin(c *fiber.Ctx) error
		DemoteAdmin(c *fiber.Ctx) error
		ResetPassword(c *fiber.Ctx) error
		DeleteAccount(c *fiber.Ctx) error
	}

	accountHandler struct {
		accounts  account.AccountService
		images    ImageResolver
		validator *validator.Validate
	}

	ProfileRequest struct {
		Name       *string `json:"name,omitempty" validate:"omitempty,max=64"`
		ProfilePic *string `json:"profilePic,omitempty"`
		Country    *string `json:"country,omitempty" validate:"omitempty,max=64"`
		Theme      *string `json:"theme,omitempty" validate:"omitempty,oneof=light dark"`
	}

	AccountFieldsRequest struct {
		ProfileRequest
		VIP        *int  `json:"vip,omitempty" validate:"omitempty,gte=0,lte=99"`
		IsAdmin    *bool `json:"isAdmin,omitempty"`
		IsBlocked  *bool `json:"isBlocked,omitempty"`
		IsFrozen   *bool `json:"isFrozen,omitempty"`
		IsVerified *bool `json:"isVerified,omitempty"`
	}

	BalanceRequest struct {
		Delta decimal.Decimal `json:"delta" validate:"usd"`
	}

	BalanceResponse struct {
		Email      string          `json:"email"`
		BalanceUSD decimal.Decimal `json:"balanceUSD"`
	}

	PasswordRequest struct {
		Password string `json:"password" validate:"required,min=6,max=72"`
	}
)

func NewAccountHandler(accounts account.AccountService, images ImageResolver, validator *validator.Validate) AccountHandler {
	return &accountHandler{
		accounts:  accounts,
		images:    images,
		validator: validator,
	}
}

func (h *accountHandler) Me(c *fiber.Ctx) error {
	return presenters.SuccessResponse(c, middleware.CurrentAccount(c), fiber.StatusOK, "")
}

func (h *accountHandler) UpdateMe(c *fiber.Ctx) error {
	req := new(ProfileRequest)
	if err := parse(c, h.validator, req); err != nil {
		return presenters.ErrorResponse(c, err)
	}

	patch, err := h.profilePatch(c, req)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}

	updated, err := h.accounts.UpdateProfile(c.UserContext(), middleware.CurrentAccount(c).Email, patch)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, updated, fiber.StatusOK, "Profile updated")
}

func (h *accountHandler) ListAccounts(c *fiber.Ctx) error {
	accounts, err := h.accounts.ListAccounts(c.UserContext())
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, accounts, fiber.StatusOK, "")
}

func (h *accountHandler) UpdateAccount(c *fiber.Ctx) error {
	email, err := emailParam(c)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}

	req := new(AccountFieldsRequest)
	if err := parse(c, h.validator, req); err != nil {
		return presenters.ErrorResponse(c, err)
	}

	patch, err := h.profilePatch(c, &req.ProfileRequest)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	patch.VIP = req.VIP
	patch.IsAdmin = req.IsAdmin
	patch.IsBlocked = req.IsBlocked
	patch.IsFrozen = req.IsFrozen
	patch.IsVerified = req.IsVerified

	updated, err := h.accounts.SetAccountFields(c.UserContext(), email, patch)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, updated, fiber.StatusOK, "Account updated")
}

func (h *accountHandler) AdjustBalance(c *fiber.Ctx) error {
	email, err := emailParam(c)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}

	req := new(BalanceRequest)
	if err := parse(c, h.validator, req); err != nil {
		return presenters.ErrorResponse(c, err)
	}

	balance, err := h.accounts.AdjustBalance(c.UserContext(), email, req.Delta)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, BalanceResponse{Email: email, BalanceUSD: balance}, fiber.StatusOK, "Balance adjusted")
}

func (h *accountHandler) PromoteAdmin(c *fiber.Ctx) error {
	email, err := emailParam(c)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}

	promoted, err := h.accounts.PromoteAdmin(c.UserContext(), email)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, promoted, fiber.StatusOK, "Admin added")
}

func (h *accountHandler) DemoteAdmin(c *fiber.Ctx) error {
	email, err := emailParam(c)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}

	demoted, err := h.accounts.DemoteAdmin(c.UserContext(), email)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, demoted, fiber.StatusOK, "Admin removed")
}

func (h *accountHandler) ResetPassword(c *fiber.Ctx) error {
	email, err := emailParam(c)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}

	req := new(PasswordRequest)
	if err := parse(c, h.validator, req); err != nil {
		return presenters.ErrorResponse(c, err)
	}

	if err := h.accounts.ResetPassword(c.UserContext(), email, req.Password); err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, nil, fiber.StatusOK, "Password changed")
}

func (h *accountHandler) DeleteAccount(c *fiber.Ctx) error {
	email, err := emailParam(c)
	if err != nil {
		return presenters.ErrorResponse(c, err)
	}

	if err := h.accounts.DeleteAccount(c.UserContext(), email); err != nil {
		return presenters.ErrorResponse(c, err)
	}
	return presenters.SuccessResponse(c, nil, fiber.StatusOK, "Account deleted")
}

// profilePatch builds the profile part of a patch, storing an inline avatar
func (h *accountHandler) profilePatch(c *fiber.Ctx, req *ProfileRequest) (entities.AccountPatch, error) {
	patch := entities.AccountPatch{
		Name:       req.Name,
		Country:    req.Country,
		Theme:      req.Theme,
		ProfilePic: req.ProfilePic,
	}
	if req.ProfilePic != nil && h.images != nil {
		url, err := h.images.Resolve(c.UserContext(), media.KindAvatar, *req.ProfilePic)
		if err != nil {
			return entities.AccountPatch{}, err
		}
		patch.ProfilePic = &url
	}
	return patch, nil
}
