package account

import (
	"context"

	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/shopspring/decimal"
)

// AvatarPicker hands out a default profile picture for new accounts
type AvatarPicker interface {
	RandomAvatar() string
}

// Registration is the signup request
type Registration struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=6,max=72"`
	Name       string `json:"name" validate:"max=64"`
	Country    string `json:"country" validate:"max=64"`
	ProfilePic string `json:"profilePic"`
}

// AccountService is the account surface the API and bot depend on
type AccountService interface {
	Authenticate(ctx context.Context, email, password string) (*entities.Account, error)
	Register(ctx context.Context, reg *Registration) (*entities.Account, error)
	CheckSession(ctx context.Context, email string) (*entities.Account, error)
	GetAccount(ctx context.Context, email string) (*entities.Account, error)
	UpdateProfile(ctx context.Context, email string, patch entities.AccountPatch) (*entities.Account, error)
	AdjustBalance(ctx context.Context, email string, delta decimal.Decimal) (decimal.Decimal, error)
	ListAccounts(ctx context.Context) ([]*entities.Account, error)
	SetAccountFields(ctx context.Context, email string, patch entities.AccountPatch) (*entities.Account, error)
	PromoteAdmin(ctx context.Context, email string) (*entities.Account, error)
	DemoteAdmin(ctx context.Context, email string) (*entities.Account, error)
	ResetPassword(ctx context.Context, email, password string) error
	DeleteAccount(ctx context.Context, email string) error
}
