package account

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/fadedpez/royalcharge/internal/logging"
	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/fadedpez/royalcharge/internal/validation"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/fadedpez/royalcharge/pkg/livesync"
	"github.com/fadedpez/royalcharge/pkg/metrics"
	"github.com/fadedpez/royalcharge/pkg/repositories/ledger"
	"github.com/fadedpez/royalcharge/pkg/services/txn"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Signup defaults
const (
	DefaultName    = "User"
	DefaultCountry = "Egypt"
	DefaultTheme   = "light"
	DefaultVIP     = 1
	AdminVIP       = 99
)

// Config holds the collaborators of the account service. Only RootAdminEmail
// is required.
type Config struct {
	RootAdminEmail string
	Avatars        AvatarPicker
	Notifier       livesync.Notifier
	Metrics        *metrics.Metrics
	Retrier        txn.Retrier
	Log            *logging.Logger
	BcryptCost     int
}

// Service handles account business logic
type Service struct {
	repo      ledger.Repository
	rootAdmin string
	avatars   AvatarPicker
	notifier  livesync.Notifier
	metrics   *metrics.Metrics
	retry     txn.Retrier
	log       *logging.Logger
	cost      int

	mu  sync.Mutex
	rng *mathrand.Rand
}

// NewService creates a new account service
func NewService(repo ledger.Repository, cfg *Config) *Service {
	s := &Service{
		repo:      repo,
		rootAdmin: entities.NormalizeEmail(cfg.RootAdminEmail),
		avatars:   cfg.Avatars,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
		retry:     cfg.Retrier,
		log:       cfg.Log,
		cost:      cfg.BcryptCost,
		rng:       mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
	if s.notifier == nil {
		s.notifier = livesync.NopNotifier{}
	}
	if s.log == nil {
		s.log = logging.Discard
	}
	s.log = s.log.Component("account")
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	return s
}

// IsRootAdmin reports whether email is the designated root admin
func (s *Service) IsRootAdmin(email string) bool {
	return entities.NormalizeEmail(email) == s.rootAdmin
}

// Authenticate checks credentials. A blocked account is refused even with the
// right password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*entities.Account, error) {
	email = entities.NormalizeEmail(email)

	var account *entities.Account
	err := s.retry.Do(ctx, "authenticate", func() error {
		var err error
		account, err = s.repo.GetAccount(ctx, email)
		return err
	})
	if types.IsStoreError(err, types.ErrAccountNotFound) {
		return nil, types.WrapError(types.ErrAccountNotFound, "No account is registered with this email", err)
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		s.log.WithFields(logrus.Fields{"email": email}).Info("invalid credentials")
		return nil, types.NewStoreError(types.ErrInvalidCredentials, "Incorrect password")
	}

	if account.IsBlocked {
		s.log.WithFields(logrus.Fields{"email": email}).Warn("blocked account tried to log in")
		return nil, types.NewStoreError(types.ErrAccountBlocked, "This account has been blocked")
	}

	return account, nil
}

// Register creates an account with a zero balance
func (s *Service) Register(ctx context.Context, reg *Registration) (*entities.Account, error) {
	if err := validation.Struct(reg); err != nil {
		return nil, err
	}

	hash, err := s.hash(reg.Password)
	if err != nil {
		return nil, err
	}

	email := entities.NormalizeEmail(reg.Email)
	account := &entities.Account{
		Email:        email,
		ID:           s.displayID(),
		Name:         withDefault(reg.Name, DefaultName),
		PasswordHash: hash,
		BalanceUSD:   decimal.Zero,
		IsAdmin:      email == s.rootAdmin,
		IsVerified:   true,
		ProfilePic:   reg.ProfilePic,
		Country:      withDefault(reg.Country, DefaultCountry),
		VIP:          DefaultVIP,
		Theme:        DefaultTheme,
	}
	if account.ProfilePic == "" && s.avatars != nil {
		account.ProfilePic = s.avatars.RandomAvatar()
	}

	err = s.retry.Do(ctx, "register", func() error {
		return s.repo.CreateAccount(ctx, account)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"email": email, "admin": account.IsAdmin}).Info("account registered")
	s.notifier.AccountChanged(email)
	return account, nil
}

// CheckSession reloads the account behind a session. A blocked or deleted
// account ends the session.
func (s *Service) CheckSession(ctx context.Context, email string) (*entities.Account, error) {
	account, err := s.GetAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if account.IsBlocked {
		return nil, types.NewStoreError(types.ErrAccountBlocked, "This account has been blocked")
	}
	return account, nil
}

// GetAccount returns one account
func (s *Service) GetAccount(ctx context.Context, email string) (*entities.Account, error) {
	var account *entities.Account
	err := s.retry.Do(ctx, "get_account", func() error {
		var err error
		account, err = s.repo.GetAccount(ctx, entities.NormalizeEmail(email))
		return err
	})
	return account, err
}

// UpdateProfile merges profile fields only. Privileged fields in patch are
// ignored, and balance has no field at all.
func (s *Service) UpdateProfile(ctx context.Context, email string, patch entities.AccountPatch) (*entities.Account, error) {
	return s.update(ctx, "update_profile", email, patch.ProfileOnly())
}

// AdjustBalance applies an admin balance correction atomically and returns the
// new balance
func (s *Service) AdjustBalance(ctx context.Context, email string, delta decimal.Decimal) (decimal.Decimal, error) {
	email = entities.NormalizeEmail(email)
	delta = entities.RoundUSD(delta)
	if delta.IsZero() {
		return decimal.Zero, types.NewStoreError(types.ErrValidation, "Amount must not be zero")
	}

	start := time.Now()
	var balance decimal.Decimal
	err := s.retry.Do(ctx, "adjust_balance", func() error {
		var err error
		balance, err = s.repo.AdjustBalance(ctx, email, delta)
		return err
	})
	s.metrics.ObserveTransaction("adjust_balance", start, err)
	if err != nil {
		return decimal.Zero, err
	}

	s.metrics.ObserveBalanceDelta(delta)
	s.log.WithFields(logrus.Fields{
		"email":   email,
		"delta":   delta.StringFixed(2),
		"balance": balance.StringFixed(2),
	}).Info("balance adjusted")
	s.notifier.AccountChanged(email)
	return balance, nil
}

// ListAccounts returns every account
func (s *Service) ListAccounts(ctx context.Context) ([]*entities.Account, error) {
	var accounts []*entities.Account
	err := s.retry.Do(ctx, "list_accounts", func() error {
		var err error
		accounts, err = s.repo.ListAccounts(ctx)
		return err
	})
	return accounts, err
}

// SetAccountFields is the admin edit path. It can change flags and VIP tier
// but never the balance or the password; the root admin cannot lose admin
// rights or be blocked.
func (s *Service) SetAccountFields(ctx context.Context, email string, patch entities.AccountPatch) (*entities.Account, error) {
	patch.PasswordHash = nil
	if s.IsRootAdmin(email) {
		if patch.IsAdmin != nil && !*patch.IsAdmin {
			return nil, types.NewStoreError(types.ErrPermissionDenied, "The root admin cannot be demoted")
		}
		if patch.IsBlocked != nil && *patch.IsBlocked {
			return nil, types.NewStoreError(types.ErrPermissionDenied, "The root admin cannot be blocked")
		}
	}
	return s.update(ctx, "set_account_fields", email, patch)
}

// PromoteAdmin grants admin rights, creating the account when it does not
// exist yet
func (s *Service) PromoteAdmin(ctx context.Context, email string) (*entities.Account, error) {
	email = entities.NormalizeEmail(email)
	isAdmin, vip := true, AdminVIP
	patch := entities.AccountPatch{IsAdmin: &isAdmin, VIP: &vip}

	account, err := s.update(ctx, "promote_admin", email, patch)
	if !types.IsStoreError(err, types.ErrAccountNotFound) {
		return account, err
	}

	// Placeholder password; the new admin sets one through a reset
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		return nil, types.WrapError(types.ErrInternalError, "Failed to create account", err)
	}
	hash, err := s.hash(hex.EncodeToString(secret))
	if err != nil {
		return nil, err
	}

	account = &entities.Account{
		Email:        email,
		ID:           s.displayID(),
		Name:         "Admin",
		PasswordHash: hash,
		BalanceUSD:   decimal.Zero,
		IsAdmin:      true,
		IsVerified:   true,
		Country:      DefaultCountry,
		VIP:          AdminVIP,
		Theme:        DefaultTheme,
	}
	if s.avatars != nil {
		account.ProfilePic = s.avatars.RandomAvatar()
	}
	err = s.retry.Do(ctx, "promote_admin", func() error {
		return s.repo.CreateAccount(ctx, account)
	})
	if types.IsStoreError(err, types.ErrAccountExists) {
		// Registered concurrently
		return s.update(ctx, "promote_admin", email, patch)
	}
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"email": email}).Info("admin account created")
	s.notifier.AccountChanged(email)
	return account, nil
}

// DemoteAdmin revokes admin rights
func (s *Service) DemoteAdmin(ctx context.Context, email string) (*entities.Account, error) {
	if s.IsRootAdmin(email) {
		return nil, types.NewStoreError(types.ErrPermissionDenied, "The root admin cannot be demoted")
	}
	isAdmin, vip := false, DefaultVIP
	return s.update(ctx, "demote_admin", email, entities.AccountPatch{IsAdmin: &isAdmin, VIP: &vip})
}

// ResetPassword replaces the password of an account
func (s *Service) ResetPassword(ctx context.Context, email, password string) error {
	if len(password) < 6 {
		return types.NewStoreError(types.ErrValidation, "password must be at least 6 characters")
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	_, err = s.update(ctx, "reset_password", email, entities.AccountPatch{PasswordHash: &hash})
	return err
}

// DeleteAccount removes an account entirely. Its orders stay in the ledger.
func (s *Service) DeleteAccount(ctx context.Context, email string) error {
	email = entities.NormalizeEmail(email)
	if email == s.rootAdmin {
		return types.NewStoreError(types.ErrPermissionDenied, "The root admin cannot be deleted")
	}

	err := s.retry.Do(ctx, "delete_account", func() error {
		return s.repo.DeleteAccount(ctx, email)
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{"email": email}).Warn("account deleted")
	s.notifier.AccountChanged(email)
	return nil
}

func (s *Service) update(ctx context.Context, op, email string, patch entities.AccountPatch) (*entities.Account, error) {
	email = entities.NormalizeEmail(email)
	if patch.IsEmpty() {
		return s.GetAccount(ctx, email)
	}

	var account *entities.Account
	err := s.retry.Do(ctx, op, func() error {
		var err error
		account, err = s.repo.UpdateAccount(ctx, email, patch)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"email": email, "operation": op}).Info("account updated")
	s.notifier.AccountChanged(email)
	return account, nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", types.WrapError(types.ErrValidation, "password is too long", err)
	}
	if err != nil {
		return "", types.WrapError(types.ErrInternalError, "Failed to hash password", err)
	}
	return string(hash), nil
}

// displayID returns a 4-digit code; it is not unique
func (s *Service) displayID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%d", 1000+s.rng.Intn(9000))
}

func withDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
