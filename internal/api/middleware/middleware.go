package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fadedpez/royalcharge/internal/api/presenters"
	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/fadedpez/royalcharge/pkg/jwt"
	"github.com/fadedpez/royalcharge/pkg/metrics"
	"github.com/gofiber/fiber/v2"
)

const localAccount = "account"

// SessionChecker reloads the account behind a session
type SessionChecker interface {
	CheckSession(ctx context.Context, email string) (*entities.Account, error)
}

type (
	Middleware interface {
		AuthMiddleware() fiber.Handler
		AdminMiddleware() fiber.Handler
		MetricsMiddleware() fiber.Handler
	}

	middleware struct {
		tokens   jwt.JWTService
		sessions SessionChecker
		metrics  *metrics.Metrics
	}
)

func NewMiddleware(tokens jwt.JWTService, sessions SessionChecker, m *metrics.Metrics) Middleware {
	return &middleware{tokens: tokens, sessions: sessions, metrics: m}
}

// AuthMiddleware validates the bearer token and reloads the account. A
// blocked or deleted account ends the session: the client is told to log out.
func (m *middleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			return presenters.SessionEndedResponse(c, types.ErrPermissionDenied, "Authentication required")
		}

		claims, err := m.tokens.ParseToken(token)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return presenters.SessionEndedResponse(c, types.ErrPermissionDenied, "Session expired")
		}
		if err != nil {
			return presenters.SessionEndedResponse(c, types.ErrPermissionDenied, "Invalid session")
		}

		account, err := m.sessions.CheckSession(c.UserContext(), claims.Email)
		if err != nil {
			code := types.CodeOf(err)
			if code == types.ErrAccountBlocked || code == types.ErrAccountNotFound {
				var storeErr *types.StoreError
				types.As(err, &storeErr)
				return presenters.SessionEndedResponse(c, code, storeErr.Message)
			}
			return presenters.ErrorResponse(c, err)
		}

		c.Locals(localAccount, account)
		return c.Next()
	}
}

// AdminMiddleware admits admins only. It must run after AuthMiddleware.
func (m *middleware) AdminMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		account := CurrentAccount(c)
		if account == nil || !account.IsAdmin {
			return presenters.ErrorResponse(c, types.NewStoreError(types.ErrPermissionDenied, "Admin access required"))
		}
		return c.Next()
	}
}

// MetricsMiddleware records every request by route pattern
func (m *middleware) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				status = fiberErr.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		m.metrics.ObserveRequest(c.Route().Path, status, time.Since(start))
		return err
	}
}

// CurrentAccount returns the account loaded by AuthMiddleware
func CurrentAccount(c *fiber.Ctx) *entities.Account {
	account, _ := c.Locals(localAccount).(*entities.Account)
	return account
}
