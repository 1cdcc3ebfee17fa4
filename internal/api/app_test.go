package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/fadedpez/royalcharge/pkg/entities"
	"github.com/fadedpez/royalcharge/pkg/jwt"
	"github.com/fadedpez/royalcharge/pkg/metrics"
	"github.com/fadedpez/royalcharge/pkg/repositories/archive"
	catalogRepo "github.com/fadedpez/royalcharge/pkg/repositories/catalog"
	"github.com/fadedpez/royalcharge/pkg/repositories/ledger"
	"github.com/fadedpez/royalcharge/pkg/services/account"
	"github.com/fadedpez/royalcharge/pkg/services/catalog"
	"github.com/fadedpez/royalcharge/pkg/services/media"
	"github.com/fadedpez/royalcharge/pkg/services/store"
	storagemock "github.com/fadedpez/royalcharge/pkg/storage/mock"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
)

const rootAdmin = "root@x.com"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Logout  bool            `json:"logout"`
	Data    json.RawMessage `json:"data"`
}

type AppTestSuite struct {
	suite.Suite
	ctx     context.Context
	ledger  *ledger.MemoryRepository
	catalog *catalogRepo.MemoryRepository
	storage *storagemock.Storage
	app     *fiber.App
}

func TestAppSuite(t *testing.T) {
	suite.Run(t, new(AppTestSuite))
}

func (s *AppTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = ledger.NewMemoryRepository()
	s.catalog = catalogRepo.NewMemoryRepository()
	s.storage = storagemock.New()
	m := metrics.New()

	mediaService, err := media.NewService(s.storage, filepath.Join(s.T().TempDir(), "avatars.txt"), nil)
	s.Require().NoError(err)

	accounts := account.NewService(s.ledger, &account.Config{
		RootAdminEmail: rootAdmin,
		Avatars:        mediaService,
		Metrics:        m,
		BcryptCost:     bcrypt.MinCost,
	})
	catalogService := catalog.NewService(s.catalog, &catalog.Config{Images: mediaService})
	storeService := store.NewService(s.ledger, s.catalog, &store.Config{
		Archive: archive.NewMemoryRepository(),
		Images:  mediaService,
		Metrics: m,
	})

	s.app = NewApp(&Deps{
		Accounts: accounts,
		Catalog:  catalogService,
		Store:    storeService,
		Media:    mediaService,
		Tokens:   jwt.NewJWTService("test-secret", time.Hour),
		Metrics:  m,
	})

	s.Require().NoError(s.catalog.SaveProduct(s.ctx, &entities.Product{
		ID: "uc-500", Name: "500 UC", PriceUSD: decimal.NewFromInt(20), Amount: 500,
	}))
	s.Require().NoError(s.catalog.SaveMethod(s.ctx, &entities.RechargeMethod{
		ID: "vf", Label: "Vodafone Cash", AccountID: "01000000000",
	}))
}

func (s *AppTestSuite) do(method, path, token string, body any, headers ...string) (int, envelope) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	return s.send(req)
}

func (s *AppTestSuite) send(req *http.Request) (int, envelope) {
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	if len(raw) > 0 {
		s.Require().NoError(json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (s *AppTestSuite) signup(email string) string {
	status, env := s.do(http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email": email, "password": "secret1",
	})
	s.Require().Equal(http.StatusCreated, status, env.Message)

	var session struct {
		Token   string            `json:"token"`
		Account *entities.Account `json:"account"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &session))
	s.Require().NotEmpty(session.Token)
	return session.Token
}

func (s *AppTestSuite) TestSignupLoginAndMe() {
	// Setup
	s.signup("a@x.com")

	// Execute
	status, env := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "A@x.com", "password": "secret1",
	})
	s.Require().Equal(http.StatusOK, status)
	var session struct {
		Token string `json:"token"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &session))

	status, env = s.do(http.MethodGet, "/api/v1/me", session.Token, nil)

	// Assert
	s.Equal(http.StatusOK, status)
	var me entities.Account
	s.Require().NoError(json.Unmarshal(env.Data, &me))
	s.Equal("a@x.com", me.Email)
	s.Equal("User", me.Name)
	s.False(me.IsAdmin)
}

func (s *AppTestSuite) TestLoginFailures() {
	s.signup("a@x.com")

	status, env := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "a@x.com", "password": "wrong-password",
	})
	s.Equal(http.StatusUnauthorized, status)
	s.Equal(string(types.ErrInvalidCredentials), env.Code)

	status, env = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "ghost@x.com", "password": "secret1",
	})
	s.Equal(http.StatusNotFound, status)
	s.Equal(string(types.ErrAccountNotFound), env.Code)

	status, env = s.do(http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email": "not-an-email", "password": "secret1",
	})
	s.Equal(http.StatusBadRequest, status)
	s.Equal(string(types.ErrValidation), env.Code)
}

func (s *AppTestSuite) TestMissingTokenEndsSession() {
	status, env := s.do(http.MethodGet, "/api/v1/me", "", nil)

	s.Equal(http.StatusUnauthorized, status)
	s.True(env.Logout)
}

func (s *AppTestSuite) TestBlockedAccountIsLoggedOut() {
	// Setup
	userToken := s.signup("a@x.com")
	adminToken := s.signup(rootAdmin)

	// Execute
	status, _ := s.do(http.MethodPatch, "/api/v1/admin/accounts/a@x.com", adminToken, map[string]bool{"isBlocked": true})
	s.Require().Equal(http.StatusOK, status)
	status, env := s.do(http.MethodGet, "/api/v1/me", userToken, nil)

	// Assert
	s.Equal(http.StatusUnauthorized, status)
	s.True(env.Logout)
	s.Equal(string(types.ErrAccountBlocked), env.Code)
}

func (s *AppTestSuite) TestAdminRoutesRejectUsers() {
	token := s.signup("a@x.com")

	status, env := s.do(http.MethodGet, "/api/v1/admin/accounts", token, nil)

	s.Equal(http.StatusForbidden, status)
	s.Equal(string(types.ErrPermissionDenied), env.Code)
}

func (s *AppTestSuite) TestPurchaseFlow() {
	// Setup
	userToken := s.signup("a@x.com")
	adminToken := s.signup(rootAdmin)
	purchase := map[string]string{"productId": "uc-500", "playerId": "P-1"}

	// Execute
	status, env := s.do(http.MethodPost, "/api/v1/purchases", userToken, purchase)
	s.Equal(http.StatusPaymentRequired, status)
	s.Equal(string(types.ErrInsufficientFunds), env.Code)

	status, _ = s.do(http.MethodPost, "/api/v1/admin/accounts/a@x.com/balance", adminToken, map[string]string{"delta": "50"})
	s.Require().Equal(http.StatusOK, status)

	status, env = s.do(http.MethodPost, "/api/v1/purchases", userToken, purchase, "Idempotency-Key", "k-1")
	s.Require().Equal(http.StatusCreated, status, env.Message)
	var first store.Result
	s.Require().NoError(json.Unmarshal(env.Data, &first))

	status, env = s.do(http.MethodPost, "/api/v1/purchases", userToken, purchase, "Idempotency-Key", "k-1")
	s.Require().Equal(http.StatusOK, status)
	var replay store.Result
	s.Require().NoError(json.Unmarshal(env.Data, &replay))

	// Assert
	s.True(decimal.NewFromInt(30).Equal(first.BalanceAfter))
	s.Equal(entities.OrderStatusPending, first.Order.Status)
	s.True(replay.Replayed)
	s.Equal(first.Order.ID, replay.Order.ID)

	acc, err := s.ledger.GetAccount(s.ctx, "a@x.com")
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(30).Equal(acc.BalanceUSD))
}

func (s *AppTestSuite) TestRechargeApproval() {
	// Setup
	userToken := s.signup("a@x.com")
	adminToken := s.signup(rootAdmin)

	status, env := s.do(http.MethodPost, "/api/v1/recharges", userToken, map[string]string{
		"methodId": "vf", "amountUSD": "25", "senderId": "0101",
	})
	s.Require().Equal(http.StatusCreated, status, env.Message)
	var created store.Result
	s.Require().NoError(json.Unmarshal(env.Data, &created))
	path := "/api/v1/admin/orders/" + created.Order.ID

	// Execute
	status, env = s.do(http.MethodPatch, path, adminToken, map[string]string{"status": "completed", "reply": "done"})
	s.Require().Equal(http.StatusOK, status, env.Message)
	status, env = s.do(http.MethodPatch, path, adminToken, map[string]string{"status": "rejected"})

	// Assert
	s.Equal(http.StatusConflict, status)
	s.Equal(string(types.ErrAlreadyFinalized), env.Code)

	acc, err := s.ledger.GetAccount(s.ctx, "a@x.com")
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(25).Equal(acc.BalanceUSD))

	status, env = s.do(http.MethodGet, "/api/v1/orders/"+created.Order.ID, userToken, nil)
	s.Require().Equal(http.StatusOK, status)
	var order entities.Order
	s.Require().NoError(json.Unmarshal(env.Data, &order))
	s.Equal(entities.OrderStatusCompleted, order.Status)
	s.Equal(rootAdmin, order.FinalizedBy)
}

func (s *AppTestSuite) TestOrdersAreScopedToOwner() {
	// Setup
	aToken := s.signup("a@x.com")
	bToken := s.signup("b@x.com")
	status, env := s.do(http.MethodPost, "/api/v1/recharges", aToken, map[string]string{
		"methodId": "vf", "amountUSD": "5", "senderId": "0101",
	})
	s.Require().Equal(http.StatusCreated, status)
	var created store.Result
	s.Require().NoError(json.Unmarshal(env.Data, &created))

	// Execute
	status, _ = s.do(http.MethodGet, "/api/v1/orders/"+created.Order.ID, bToken, nil)
	_, env = s.do(http.MethodGet, "/api/v1/orders", bToken, nil)

	// Assert
	s.Equal(http.StatusNotFound, status)
	var orders []*entities.Order
	s.Require().NoError(json.Unmarshal(env.Data, &orders))
	s.Empty(orders)
}

func (s *AppTestSuite) TestDeleteAllOrdersNeedsBothConfirmations() {
	adminToken := s.signup(rootAdmin)

	status, env := s.do(http.MethodDelete, "/api/v1/admin/orders", adminToken, map[string]bool{"confirm": true})
	s.Equal(http.StatusPreconditionRequired, status)
	s.Equal(string(types.ErrConfirmationRequired), env.Code)

	status, _ = s.do(http.MethodDelete, "/api/v1/admin/orders", adminToken, map[string]bool{"confirm": true, "confirmAgain": true})
	s.Equal(http.StatusOK, status)
}

func (s *AppTestSuite) TestAdminSavesProduct() {
	adminToken := s.signup(rootAdmin)

	status, env := s.do(http.MethodPost, "/api/v1/admin/products", adminToken, map[string]any{
		"name": "Gems", "priceUSD": "9.99", "amount": 100,
	})
	s.Require().Equal(http.StatusCreated, status, env.Message)

	status, env = s.do(http.MethodPost, "/api/v1/admin/products", adminToken, map[string]any{
		"name": "Gems", "priceUSD": "9.999",
	})
	s.Equal(http.StatusBadRequest, status)
	s.Equal(string(types.ErrValidation), env.Code)

	_, env = s.do(http.MethodGet, "/api/v1/catalog", "", nil)
	var snapshot catalog.Catalog
	s.Require().NoError(json.Unmarshal(env.Data, &snapshot))
	s.Len(snapshot.Products, 2)
}

func (s *AppTestSuite) TestRequestValuesOutliveTheRequest() {
	// Setup
	s.True(s.app.Config().Immutable)
	adminToken := s.signup(rootAdmin)
	userToken := s.signup("a@x.com")
	_, err := s.ledger.AdjustBalance(s.ctx, "a@x.com", decimal.NewFromInt(100))
	s.Require().NoError(err)

	// Execute
	status, env := s.do(http.MethodPut, "/api/v1/admin/products/gems-xl", adminToken, map[string]any{
		"name": "Gems XL", "priceUSD": "4.99", "amount": 50,
	})
	s.Require().Equal(http.StatusOK, status, env.Message)
	status, env = s.do(http.MethodPost, "/api/v1/purchases", userToken,
		map[string]string{"productId": "gems-xl", "playerId": "P-1"}, "Idempotency-Key", "tap-0001")
	s.Require().Equal(http.StatusCreated, status, env.Message)

	// Later requests reuse the request buffers
	for i := 0; i < 5; i++ {
		s.do(http.MethodPut, "/api/v1/admin/products/zzzzzzz", adminToken, map[string]any{
			"name": "Filler", "priceUSD": "1", "amount": 1,
		})
		s.do(http.MethodGet, "/api/v1/orders", userToken, nil, "Idempotency-Key", "zzzzzzzz")
	}

	// Assert
	product, err := s.catalog.GetProduct(s.ctx, "gems-xl")
	s.Require().NoError(err)
	s.Equal("gems-xl", product.ID)

	orders, err := s.ledger.ListOrders(s.ctx, entities.OwnOrders("a@x.com"))
	s.Require().NoError(err)
	s.Require().Len(orders, 1)
	s.Equal("tap-0001", orders[0].IdempotencyKey)
	s.Equal("Gems XL", orders[0].ProductName)

	status, _ = s.do(http.MethodPost, "/api/v1/purchases", userToken,
		map[string]string{"productId": "gems-xl", "playerId": "P-1"}, "Idempotency-Key", "tap-0001")
	s.Equal(http.StatusOK, status, "replay must find the stored key")
}

func (s *AppTestSuite) TestUploadScreenshot() {
	// Setup
	token := s.signup("a@x.com")
	s.storage.On("Put", mock.Anything, mock.Anything).Return("https://cdn.test/screenshots/a.png", nil)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", "shot.png")
	s.Require().NoError(err)
	_, err = part.Write(append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...))
	s.Require().NoError(err)
	s.Require().NoError(writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads?kind=screenshots", body)
	req.Header.Set(fiber.HeaderContentType, writer.FormDataContentType())
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

	// Execute
	status, env := s.send(req)

	// Assert
	s.Require().Equal(http.StatusCreated, status, env.Message)
	var uploaded struct {
		URL string `json:"url"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &uploaded))
	s.Equal("https://cdn.test/screenshots/a.png", uploaded.URL)
	s.storage.AssertExpectations(s.T())
}

func (s *AppTestSuite) TestUploadBrandingNeedsAdmin() {
	token := s.signup("a@x.com")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads?kind=branding", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	status, env := s.send(req)

	s.Equal(http.StatusForbidden, status)
	s.Equal(string(types.ErrPermissionDenied), env.Code)
}

func (s *AppTestSuite) TestUnknownRoute() {
	status, _ := s.do(http.MethodGet, "/api/v1/nope", "", nil)
	s.Equal(http.StatusNotFound, status)
}
