package api

import (
	"time"

	"github.com/fadedpez/royalcharge/internal/api/handlers"
	"github.com/fadedpez/royalcharge/internal/api/middleware"
	"github.com/fadedpez/royalcharge/internal/api/presenters"
	"github.com/fadedpez/royalcharge/internal/api/routes"
	"github.com/fadedpez/royalcharge/internal/logging"
	"github.com/fadedpez/royalcharge/internal/validation"
	"github.com/fadedpez/royalcharge/pkg/jwt"
	"github.com/fadedpez/royalcharge/pkg/metrics"
	"github.com/fadedpez/royalcharge/pkg/services/account"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

// Media is what the API needs from the media service
type Media interface {
	handlers.ImageResolver
	handlers.Uploader
}

// Deps are the services the HTTP API is built from
type Deps struct {
	Accounts account.AccountService
	Catalog  handlers.CatalogService
	Store    handlers.StoreService
	Media    Media
	Tokens   jwt.JWTService
	Metrics  *metrics.Metrics
	Log      *logging.Logger

	MediaDir  string // served under /media when set
	RateLimit int    // requests per second per client, 0 disables
}

// NewApp builds the fiber application with every route mounted
func NewApp(deps *Deps) *fiber.App {
	log := deps.Log
	if log == nil {
		log = logging.Discard
	}
	log = log.Component("http")

	app := fiber.New(fiber.Config{
		AppName:               "royalcharge",
		DisableStartupMessage: true,
		BodyLimit:             8 << 20,
		// Params, headers and bodies end up in the stores, so they must not
		// alias fasthttp's reused buffers
		Immutable: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return presenters.ErrorResponse(c, err)
		},
	})

	access := log.WriterLevel(logrus.InfoLevel)
	app.Hooks().OnShutdown(func() error {
		return access.Close()
	})
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		Format:     "${status} ${method} ${path} ${latency}\n",
		Output:     access,
	}))
	app.Use(cors.New())
	if deps.RateLimit > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        deps.RateLimit,
			Expiration: 1 * time.Second,
		}))
	}
	if deps.MediaDir != "" {
		app.Static("/media", deps.MediaDir)
	}

	validator := validation.Validate
	middlewares := middleware.NewMiddleware(deps.Tokens, deps.Accounts, deps.Metrics)

	// Handler
	authHandler := handlers.NewAuthHandler(deps.Accounts, deps.Tokens, validator)
	accountHandler := handlers.NewAccountHandler(deps.Accounts, deps.Media, validator)
	catalogHandler := handlers.NewCatalogHandler(deps.Catalog, validator)
	orderHandler := handlers.NewOrderHandler(deps.Store, validator)
	uploadHandler := handlers.NewUploadHandler(deps.Media)

	// routes
	routesConfig := routes.Config{
		App:            app,
		AuthHandler:    authHandler,
		AccountHandler: accountHandler,
		CatalogHandler: catalogHandler,
		OrderHandler:   orderHandler,
		UploadHandler:  uploadHandler,
		Middleware:     middlewares,
	}
	routesConfig.Setup()

	return app
}
