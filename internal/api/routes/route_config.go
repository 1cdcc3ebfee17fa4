package routes

import (
	"github.com/fadedpez/royalcharge/internal/api/handlers"
	"github.com/fadedpez/royalcharge/internal/api/middleware"
	"github.com/gofiber/fiber/v2"
)

type Config struct {
	App            *fiber.App
	AuthHandler    handlers.AuthHandler
	AccountHandler handlers.AccountHandler
	CatalogHandler handlers.CatalogHandler
	OrderHandler   handlers.OrderHandler
	UploadHandler  handlers.UploadHandler
	Middleware     middleware.Middleware
}

func (c *Config) Setup() {
	c.App.Use(c.Middleware.MetricsMiddleware())
	c.GuestRoute()
	c.Auth()
	c.Storefront()
	c.Admin()
}

func (c *Config) GuestRoute() {
	c.App.Get("/api/ping", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "pong"})
	})
	c.App.Get("/api/v1/catalog", c.CatalogHandler.GetCatalog)
}

func (c *Config) Auth() {
	auth := c.App.Group("/api/v1/auth")
	{
		auth.Post("/signup", c.AuthHandler.Signup)
		auth.Post("/login", c.AuthHandler.Login)
	}
}

func (c *Config) Storefront() {
	api := c.App.Group("/api/v1", c.Middleware.AuthMiddleware())
	{
		api.Get("/me", c.AccountHandler.Me)
		api.Patch("/me", c.AccountHandler.UpdateMe)

		api.Post("/purchases", c.OrderHandler.Purchase)
		api.Post("/recharges", c.OrderHandler.RequestRecharge)
		api.Get("/orders", c.OrderHandler.ListOrders)
		api.Get("/orders/:id", c.OrderHandler.GetOrder)

		api.Post("/uploads", c.UploadHandler.Upload)
	}
}

func (c *Config) Admin() {
	admin := c.App.Group("/api/v1/admin", c.Middleware.AuthMiddleware(), c.Middleware.AdminMiddleware())

	// accounts
	{
		admin.Get("/accounts", c.AccountHandler.ListAccounts)
		admin.Patch("/accounts/:email", c.AccountHandler.UpdateAccount)
		admin.Post("/accounts/:email/balance", c.AccountHandler.AdjustBalance)
		admin.Post("/accounts/:email/promote", c.AccountHandler.PromoteAdmin)
		admin.Post("/accounts/:email/demote", c.AccountHandler.DemoteAdmin)
		admin.Post("/accounts/:email/password", c.AccountHandler.ResetPassword)
		admin.Delete("/accounts/:email", c.AccountHandler.DeleteAccount)
	}

	// orders
	{
		admin.Get("/orders/pending", c.OrderHandler.PendingOrders)
		admin.Get("/orders/search", c.OrderHandler.SearchArchive)
		admin.Patch("/orders/:id", c.OrderHandler.UpdateOrderStatus)
		admin.Delete("/orders", c.OrderHandler.DeleteAllOrders)
	}

	// catalog
	{
		admin.Post("/products", c.CatalogHandler.SaveProduct)
		admin.Put("/products/:id", c.CatalogHandler.SaveProduct)
		admin.Delete("/products/:id", c.CatalogHandler.DeleteProduct)
		admin.Post("/categories", c.CatalogHandler.SaveCategory)
		admin.Put("/categories/:id", c.CatalogHandler.SaveCategory)
		admin.Delete("/categories/:id", c.CatalogHandler.DeleteCategory)
		admin.Post("/methods", c.CatalogHandler.SaveMethod)
		admin.Put("/methods/:id", c.CatalogHandler.SaveMethod)
		admin.Delete("/methods/:id", c.CatalogHandler.DeleteMethod)
		admin.Put("/config", c.CatalogHandler.UpdateConfig)
	}
}
