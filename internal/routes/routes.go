// Package routes defines the API routing configuration.
package routes

import (
	"pontos/internal/handlers"
	"pontos/internal/middleware"
	"pontos/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Handlers groups everything SetupRoutes mounts.
type Handlers struct {
	Auth         *middleware.AuthMiddleware
	Wallet       *handlers.WalletHandler
	Transactions *handlers.TransactionHandler
	Admin        *handlers.AdminHandler
	Health       *handlers.HealthHandler
}

// SetupRoutes mounts the v1 API. Every route except the health endpoints
// requires a bearer token; permissions are checked per route.
func SetupRoutes(app *fiber.App, h Handlers) {
	app.Get("/health", h.Health.Health)

	api := app.Group("/api/v1", h.Auth.Handler)
	api.Get("/cache-stats", middleware.AdminOnly, h.Health.CacheStats)

	wallet := api.Group("/wallet")
	write := middleware.HasPermission(models.PermissionWalletWrite)
	operate := middleware.HasPermission(models.PermissionWalletOperate)
	wallet.Post("/deposits", write, h.Wallet.Deposit)
	wallet.Post("/withdrawals", write, h.Wallet.Withdraw)
	wallet.Post("/merchant-payments", write, h.Wallet.MerchantPayment)
	wallet.Post("/transfers", write, h.Wallet.Transfer)
	wallet.Post("/cashback", operate, h.Wallet.Cashback)
	wallet.Post("/fees", operate, h.Wallet.Fee)
	wallet.Get("/:userID/balance", middleware.HasPermission(models.PermissionWalletRead), h.Wallet.Balance)

	txs := api.Group("/transactions")
	txs.Get("/:txid", middleware.HasPermission(models.PermissionWalletRead), h.Transactions.Get)
	txs.Post("/:txid/events", middleware.HasPermission(models.PermissionRailCallback), h.Transactions.Event)
	txs.Post("/:txid/cancel", write, h.Transactions.Cancel)
	txs.Post("/:txid/refund", operate, h.Transactions.Refund)

	admin := api.Group("/admin")
	admin.Get("/users/:userID/ledger/verify", middleware.HasPermission(models.PermissionLedgerReconcile), h.Admin.VerifyLedger)
	admin.Post("/sweeps/:task", middleware.AdminOnly, h.Admin.EnqueueSweep)
}
