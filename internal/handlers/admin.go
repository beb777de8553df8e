package handlers

import (
	"context"

	"pontos/internal/models"
	"pontos/internal/utils"
	"pontos/internal/worker"

	"github.com/gofiber/fiber/v2"
)

type LedgerVerifier interface {
	Verify(ctx context.Context, userID string) (*models.Balances, error)
}

// LedgerVerifierFunc adapts a function to LedgerVerifier.
type LedgerVerifierFunc func(ctx context.Context, userID string) (*models.Balances, error)

func (f LedgerVerifierFunc) Verify(ctx context.Context, userID string) (*models.Balances, error) {
	return f(ctx, userID)
}

type SweepEnqueuer interface {
	Enqueue(taskType, requestedBy string) (string, error)
}

type AdminHandler struct {
	verifier LedgerVerifier
	sweeps   SweepEnqueuer
}

// NewAdminHandler creates the reconciliation handler. sweeps may be nil when
// no worker queue is configured.
func NewAdminHandler(verifier LedgerVerifier, sweeps SweepEnqueuer) *AdminHandler {
	return &AdminHandler{verifier: verifier, sweeps: sweeps}
}

// VerifyLedger replays a user's ledger against the materialized balances.
func (h *AdminHandler) VerifyLedger(c *fiber.Ctx) error {
	userID := c.Params("userID")
	b, err := h.verifier.Verify(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return utils.Success(c, fiber.Map{"userId": userID, "consistent": true, "ledger": b})
}

func (h *AdminHandler) EnqueueSweep(c *fiber.Ctx) error {
	if h.sweeps == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "sweep queue not configured")
	}
	task := c.Params("task")
	if !worker.KnownTask(task) {
		return fiber.NewError(fiber.StatusNotFound, "unknown sweep task")
	}
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid claims")
	}

	id, err := h.sweeps.Enqueue(task, claims.UserID)
	if err != nil {
		return err
	}
	return utils.Accepted(c, fiber.Map{"task": task, "id": id})
}
