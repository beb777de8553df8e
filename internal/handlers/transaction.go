package handlers

import (
	"context"

	"pontos/internal/models"
	"pontos/internal/services/transaction"
	"pontos/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type Transitioner interface {
	Transition(ctx context.Context, req transaction.TransitionRequest) (*models.Transaction, error)
}

type TransactionReader interface {
	GetTransactionByTxID(ctx context.Context, txid string) (*models.Transaction, error)
}

type TransactionHandler struct {
	transactions Transitioner
	reader       TransactionReader
}

func NewTransactionHandler(transactions Transitioner, reader TransactionReader) *TransactionHandler {
	return &TransactionHandler{transactions: transactions, reader: reader}
}

type eventInput struct {
	Event  transaction.Event `json:"event"`
	Reason string            `json:"reason"`
}

// railEvents are the events a payment rail may report through the callback.
var railEvents = map[transaction.Event]bool{
	transaction.EventAdmitSuccess:           true,
	transaction.EventLiquidationDateReached: true,
	transaction.EventRailFailure:            true,
}

func (h *TransactionHandler) Get(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid claims")
	}
	tx, err := h.reader.GetTransactionByTxID(c.UserContext(), c.Params("txid"))
	if err != nil {
		return err
	}
	if tx.UserID != claims.UserID && !canOperate(claims) {
		return fiber.NewError(fiber.StatusNotFound, "transaction not found")
	}
	return utils.Success(c, fiber.Map{"transaction": tx})
}

// Event is the rail callback: the path carries the rail's externalId.
func (h *TransactionHandler) Event(c *fiber.Ctx) error {
	var in eventInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	if !railEvents[in.Event] {
		return fiber.NewError(fiber.StatusBadRequest, "unsupported event")
	}
	return h.transition(c, in.Event, in.Reason)
}

func (h *TransactionHandler) Cancel(c *fiber.Ctx) error {
	var in eventInput
	if err := parseOptionalBody(c, &in); err != nil {
		return err
	}
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid claims")
	}
	if !canOperate(claims) {
		tx, err := h.reader.GetTransactionByTxID(c.UserContext(), c.Params("txid"))
		if err != nil {
			return err
		}
		if tx.UserID != claims.UserID {
			return fiber.NewError(fiber.StatusNotFound, "transaction not found")
		}
	}
	return h.transition(c, transaction.EventCancel, in.Reason)
}

func (h *TransactionHandler) Refund(c *fiber.Ctx) error {
	var in eventInput
	if err := parseOptionalBody(c, &in); err != nil {
		return err
	}
	return h.transition(c, transaction.EventRefundRequest, in.Reason)
}

// parseOptionalBody parses the body only when one was sent.
func parseOptionalBody(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return parseBody(c, out)
}

func (h *TransactionHandler) transition(c *fiber.Ctx, ev transaction.Event, reason string) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid claims")
	}
	tx, err := h.transactions.Transition(c.UserContext(), transaction.TransitionRequest{
		TxID:          c.Params("txid"),
		Event:         ev,
		ResponsibleID: claims.UserID,
		Reason:        reason,
	})
	if err != nil {
		return err
	}
	return utils.Success(c, fiber.Map{"transaction": tx})
}
