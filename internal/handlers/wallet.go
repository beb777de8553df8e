package handlers

import (
	"pontos/internal/models"
	"pontos/internal/money"
	"pontos/internal/services/wallet"
	"pontos/internal/utils"

	"github.com/gofiber/fiber/v2"
)

// IdempotencyHeader may carry the TxID instead of the request body.
const IdempotencyHeader = "Idempotency-Key"

type WalletHandler struct {
	walletService wallet.Service
}

func NewWalletHandler(walletService wallet.Service) *WalletHandler {
	return &WalletHandler{walletService: walletService}
}

// Amounts are integers of minor units or strings of major units ("98.00").
type depositInput struct {
	TxID   string       `json:"txid"`
	UserID string       `json:"userId"`
	Gross  money.Amount `json:"gross"`
	Spread money.Amount `json:"spread"`
	Rail   wallet.Rail  `json:"rail"`
}

type amountInput struct {
	TxID        string       `json:"txid"`
	UserID      string       `json:"userId"`
	Amount      money.Amount `json:"amount"`
	MerchantRef string       `json:"merchantRef"`
}

type transferInput struct {
	TxID       string       `json:"txid"`
	FromUserID string       `json:"fromUserId"`
	ToUserID   string       `json:"toUserId"`
	Amount     money.Amount `json:"amount"`
}

// caller resolves the claims and the wallet the request acts on. Customers
// may only act on their own wallet; operators on any.
func caller(c *fiber.Ctx, userID string) (*models.UserClaims, string, error) {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return nil, "", fiber.NewError(fiber.StatusUnauthorized, "invalid claims")
	}
	if userID == "" {
		userID = claims.UserID
	}
	if userID != claims.UserID && !canOperate(claims) {
		return nil, "", fiber.NewError(fiber.StatusForbidden, "cannot act on another user's wallet")
	}
	return claims, userID, nil
}

func canOperate(claims *models.UserClaims) bool {
	return claims.Role.IsOperator() || claims.HasPermission(models.PermissionWalletOperate)
}

func txid(c *fiber.Ctx, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return c.Get(IdempotencyHeader)
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request format")
	}
	return nil
}

func (h *WalletHandler) Deposit(c *fiber.Ctx) error {
	var in depositInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	claims, userID, err := caller(c, in.UserID)
	if err != nil {
		return err
	}

	tx, err := h.walletService.Deposit(c.UserContext(), wallet.DepositRequest{
		TxID:          txid(c, in.TxID),
		ResponsibleID: claims.UserID,
		UserID:        userID,
		Gross:         in.Gross,
		Spread:        in.Spread,
		Rail:          in.Rail,
	})
	if err != nil {
		return err
	}
	return utils.Created(c, fiber.Map{"transaction": tx})
}

func (h *WalletHandler) Withdraw(c *fiber.Ctx) error {
	var in amountInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	claims, userID, err := caller(c, in.UserID)
	if err != nil {
		return err
	}

	tx, err := h.walletService.Withdraw(c.UserContext(), wallet.WithdrawRequest{
		TxID:          txid(c, in.TxID),
		ResponsibleID: claims.UserID,
		UserID:        userID,
		Amount:        in.Amount,
	})
	if err != nil {
		return err
	}
	return utils.Created(c, fiber.Map{"transaction": tx})
}

func (h *WalletHandler) MerchantPayment(c *fiber.Ctx) error {
	var in amountInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	claims, userID, err := caller(c, in.UserID)
	if err != nil {
		return err
	}

	tx, err := h.walletService.MerchantPayment(c.UserContext(), wallet.MerchantPaymentRequest{
		TxID:          txid(c, in.TxID),
		ResponsibleID: claims.UserID,
		UserID:        userID,
		Amount:        in.Amount,
		MerchantRef:   in.MerchantRef,
	})
	if err != nil {
		return err
	}
	return utils.Created(c, fiber.Map{"transaction": tx})
}

func (h *WalletHandler) Transfer(c *fiber.Ctx) error {
	var in transferInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	claims, fromUserID, err := caller(c, in.FromUserID)
	if err != nil {
		return err
	}
	if in.ToUserID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "toUserId is required")
	}

	res, err := h.walletService.Transfer(c.UserContext(), wallet.TransferRequest{
		TxID:          txid(c, in.TxID),
		ResponsibleID: claims.UserID,
		FromUserID:    fromUserID,
		ToUserID:      in.ToUserID,
		Amount:        in.Amount,
	})
	if err != nil {
		return err
	}
	return utils.Created(c, res)
}

// Cashback and Fee are operator actions: the route requires wallet:operate
// and the target user must be explicit.

func (h *WalletHandler) Cashback(c *fiber.Ctx) error {
	var in amountInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	claims, err := operatorTarget(c, in.UserID)
	if err != nil {
		return err
	}

	tx, err := h.walletService.Cashback(c.UserContext(), wallet.CashbackRequest{
		TxID:          txid(c, in.TxID),
		ResponsibleID: claims.UserID,
		UserID:        in.UserID,
		Amount:        in.Amount,
	})
	if err != nil {
		return err
	}
	return utils.Created(c, fiber.Map{"transaction": tx})
}

func (h *WalletHandler) Fee(c *fiber.Ctx) error {
	var in amountInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	claims, err := operatorTarget(c, in.UserID)
	if err != nil {
		return err
	}

	tx, err := h.walletService.Fee(c.UserContext(), wallet.FeeRequest{
		TxID:          txid(c, in.TxID),
		ResponsibleID: claims.UserID,
		UserID:        in.UserID,
		Amount:        in.Amount,
	})
	if err != nil {
		return err
	}
	return utils.Created(c, fiber.Map{"transaction": tx})
}

func operatorTarget(c *fiber.Ctx, userID string) (*models.UserClaims, error) {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "invalid claims")
	}
	if userID == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "userId is required")
	}
	return claims, nil
}

func (h *WalletHandler) Balance(c *fiber.Ctx) error {
	_, userID, err := caller(c, c.Params("userID"))
	if err != nil {
		return err
	}

	b, err := h.walletService.Balance(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return utils.Success(c, fiber.Map{
		"balance": b,
		"display": fiber.Map{
			"pointsBalance":  b.Points.String(),
			"blockedBalance": b.Blocked.String(),
		},
	})
}
