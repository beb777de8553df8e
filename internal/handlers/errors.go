package handlers

import (
	"errors"
	"strconv"

	apperrors "pontos/internal/errors"
	"pontos/internal/logger"
	"pontos/internal/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// statusFor maps a domain error to its HTTP status. Anything without a
// domain code is an internal failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrAdmissionDenied),
		errors.Is(err, apperrors.ErrInsufficientBalance):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrInvalidTransition),
		errors.Is(err, apperrors.ErrReservationSettled),
		errors.Is(err, apperrors.ErrTxIDConflict),
		errors.Is(err, apperrors.ErrLedgerMismatch):
		return fiber.StatusConflict
	case errors.Is(err, apperrors.ErrUserNotFound),
		errors.Is(err, apperrors.ErrTransactionNotFound),
		errors.Is(err, apperrors.ErrReservationNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperrors.ErrInvalidAmount),
		errors.Is(err, apperrors.ErrInvalidRequest),
		errors.Is(err, apperrors.ErrInvalidTransfer),
		errors.Is(err, apperrors.ErrOverflow):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// writeError renders err. Denials carry the generic code plus the specific
// reason so callers can tell a daily limit from a frozen account.
func writeError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		log.Error("request failed", zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
		return utils.InternalError(c, "internal error")
	}

	body := fiber.Map{"error": err.Error(), "code": apperrors.Code(err)}
	var denied *apperrors.AdmissionDenied
	switch {
	case errors.As(err, &denied):
		body["code"] = apperrors.ErrAdmissionDenied.Code
		body["reason"] = denied.Reason.Code
	case errors.Is(err, apperrors.ErrRefundWindowClosed):
		body["reason"] = apperrors.ErrRefundWindowClosed.Code
	}
	return utils.Respond(c, status, body)
}

// ErrorHandler is the fiber.Config error handler: fiber errors keep their
// status, domain errors go through writeError.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	log = logger.OrNop(log).Named("http")
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return utils.Fail(c, fe.Code, codeForStatus(fe.Code), fe.Message)
		}
		return writeError(c, log, err)
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return apperrors.ErrInvalidRequest.Code
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	}
	return "HTTP_" + strconv.Itoa(status)
}
