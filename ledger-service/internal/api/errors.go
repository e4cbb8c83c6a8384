package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace/internal/ledger"
)

var statuses = []struct {
	err    error
	status int
}{
	{ledger.ErrInvalidInput, fiber.StatusBadRequest},
	{ledger.ErrWrongPayment, fiber.StatusBadRequest},
	{ledger.ErrUnauthorized, fiber.StatusUnauthorized},
	{ledger.ErrSelfPurchase, fiber.StatusForbidden},
	{ledger.ErrNotSeller, fiber.StatusForbidden},
	{ledger.ErrNotFound, fiber.StatusNotFound},
	{ledger.ErrNotAvailable, fiber.StatusConflict},
	{ledger.ErrAlreadyFinal, fiber.StatusConflict},
	{ledger.ErrNothingToWithdraw, fiber.StatusConflict},
	{ledger.ErrRegistryFull, fiber.StatusConflict},
	{ledger.ErrPayoutFailed, fiber.StatusBadGateway},
	{ledger.ErrPayoutPending, fiber.StatusAccepted},
}

// statusFor maps a ledger error to its HTTP status.
func statusFor(err error) int {
	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return fiber.StatusInternalServerError
}

// writeError renders err. Internal failures are logged and their detail is
// not echoed to the client.
func writeError(c *fiber.Ctx, logger *zap.Logger, op string, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status >= fiber.StatusInternalServerError {
		logger.Error("api."+op+".failed",
			zap.String("caller", callerFrom(c).String()),
			zap.Error(err))
		if status == fiber.StatusInternalServerError {
			msg = "internal error"
		}
	} else {
		logger.Debug("api."+op+".rejected",
			zap.String("caller", callerFrom(c).String()),
			zap.String("kind", ledger.Kind(err)),
			zap.Error(err))
	}
	return c.Status(status).JSON(ErrorResponse{Error: msg, Kind: ledger.Kind(err)})
}
