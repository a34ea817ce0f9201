package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/course-store/internal/domain"
	"github.com/sakashimaa/course-store/internal/identity"
	"github.com/sakashimaa/course-store/internal/service"
)

// StatusFor maps domain and service errors onto HTTP codes. Remote store failures never reach
// here: the services absorb them.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidItem),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidPromoCode),
		errors.Is(err, domain.ErrInvalidPaymentMethod),
		errors.Is(err, domain.ErrInvalidTheme),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrPaymentMethodRequired):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, service.ErrNoCheckout):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrWrongStep),
		errors.Is(err, service.ErrNothingToRetry),
		errors.Is(err, service.ErrSyncInProgress):
		return fiber.StatusConflict
	case errors.Is(err, identity.ErrInvalidToken):
		return fiber.StatusUnauthorized
	case errors.Is(err, service.ErrFinalizationFailed):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func errorJSON(c *fiber.Ctx, err error) error {
	return c.Status(StatusFor(err)).JSON(fiber.Map{"error": err.Error()})
}
