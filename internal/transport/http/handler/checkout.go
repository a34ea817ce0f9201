package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/course-store/internal/service"
	"github.com/sakashimaa/course-store/internal/transport/http/middleware"
	"github.com/sakashimaa/course-store/pkg/mylogger"
	"github.com/sakashimaa/course-store/pkg/utils"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	checkout service.CheckoutService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewCheckoutHandler(checkout service.CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		validate: validator.New(),
		logger:   logger,
	}
}

type PromoInput struct {
	Code string `json:"code" validate:"required,max=32"`
}

type PaymentInput struct {
	Method string `json:"method" validate:"required,max=32"`
}

// respond renders the wizard next to any rejection so the client can redraw the unchanged step.
func (h *CheckoutHandler) respond(c *fiber.Ctx, wizard service.Wizard, err error) error {
	if err == nil {
		return c.JSON(fiber.Map{"checkout": wizard})
	}

	if errors.Is(err, service.ErrNoCheckout) {
		return errorJSON(c, err)
	}

	if errors.Is(err, service.ErrPromoAlreadyApplied) {
		return c.JSON(fiber.Map{"checkout": wizard, "notice": err.Error()})
	}

	mylogger.Info(c.UserContext(), h.logger, "checkout action rejected", zap.Error(err))

	return c.Status(StatusFor(err)).JSON(fiber.Map{
		"error":    err.Error(),
		"checkout": wizard,
	})
}

func (h *CheckoutHandler) Start(c *fiber.Ctx) error {
	wizard, err := h.checkout.Start(c.UserContext(), middleware.ProfileID(c), middleware.Identity(c))
	if err != nil {
		return h.respond(c, wizard, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"checkout": wizard})
}

func (h *CheckoutHandler) Get(c *fiber.Ctx) error {
	wizard, err := h.checkout.Get(c.UserContext(), middleware.ProfileID(c))
	return h.respond(c, wizard, err)
}

func (h *CheckoutHandler) ApplyPromo(c *fiber.Ctx) error {
	input := new(PromoInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "error parsing body"})
	}
	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": utils.FormatValidationError(err)})
	}

	wizard, err := h.checkout.ApplyPromo(c.UserContext(), middleware.ProfileID(c), input.Code)
	return h.respond(c, wizard, err)
}

func (h *CheckoutHandler) SelectPayment(c *fiber.Ctx) error {
	input := new(PaymentInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "error parsing body"})
	}
	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": utils.FormatValidationError(err)})
	}

	wizard, err := h.checkout.SelectPayment(c.UserContext(), middleware.ProfileID(c), input.Method)
	return h.respond(c, wizard, err)
}

func (h *CheckoutHandler) Next(c *fiber.Ctx) error {
	wizard, err := h.checkout.Next(c.UserContext(), middleware.ProfileID(c))
	return h.respond(c, wizard, err)
}

func (h *CheckoutHandler) Back(c *fiber.Ctx) error {
	wizard, err := h.checkout.Back(c.UserContext(), middleware.ProfileID(c))
	return h.respond(c, wizard, err)
}

func (h *CheckoutHandler) Retry(c *fiber.Ctx) error {
	wizard, err := h.checkout.Retry(c.UserContext(), middleware.ProfileID(c))
	return h.respond(c, wizard, err)
}
