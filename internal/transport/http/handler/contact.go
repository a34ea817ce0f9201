package handler

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/course-store/internal/domain"
	"github.com/sakashimaa/course-store/internal/transport/http/middleware"
	"github.com/sakashimaa/course-store/pkg/mylogger"
	"github.com/sakashimaa/course-store/pkg/utils"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type ContactSink interface {
	AppendContactMessage(ctx context.Context, msg *domain.ContactMessage) error
}

type ContactHandler struct {
	sink     ContactSink
	cb       *gobreaker.CircuitBreaker
	timeout  time.Duration
	validate *validator.Validate
	logger   *zap.Logger
}

func NewContactHandler(sink ContactSink, cb *gobreaker.CircuitBreaker, timeout time.Duration, logger *zap.Logger) *ContactHandler {
	return &ContactHandler{
		sink:     sink,
		cb:       cb,
		timeout:  timeout,
		validate: validator.New(),
		logger:   logger,
	}
}

type ContactInput struct {
	Name    string `json:"name" validate:"required,max=100"`
	Email   string `json:"email" validate:"required,email"`
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required,min=10,max=5000"`
}

// Send stores the message remotely. A remote outage is reported as undelivered, not as a failure.
func (h *ContactHandler) Send(c *fiber.Ctx) error {
	ctx := c.UserContext()

	input := new(ContactInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "error parsing body"})
	}
	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": utils.FormatValidationError(err)})
	}

	msg := &domain.ContactMessage{
		UID:     middleware.Identity(c).UID,
		Name:    input.Name,
		Email:   input.Email,
		Subject: input.Subject,
		Message: input.Message,
	}

	if h.sink == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"delivered": false})
	}

	remoteCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	_, err := utils.ExecuteWithBreaker(h.cb, func() (struct{}, error) {
		return struct{}{}, h.sink.AppendContactMessage(remoteCtx, msg)
	})
	if err != nil {
		mylogger.Warn(ctx, h.logger, "contact message not delivered", zap.Error(err))
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"delivered": false})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"delivered": true, "message": msg})
}
