package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/course-store/internal/domain"
	"github.com/sakashimaa/course-store/internal/storage"
	"github.com/sakashimaa/course-store/internal/transport/http/middleware"
	"github.com/sakashimaa/course-store/pkg/mylogger"
	"github.com/sakashimaa/course-store/pkg/utils"
	"go.uber.org/zap"
)

type PreferencesHandler struct {
	store    storage.LocalStore
	validate *validator.Validate
	logger   *zap.Logger
}

func NewPreferencesHandler(store storage.LocalStore, logger *zap.Logger) *PreferencesHandler {
	return &PreferencesHandler{store: store, validate: validator.New(), logger: logger}
}

type ThemeInput struct {
	Theme string `json:"theme" validate:"required,oneof=light dark"`
}

func (h *PreferencesHandler) GetTheme(c *fiber.Ctx) error {
	ctx := c.UserContext()

	theme, err := storage.LoadTheme(ctx, h.store, middleware.ProfileID(c))
	if err != nil {
		mylogger.Warn(ctx, h.logger, "theme read failed, using default", zap.Error(err))
		theme = domain.ThemeLight
	}

	return c.JSON(fiber.Map{"theme": theme})
}

func (h *PreferencesHandler) SetTheme(c *fiber.Ctx) error {
	ctx := c.UserContext()

	input := new(ThemeInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "error parsing body"})
	}
	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": utils.FormatValidationError(err)})
	}

	theme, err := domain.ParseTheme(input.Theme)
	if err != nil {
		return errorJSON(c, err)
	}

	if err := storage.SaveTheme(ctx, h.store, middleware.ProfileID(c), theme); err != nil {
		mylogger.Error(ctx, h.logger, "theme write failed", zap.Error(err))
		return errorJSON(c, err)
	}

	return c.JSON(fiber.Map{"theme": theme})
}
