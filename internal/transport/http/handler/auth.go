package handler

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/course-store/internal/domain"
	"github.com/sakashimaa/course-store/internal/identity"
	"github.com/sakashimaa/course-store/internal/service"
	"github.com/sakashimaa/course-store/internal/storage"
	"github.com/sakashimaa/course-store/internal/transport/http/middleware"
	"github.com/sakashimaa/course-store/pkg/mylogger"
	"github.com/sakashimaa/course-store/pkg/utils"
	"go.uber.org/zap"
)

type AuthHandler struct {
	issuer      *identity.Issuer
	store       storage.LocalStore
	sync        *service.SyncService
	syncTimeout time.Duration
	validate    *validator.Validate
	logger      *zap.Logger
}

func NewAuthHandler(
	issuer *identity.Issuer,
	store storage.LocalStore,
	sync *service.SyncService,
	syncTimeout time.Duration,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		issuer:      issuer,
		store:       store,
		sync:        sync,
		syncTimeout: syncTimeout,
		validate:    validator.New(),
		logger:      logger,
	}
}

type DemoLoginInput struct {
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"display_name" validate:"max=100"`
}

// DemoLogin signs the caller in without a password and reconciles their cart with the remote copy.
func (h *AuthHandler) DemoLogin(c *fiber.Ctx) error {
	ctx := c.UserContext()

	input := new(DemoLoginInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "failed to parse body in demo login", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "error parsing body"})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": utils.FormatValidationError(err)})
	}

	id := identity.Demo(input.Email, input.DisplayName)
	token, expiresAt, err := h.issuer.Issue(id)
	if err != nil {
		mylogger.Error(ctx, h.logger, "token issue failed", zap.Error(err))
		return errorJSON(c, err)
	}

	profileID := middleware.ProfileID(c)
	profile := domain.UserProfile{
		UID:         id.UID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		LastLogin:   time.Now().UTC(),
	}
	if err := storage.SaveProfile(ctx, h.store, profileID, profile); err != nil {
		mylogger.Warn(ctx, h.logger, "failed to cache profile", zap.Error(err))
	}

	h.sync.Track(profileID, id)

	syncCtx, cancel := context.WithTimeout(ctx, h.syncTimeout)
	defer cancel()

	res, err := h.sync.SyncNow(syncCtx, profileID, id)
	if err != nil {
		mylogger.Info(ctx, h.logger, "login sync not run", zap.Error(err))
		res = service.SyncResult{Status: service.SyncSkipped, Reason: err.Error()}
	}

	mylogger.Info(ctx, h.logger, "demo login succeeded", zap.String("uid", id.UID))

	return c.JSON(fiber.Map{
		"token":      token,
		"expires_at": expiresAt,
		"user":       profile,
		"sync":       res,
	})
}

// Logout drops the cached profile and stops syncing; the cart stays with the profile.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	ctx := c.UserContext()
	profileID := middleware.ProfileID(c)

	if err := h.store.Delete(ctx, profileID, storage.KeyProfile); err != nil {
		mylogger.Warn(ctx, h.logger, "failed to drop cached profile", zap.Error(err))
	}
	h.sync.Untrack(profileID)

	return c.JSON(fiber.Map{"status": "logged out"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id := middleware.Identity(c)
	if id.IsGuest() {
		return c.JSON(fiber.Map{"guest": true})
	}

	profile, err := storage.LoadProfile(ctx, h.store, middleware.ProfileID(c))
	if err != nil {
		profile = domain.UserProfile{UID: id.UID, Email: id.Email, DisplayName: id.DisplayName}
	}

	return c.JSON(fiber.Map{"guest": false, "user": profile})
}
