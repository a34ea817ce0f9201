package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/course-store/internal/service"
)

type HealthHandler struct {
	readiness *service.Readiness
}

func NewHealthHandler(readiness *service.Readiness) *HealthHandler {
	return &HealthHandler{readiness: readiness}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	remote := "local-only"
	if h.readiness.Ready() {
		remote = "ready"
	}

	return c.JSON(fiber.Map{"status": "ok", "remote": remote})
}
