package handler

import (
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/course-store/internal/service"
	"github.com/sakashimaa/course-store/internal/transport/http/middleware"
	"github.com/sakashimaa/course-store/pkg/mylogger"
	"go.uber.org/zap"
)

type OrderHandler struct {
	history service.OrderHistory
	logger  *zap.Logger
}

func NewOrderHandler(history service.OrderHistory, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{history: history, logger: logger}
}

// List returns the owner's receipts newest first.
func (h *OrderHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()

	orders, err := h.history.List(ctx, middleware.ProfileID(c), middleware.Identity(c))
	if err != nil {
		mylogger.Error(ctx, h.logger, "list orders failed", zap.Error(err))
		return errorJSON(c, err)
	}

	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Timestamp.After(orders[j].Timestamp)
	})

	return c.JSON(fiber.Map{
		"orders": orders,
		"count":  len(orders),
	})
}
