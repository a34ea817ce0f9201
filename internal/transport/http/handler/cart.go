package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/course-store/internal/domain"
	"github.com/sakashimaa/course-store/internal/service"
	"github.com/sakashimaa/course-store/internal/transport/http/middleware"
	"github.com/sakashimaa/course-store/pkg/mylogger"
	"github.com/sakashimaa/course-store/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CartHandler struct {
	carts    service.CartStore
	sync     *service.SyncService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewCartHandler(carts service.CartStore, sync *service.SyncService, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:    carts,
		sync:     sync,
		validate: validator.New(),
		logger:   logger,
	}
}

type AddItemInput struct {
	Name     string           `json:"name" validate:"required,max=200"`
	Price    *decimal.Decimal `json:"price" validate:"required"`
	Quantity int              `json:"quantity" validate:"gte=0,max=1000"`
	Image    string           `json:"image" validate:"omitempty,max=500"`
}

type UpdateQuantityInput struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type CartView struct {
	Items      []domain.LineItem `json:"items"`
	Total      decimal.Decimal   `json:"total"`
	ItemCount  int               `json:"item_count"`
	AgeSeconds *int64            `json:"age_seconds,omitempty"`
}

func (h *CartHandler) view(c *fiber.Ctx, cart domain.Cart) CartView {
	v := CartView{
		Items:     cart.Items,
		Total:     cart.Total().Round(2),
		ItemCount: cart.ItemCount(),
	}

	if age, ok := h.carts.Age(c.UserContext(), middleware.ProfileID(c)); ok {
		seconds := int64(age.Seconds())
		v.AgeSeconds = &seconds
	}

	return v
}

func (h *CartHandler) Get(c *fiber.Ctx) error {
	cart := h.carts.Get(c.UserContext(), middleware.ProfileID(c))
	return c.JSON(h.view(c, cart))
}

func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	ctx := c.UserContext()

	input := new(AddItemInput)
	if err := c.BodyParser(input); err != nil {
		mylogger.Warn(ctx, h.logger, "failed to parse body in add item", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "error parsing body"})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": utils.FormatValidationError(err)})
	}

	cart, item, err := h.carts.Add(ctx, middleware.ProfileID(c), domain.LineItem{
		Name:     input.Name,
		Price:    *input.Price,
		Quantity: input.Quantity,
		Image:    input.Image,
	})
	if err != nil {
		mylogger.Info(ctx, h.logger, "add item rejected", zap.Error(err))
		return errorJSON(c, err)
	}

	mylogger.Info(ctx, h.logger, "item added", zap.String("item_id", item.ID), zap.Int("quantity", item.Quantity))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"item": item,
		"cart": h.view(c, cart),
	})
}

func (h *CartHandler) UpdateItem(c *fiber.Ctx) error {
	ctx := c.UserContext()

	input := new(UpdateQuantityInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "error parsing body"})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": utils.FormatValidationError(err)})
	}

	cart, err := h.carts.UpdateQuantity(ctx, middleware.ProfileID(c), c.Params("id"), *input.Quantity)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(h.view(c, cart))
}

func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	cart := h.carts.Remove(c.UserContext(), middleware.ProfileID(c), c.Params("id"))
	return c.JSON(h.view(c, cart))
}

func (h *CartHandler) Clear(c *fiber.Ctx) error {
	cart := h.carts.Clear(c.UserContext(), middleware.ProfileID(c))
	return c.JSON(h.view(c, cart))
}

func (h *CartHandler) Sync(c *fiber.Ctx) error {
	ctx := c.UserContext()

	res, err := h.sync.SyncNow(ctx, middleware.ProfileID(c), middleware.Identity(c))
	if errors.Is(err, service.ErrSyncInProgress) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		mylogger.Error(ctx, h.logger, "sync failed", zap.Error(err))
		return errorJSON(c, err)
	}

	cart := h.carts.Get(ctx, middleware.ProfileID(c))

	return c.JSON(fiber.Map{
		"sync": res,
		"cart": h.view(c, cart),
	})
}
