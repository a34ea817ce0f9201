package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const EventOrderCompleted = "OrderCompleted"

type OrderCompletedItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// OrderCompletedEvent is emitted through the outbox once a remote order row is first inserted.
type OrderCompletedEvent struct {
	OrderNumber string               `json:"order_number"`
	UserID      string               `json:"user_id"`
	Total       decimal.Decimal      `json:"total"`
	Items       []OrderCompletedItem `json:"items"`
	CompletedAt time.Time            `json:"completed_at"`
}
