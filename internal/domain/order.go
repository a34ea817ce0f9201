package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const GuestOwner = "guest"

type OrderStatus string

const OrderStatusCompleted OrderStatus = "completed"

type PaymentMethod string

const (
	PaymentCreditCard   PaymentMethod = "credit-card"
	PaymentPayPal       PaymentMethod = "paypal"
	PaymentBankTransfer PaymentMethod = "bank-transfer"
)

var paymentMethods = []PaymentMethod{PaymentCreditCard, PaymentPayPal, PaymentBankTransfer}

func PaymentMethods() []PaymentMethod {
	return append([]PaymentMethod(nil), paymentMethods...)
}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	candidate := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	for _, m := range paymentMethods {
		if m == candidate {
			return m, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, s)
}

// Order is an immutable receipt produced by a completed checkout.
type Order struct {
	OrderNumber   string          `json:"order_number"`
	UserID        string          `json:"user_id,omitempty"`
	Items         []LineItem      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PromoCode     string          `json:"promo_code,omitempty"`
	Status        OrderStatus     `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
}

type OrderDraft struct {
	OrderNumber   string
	UserID        string
	Cart          Cart
	Promo         *Promo
	PaymentMethod PaymentMethod
}

func NewOrder(draft OrderDraft, now time.Time) Order {
	fraction := decimal.Zero
	promoCode := ""
	if draft.Promo != nil {
		fraction = draft.Promo.Fraction
		promoCode = draft.Promo.Code
	}

	totals := ComputeTotals(draft.Cart.Total(), fraction)
	snapshot := draft.Cart.Clone()

	return Order{
		OrderNumber:   draft.OrderNumber,
		UserID:        draft.UserID,
		Items:         snapshot.Items,
		Subtotal:      totals.Subtotal,
		Discount:      totals.Discount,
		Tax:           totals.Tax,
		Total:         totals.Total,
		PaymentMethod: draft.PaymentMethod,
		PromoCode:     promoCode,
		Status:        OrderStatusCompleted,
		Timestamp:     now,
	}
}

// NewOrderNumber returns a shareable id: creation millis plus a short random suffix.
// It is not globally unique, collisions are merely unlikely.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), suffix)
}

// OwnerKey partitions order history by user id, falling back to the guest bucket.
func OwnerKey(uid string) string {
	if uid == "" {
		return GuestOwner
	}

	return uid
}
