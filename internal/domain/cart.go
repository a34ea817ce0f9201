package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultItemImage = "/assets/images/course-placeholder.png"

// LineItem is one product row in a cart or order. The timestamps are advisory and never used to
// resolve conflicts.
type LineItem struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image"`
	AddedAt   time.Time       `json:"added_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	SyncedAt  *time.Time      `json:"synced_at,omitempty"`
}

func (i LineItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart keeps insertion order for display only.
type Cart struct {
	Items []LineItem `json:"items"`
}

func NewCart(items []LineItem) Cart {
	c := Cart{Items: make([]LineItem, 0, len(items))}
	c.Items = append(c.Items, items...)
	return c
}

// Add merges item into the cart. The id is always derived from the name, so identically named
// products collapse to one row; a non-positive quantity counts as 1.
func (c *Cart) Add(item LineItem, now time.Time) (LineItem, error) {
	item.Name = strings.TrimSpace(item.Name)
	item.ID = DeriveItemID(item.Name)
	if item.ID == "" {
		return LineItem{}, ErrInvalidItem
	}
	if item.Price.IsNegative() {
		return LineItem{}, ErrInvalidPrice
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}

	if idx := c.index(item.ID); idx >= 0 {
		c.Items[idx].Quantity += item.Quantity
		c.Items[idx].UpdatedAt = now
		return c.Items[idx], nil
	}

	if item.Image == "" {
		item.Image = DefaultItemImage
	}
	item.AddedAt = now
	item.UpdatedAt = now
	item.SyncedAt = nil

	c.Items = append(c.Items, item)
	return item, nil
}

// Remove drops the row with id. Removing an absent id is a no-op.
func (c *Cart) Remove(id string) bool {
	idx := c.index(id)
	if idx < 0 {
		return false
	}

	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	return true
}

// UpdateQuantity sets the quantity of id; quantity <= 0 behaves exactly like Remove.
// It reports whether a row with id existed.
func (c *Cart) UpdateQuantity(id string, quantity int, now time.Time) bool {
	if quantity <= 0 {
		return c.Remove(id)
	}

	idx := c.index(id)
	if idx < 0 {
		return false
	}

	c.Items[idx].Quantity = quantity
	c.Items[idx].UpdatedAt = now
	return true
}

func (c *Cart) Clear() {
	c.Items = []LineItem{}
}

func (c Cart) Find(id string) (LineItem, bool) {
	if idx := c.index(id); idx >= 0 {
		return c.Items[idx], true
	}

	return LineItem{}, false
}

// Total is the sum of price * quantity over all rows.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}

	return total
}

// ItemCount sums quantities, not rows.
func (c Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}

	return count
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c Cart) Clone() Cart {
	clone := Cart{Items: make([]LineItem, len(c.Items))}
	for i, item := range c.Items {
		if item.SyncedAt != nil {
			synced := *item.SyncedAt
			item.SyncedAt = &synced
		}
		clone.Items[i] = item
	}

	return clone
}

func (c Cart) index(id string) int {
	for i, item := range c.Items {
		if item.ID == id {
			return i
		}
	}

	return -1
}
