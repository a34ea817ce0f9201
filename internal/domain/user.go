package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidTheme = errors.New("theme must be light or dark")

// UserDocument is the per-user remote document.
type UserDocument struct {
	UID           string          `json:"uid"`
	Email         string          `json:"email"`
	DisplayName   string          `json:"display_name"`
	Cart          Cart            `json:"cart"`
	OrderCount    int64           `json:"order_count"`
	LifetimeSpend decimal.Decimal `json:"lifetime_spend"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// UserDocumentPatch carries the fields to change; nil fields are left untouched.
type UserDocumentPatch struct {
	Email       *string
	DisplayName *string
	Cart        *Cart
}

type ContactMessage struct {
	ID        int64     `json:"id"`
	UID       string    `json:"uid,omitempty"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// UserProfile is the session blob cached in the local store after login.
type UserProfile struct {
	UID         string    `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	LastLogin   time.Time `json:"last_login"`
}

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

func ParseTheme(s string) (Theme, error) {
	switch Theme(s) {
	case ThemeLight, ThemeDark:
		return Theme(s), nil
	default:
		return "", ErrInvalidTheme
	}
}
