package domain

import "errors"

var (
	ErrInvalidItem          = errors.New("item name must contain at least one letter or digit")
	ErrInvalidPrice         = errors.New("item price must not be negative")
	ErrInvalidPromoCode     = errors.New("invalid promo code")
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
)
