package domain

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// TaxRate is the flat tax applied after discounts.
var TaxRate = decimal.RequireFromString("0.10")

var promoFractions = map[string]decimal.Decimal{
	"WELCOME10": decimal.RequireFromString("0.10"),
	"SAVE15":    decimal.RequireFromString("0.15"),
	"STUDENT20": decimal.RequireFromString("0.20"),
}

type Promo struct {
	Code     string          `json:"code"`
	Fraction decimal.Decimal `json:"fraction"`
}

// LookupPromo matches code case-insensitively against the fixed promo table.
func LookupPromo(code string) (Promo, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))

	fraction, ok := promoFractions[normalized]
	if !ok {
		return Promo{}, ErrInvalidPromoCode
	}

	return Promo{Code: normalized, Fraction: fraction}, nil
}

func PromoCodes() []string {
	codes := make([]string, 0, len(promoFractions))
	for code := range promoFractions {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	return codes
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals applies the promo fraction, then TaxRate on the discounted amount:
//
//	discount = subtotal * fraction
//	tax      = (subtotal - discount) * TaxRate
//	total    = (subtotal - discount) + tax
//
// Intermediate values stay exact; only the returned figures are rounded to cents.
func ComputeTotals(subtotal, fraction decimal.Decimal) Totals {
	discount := subtotal.Mul(fraction)
	afterDiscount := subtotal.Sub(discount)
	tax := afterDiscount.Mul(TaxRate)
	total := afterDiscount.Add(tax)

	return Totals{
		Subtotal: subtotal.Round(2),
		Discount: discount.Round(2),
		Tax:      tax.Round(2),
		Total:    total.Round(2),
	}
}
