package domain

import "github.com/shopspring/decimal"

// Amounts is a price breakdown rounded to two decimal places.
type Amounts struct {
	Price decimal.Decimal
	Tax   decimal.Decimal
	Total decimal.Decimal
}

// PriceReservation prices a full-period reservation of a slot: the slot's
// static base price plus tax. Tier ranking is a display bucket, never a
// negotiation input.
func PriceReservation(basePrice, taxRate decimal.Decimal) Amounts {
	price := basePrice.Round(2)
	tax := price.Mul(taxRate).Round(2)
	return Amounts{Price: price, Tax: tax, Total: price.Add(tax)}
}

// PriceExtension prices additional days at the per-day rate implied by the
// slot's base price over the period length.
func PriceExtension(basePrice decimal.Decimal, periodDays, additionalDays int, taxRate decimal.Decimal) Amounts {
	if periodDays <= 0 {
		periodDays = 7
	}
	perDay := basePrice.Div(decimal.NewFromInt(int64(periodDays)))
	price := perDay.Mul(decimal.NewFromInt(int64(additionalDays))).Round(2)
	tax := price.Mul(taxRate).Round(2)
	return Amounts{Price: price, Tax: tax, Total: price.Add(tax)}
}
