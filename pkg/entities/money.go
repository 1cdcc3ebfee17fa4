package entities

import "github.com/shopspring/decimal"

// USD amounts are kept to the cent. Storage holds them as integer cents so the
// database can apply increments atomically.
const usdPlaces = 2

// RoundUSD rounds an amount to whole cents
func RoundUSD(d decimal.Decimal) decimal.Decimal {
	return d.Round(usdPlaces)
}

// ToCents converts a USD amount to integer cents
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(usdPlaces).Round(0).IntPart()
}

// FromCents converts integer cents to a USD amount
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -usdPlaces)
}
