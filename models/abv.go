package models

import (
	"github.com/shopspring/decimal"
)

var abvFactor = decimal.NewFromFloat(131.25)

// CalculateAbv returns (start - final) * 131.25 rounded half away from zero to
// two places.
func CalculateAbv(startGravity float64, finalGravity float64) decimal.Decimal {
	return decimal.NewFromFloat(startGravity).
		Sub(decimal.NewFromFloat(finalGravity)).
		Mul(abvFactor).
		Round(2)
}

// Abv is nil until both gravities are known.
func (b *Batch) Abv() *decimal.Decimal {
	if b.StartGravity == 0 || b.FinalGravity == nil || *b.FinalGravity == 0 {
		return nil
	}
	abv := CalculateAbv(b.StartGravity, *b.FinalGravity)
	return &abv
}
