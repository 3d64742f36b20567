package finance

import "github.com/shopspring/decimal"

// German VAT bands. Receipts and transaction splits only ever carry one of
// these rates.
var AllowedTaxRates = []int{0, 7, 19}

// MileageRateEUR is the statutory car mileage allowance per kilometer.
var MileageRateEUR = decimal.RequireFromString("0.30")

// ValidTaxRate reports whether rate is one of the supported VAT bands.
func ValidTaxRate(rate int) bool {
	for _, r := range AllowedTaxRates {
		if r == rate {
			return true
		}
	}
	return false
}

// NetFromGross computes the net amount in cents for a gross amount in cents:
// net = gross / (1 + rate/100), rounded half-up to the cent.
func NetFromGross(grossCents int64, ratePercent int) int64 {
	if ratePercent == 0 {
		return grossCents
	}
	gross := decimal.New(grossCents, -2)
	divisor := decimal.New(100+int64(ratePercent), -2)
	net := gross.DivRound(divisor, 2)
	return net.Shift(2).IntPart()
}

// TaxFromGross is the VAT portion in cents of a gross amount.
func TaxFromGross(grossCents int64, ratePercent int) int64 {
	return grossCents - NetFromGross(grossCents, ratePercent)
}

// MileageAmount computes the allowance in cents for driven kilometers:
// round(km * 0.30, 2). Mileage carries no VAT, so net equals gross.
func MileageAmount(kilometers float64) int64 {
	km := decimal.NewFromFloat(kilometers)
	return km.Mul(MileageRateEUR).Round(2).Shift(2).IntPart()
}
