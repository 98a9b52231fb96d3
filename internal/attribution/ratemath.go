package attribution

import (
	"math"
	"math/big"
)

// mulRateFloor computes floor(amount * rate) through a float64 intermediate.
// Fee amounts at typical token scales exceed float64's integer precision, so
// the low digits of the result are approximate. That loss is accepted: fee
// rates are themselves fractional and the split identity is preserved by
// deriving the complement via exact subtraction, never by a second rounding.
func mulRateFloor(amount *big.Int, rate float64) *big.Int {
	if amount == nil || amount.Sign() == 0 || rate == 0 {
		return new(big.Int)
	}
	f, _ := new(big.Float).SetInt(amount).Float64()
	return floatToUnits(math.Floor(f * rate))
}

// floatToUnits truncates a float total toward zero into integer token units.
// Non-finite values collapse to zero rather than poisoning an accumulator.
func floatToUnits(v float64) *big.Int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return new(big.Int)
	}
	n, _ := big.NewFloat(v).Int(nil)
	if n == nil {
		return new(big.Int)
	}
	return n
}
