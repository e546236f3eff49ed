package payment

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultOrderPrefix prefixes generated merchant order ids.
const DefaultOrderPrefix = "ORDER"

var hundred = decimal.NewFromInt(100)

// ValidateAmount reports whether amount is a positive whole number of the
// smallest currency unit.
func ValidateAmount(amount float64) bool {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return false
	}
	return amount > 0 && amount == math.Trunc(amount)
}

// RupeesToPaise converts a rupee amount to paise, rounding half away from zero
// on the decimal value so 1.005 becomes 101. Values that cannot be represented
// yield 0, which ValidateAmount rejects.
func RupeesToPaise(rupees float64) int64 {
	if math.IsNaN(rupees) || math.IsInf(rupees, 0) {
		return 0
	}
	paise := decimal.NewFromFloat(rupees).Mul(hundred).Round(0)
	if !paise.BigInt().IsInt64() {
		return 0
	}
	return paise.IntPart()
}

// PaiseToRupees converts paise back to rupees.
func PaiseToRupees(paise int64) float64 {
	return float64(paise) / 100
}

// FormatRupees renders paise as a rupee string with two decimals.
func FormatRupees(paise int64) string {
	return decimal.New(paise, -2).StringFixed(2)
}

// NewMerchantOrderID returns "<prefix>_<unix millis>_<4 digits>".
func NewMerchantOrderID(prefix string, now time.Time) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultOrderPrefix
	}
	return fmt.Sprintf("%s_%d_%04d", prefix, now.UnixMilli(), rand.IntN(10000))
}
