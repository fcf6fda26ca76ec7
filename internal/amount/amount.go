// Package amount converts SPL token base-unit amounts into exact decimal values.
package amount

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"solana-balance-recon/internal/domain"
)

// Zero is the balance written when one side of a delta has no snapshot.
const Zero = "0"

// MaxDecimals is the largest decimals value an SPL mint can declare (u8).
const MaxDecimals = 255

// ToDecimal returns raw / 10^decimals without rounding.
// raw must be a base-10 integer string and decimals must be in [0, MaxDecimals].
func ToDecimal(raw string, decimals int) (decimal.Decimal, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return decimal.Decimal{}, fmt.Errorf("%w: decimals %d", domain.ErrInvalidAmount, decimals)
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is not an integer", domain.ErrInvalidAmount, raw)
	}
	return decimal.NewFromBigInt(n, -int32(decimals)), nil
}

// Scale is ToDecimal rendered as a canonical decimal string.
func Scale(raw string, decimals int) (string, error) {
	d, err := ToDecimal(raw, decimals)
	if err != nil {
		return "", err
	}
	return Format(d), nil
}

// Difference returns a - b.
func Difference(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b)
}

// Magnitude returns |d| as a canonical decimal string.
func Magnitude(d decimal.Decimal) string {
	return Format(d.Abs())
}

// Format renders d without exponent and without trailing fractional zeros.
func Format(d decimal.Decimal) string {
	if d.IsZero() {
		return Zero
	}
	return d.String()
}
