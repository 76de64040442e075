package plans

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const IntervalMonth = "month"

// Currencies the processor charges in whole units.
var zeroDecimalCurrencies = []string{
	"bif", "clp", "djf", "gnf", "jpy", "kmf", "krw", "mga",
	"pyg", "rwf", "ugx", "vnd", "vuv", "xaf", "xof", "xpf",
}

func NormalizeCurrency(currency string) string {
	return strings.ToLower(strings.TrimSpace(currency))
}

func currencyExponent(currency string) int32 {
	if lo.Contains(zeroDecimalCurrencies, NormalizeCurrency(currency)) {
		return 0
	}
	return 2
}

// ToMinorUnits converts a major-unit amount to the processor's integer representation.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(currencyExponent(currency)).Round(0).IntPart()
}

// FromMinorUnits converts the processor's integer amount back to major units.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -currencyExponent(currency))
}

// LookupKey is the deterministic processor price lookup key for a creator price.
func LookupKey(creatorID uint, currency string, amountMinor int64) string {
	return fmt.Sprintf("creator_%d_%s_%d", creatorID, NormalizeCurrency(currency), amountMinor)
}
