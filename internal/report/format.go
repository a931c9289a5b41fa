package report

import (
	"math"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// Currency formats d as US dollars with two decimals and digit grouping.
func Currency(d decimal.Decimal) string {
	v := d.Round(2)
	if v.IsNegative() {
		return "-$" + printer.Sprintf("%.2f", v.Neg().InexactFloat64())
	}
	return "$" + printer.Sprintf("%.2f", v.InexactFloat64())
}

// Number formats d with two decimals and digit grouping.
func Number(d decimal.Decimal) string {
	return printer.Sprintf("%.2f", d.Round(2).InexactFloat64())
}

// Count formats an integer with digit grouping.
func Count(n int) string {
	return printer.Sprintf("%d", n)
}

// Percent formats a rate such as 0.075 as "7.50%".
func Percent(rate decimal.Decimal) string {
	return Number(rate.Mul(decimal.NewFromInt(100))) + "%"
}

// RoundPercentile rounds a percentile half away from zero.
func RoundPercentile(p float64) int {
	return int(math.Round(p))
}
