package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatQuote formats an amount in the quote currency with thousands separators,
// e.g. 12345.6 -> "12,345.60 USDT".
func FormatQuote(amount float64) string {
	return FormatAmount(amount) + " USDT"
}

// FormatAmount formats a number with two decimals and thousands separators.
func FormatAmount(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	parts := strings.SplitN(strconv.FormatFloat(amount, 'f', 2, 64), ".", 2)
	result := groupThousands(parts[0]) + "." + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	var b strings.Builder
	lead := n % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a fraction as a signed percentage, e.g. 0.0123 -> "+1.23%".
func FormatPercent(fraction float64) string {
	sign := ""
	if fraction > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, fraction*100)
}

// FormatPnL formats pnl with an explicit sign.
func FormatPnL(pnl float64) string {
	formatted := FormatAmount(pnl)
	if pnl > 0 {
		return "+" + formatted
	}
	return formatted
}

// FormatQuantity formats a base-asset quantity without trailing zeros.
func FormatQuantity(qty float64) string {
	return strconv.FormatFloat(qty, 'f', -1, 64)
}
