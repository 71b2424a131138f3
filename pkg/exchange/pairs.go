// Package exchange holds exchange-neutral helpers for trading pairs.
package exchange

import (
	"fmt"
	"strings"
)

// SplitPair divides a user-facing pair such as "ETH/USDT" into its base
// and quote components.
func SplitPair(pair string) (base, quote string, err error) {
	parts := strings.Split(pair, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid pair %q, expected BASE/QUOTE", pair)
	}
	return strings.ToUpper(parts[0]), strings.ToUpper(parts[1]), nil
}

// Symbol converts a user-facing pair into the exchange symbol form
// without the slash, e.g. "ETH/USDT" -> "ETHUSDT".
func Symbol(pair string) string {
	return strings.ToUpper(strings.ReplaceAll(pair, "/", ""))
}

// TradeURL returns the public spot trading page for a pair, used in
// alert emails.
func TradeURL(pair string) string {
	return fmt.Sprintf("https://www.binance.com/en/trade/%s?type=spot", strings.ReplaceAll(pair, "/", "_"))
}
