package enums

import (
	"fmt"
	"strings"
)

// Currency is an ISO 4217 denomination as reported on a receipt. Codes are
// not whitelisted; receipts arrive in whatever currency the merchant used.
type Currency string

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// ParseCurrency normalizes a raw currency string to upper case. Only an
// empty value is rejected.
func ParseCurrency(value string) (Currency, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	if normalized == "" {
		return "", fmt.Errorf("currency is required")
	}
	return Currency(normalized), nil
}
