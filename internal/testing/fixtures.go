package testing

import (
	"testing"

	"github.com/shopspring/decimal"
)

// D parses a decimal literal, failing the test on malformed input
func D(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("invalid decimal literal %q: %v", value, err)
	}
	return d
}
