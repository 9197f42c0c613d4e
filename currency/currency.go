/*
Package currency provides the conversion collaborator consumed by the ledger.

PURPOSE:
  Converts an amount between currency codes using a static rate table.
  Conversion is a pure, synchronous, total function over supported codes;
  unsupported codes fail loudly rather than falling back to a default rate.

RATE SEMANTICS:
  Rates are quoted against USD: rates[code] is how many units of code one
  USD buys. Cross rates are derived through USD, so a table only needs one
  entry per supported currency.

SEE ALSO:
  - ledger/service.go: The only consumer of Convert in the core
*/
package currency

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrUnsupportedCurrency is returned when a conversion involves a code the
// rate table has no rate for.
var ErrUnsupportedCurrency = errors.New("unsupported currency")

// UnsupportedCurrencyError identifies which code was missing.
type UnsupportedCurrencyError struct {
	Code string
}

func (e *UnsupportedCurrencyError) Error() string {
	return fmt.Sprintf("unsupported currency: %s", e.Code)
}

func (e *UnsupportedCurrencyError) Unwrap() error {
	return ErrUnsupportedCurrency
}

// =============================================================================
// CONVERTER
// =============================================================================

// Converter converts an amount between currency codes. Implementations must
// be pure: same inputs, same output, no side effects.
type Converter interface {
	Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// =============================================================================
// RATE TABLE
// =============================================================================

// RateTable is a Converter backed by a static map of USD-relative rates.
type RateTable struct {
	rates map[string]decimal.Decimal
}

// NewRateTable builds a table from rates quoted as units-per-USD, e.g.
// {"USD": 1, "EUR": 0.9}. Codes are normalized to upper case.
func NewRateTable(unitsPerUSD map[string]decimal.Decimal) *RateTable {
	rates := make(map[string]decimal.Decimal, len(unitsPerUSD))
	for code, rate := range unitsPerUSD {
		rates[strings.ToUpper(code)] = rate
	}
	return &RateTable{rates: rates}
}

// Convert converts amount from one code to another. Converting between
// identical codes returns the amount unchanged without consulting the table.
func (t *RateTable) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if strings.EqualFold(from, to) {
		return amount, nil
	}
	fromRate, ok := t.rates[strings.ToUpper(from)]
	if !ok || fromRate.IsZero() {
		return decimal.Zero, &UnsupportedCurrencyError{Code: strings.ToUpper(from)}
	}
	toRate, ok := t.rates[strings.ToUpper(to)]
	if !ok {
		return decimal.Zero, &UnsupportedCurrencyError{Code: strings.ToUpper(to)}
	}
	return amount.Div(fromRate).Mul(toRate), nil
}

// Supported returns the supported codes, sorted.
func (t *RateTable) Supported() []string {
	codes := make([]string, 0, len(t.rates))
	for code := range t.rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// DefaultRates returns a starter table for the server binary. Hosts that
// fetch live rates should build their own table instead.
func DefaultRates() *RateTable {
	return NewRateTable(map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(1),
		"EUR": decimal.RequireFromString("0.92"),
		"GBP": decimal.RequireFromString("0.79"),
		"CHF": decimal.RequireFromString("0.88"),
		"JPY": decimal.RequireFromString("149.50"),
		"BTC": decimal.RequireFromString("0.000016"),
		"ETH": decimal.RequireFromString("0.00040"),
	})
}
