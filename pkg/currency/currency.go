// Package currency converts display amounts between USD and IDR.
//
// The ledger itself is single-currency; conversion happens only at the
// presentation boundary using a configured static rate.
package currency

import (
	"errors"

	"github.com/shopspring/decimal"
)

var errNonPositiveRate = errors.New("exchange rate must be positive")

// Converter applies a fixed USD to IDR exchange rate.
type Converter struct {
	usdToIDR decimal.Decimal
}

// NewConverter builds a converter from a decimal rate string such as "15500".
func NewConverter(usdToIDRRate string) (*Converter, error) {
	rate, err := decimal.NewFromString(usdToIDRRate)
	if err != nil {
		return nil, err
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		return nil, errNonPositiveRate
	}
	return &Converter{usdToIDR: rate}, nil
}

// Rate returns the configured USD to IDR rate.
func (c *Converter) Rate() decimal.Decimal {
	return c.usdToIDR
}

// USDToIDR converts a USD amount to IDR, rounded to whole rupiah.
func (c *Converter) USDToIDR(usd decimal.Decimal) decimal.Decimal {
	return usd.Mul(c.usdToIDR).Round(0)
}

// IDRToUSD converts an IDR amount to USD, rounded to cents.
func (c *Converter) IDRToUSD(idr decimal.Decimal) decimal.Decimal {
	return idr.Div(c.usdToIDR).Round(2)
}
