package models

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// Price is a decimal fixed at PriceScale that encodes as a bare JSON number.
type Price struct {
	decimal.Decimal
}

func NewPrice(d decimal.Decimal) Price {
	return Price{Decimal: d.RoundBank(PriceScale)}
}

func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(p.StringFixed(PriceScale)), nil
}

func (p *Price) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	p.Decimal = d.RoundBank(PriceScale)
	return nil
}
