package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of fractional digits kept for price values.
const PriceScale int32 = 2

// Source identifies which external feed produced an observation.
type Source string

const (
	SourceChainHeight Source = "chain_height"
	SourcePriceIndex  Source = "price_index"
)

// Valid reports whether s names one of the two polled feeds.
func (s Source) Valid() bool {
	return s == SourceChainHeight || s == SourcePriceIndex
}

// Observation is a single successful fetch result. Exactly one of Height or
// Price is meaningful, selected by Source.
type Observation struct {
	Source     Source
	Height     uint64
	Price      decimal.Decimal
	ObservedAt time.Time
}

// NewChainHeight builds a chain height observation.
func NewChainHeight(height uint64, at time.Time) Observation {
	return Observation{Source: SourceChainHeight, Height: height, ObservedAt: at.UTC()}
}

// NewPriceIndex builds a price observation rounded to PriceScale.
func NewPriceIndex(price decimal.Decimal, at time.Time) Observation {
	return Observation{Source: SourcePriceIndex, Price: price.RoundBank(PriceScale), ObservedAt: at.UTC()}
}

// Value renders the observed scalar for logs and metrics labels.
func (o Observation) Value() string {
	switch o.Source {
	case SourceChainHeight:
		return fmt.Sprintf("%d", o.Height)
	case SourcePriceIndex:
		return o.Price.StringFixed(PriceScale)
	default:
		return ""
	}
}

// Float returns the observation as a float for gauges.
func (o Observation) Float() float64 {
	if o.Source == SourceChainHeight {
		return float64(o.Height)
	}
	f, _ := o.Price.Float64()
	return f
}
