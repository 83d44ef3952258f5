package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ObservationMessage is the Kafka payload for one observation.
type ObservationMessage struct {
	Source     Source `json:"source"`
	Height     uint64 `json:"height,omitempty"`
	Price      string `json:"price,omitempty"`
	ObservedAt int64  `json:"observed_at_ms"`
}

func NewObservationMessage(o Observation) ObservationMessage {
	m := ObservationMessage{Source: o.Source, ObservedAt: o.ObservedAt.UnixMilli()}
	switch o.Source {
	case SourceChainHeight:
		m.Height = o.Height
	case SourcePriceIndex:
		m.Price = o.Price.StringFixed(PriceScale)
	}
	return m
}

// Observation converts the message back, validating the source and price.
func (m ObservationMessage) Observation() (Observation, error) {
	if !m.Source.Valid() {
		return Observation{}, fmt.Errorf("unknown source %q", m.Source)
	}
	at := time.UnixMilli(m.ObservedAt)
	switch m.Source {
	case SourcePriceIndex:
		d, err := decimal.NewFromString(m.Price)
		if err != nil {
			return Observation{}, fmt.Errorf("price %q: %w", m.Price, err)
		}
		return NewPriceIndex(d, at), nil
	default:
		return NewChainHeight(m.Height, at), nil
	}
}
