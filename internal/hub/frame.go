package hub

import (
	"encoding/json"
	"fmt"

	"BlockPulse/internal/domain/models"
)

// Frame is the wire payload sent to subscribers. Exactly one field is non-null.
type Frame struct {
	BlockHeight *uint64       `json:"block_height"`
	Price       *models.Price `json:"price"`
}

// EncodeFrame renders obs as a subscriber frame.
func EncodeFrame(obs models.Observation) ([]byte, error) {
	var f Frame
	switch obs.Source {
	case models.SourceChainHeight:
		h := obs.Height
		f.BlockHeight = &h
	case models.SourcePriceIndex:
		p := models.NewPrice(obs.Price)
		f.Price = &p
	default:
		return nil, fmt.Errorf("encode frame: unknown source %q", obs.Source)
	}
	return json.Marshal(f)
}
