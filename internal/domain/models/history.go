package models

import "time"

// JoinedRow pairs a block height and a price observed in the same time bucket.
type JoinedRow struct {
	BlockHeight uint64    `json:"block_height"`
	Price       Price     `json:"price"`
	Timestamp   time.Time `json:"timestamp"`
}

// LatestBlock is the most recent persisted chain height row.
type LatestBlock struct {
	BlockHeight uint64    `json:"block_height"`
	Timestamp   time.Time `json:"timestamp"`
}

// LatestPrice is the most recent persisted price row.
type LatestPrice struct {
	Price     Price     `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// AllDataRequest holds /all-data query parameters.
type AllDataRequest struct {
	From  string `query:"from"`
	To    string `query:"to"`
	Limit int    `query:"limit" default:"1000" validate:"gte=1,lte=10000"`
	TF    string `query:"tf" validate:"omitempty,oneof=1s 1m 5m"`
}

// HistoryQuery is the parsed form of AllDataRequest.
type HistoryQuery struct {
	From        time.Time
	To          time.Time
	Limit       int
	Granularity string
}
