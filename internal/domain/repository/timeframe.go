package repository

// Timeframe is the bucket width used to join block and price rows.
type Timeframe string

const (
	TF1s Timeframe = "1s"
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
)

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1s, TF1m, TF5m:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1m }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Interval renders the bucket as a ClickHouse INTERVAL expression.
func (tf Timeframe) Interval() string {
	switch tf {
	case TF1s:
		return "INTERVAL 1 SECOND"
	case TF5m:
		return "INTERVAL 5 MINUTE"
	default:
		return "INTERVAL 1 MINUTE"
	}
}
