package types

import "time"

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the reversing side for a position.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Timeframe identifies the bar interval using the terminal's naming.
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
	W1  Timeframe = "W1"
	MN1 Timeframe = "MN1"
)

var timeframeDurations = map[Timeframe]time.Duration{
	M1:  time.Minute,
	M5:  5 * time.Minute,
	M15: 15 * time.Minute,
	M30: 30 * time.Minute,
	H1:  time.Hour,
	H4:  4 * time.Hour,
	D1:  24 * time.Hour,
	W1:  7 * 24 * time.Hour,
	MN1: 30 * 24 * time.Hour,
}

// ParseTimeframe validates a timeframe string from configuration.
func ParseTimeframe(s string) (Timeframe, bool) {
	tf := Timeframe(s)
	_, ok := timeframeDurations[tf]
	return tf, ok
}

// Duration returns the nominal bar interval (MN1 is approximated as 30 days).
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// Bar is one OHLCV candle; immutable once the terminal has closed it.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64 // tick volume
}

// Signal is a single crossover event. Produced once, never mutated.
type Signal struct {
	Symbol string
	Side   Side
	Time   time.Time
	Fast   float64
	Slow   float64
}

// Position mirrors the terminal's view of one open position.
type Position struct {
	Ticket     int64
	Symbol     string
	Side       Side
	Volume     float64
	EntryPrice float64
	StopPrice  float64 // 0 = no stop attached
	TakeProfit float64 // 0 = no take-profit attached
	Magic      int64
	Profit     float64 // floating P/L in account currency
	OpenTime   time.Time
}

// AccountInfo is the read-only account snapshot owned by the gateway.
type AccountInfo struct {
	Balance float64
	Equity  float64
}

// SymbolSpec carries the instrument constraints needed for sizing and
// point/price conversions.
type SymbolSpec struct {
	Symbol       string
	Point        float64 // smallest price increment
	ContractSize float64 // contract value per 1.0 volume per 1.0 price unit
	VolumeMin    float64
	VolumeMax    float64
	VolumeStep   float64
}

// OpenRequest describes a market order sent to the execution gateway.
type OpenRequest struct {
	Symbol     string
	Side       Side
	Volume     float64
	StopPrice  float64
	TakeProfit float64
	Deviation  int // max slippage in points
	Magic      int64
	Comment    string
}
