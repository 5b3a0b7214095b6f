package indicator

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"github.com/evdnx/trendbot/types"
)

// ATR returns the latest Average True Range over the supplied bars.
// talib needs period+1 bars to emit the first value.
func ATR(bars []types.Bar, period int) (float64, error) {
	if period <= 1 {
		return 0, fmt.Errorf("indicator: ATR period (%d) must be >1", period)
	}
	if len(bars) < period+1 {
		return 0, fmt.Errorf("%w: have %d of %d bars for ATR", ErrInsufficientData, len(bars), period+1)
	}
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}
	out := talib.Atr(highs, lows, closes, period)
	return out[len(out)-1], nil
}
