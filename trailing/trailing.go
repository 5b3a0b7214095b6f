// Package trailing tracks open-position favorable excursion and proposes
// stop adjustments that only ever tighten.
package trailing

import "github.com/evdnx/trendbot/types"

// Config holds distances in price units (already converted from points).
type Config struct {
	ActivationDistance float64 // favorable excursion required before trailing starts
	Distance           float64 // gap kept between price and the stop
}

// NextStop returns the stop the position should carry given the current
// price. ok is false when no update is needed: the trail has not activated,
// or the proposal does not improve the stored stop. For a long position the
// stop only rises; for a short it only falls. A proposal equal to the
// stored stop is suppressed so the gateway never sees redundant updates.
func NextStop(pos types.Position, price float64, cfg Config) (float64, bool) {
	if cfg.Distance <= 0 {
		return 0, false
	}
	if pos.Side == types.Buy {
		if price-pos.EntryPrice < cfg.ActivationDistance {
			return 0, false
		}
		candidate := price - cfg.Distance
		if pos.StopPrice != 0 && candidate <= pos.StopPrice {
			return 0, false
		}
		return candidate, true
	}
	// short
	if pos.EntryPrice-price < cfg.ActivationDistance {
		return 0, false
	}
	candidate := price + cfg.Distance
	if pos.StopPrice != 0 && candidate >= pos.StopPrice {
		return 0, false
	}
	return candidate, true
}
