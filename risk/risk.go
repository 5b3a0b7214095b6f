package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/evdnx/trendbot/types"
)

var (
	// ErrInvalidRisk guards the divisions in PositionSize explicitly.
	ErrInvalidRisk = errors.New("risk: invalid risk parameters")
	// ErrVolumeTooSmall means the computed size rounded below the
	// instrument minimum; the caller must skip the trade rather than send
	// a zero-volume order.
	ErrVolumeTooSmall = errors.New("risk: volume below instrument minimum")
)

// PositionSize converts account equity and a risk percentage into an order
// volume given a stop distance in price units and the instrument spec.
//
//	riskedAmount = equity * riskPercent/100
//	rawVolume    = riskedAmount / (stopDistance * contractSize)
//
// The result is rounded DOWN to the instrument's volume step (never up, so
// realized risk cannot exceed the requested percentage) and clamped to
// VolumeMax. Step arithmetic runs on decimals: float64 steps like 0.01
// otherwise accumulate representation error across the divide-floor-multiply
// round trip.
func PositionSize(equity, riskPercent, stopDistance float64, spec types.SymbolSpec) (float64, error) {
	if riskPercent <= 0 || riskPercent > 100 {
		return 0, fmt.Errorf("%w: risk percent %v out of (0,100]", ErrInvalidRisk, riskPercent)
	}
	if stopDistance <= 0 {
		return 0, fmt.Errorf("%w: stop distance %v must be positive", ErrInvalidRisk, stopDistance)
	}
	if equity <= 0 {
		return 0, fmt.Errorf("%w: equity %v must be positive", ErrInvalidRisk, equity)
	}
	if spec.ContractSize <= 0 {
		return 0, fmt.Errorf("%w: contract size %v must be positive", ErrInvalidRisk, spec.ContractSize)
	}

	riskedAmount := equity * riskPercent / 100
	raw := riskedAmount / (stopDistance * spec.ContractSize)

	volume := raw
	if spec.VolumeStep > 0 {
		step := decimal.NewFromFloat(spec.VolumeStep)
		// Round to 9 decimals before flooring so float noise just below a
		// step boundary (19.999999999999998 steps) does not lose a step.
		steps := decimal.NewFromFloat(raw).Div(step).Round(9).Floor()
		volume, _ = steps.Mul(step).Float64()
	}
	if spec.VolumeMax > 0 && volume > spec.VolumeMax {
		volume = spec.VolumeMax
	}
	if volume <= 0 || volume < spec.VolumeMin {
		return 0, fmt.Errorf("%w: computed %v, minimum %v", ErrVolumeTooSmall, volume, spec.VolumeMin)
	}
	return volume, nil
}
