package indicator

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is returned while a calculator has seen fewer bars
// than its period.
var ErrInsufficientData = errors.New("indicator: insufficient data")

// MAType selects the averaging method.
type MAType string

const (
	SMA MAType = "sma"
	EMA MAType = "ema"
)

// MovingAverage computes an SMA or EMA incrementally: each Update is O(1)
// and no historical re-scan is ever needed. The SMA keeps a ring buffer of
// the last period closes; the EMA seeds itself with the SMA of the first
// period values and then applies EMA_t = close*k + EMA_{t-1}*(1-k) with
// k = 2/(period+1).
type MovingAverage struct {
	kind   MAType
	period int

	ring  []float64
	head  int
	count int
	sum   float64

	k      float64
	ema    float64
	seeded bool
}

// NewMovingAverage validates the parameters and returns an empty calculator.
func NewMovingAverage(kind MAType, period int) (*MovingAverage, error) {
	if kind != SMA && kind != EMA {
		return nil, fmt.Errorf("indicator: unknown MA type %q", kind)
	}
	if period <= 0 {
		return nil, fmt.Errorf("indicator: period (%d) must be positive", period)
	}
	return &MovingAverage{
		kind:   kind,
		period: period,
		ring:   make([]float64, period),
		k:      2 / float64(period+1),
	}, nil
}

// Update feeds the close of the latest bar.
func (m *MovingAverage) Update(close float64) {
	if m.kind == EMA && m.seeded {
		m.ema = close*m.k + m.ema*(1-m.k)
		m.count++
		return
	}
	if m.count >= m.period {
		m.sum -= m.ring[m.head]
	}
	m.ring[m.head] = close
	m.head = (m.head + 1) % m.period
	m.sum += close
	m.count++
	if m.kind == EMA && m.count == m.period {
		m.ema = m.sum / float64(m.period)
		m.seeded = true
	}
}

// Ready reports whether a full period has been observed.
func (m *MovingAverage) Ready() bool {
	return m.count >= m.period
}

// Value returns the average aligned to the latest bar, or
// ErrInsufficientData before the first full period.
func (m *MovingAverage) Value() (float64, error) {
	if !m.Ready() {
		return 0, fmt.Errorf("%w: have %d of %d bars", ErrInsufficientData, m.count, m.period)
	}
	if m.kind == EMA {
		return m.ema, nil
	}
	return m.sum / float64(m.period), nil
}

// Period returns the configured lookback.
func (m *MovingAverage) Period() int {
	return m.period
}
