package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evdnx/goti"
	"github.com/evdnx/trendbot/config"
	"github.com/evdnx/trendbot/gateway"
	"github.com/evdnx/trendbot/indicator"
	"github.com/evdnx/trendbot/logger"
	"github.com/evdnx/trendbot/metrics"
	"github.com/evdnx/trendbot/risk"
	"github.com/evdnx/trendbot/types"
)

// volumeLookback is the bar count the volume filter averages over.
const volumeLookback = 20

// TrendCross trades golden/death crosses of a fast and a slow moving
// average. It holds at most one position per symbol and reverses by closing
// the open position before opening the opposite one. All indicator state is
// incremental: every closed bar is fed exactly once.
type TrendCross struct {
	gw  gateway.ExecutionGateway
	log logger.Logger
	cfg config.Config

	states map[string]*symbolState
}

// symbolState is the per-symbol indicator and safety state.
type symbolState struct {
	fast    *indicator.MovingAverage
	slow    *indicator.MovingAverage
	suite   *goti.IndicatorSuite // nil unless the RSI filter is enabled
	volumes *volumeWindow

	prevFast, prevSlow float64
	currFast, currSlow float64
	havePrev, haveCurr bool

	lastBar time.Time

	// manualReview latches after a reversal close fails: the terminal and
	// the bot may disagree about the open position, so the symbol stays
	// locked until the gateway reports it flat again.
	manualReview bool
}

// NewTrendCross validates the config and builds per-symbol state for every
// configured symbol.
func NewTrendCross(cfg config.Config, gw gateway.ExecutionGateway, log logger.Logger) (*TrendCross, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	suiteFactory := func() (*goti.IndicatorSuite, error) {
		ic := goti.DefaultConfig()
		ic.RSIOverbought = cfg.Filters.RSIOverbought
		ic.RSIOversold = cfg.Filters.RSIOversold
		return goti.NewIndicatorSuiteWithConfig(ic)
	}

	states := make(map[string]*symbolState, len(cfg.Trading.Symbols))
	for _, symbol := range cfg.Trading.Symbols {
		fast, err := indicator.NewMovingAverage(indicator.MAType(cfg.Strategy.MAType), cfg.Strategy.FastPeriod)
		if err != nil {
			return nil, err
		}
		slow, err := indicator.NewMovingAverage(indicator.MAType(cfg.Strategy.MAType), cfg.Strategy.SlowPeriod)
		if err != nil {
			return nil, err
		}
		st := &symbolState{
			fast:    fast,
			slow:    slow,
			volumes: newVolumeWindow(volumeLookback),
		}
		if cfg.Filters.UseRSI {
			suite, err := suiteFactory()
			if err != nil {
				return nil, err
			}
			st.suite = suite
		}
		states[symbol] = st
	}
	return &TrendCross{
		gw:     gw,
		log:    log,
		cfg:    cfg,
		states: states,
	}, nil
}

// ManualReview reports whether a symbol is locked after a failed reversal.
func (t *TrendCross) ManualReview(symbol string) bool {
	st, ok := t.states[symbol]
	return ok && st.manualReview
}

// ProcessBars feeds any unseen closed bars for the symbol and acts on the
// resulting crossover, if one fired. pos is the position the gateway
// currently reports for this symbol (nil when flat). Bars must be ordered
// oldest first.
func (t *TrendCross) ProcessBars(ctx context.Context, symbol string, bars []types.Bar, pos *types.Position) error {
	st, ok := t.states[symbol]
	if !ok {
		return fmt.Errorf("strategy: symbol %q not configured", symbol)
	}

	if st.manualReview {
		if pos != nil {
			metrics.CyclesSkipped.WithLabelValues(symbol, "manual_review").Inc()
			t.log.Warn("manual_review_active", logger.String("symbol", symbol))
			return nil
		}
		st.manualReview = false
		metrics.ManualReview.WithLabelValues(symbol).Set(0)
		t.log.Info("manual_review_cleared", logger.String("symbol", symbol))
	}

	fed := 0
	for _, b := range bars {
		if !b.Time.After(st.lastBar) {
			continue
		}
		t.feed(st, symbol, b)
		fed++
	}
	if fed == 0 {
		return nil
	}
	if !st.havePrev {
		metrics.CyclesSkipped.WithLabelValues(symbol, "insufficient_data").Inc()
		return nil
	}

	cross := indicator.Classify(st.prevFast, st.prevSlow, st.currFast, st.currSlow)
	t.log.Info("trend_status",
		logger.String("symbol", symbol),
		logger.Float64("close", bars[len(bars)-1].Close),
		logger.Float64("fast", st.currFast),
		logger.Float64("slow", st.currSlow),
		logger.String("signal", cross.String()),
	)
	if cross == indicator.None {
		return nil
	}

	side := types.Buy
	if cross == indicator.Death {
		side = types.Sell
	}
	metrics.SignalsDetected.WithLabelValues(symbol, string(side)).Inc()
	sig := types.Signal{
		Symbol: symbol,
		Side:   side,
		Time:   st.lastBar,
		Fast:   st.currFast,
		Slow:   st.currSlow,
	}
	return t.act(ctx, st, sig, bars, pos)
}

// feed pushes one closed bar into the symbol's indicator state.
func (t *TrendCross) feed(st *symbolState, symbol string, b types.Bar) {
	st.fast.Update(b.Close)
	st.slow.Update(b.Close)
	st.volumes.Add(b.Volume)
	if st.suite != nil {
		if err := st.suite.Add(b.High, b.Low, b.Close, b.Volume); err != nil {
			t.log.Warn("suite_add_error", logger.String("symbol", symbol), logger.Err(err))
		}
	}
	if st.fast.Ready() && st.slow.Ready() {
		f, _ := st.fast.Value()
		s, _ := st.slow.Value()
		if st.haveCurr {
			st.prevFast, st.prevSlow = st.currFast, st.currSlow
			st.havePrev = true
		}
		st.currFast, st.currSlow = f, s
		st.haveCurr = true
	}
	st.lastBar = b.Time
}

// act runs the filters, sizes the order, and executes the signal. A filtered
// signal is not an error; only gateway failures propagate.
func (t *TrendCross) act(ctx context.Context, st *symbolState, sig types.Signal, bars []types.Bar, pos *types.Position) error {
	if pos != nil && pos.Side == sig.Side {
		t.log.Info("signal_matches_position",
			logger.String("symbol", sig.Symbol),
			logger.String("side", string(sig.Side)),
		)
		return nil
	}

	spread, err := t.gw.Spread(ctx, sig.Symbol)
	if err != nil {
		return fmt.Errorf("spread %s: %w", sig.Symbol, err)
	}
	if spread > t.cfg.Trading.MaxSpreadPoints {
		t.filtered(sig, "spread", logger.Float64("spread_points", spread))
		return nil
	}
	if !t.rsiOK(st, sig) {
		return nil
	}
	if !t.volumeOK(st, sig) {
		return nil
	}

	// The close comes before sizing: once the filtered signal fires, the
	// old position goes even if the new order cannot be sized.
	if pos != nil {
		if err := t.gw.ClosePosition(ctx, sig.Symbol); err != nil {
			st.manualReview = true
			metrics.ManualReview.WithLabelValues(sig.Symbol).Set(1)
			metrics.OrdersSubmitted.WithLabelValues("close", "error").Inc()
			t.log.Error("reversal_close_failed",
				logger.String("symbol", sig.Symbol),
				logger.Int64("ticket", pos.Ticket),
				logger.Err(err),
			)
			return nil
		}
		metrics.OrdersSubmitted.WithLabelValues("close", "ok").Inc()
		t.log.Info("position_closed",
			logger.String("symbol", sig.Symbol),
			logger.Int64("ticket", pos.Ticket),
			logger.String("reason", "reversal"),
		)
	}

	spec, err := t.gw.SymbolInfo(ctx, sig.Symbol)
	if err != nil {
		return fmt.Errorf("symbol info %s: %w", sig.Symbol, err)
	}
	acct, err := t.gw.AccountInfo(ctx)
	if err != nil {
		return fmt.Errorf("account info: %w", err)
	}

	stopDist, tpDist := t.distances(sig.Symbol, bars, spec)
	volume, err := risk.PositionSize(acct.Equity, t.cfg.Trading.RiskPercent, stopDist, spec)
	if err != nil {
		if errors.Is(err, risk.ErrVolumeTooSmall) || errors.Is(err, risk.ErrInvalidRisk) {
			t.filtered(sig, "sizing", logger.Err(err))
			return nil
		}
		return err
	}

	return t.open(ctx, sig, volume, stopDist, tpDist, spec)
}

// open sends the market order with the stop and take-profit anchored at the
// current quote: buys fill at the ask, sells at the bid.
func (t *TrendCross) open(ctx context.Context, sig types.Signal, volume, stopDist, tpDist float64, spec types.SymbolSpec) error {
	bid, ask, err := t.gw.Quote(ctx, sig.Symbol)
	if err != nil {
		return fmt.Errorf("quote %s: %w", sig.Symbol, err)
	}

	var stop, tp float64
	if sig.Side == types.Buy {
		stop = ask - stopDist
		if tpDist > 0 {
			tp = ask + tpDist
		}
	} else {
		stop = bid + stopDist
		if tpDist > 0 {
			tp = bid - tpDist
		}
	}

	req := types.OpenRequest{
		Symbol:     sig.Symbol,
		Side:       sig.Side,
		Volume:     volume,
		StopPrice:  stop,
		TakeProfit: tp,
		Deviation:  t.cfg.Trading.DeviationPoints,
		Magic:      t.cfg.Trading.Magic,
		Comment:    "trend cross",
	}
	pos, err := t.gw.OpenPosition(ctx, req)
	if err != nil {
		metrics.OrdersSubmitted.WithLabelValues("open", "rejected").Inc()
		var rej *gateway.RejectionError
		if errors.As(err, &rej) {
			t.log.Error("order_rejected",
				logger.String("symbol", sig.Symbol),
				logger.String("side", string(sig.Side)),
				logger.Int("retcode", rej.Code),
				logger.String("comment", rej.Comment),
			)
			return nil
		}
		return fmt.Errorf("open %s: %w", sig.Symbol, err)
	}
	metrics.OrdersSubmitted.WithLabelValues("open", "ok").Inc()
	t.log.Info("position_opened",
		logger.String("symbol", sig.Symbol),
		logger.String("side", string(sig.Side)),
		logger.Float64("volume", volume),
		logger.Float64("entry", pos.EntryPrice),
		logger.Float64("stop", stop),
		logger.Float64("take_profit", tp),
		logger.Int64("ticket", pos.Ticket),
	)
	return nil
}

// distances returns the stop and take-profit distances in price units,
// preferring ATR multiples when enabled and enough bars are available.
func (t *TrendCross) distances(symbol string, bars []types.Bar, spec types.SymbolSpec) (stop, tp float64) {
	stop = t.cfg.Trading.StopLossPoints * spec.Point
	tp = t.cfg.Trading.TakeProfitPoints * spec.Point
	if !t.cfg.ATR.Enabled {
		return stop, tp
	}
	atr, err := indicator.ATR(bars, t.cfg.ATR.Period)
	if err != nil {
		t.log.Warn("atr_unavailable_using_fixed_distances",
			logger.String("symbol", symbol),
			logger.Err(err),
		)
		return stop, tp
	}
	stop = atr * t.cfg.ATR.StopMultiplier
	if t.cfg.ATR.TakeProfitMultiplier > 0 {
		tp = atr * t.cfg.ATR.TakeProfitMultiplier
	}
	return stop, tp
}

// rsiOK applies the contrarian entry gate: a buy only when the market is
// oversold, a sell only when it is overbought.
func (t *TrendCross) rsiOK(st *symbolState, sig types.Signal) bool {
	if !t.cfg.Filters.UseRSI || st.suite == nil {
		return true
	}
	val, err := st.suite.GetRSI().Calculate()
	if err != nil {
		t.log.Warn("rsi_unavailable", logger.String("symbol", sig.Symbol), logger.Err(err))
		return true
	}
	ok := true
	if sig.Side == types.Buy {
		ok = val < t.cfg.Filters.RSIOversold
	} else {
		ok = val > t.cfg.Filters.RSIOverbought
	}
	if !ok {
		t.filtered(sig, "rsi", logger.Float64("rsi", val))
	}
	return ok
}

// volumeOK requires the signal bar's tick volume to clear the configured
// floor and at least 80% of the recent average.
func (t *TrendCross) volumeOK(st *symbolState, sig types.Signal) bool {
	if !t.cfg.Filters.UseVolume {
		return true
	}
	current := st.volumes.Last()
	avg := st.volumes.Mean()
	if current >= t.cfg.Filters.MinVolume && current >= avg*0.8 {
		return true
	}
	t.filtered(sig, "volume",
		logger.Float64("volume", current),
		logger.Float64("avg_volume", avg),
	)
	return false
}

func (t *TrendCross) filtered(sig types.Signal, reason string, fields ...logger.Field) {
	metrics.SignalsFiltered.WithLabelValues(sig.Symbol, reason).Inc()
	fields = append([]logger.Field{
		logger.String("symbol", sig.Symbol),
		logger.String("side", string(sig.Side)),
		logger.String("reason", reason),
	}, fields...)
	t.log.Info("signal_filtered", fields...)
}
