// Package bot runs the polling loop: it re-syncs positions from the
// gateway, prefetches bars, applies trailing stops, and hands each symbol to
// the strategy.
package bot

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evdnx/trendbot/config"
	"github.com/evdnx/trendbot/gateway"
	"github.com/evdnx/trendbot/indicator"
	"github.com/evdnx/trendbot/journal"
	"github.com/evdnx/trendbot/logger"
	"github.com/evdnx/trendbot/metrics"
	"github.com/evdnx/trendbot/strategy"
	"github.com/evdnx/trendbot/trailing"
	"github.com/evdnx/trendbot/types"
)

// Gateway is everything the loop needs from the venue.
type Gateway interface {
	gateway.ExecutionGateway
	gateway.History
}

// Bot wires the gateway, strategy, trailing manager and journal together.
type Bot struct {
	cfg   config.Config
	gw    Gateway
	strat *strategy.TrendCross
	jrnl  *journal.Journal // nil disables journaling
	log   logger.Logger
	tf    types.Timeframe

	// last cycle's positions by symbol, used to detect closes that
	// happened at the terminal (stop hit, take-profit, manual).
	lastPositions map[string]types.Position
}

// New builds the bot. jrnl may be nil.
func New(cfg config.Config, gw Gateway, strat *strategy.TrendCross, jrnl *journal.Journal, log logger.Logger) (*Bot, error) {
	tf, ok := types.ParseTimeframe(cfg.Strategy.Timeframe)
	if !ok {
		return nil, fmt.Errorf("unknown timeframe %q", cfg.Strategy.Timeframe)
	}
	return &Bot{
		cfg:           cfg,
		gw:            gw,
		strat:         strat,
		jrnl:          jrnl,
		log:           log,
		tf:            tf,
		lastPositions: make(map[string]types.Position),
	}, nil
}

// Run polls until the context is canceled. The first cycle runs immediately.
func (b *Bot) Run(ctx context.Context) error {
	if b.jrnl != nil {
		if acct, err := b.gw.AccountInfo(ctx); err == nil {
			if err := b.jrnl.SetInitialBalance(ctx, acct.Balance); err != nil {
				b.log.Warn("journal_baseline_failed", logger.Err(err))
			}
		}
	}

	interval := time.Duration(b.cfg.Trading.PollIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	b.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.runCycle(ctx)
		}
	}
}

// runCycle is one full pass over every configured symbol. Gateway failures
// are fatal for the cycle, never for the process.
func (b *Bot) runCycle(ctx context.Context) {
	open, err := b.gw.Positions(ctx)
	if err != nil {
		b.log.Warn("positions_unavailable", logger.Err(err))
		return
	}
	current := make(map[string]types.Position)
	for _, p := range open {
		if p.Magic == b.cfg.Trading.Magic {
			current[p.Symbol] = p
		}
	}
	metrics.PositionsOpen.Set(float64(len(current)))

	acct, err := b.gw.AccountInfo(ctx)
	if err != nil {
		b.log.Warn("account_unavailable", logger.Err(err))
		return
	}
	metrics.EquityGauge.Set(acct.Equity)

	b.recordClosed(ctx, current, acct)

	type fetched struct {
		bars []types.Bar
		err  error
	}
	symbols := b.cfg.Trading.Symbols
	results := make([]fetched, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	for i, symbol := range symbols {
		g.Go(func() error {
			bars, err := b.gw.Bars(gctx, symbol, b.tf, b.cfg.BarFetchCount())
			results[i] = fetched{bars: bars, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, symbol := range symbols {
		if results[i].err != nil {
			metrics.CyclesSkipped.WithLabelValues(symbol, "no_data").Inc()
			b.log.Warn("bars_unavailable",
				logger.String("symbol", symbol),
				logger.Err(results[i].err),
			)
			continue
		}
		bars := results[i].bars

		var pos *types.Position
		if p, ok := current[symbol]; ok {
			pos = &p
			if b.cfg.Trading.EnableTrailing {
				b.updateTrailing(ctx, p, bars)
			}
		}
		if err := b.strat.ProcessBars(ctx, symbol, bars, pos); err != nil {
			metrics.CyclesSkipped.WithLabelValues(symbol, "no_data").Inc()
			b.log.Warn("symbol_cycle_failed",
				logger.String("symbol", symbol),
				logger.Err(err),
			)
		}
	}

	b.lastPositions = current
}

// recordClosed journals positions that were present last cycle but are gone
// now. Tickets are compared, not just symbols: a reversal replaces the
// position on the same symbol within one cycle, and the closed leg still
// counts. The realized profit is the floating P/L at last sight; the exit
// price comes from the current quote when available.
func (b *Bot) recordClosed(ctx context.Context, current map[string]types.Position, acct types.AccountInfo) {
	if b.jrnl == nil {
		return
	}
	for symbol, prev := range b.lastPositions {
		if cur, still := current[symbol]; still && cur.Ticket == prev.Ticket {
			continue
		}
		rec := journal.TradeRecord{
			ClosedAt:   time.Now().UTC(),
			Symbol:     symbol,
			Side:       string(prev.Side),
			Volume:     prev.Volume,
			EntryPrice: prev.EntryPrice,
			Profit:     prev.Profit,
			Balance:    acct.Balance,
			Ticket:     prev.Ticket,
			Magic:      prev.Magic,
		}
		if spec, err := b.gw.SymbolInfo(ctx, symbol); err == nil && spec.Point > 0 {
			if bid, ask, qerr := b.gw.Quote(ctx, symbol); qerr == nil {
				exit := bid
				if prev.Side == types.Sell {
					exit = ask
				}
				rec.ExitPrice = exit
				rec.Pips = (exit - prev.EntryPrice) / spec.Point
				if prev.Side == types.Sell {
					rec.Pips = -rec.Pips
				}
			}
		}
		if err := b.jrnl.Record(ctx, rec); err != nil {
			b.log.Warn("journal_record_failed",
				logger.String("symbol", symbol),
				logger.Err(err),
			)
			continue
		}
		b.log.Info("trade_journaled",
			logger.String("symbol", symbol),
			logger.String("side", string(prev.Side)),
			logger.Float64("profit", prev.Profit),
			logger.Int64("ticket", prev.Ticket),
		)
	}
}

// updateTrailing tightens the stop when the position has moved far enough
// into profit. The trail anchors on the closable price: bid for longs, ask
// for shorts.
func (b *Bot) updateTrailing(ctx context.Context, pos types.Position, bars []types.Bar) {
	spec, err := b.gw.SymbolInfo(ctx, pos.Symbol)
	if err != nil || spec.Point <= 0 {
		b.log.Warn("trailing_symbol_info_unavailable",
			logger.String("symbol", pos.Symbol),
			logger.Err(err),
		)
		return
	}
	bid, ask, err := b.gw.Quote(ctx, pos.Symbol)
	if err != nil {
		b.log.Warn("trailing_quote_unavailable",
			logger.String("symbol", pos.Symbol),
			logger.Err(err),
		)
		return
	}
	price := bid
	if pos.Side == types.Sell {
		price = ask
	}

	tcfg := trailing.Config{
		ActivationDistance: b.cfg.Trading.TrailingActivation * spec.Point,
		Distance:           b.cfg.Trading.TrailingDistance * spec.Point,
	}
	if b.cfg.ATR.Enabled && b.cfg.ATR.TrailingMultiplier > 0 {
		if atr, aerr := indicator.ATR(bars, b.cfg.ATR.Period); aerr == nil {
			tcfg.Distance = atr * b.cfg.ATR.TrailingMultiplier
		}
	}

	newStop, ok := trailing.NextStop(pos, price, tcfg)
	if !ok {
		return
	}
	if err := b.gw.ModifyStop(ctx, pos.Symbol, newStop); err != nil {
		metrics.OrdersSubmitted.WithLabelValues("modify_stop", "error").Inc()
		b.log.Warn("trailing_modify_failed",
			logger.String("symbol", pos.Symbol),
			logger.Err(err),
		)
		return
	}
	metrics.OrdersSubmitted.WithLabelValues("modify_stop", "ok").Inc()
	metrics.TrailingUpdates.WithLabelValues(pos.Symbol).Inc()
	b.log.Info("trailing_stop_moved",
		logger.String("symbol", pos.Symbol),
		logger.Float64("old_stop", pos.StopPrice),
		logger.Float64("new_stop", newStop),
		logger.Float64("price", price),
	)
}
