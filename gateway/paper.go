package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/evdnx/trendbot/types"
)

// PaperGateway is a deterministic in-memory venue: perfect fills at the
// current quote, no slippage, one position per symbol. It also serves
// seeded bar history, so paper runs and tests need no terminal at all.
// When a MarketData delegate is supplied, quotes and symbol specs come from
// it (paper execution against live prices).
type PaperGateway struct {
	mu         sync.RWMutex
	market     MarketData
	balance    float64
	positions  map[string]types.Position
	quotes     map[string][2]float64 // bid, ask
	specs      map[string]types.SymbolSpec
	bars       map[string][]types.Bar
	nextTicket int64
}

// NewPaperGateway creates a paper venue with the supplied starting balance.
// market may be nil; seed quotes and specs with SetQuote/SetSymbolSpec then.
func NewPaperGateway(startBalance float64, market MarketData) *PaperGateway {
	return &PaperGateway{
		market:     market,
		balance:    startBalance,
		positions:  make(map[string]types.Position),
		quotes:     make(map[string][2]float64),
		specs:      make(map[string]types.SymbolSpec),
		bars:       make(map[string][]types.Bar),
		nextTicket: 1,
	}
}

// SetQuote injects the current bid/ask for a symbol.
func (p *PaperGateway) SetQuote(symbol string, bid, ask float64) {
	p.mu.Lock()
	p.quotes[symbol] = [2]float64{bid, ask}
	p.mu.Unlock()
}

// SetSymbolSpec injects instrument constraints for a symbol.
func (p *PaperGateway) SetSymbolSpec(spec types.SymbolSpec) {
	p.mu.Lock()
	p.specs[spec.Symbol] = spec
	p.mu.Unlock()
}

// SeedBars replaces the bar history served for a symbol.
func (p *PaperGateway) SeedBars(symbol string, bars []types.Bar) {
	p.mu.Lock()
	p.bars[symbol] = append([]types.Bar(nil), bars...)
	p.mu.Unlock()
}

// AppendBar adds one bar and moves the quote to its close.
func (p *PaperGateway) AppendBar(symbol string, bar types.Bar) {
	p.mu.Lock()
	p.bars[symbol] = append(p.bars[symbol], bar)
	if _, ok := p.quotes[symbol]; !ok {
		p.quotes[symbol] = [2]float64{bar.Close, bar.Close}
	} else {
		q := p.quotes[symbol]
		half := (q[1] - q[0]) / 2
		p.quotes[symbol] = [2]float64{bar.Close - half, bar.Close + half}
	}
	p.mu.Unlock()
}

func (p *PaperGateway) Quote(ctx context.Context, symbol string) (float64, float64, error) {
	if p.market != nil {
		return p.market.Quote(ctx, symbol)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.quotes[symbol]
	if !ok {
		return 0, 0, fmt.Errorf("%w: no quote for %s", ErrDataUnavailable, symbol)
	}
	return q[0], q[1], nil
}

func (p *PaperGateway) Spread(ctx context.Context, symbol string) (float64, error) {
	bid, ask, err := p.Quote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	spec, err := p.SymbolInfo(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if spec.Point <= 0 {
		return 0, fmt.Errorf("%w: no point size for %s", ErrDataUnavailable, symbol)
	}
	return (ask - bid) / spec.Point, nil
}

func (p *PaperGateway) SymbolInfo(ctx context.Context, symbol string) (types.SymbolSpec, error) {
	if p.market != nil {
		return p.market.SymbolInfo(ctx, symbol)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	spec, ok := p.specs[symbol]
	if !ok {
		return types.SymbolSpec{}, fmt.Errorf("%w: unknown symbol %s", ErrDataUnavailable, symbol)
	}
	return spec, nil
}

// OpenPosition fills the order at the current quote. A second open on a
// symbol that already carries a position is rejected, matching the
// one-position-per-symbol policy of the live account.
func (p *PaperGateway) OpenPosition(ctx context.Context, req types.OpenRequest) (types.Position, error) {
	if req.Volume <= 0 {
		return types.Position{}, &RejectionError{Code: 10014, Comment: "invalid volume"}
	}
	bid, ask, err := p.Quote(ctx, req.Symbol)
	if err != nil {
		return types.Position{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.positions[req.Symbol]; exists {
		return types.Position{}, &RejectionError{Code: 10027, Comment: "position already open"}
	}
	fill := ask
	if req.Side == types.Sell {
		fill = bid
	}
	pos := types.Position{
		Ticket:     p.nextTicket,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Volume:     req.Volume,
		EntryPrice: fill,
		StopPrice:  req.StopPrice,
		TakeProfit: req.TakeProfit,
		Magic:      req.Magic,
	}
	p.nextTicket++
	p.positions[req.Symbol] = pos
	return pos, nil
}

// ClosePosition realizes P/L into the balance at the current quote.
func (p *PaperGateway) ClosePosition(ctx context.Context, symbol string) error {
	bid, ask, err := p.Quote(ctx, symbol)
	if err != nil {
		return err
	}
	spec, err := p.SymbolInfo(ctx, symbol)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[symbol]
	if !ok {
		return &RejectionError{Code: 10036, Comment: "position not found"}
	}
	var profit float64
	if pos.Side == types.Buy {
		profit = (bid - pos.EntryPrice) * pos.Volume * spec.ContractSize
	} else {
		profit = (pos.EntryPrice - ask) * pos.Volume * spec.ContractSize
	}
	p.balance += profit
	delete(p.positions, symbol)
	return nil
}

func (p *PaperGateway) ModifyStop(ctx context.Context, symbol string, newStop float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[symbol]
	if !ok {
		return &RejectionError{Code: 10036, Comment: "position not found"}
	}
	pos.StopPrice = newStop
	p.positions[symbol] = pos
	return nil
}

// Positions returns the open set with floating P/L marked to the current
// quote.
func (p *PaperGateway) Positions(ctx context.Context) ([]types.Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]types.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		if q, ok := p.quotes[pos.Symbol]; ok {
			spec := p.specs[pos.Symbol]
			contract := spec.ContractSize
			if contract == 0 {
				contract = 1
			}
			if pos.Side == types.Buy {
				pos.Profit = (q[0] - pos.EntryPrice) * pos.Volume * contract
			} else {
				pos.Profit = (pos.EntryPrice - q[1]) * pos.Volume * contract
			}
		}
		out = append(out, pos)
	}
	return out, nil
}

// AccountInfo reports balance plus floating P/L as equity.
func (p *PaperGateway) AccountInfo(ctx context.Context) (types.AccountInfo, error) {
	positions, err := p.Positions(ctx)
	if err != nil {
		return types.AccountInfo{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	equity := p.balance
	for _, pos := range positions {
		equity += pos.Profit
	}
	return types.AccountInfo{Balance: p.balance, Equity: equity}, nil
}

// Bars serves the seeded history, most-recent last. Without seeded bars it
// falls through to the market delegate when that delegate can serve history.
func (p *PaperGateway) Bars(ctx context.Context, symbol string, tf types.Timeframe, count int) ([]types.Bar, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	bars, ok := p.bars[symbol]
	if !ok || len(bars) == 0 {
		if h, live := p.market.(History); live {
			return h.Bars(ctx, symbol, tf, count)
		}
		return nil, fmt.Errorf("%w: no bars for %s", ErrDataUnavailable, symbol)
	}
	if count > 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	return append([]types.Bar(nil), bars...), nil
}
