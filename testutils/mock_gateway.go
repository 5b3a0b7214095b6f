package testutils

import (
	"context"
	"sync"

	"github.com/evdnx/trendbot/gateway"
	"github.com/evdnx/trendbot/types"
)

// MockGateway implements gateway.ExecutionGateway and gateway.History
// in-memory. Every order-path call is recorded so tests can assert on the
// exact sequence of gateway interactions, and each mutating call can be
// scripted to fail.
type MockGateway struct {
	mu sync.RWMutex

	account   types.AccountInfo
	specs     map[string]types.SymbolSpec
	quotes    map[string][2]float64 // bid, ask
	bars      map[string][]types.Bar
	positions map[string]types.Position

	opens    []types.OpenRequest
	closes   []string
	stopMods []StopMod

	nextTicket int64

	// scripted failures
	OpenErr   error
	CloseErr  error
	ModifyErr error
	BarsErr   error
	QuoteErr  error
}

// StopMod captures one ModifyStop call.
type StopMod struct {
	Symbol string
	Stop   float64
}

// NewMockGateway creates a gateway with the supplied starting balance.
func NewMockGateway(balance float64) *MockGateway {
	return &MockGateway{
		account:    types.AccountInfo{Balance: balance, Equity: balance},
		specs:      make(map[string]types.SymbolSpec),
		quotes:     make(map[string][2]float64),
		bars:       make(map[string][]types.Bar),
		positions:  make(map[string]types.Position),
		nextTicket: 1,
	}
}

// SetQuote installs the current bid/ask for a symbol.
func (m *MockGateway) SetQuote(symbol string, bid, ask float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[symbol] = [2]float64{bid, ask}
}

// SetSymbolSpec installs the instrument constraints for a symbol.
func (m *MockGateway) SetSymbolSpec(spec types.SymbolSpec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.specs[spec.Symbol] = spec
}

// SetEquity overrides the account snapshot.
func (m *MockGateway) SetEquity(equity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account.Balance = equity
	m.account.Equity = equity
}

// SeedBars replaces the historical window for a symbol.
func (m *MockGateway) SeedBars(symbol string, bars []types.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[symbol] = append([]types.Bar(nil), bars...)
}

// SeedPosition installs an already-open position.
func (m *MockGateway) SeedPosition(pos types.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[pos.Symbol] = pos
}

func (m *MockGateway) Quote(_ context.Context, symbol string) (float64, float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.QuoteErr != nil {
		return 0, 0, m.QuoteErr
	}
	q, ok := m.quotes[symbol]
	if !ok {
		return 0, 0, gateway.ErrDataUnavailable
	}
	return q[0], q[1], nil
}

func (m *MockGateway) Spread(ctx context.Context, symbol string) (float64, error) {
	bid, ask, err := m.Quote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	m.mu.RLock()
	spec, ok := m.specs[symbol]
	m.mu.RUnlock()
	if !ok || spec.Point <= 0 {
		return 0, gateway.ErrDataUnavailable
	}
	return (ask - bid) / spec.Point, nil
}

func (m *MockGateway) SymbolInfo(_ context.Context, symbol string) (types.SymbolSpec, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spec, ok := m.specs[symbol]
	if !ok {
		return types.SymbolSpec{}, gateway.ErrDataUnavailable
	}
	return spec, nil
}

func (m *MockGateway) OpenPosition(_ context.Context, req types.OpenRequest) (types.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens = append(m.opens, req)
	if m.OpenErr != nil {
		return types.Position{}, m.OpenErr
	}
	q := m.quotes[req.Symbol]
	entry := q[1]
	if req.Side == types.Sell {
		entry = q[0]
	}
	pos := types.Position{
		Ticket:     m.nextTicket,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Volume:     req.Volume,
		EntryPrice: entry,
		StopPrice:  req.StopPrice,
		TakeProfit: req.TakeProfit,
		Magic:      req.Magic,
	}
	m.nextTicket++
	m.positions[req.Symbol] = pos
	return pos, nil
}

func (m *MockGateway) ClosePosition(_ context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes = append(m.closes, symbol)
	if m.CloseErr != nil {
		return m.CloseErr
	}
	delete(m.positions, symbol)
	return nil
}

func (m *MockGateway) ModifyStop(_ context.Context, symbol string, newStop float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopMods = append(m.stopMods, StopMod{Symbol: symbol, Stop: newStop})
	if m.ModifyErr != nil {
		return m.ModifyErr
	}
	pos, ok := m.positions[symbol]
	if ok {
		pos.StopPrice = newStop
		m.positions[symbol] = pos
	}
	return nil
}

func (m *MockGateway) Positions(_ context.Context) ([]types.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out, nil
}

func (m *MockGateway) AccountInfo(_ context.Context) (types.AccountInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.account, nil
}

func (m *MockGateway) Bars(_ context.Context, symbol string, _ types.Timeframe, count int) ([]types.Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.BarsErr != nil {
		return nil, m.BarsErr
	}
	bars, ok := m.bars[symbol]
	if !ok || len(bars) == 0 {
		return nil, gateway.ErrDataUnavailable
	}
	if count < len(bars) {
		bars = bars[len(bars)-count:]
	}
	out := make([]types.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

// Opens returns a copy of all open requests (useful for assertions).
func (m *MockGateway) Opens() []types.OpenRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.OpenRequest, len(m.opens))
	copy(out, m.opens)
	return out
}

// Closes returns the symbols passed to ClosePosition, in call order.
func (m *MockGateway) Closes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.closes))
	copy(out, m.closes)
	return out
}

// StopMods returns every ModifyStop call, in call order.
func (m *MockGateway) StopMods() []StopMod {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StopMod, len(m.stopMods))
	copy(out, m.stopMods)
	return out
}

// Position returns the open position for a symbol, if any.
func (m *MockGateway) Position(symbol string) (types.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[symbol]
	return pos, ok
}
