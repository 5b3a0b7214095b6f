// Package gateway abstracts the MetaTrader 5 terminal behind capability
// interfaces so the decision core is testable without a live terminal.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/evdnx/trendbot/types"
)

// ErrDataUnavailable signals a disconnected terminal or empty rate window.
// It is fatal for the cycle, not for the process.
var ErrDataUnavailable = errors.New("gateway: data unavailable")

// RejectionError carries the venue's reason for refusing an order.
type RejectionError struct {
	Code    int
	Comment string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("gateway: order rejected (retcode %d): %s", e.Code, e.Comment)
}

// MarketData provides the per-symbol quote surface shared by live and paper
// execution.
type MarketData interface {
	// Quote returns the current bid and ask.
	Quote(ctx context.Context, symbol string) (bid, ask float64, err error)
	// Spread returns the current spread in points.
	Spread(ctx context.Context, symbol string) (float64, error)
	// SymbolInfo returns the instrument constraints.
	SymbolInfo(ctx context.Context, symbol string) (types.SymbolSpec, error)
}

// ExecutionGateway is the venue contract: it atomically accepts or rejects
// orders and owns all order lifecycle guarantees.
type ExecutionGateway interface {
	MarketData

	OpenPosition(ctx context.Context, req types.OpenRequest) (types.Position, error)
	ClosePosition(ctx context.Context, symbol string) error
	ModifyStop(ctx context.Context, symbol string, newStop float64) error
	Positions(ctx context.Context) ([]types.Position, error)
	AccountInfo(ctx context.Context) (types.AccountInfo, error)
}

// History supplies ordered historical bars, most-recent last.
type History interface {
	Bars(ctx context.Context, symbol string, tf types.Timeframe, count int) ([]types.Bar, error)
}
