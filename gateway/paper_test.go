package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/evdnx/trendbot/types"
)

func seededPaper(t *testing.T) *PaperGateway {
	t.Helper()
	p := NewPaperGateway(10_000, nil)
	p.SetSymbolSpec(types.SymbolSpec{
		Symbol:       "EURUSD",
		Point:        0.0001,
		ContractSize: 1,
		VolumeMin:    0.01,
		VolumeMax:    100,
		VolumeStep:   0.01,
	})
	p.SetQuote("EURUSD", 1.1000, 1.1002)
	return p
}

func TestPaperOpenCloseRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := seededPaper(t)

	pos, err := p.OpenPosition(ctx, types.OpenRequest{
		Symbol: "EURUSD", Side: types.Buy, Volume: 1, Magic: 234000,
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if pos.EntryPrice != 1.1002 { // long fills at the ask
		t.Fatalf("unexpected entry %v", pos.EntryPrice)
	}

	p.SetQuote("EURUSD", 1.1052, 1.1054)
	if err := p.ClosePosition(ctx, "EURUSD"); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	acct, err := p.AccountInfo(ctx)
	if err != nil {
		t.Fatalf("account failed: %v", err)
	}
	want := 10_000 + (1.1052-1.1002)*1*1
	if acct.Balance != want {
		t.Fatalf("expected balance %v, got %v", want, acct.Balance)
	}
	positions, _ := p.Positions(ctx)
	if len(positions) != 0 {
		t.Fatalf("expected flat book, got %d positions", len(positions))
	}
}

func TestPaperRejectsSecondPosition(t *testing.T) {
	ctx := context.Background()
	p := seededPaper(t)
	if _, err := p.OpenPosition(ctx, types.OpenRequest{Symbol: "EURUSD", Side: types.Buy, Volume: 1}); err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	_, err := p.OpenPosition(ctx, types.OpenRequest{Symbol: "EURUSD", Side: types.Sell, Volume: 1})
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
}

func TestPaperSpreadInPoints(t *testing.T) {
	ctx := context.Background()
	p := seededPaper(t)
	spread, err := p.Spread(ctx, "EURUSD")
	if err != nil {
		t.Fatalf("spread failed: %v", err)
	}
	// (1.1002-1.1000)/0.0001 = 2 points, allow float wiggle.
	if spread < 1.99 || spread > 2.01 {
		t.Fatalf("expected ~2 points, got %v", spread)
	}
}

func TestPaperModifyStop(t *testing.T) {
	ctx := context.Background()
	p := seededPaper(t)
	if _, err := p.OpenPosition(ctx, types.OpenRequest{Symbol: "EURUSD", Side: types.Buy, Volume: 1}); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := p.ModifyStop(ctx, "EURUSD", 1.0990); err != nil {
		t.Fatalf("modify failed: %v", err)
	}
	positions, _ := p.Positions(ctx)
	if len(positions) != 1 || positions[0].StopPrice != 1.0990 {
		t.Fatalf("stop not applied: %+v", positions)
	}
}

func TestPaperBarsUnavailable(t *testing.T) {
	ctx := context.Background()
	p := seededPaper(t)
	if _, err := p.Bars(ctx, "GBPUSD", types.H1, 10); !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestPaperBarsWindow(t *testing.T) {
	ctx := context.Background()
	p := seededPaper(t)
	bars := make([]types.Bar, 30)
	for i := range bars {
		bars[i].Close = float64(i)
	}
	p.SeedBars("EURUSD", bars)
	got, err := p.Bars(ctx, "EURUSD", types.H1, 10)
	if err != nil {
		t.Fatalf("bars failed: %v", err)
	}
	if len(got) != 10 || got[9].Close != 29 {
		t.Fatalf("expected the 10 most recent bars ending at 29, got %d ending %v", len(got), got[len(got)-1].Close)
	}
}
