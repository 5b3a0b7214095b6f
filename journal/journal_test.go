package journal

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j, path
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s: expected %v, got %v", name, want, got)
	}
}

func TestJournal_EmptyStats(t *testing.T) {
	j, _ := openTestJournal(t)
	s, err := j.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.TotalTrades != 0 {
		t.Fatalf("expected zero trades, got %d", s.TotalTrades)
	}
}

func TestJournal_StatsRoundTrip(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()

	if err := j.SetInitialBalance(ctx, 10000); err != nil {
		t.Fatalf("SetInitialBalance: %v", err)
	}

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	trades := []TradeRecord{
		{ClosedAt: base, Symbol: "EURUSD", Side: "BUY", Profit: 100, Pips: 50, Balance: 10100},
		{ClosedAt: base.Add(time.Hour), Symbol: "EURUSD", Side: "SELL", Profit: -50, Pips: -25, Balance: 10050},
		{ClosedAt: base.Add(2 * time.Hour), Symbol: "GBPUSD", Side: "BUY", Profit: 200, Pips: 80, Balance: 10250},
	}
	for _, tr := range trades {
		if err := j.Record(ctx, tr); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	s, err := j.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.TotalTrades != 3 || s.WinningTrades != 2 || s.LosingTrades != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	approx(t, "win rate", s.WinRate, 200.0/3)
	approx(t, "total profit", s.TotalProfit, 250)
	approx(t, "total pips", s.TotalPips, 105)
	approx(t, "profit factor", s.ProfitFactor, 6) // 300 won vs 50 lost
	approx(t, "max profit", s.MaxProfit, 200)
	approx(t, "max loss", s.MaxLoss, -50)
	if s.MaxConsecutiveWins != 1 || s.MaxConsecutiveLosses != 1 {
		t.Fatalf("unexpected streaks: %+v", s)
	}
	// Peak 10100, trough 10050.
	approx(t, "max drawdown", s.MaxDrawdown, (10100.0-10050.0)/10100.0*100)
	approx(t, "final balance", s.FinalBalance, 10250)
	approx(t, "total return", s.TotalReturn, 2.5)
	if s.SharpeRatio == 0 {
		t.Fatal("expected a nonzero sharpe ratio for a non-constant return series")
	}
}

func TestJournal_ProfitFactorWithoutLosses(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()
	if err := j.Record(ctx, TradeRecord{Symbol: "EURUSD", Profit: 100, Balance: 10100}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	s, err := j.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if !math.IsInf(s.ProfitFactor, 1) {
		t.Fatalf("expected +Inf profit factor, got %v", s.ProfitFactor)
	}
}

func TestJournal_InitialBalanceIsSticky(t *testing.T) {
	j, _ := openTestJournal(t)
	ctx := context.Background()
	if err := j.SetInitialBalance(ctx, 10000); err != nil {
		t.Fatalf("SetInitialBalance: %v", err)
	}
	// A restart must not move the baseline.
	if err := j.SetInitialBalance(ctx, 99999); err != nil {
		t.Fatalf("SetInitialBalance again: %v", err)
	}
	if err := j.Record(ctx, TradeRecord{Symbol: "EURUSD", Profit: 500, Balance: 10500}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	s, err := j.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	approx(t, "total return", s.TotalReturn, 5)
}

func TestJournal_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := j.Record(ctx, TradeRecord{Symbol: "EURUSD", Profit: 100, Balance: 10100}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	j2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j2.Close()
	s, err := j2.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.TotalTrades != 1 {
		t.Fatalf("expected the trade to survive a reopen, got %d", s.TotalTrades)
	}
}
