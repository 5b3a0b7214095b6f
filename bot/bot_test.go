package bot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/evdnx/trendbot/config"
	"github.com/evdnx/trendbot/journal"
	"github.com/evdnx/trendbot/strategy"
	"github.com/evdnx/trendbot/testutils"
	"github.com/evdnx/trendbot/types"
)

var goldenCloses = []float64{10, 9, 8, 7, 6, 9, 12}
var deathCloses = []float64{6, 7, 8, 9, 10, 7, 4}
var flatCloses = []float64{10, 10, 10, 10, 10, 10, 10}

func makeBars(closes []float64) []types.Bar {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, len(closes))
	for i, c := range closes {
		bars[i] = types.Bar{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   c,
			High:   c + 0.5,
			Low:    c - 0.5,
			Close:  c,
			Volume: 1500,
		}
	}
	return bars
}

func buildConfig() config.Config {
	return config.Config{
		Mode:         "paper",
		PaperBalance: 10000,
		Trading: config.TradingConfig{
			Symbols:             []string{"EURUSD"},
			RiskPercent:         1.0,
			MaxSpreadPoints:     20,
			StopLossPoints:      50,
			TakeProfitPoints:    100,
			PollIntervalSeconds: 1,
			DeviationPoints:     20,
			Magic:               234000,
		},
		Strategy: config.StrategyConfig{
			FastPeriod: 3,
			SlowPeriod: 5,
			MAType:     "sma",
			Timeframe:  "H1",
		},
	}
}

func buildBot(t *testing.T, cfg config.Config, jrnl *journal.Journal) (*Bot, *testutils.MockGateway, *testutils.MockLogger) {
	t.Helper()
	gw := testutils.NewMockGateway(10000)
	gw.SetSymbolSpec(types.SymbolSpec{
		Symbol:       "EURUSD",
		Point:        0.0001,
		ContractSize: 100000,
		VolumeMin:    0.01,
		VolumeMax:    100,
		VolumeStep:   0.01,
	})
	gw.SetQuote("EURUSD", 1.1000, 1.1002)
	log := testutils.NewMockLogger()
	strat, err := strategy.NewTrendCross(cfg, gw, log)
	if err != nil {
		t.Fatalf("NewTrendCross: %v", err)
	}
	b, err := New(cfg, gw, strat, jrnl, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b, gw, log
}

func TestBot_NewRejectsUnknownTimeframe(t *testing.T) {
	cfg := buildConfig()
	gw := testutils.NewMockGateway(10000)
	log := testutils.NewMockLogger()
	strat, err := strategy.NewTrendCross(cfg, gw, log)
	if err != nil {
		t.Fatalf("NewTrendCross: %v", err)
	}

	cfg.Strategy.Timeframe = "M7"
	if _, err := New(cfg, gw, strat, nil, log); err == nil {
		t.Fatal("expected an error for an unknown timeframe")
	}
}

func TestBot_CycleOpensOnGoldenCross(t *testing.T) {
	b, gw, _ := buildBot(t, buildConfig(), nil)
	gw.SeedBars("EURUSD", makeBars(goldenCloses))

	b.runCycle(context.Background())

	opens := gw.Opens()
	if len(opens) != 1 || opens[0].Side != types.Buy {
		t.Fatalf("expected one BUY open, got %v", opens)
	}
}

func TestBot_SkipsSymbolWithoutBars(t *testing.T) {
	b, gw, log := buildBot(t, buildConfig(), nil)
	// no bars seeded

	b.runCycle(context.Background())

	if len(gw.Opens()) != 0 {
		t.Fatalf("expected no opens without data, got %d", len(gw.Opens()))
	}
	if !log.Contains("bars_unavailable") {
		t.Fatalf("expected bars_unavailable log, got %v", log.Messages())
	}
}

func TestBot_TrailingStopMoves(t *testing.T) {
	cfg := buildConfig()
	cfg.Trading.EnableTrailing = true
	cfg.Trading.TrailingActivation = 10
	cfg.Trading.TrailingDistance = 15
	b, gw, _ := buildBot(t, cfg, nil)

	gw.SeedBars("EURUSD", makeBars(flatCloses))
	gw.SeedPosition(types.Position{
		Ticket:     1,
		Symbol:     "EURUSD",
		Side:       types.Buy,
		Volume:     0.2,
		EntryPrice: 1.1000,
		StopPrice:  1.0950,
		Magic:      234000,
	})
	gw.SetQuote("EURUSD", 1.1100, 1.1102) // 100 points in profit

	b.runCycle(context.Background())

	mods := gw.StopMods()
	if len(mods) != 1 {
		t.Fatalf("expected one stop modification, got %d", len(mods))
	}
	if want := 1.1100 - 15*0.0001; mods[0].Stop != want {
		t.Fatalf("expected stop %f, got %f", want, mods[0].Stop)
	}
}

func TestBot_TrailingInactiveBelowActivation(t *testing.T) {
	cfg := buildConfig()
	cfg.Trading.EnableTrailing = true
	cfg.Trading.TrailingActivation = 200
	cfg.Trading.TrailingDistance = 15
	b, gw, _ := buildBot(t, cfg, nil)

	gw.SeedBars("EURUSD", makeBars(flatCloses))
	gw.SeedPosition(types.Position{
		Ticket:     1,
		Symbol:     "EURUSD",
		Side:       types.Buy,
		Volume:     0.2,
		EntryPrice: 1.1000,
		StopPrice:  1.0950,
		Magic:      234000,
	})
	gw.SetQuote("EURUSD", 1.1100, 1.1102) // only 100 points, needs 200

	b.runCycle(context.Background())

	if len(gw.StopMods()) != 0 {
		t.Fatalf("expected no stop modification, got %v", gw.StopMods())
	}
}

func TestBot_JournalsExternalClose(t *testing.T) {
	jrnl, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer jrnl.Close()

	b, gw, _ := buildBot(t, buildConfig(), jrnl)
	gw.SeedBars("EURUSD", makeBars(flatCloses))
	gw.SeedPosition(types.Position{
		Ticket:     42,
		Symbol:     "EURUSD",
		Side:       types.Buy,
		Volume:     0.2,
		EntryPrice: 1.1000,
		Profit:     120,
		Magic:      234000,
	})

	ctx := context.Background()
	b.runCycle(ctx) // position observed

	// The stop is hit at the terminal between polls.
	if err := gw.ClosePosition(ctx, "EURUSD"); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	b.runCycle(ctx) // disappearance detected

	s, err := jrnl.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.TotalTrades != 1 {
		t.Fatalf("expected one journaled trade, got %d", s.TotalTrades)
	}
	if s.TotalProfit != 120 {
		t.Fatalf("expected profit 120, got %f", s.TotalProfit)
	}
}

func TestBot_JournalsReversalClose(t *testing.T) {
	jrnl, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer jrnl.Close()

	b, gw, _ := buildBot(t, buildConfig(), jrnl)
	gw.SeedBars("EURUSD", makeBars(deathCloses))
	gw.SeedPosition(types.Position{
		Ticket:     42,
		Symbol:     "EURUSD",
		Side:       types.Buy,
		Volume:     0.2,
		EntryPrice: 1.1000,
		Profit:     85,
		Magic:      234000,
	})

	ctx := context.Background()
	b.runCycle(ctx) // long observed, death cross closes it and opens a short
	b.runCycle(ctx) // same symbol now holds a different ticket

	closes := gw.Closes()
	if len(closes) != 1 || closes[0] != "EURUSD" {
		t.Fatalf("expected one reversal close, got %v", closes)
	}
	opens := gw.Opens()
	if len(opens) != 1 || opens[0].Side != types.Sell {
		t.Fatalf("expected one SELL open, got %v", opens)
	}

	s, err := jrnl.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.TotalTrades != 1 {
		t.Fatalf("expected the closed long to be journaled, got %d trades", s.TotalTrades)
	}
	if s.TotalProfit != 85 {
		t.Fatalf("expected profit 85, got %f", s.TotalProfit)
	}
}

func TestBot_IgnoresForeignMagic(t *testing.T) {
	b, gw, _ := buildBot(t, buildConfig(), nil)
	gw.SeedBars("EURUSD", makeBars(flatCloses))
	gw.SeedPosition(types.Position{
		Ticket:     7,
		Symbol:     "EURUSD",
		Side:       types.Buy,
		Volume:     1,
		EntryPrice: 1.1000,
		Magic:      999, // someone else's position
	})

	b.runCycle(context.Background())

	if len(b.lastPositions) != 0 {
		t.Fatalf("foreign-magic positions must not be tracked, got %v", b.lastPositions)
	}
}

func TestBot_RunStopsOnCancel(t *testing.T) {
	b, gw, _ := buildBot(t, buildConfig(), nil)
	gw.SeedBars("EURUSD", makeBars(goldenCloses))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := b.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The first cycle runs before the first tick.
	if len(gw.Opens()) != 1 {
		t.Fatalf("expected the immediate first cycle to trade, got %d opens", len(gw.Opens()))
	}
}
