package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evdnx/trendbot/bot"
	"github.com/evdnx/trendbot/config"
	"github.com/evdnx/trendbot/gateway"
	"github.com/evdnx/trendbot/journal"
	"github.com/evdnx/trendbot/logger"
	"github.com/evdnx/trendbot/metrics"
	"github.com/evdnx/trendbot/strategy"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "trendbot:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg := *loaded

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	if cfg.AggregateRiskExceeded() {
		log.Warn("aggregate_risk_exceeds_equity",
			logger.Float64("risk_percent", cfg.Trading.RiskPercent),
			logger.Int("symbols", len(cfg.Trading.Symbols)),
		)
	}

	if cfg.Telemetry.MetricsAddr != "" {
		srv := metrics.Serve(cfg.Telemetry.MetricsAddr)
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()
		log.Info("metrics_listening", logger.String("addr", cfg.Telemetry.MetricsAddr))
	}

	gw, err := newGateway(cfg)
	if err != nil {
		return err
	}

	var jrnl *journal.Journal
	if cfg.Journal.Path != "" {
		jrnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer jrnl.Close()
	}

	strat, err := strategy.NewTrendCross(cfg, gw, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("trendbot_started",
		logger.String("mode", cfg.Mode),
		logger.String("timeframe", cfg.Strategy.Timeframe),
		logger.Int("fast_period", cfg.Strategy.FastPeriod),
		logger.Int("slow_period", cfg.Strategy.SlowPeriod),
		logger.String("ma_type", cfg.Strategy.MAType),
	)

	b, err := bot.New(cfg, gw, strat, jrnl, log)
	if err != nil {
		return err
	}
	err = b.Run(ctx)

	if jrnl != nil {
		jrnl.LogSummary(context.Background(), log)
	}
	log.Info("trendbot_stopped")
	return err
}

func newLogger(cfg config.Config) (logger.Logger, error) {
	if cfg.Log.File != "" {
		return logger.NewFileLogger(cfg.Log.File)
	}
	return logger.NewZapLogger()
}

// newGateway selects the venue. Paper mode still uses the bridge for market
// data when one is configured, so simulated fills track live quotes.
func newGateway(cfg config.Config) (bot.Gateway, error) {
	if cfg.Mode == "live" {
		return gateway.NewBridgeGateway(cfg.Bridge)
	}
	var md gateway.MarketData
	if cfg.Bridge.URL != "" {
		bridge, err := gateway.NewBridgeGateway(cfg.Bridge)
		if err != nil {
			return nil, err
		}
		md = bridge
	}
	return gateway.NewPaperGateway(cfg.PaperBalance, md), nil
}
