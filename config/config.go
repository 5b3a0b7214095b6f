package config

import (
	"errors"
	"fmt"

	"github.com/evdnx/trendbot/types"
)

// Config is the full configuration tree. It is loaded once at startup and
// treated as immutable for the lifetime of the run.
type Config struct {
	Mode         string          `mapstructure:"mode"`          // "live" or "paper"
	PaperBalance float64         `mapstructure:"paper_balance"` // starting balance in paper mode
	Bridge       BridgeConfig    `mapstructure:"bridge"`
	Trading      TradingConfig   `mapstructure:"trading"`
	Strategy     StrategyConfig  `mapstructure:"strategy"`
	Filters      FilterConfig    `mapstructure:"filters"`
	ATR          ATRConfig       `mapstructure:"atr"`
	Journal      JournalConfig   `mapstructure:"journal"`
	Telemetry    TelemetryConfig `mapstructure:"telemetry"`
	Log          LogConfig       `mapstructure:"log"`
}

// BridgeConfig points at the local REST bridge in front of the MT5 terminal.
type BridgeConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// TradingConfig holds the venue-facing trade parameters. All distances are
// expressed in points (multiples of the instrument's Point).
type TradingConfig struct {
	Symbols             []string `mapstructure:"symbols"`
	RiskPercent         float64  `mapstructure:"risk_percent"`
	MaxSpreadPoints     float64  `mapstructure:"max_spread_points"`
	StopLossPoints      float64  `mapstructure:"stop_loss_points"`
	TakeProfitPoints    float64  `mapstructure:"take_profit_points"`
	EnableTrailing      bool     `mapstructure:"enable_trailing_stop"`
	TrailingActivation  float64  `mapstructure:"trailing_activation_points"`
	TrailingDistance    float64  `mapstructure:"trailing_distance_points"`
	PollIntervalSeconds int      `mapstructure:"poll_interval_seconds"`
	DeviationPoints     int      `mapstructure:"deviation_points"`
	Magic               int64    `mapstructure:"magic"`
}

// StrategyConfig selects the crossover pair.
type StrategyConfig struct {
	FastPeriod int    `mapstructure:"fast_period"`
	SlowPeriod int    `mapstructure:"slow_period"`
	MAType     string `mapstructure:"ma_type"` // "sma" or "ema"
	Timeframe  string `mapstructure:"timeframe"`
}

// FilterConfig gates signals on RSI and tick volume.
type FilterConfig struct {
	UseVolume     bool    `mapstructure:"use_volume_filter"`
	MinVolume     float64 `mapstructure:"min_volume"`
	UseRSI        bool    `mapstructure:"use_rsi_filter"`
	RSIOverbought float64 `mapstructure:"rsi_overbought"`
	RSIOversold   float64 `mapstructure:"rsi_oversold"`
}

// ATRConfig optionally replaces the fixed point distances with ATR multiples.
type ATRConfig struct {
	Enabled              bool    `mapstructure:"enabled"`
	Period               int     `mapstructure:"period"`
	StopMultiplier       float64 `mapstructure:"stop_multiplier"`
	TakeProfitMultiplier float64 `mapstructure:"tp_multiplier"`
	TrailingMultiplier   float64 `mapstructure:"trailing_multiplier"`
}

// JournalConfig locates the sqlite trade journal.
type JournalConfig struct {
	Path string `mapstructure:"path"` // empty = journaling disabled
}

// TelemetryConfig exposes prometheus metrics.
type TelemetryConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr"` // empty = no endpoint
}

// LogConfig controls the optional rotated log file.
type LogConfig struct {
	File string `mapstructure:"file"`
}

// Validate checks every numeric bound and returns the first violation, so a
// misconfiguration surfaces before any trading starts.
func (c *Config) Validate() error {
	if c.Mode != "live" && c.Mode != "paper" {
		return fmt.Errorf("mode (%q) must be \"live\" or \"paper\"", c.Mode)
	}
	if c.Mode == "live" && c.Bridge.URL == "" {
		return errors.New("bridge.url is required in live mode")
	}
	if c.Mode == "paper" && c.PaperBalance <= 0 {
		return errors.New("paper_balance must be positive in paper mode")
	}
	if len(c.Trading.Symbols) == 0 {
		return errors.New("trading.symbols cannot be empty")
	}
	if c.Trading.RiskPercent <= 0 || c.Trading.RiskPercent > 100 {
		return fmt.Errorf("trading.risk_percent (%f) must be >0 and <=100", c.Trading.RiskPercent)
	}
	if c.Trading.MaxSpreadPoints < 0 {
		return errors.New("trading.max_spread_points cannot be negative")
	}
	if c.Trading.StopLossPoints <= 0 {
		return errors.New("trading.stop_loss_points must be positive")
	}
	if c.Trading.TakeProfitPoints < 0 {
		return errors.New("trading.take_profit_points cannot be negative")
	}
	if c.Trading.EnableTrailing {
		if c.Trading.TrailingActivation <= 0 {
			return errors.New("trading.trailing_activation_points must be positive when trailing is enabled")
		}
		if c.Trading.TrailingDistance <= 0 {
			return errors.New("trading.trailing_distance_points must be positive when trailing is enabled")
		}
	}
	if c.Trading.PollIntervalSeconds <= 0 {
		return errors.New("trading.poll_interval_seconds must be positive")
	}
	if c.Trading.DeviationPoints < 0 {
		return errors.New("trading.deviation_points cannot be negative")
	}
	if c.Trading.Magic <= 0 {
		return errors.New("trading.magic must be positive")
	}
	if c.Strategy.FastPeriod <= 0 {
		return errors.New("strategy.fast_period must be positive")
	}
	if c.Strategy.SlowPeriod <= c.Strategy.FastPeriod {
		return fmt.Errorf("strategy.slow_period (%d) must exceed fast_period (%d)",
			c.Strategy.SlowPeriod, c.Strategy.FastPeriod)
	}
	if c.Strategy.MAType != "sma" && c.Strategy.MAType != "ema" {
		return fmt.Errorf("strategy.ma_type (%q) must be \"sma\" or \"ema\"", c.Strategy.MAType)
	}
	if _, ok := types.ParseTimeframe(c.Strategy.Timeframe); !ok {
		return fmt.Errorf("strategy.timeframe (%q) is not a valid timeframe", c.Strategy.Timeframe)
	}
	if c.Filters.UseRSI && c.Filters.RSIOverbought <= c.Filters.RSIOversold {
		return errors.New("filters.rsi_overbought must exceed rsi_oversold")
	}
	if c.Filters.UseVolume && c.Filters.MinVolume < 0 {
		return errors.New("filters.min_volume cannot be negative")
	}
	if c.ATR.Enabled {
		if c.ATR.Period <= 1 {
			return errors.New("atr.period must be >1 when ATR distances are enabled")
		}
		if c.ATR.StopMultiplier <= 0 {
			return errors.New("atr.stop_multiplier must be positive")
		}
		if c.ATR.TakeProfitMultiplier < 0 {
			return errors.New("atr.tp_multiplier cannot be negative")
		}
		if c.ATR.TrailingMultiplier < 0 {
			return errors.New("atr.trailing_multiplier cannot be negative")
		}
	}
	return nil
}

// AggregateRiskExceeded reports whether the per-symbol risk percent summed
// over all symbols exceeds 100% of equity. There is no aggregate risk cap in
// this design; callers should surface this as a configuration warning.
func (c *Config) AggregateRiskExceeded() bool {
	return c.Trading.RiskPercent*float64(len(c.Trading.Symbols)) > 100
}

// BarFetchCount returns the number of bars requested per cycle: the slow
// period plus headroom for the previous-bar comparison and ATR warmup.
func (c *Config) BarFetchCount() int {
	return c.Strategy.SlowPeriod + 50
}
