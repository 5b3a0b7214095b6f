package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads a YAML (or JSON/TOML) config file, applies defaults and
// environment overrides (TRENDBOT_*), and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("TRENDBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "paper")
	v.SetDefault("paper_balance", 10000)
	v.SetDefault("bridge.timeout_seconds", 15)

	v.SetDefault("trading.symbols", []string{"EURUSD"})
	v.SetDefault("trading.risk_percent", 1.0)
	v.SetDefault("trading.max_spread_points", 30)
	v.SetDefault("trading.stop_loss_points", 500)
	v.SetDefault("trading.take_profit_points", 1000)
	v.SetDefault("trading.enable_trailing_stop", true)
	v.SetDefault("trading.trailing_activation_points", 200)
	v.SetDefault("trading.trailing_distance_points", 150)
	v.SetDefault("trading.poll_interval_seconds", 300)
	v.SetDefault("trading.deviation_points", 20)
	v.SetDefault("trading.magic", 234000)

	v.SetDefault("strategy.fast_period", 50)
	v.SetDefault("strategy.slow_period", 200)
	v.SetDefault("strategy.ma_type", "sma")
	v.SetDefault("strategy.timeframe", "H1")

	v.SetDefault("filters.use_volume_filter", false)
	v.SetDefault("filters.min_volume", 1000)
	v.SetDefault("filters.use_rsi_filter", false)
	v.SetDefault("filters.rsi_overbought", 70)
	v.SetDefault("filters.rsi_oversold", 30)

	v.SetDefault("atr.enabled", false)
	v.SetDefault("atr.period", 14)
	v.SetDefault("atr.stop_multiplier", 2)
	v.SetDefault("atr.tp_multiplier", 3)
	v.SetDefault("atr.trailing_multiplier", 1.5)

	v.SetDefault("journal.path", "trendbot.db")
	v.SetDefault("telemetry.metrics_addr", "")
	v.SetDefault("log.file", "trendbot.log")
}
