// Package journal persists closed trades to SQLite and derives the
// performance statistics reported at shutdown.
package journal

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/evdnx/trendbot/logger"
)

// TradeRecord is one completed round trip as reported by the gateway.
type TradeRecord struct {
	ID         uint      `gorm:"primaryKey"`
	ClosedAt   time.Time `gorm:"index"`
	Symbol     string    `gorm:"index"`
	Side       string
	Volume     float64
	EntryPrice float64
	ExitPrice  float64
	Profit     float64 // realized P/L in account currency
	Pips       float64 // signed distance in points
	Balance    float64 // account balance after the trade
	Ticket     int64
	Magic      int64
	Comment    string
}

// balanceSnapshot pins the balance at the start of the run so total return
// and drawdown survive restarts.
type balanceSnapshot struct {
	ID      uint `gorm:"primaryKey"`
	Balance float64
	SetAt   time.Time
}

// Stats is the aggregate view over every recorded trade.
type Stats struct {
	TotalTrades          int
	WinningTrades        int
	LosingTrades         int
	WinRate              float64 // percent
	TotalProfit          float64
	TotalPips            float64
	AvgProfit            float64
	MaxProfit            float64
	MaxLoss              float64
	ProfitFactor         float64 // +Inf when no losing trades
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	MaxDrawdown          float64 // percent, from the peak balance
	SharpeRatio          float64 // annualized over per-trade returns
	FinalBalance         float64
	TotalReturn          float64 // percent over the initial balance
}

// Journal owns the SQLite trade log.
type Journal struct {
	db *gorm.DB
}

// Open creates the database file (and its directory) if needed and runs the
// schema migration.
func Open(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal: path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal: create dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	if err := db.AutoMigrate(&TradeRecord{}, &balanceSnapshot{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite with a single writer: keep the pool tiny.
	sqlDB.SetMaxOpenConns(1)
	return &Journal{db: db}, nil
}

// Close closes the underlying connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SetInitialBalance records the starting balance once; later calls are
// no-ops so restarts keep the original baseline.
func (j *Journal) SetInitialBalance(ctx context.Context, balance float64) error {
	snap := balanceSnapshot{ID: 1, Balance: balance, SetAt: time.Now().UTC()}
	return j.db.WithContext(ctx).
		Where(balanceSnapshot{ID: 1}).
		Attrs(snap).
		FirstOrCreate(&snap).Error
}

// Record appends one closed trade.
func (j *Journal) Record(ctx context.Context, rec TradeRecord) error {
	if rec.ClosedAt.IsZero() {
		rec.ClosedAt = time.Now().UTC()
	}
	return j.db.WithContext(ctx).Create(&rec).Error
}

// Stats recomputes the aggregate statistics from every stored trade,
// ordered by close time.
func (j *Journal) Stats(ctx context.Context) (Stats, error) {
	var trades []TradeRecord
	err := j.db.WithContext(ctx).Order("closed_at asc, id asc").Find(&trades).Error
	if err != nil {
		return Stats{}, err
	}
	if len(trades) == 0 {
		return Stats{}, nil
	}

	var initial balanceSnapshot
	if err := j.db.WithContext(ctx).First(&initial, 1).Error; err != nil {
		// No snapshot: reconstruct the baseline from the first trade.
		initial.Balance = trades[0].Balance - trades[0].Profit
	}

	s := Stats{
		TotalTrades:  len(trades),
		MaxLoss:      math.Inf(1),
		MaxProfit:    math.Inf(-1),
		FinalBalance: trades[len(trades)-1].Balance,
	}

	var grossWin, grossLoss, pips float64
	var curWins, curLosses int
	peak := initial.Balance
	for _, t := range trades {
		s.TotalProfit += t.Profit
		pips += t.Pips
		s.MaxProfit = math.Max(s.MaxProfit, t.Profit)
		s.MaxLoss = math.Min(s.MaxLoss, t.Profit)
		if t.Profit > 0 {
			s.WinningTrades++
			grossWin += t.Profit
			curWins++
			curLosses = 0
			if curWins > s.MaxConsecutiveWins {
				s.MaxConsecutiveWins = curWins
			}
		} else {
			if t.Profit < 0 {
				s.LosingTrades++
				grossLoss -= t.Profit
			}
			curLosses++
			curWins = 0
			if curLosses > s.MaxConsecutiveLosses {
				s.MaxConsecutiveLosses = curLosses
			}
		}
		if t.Balance > peak {
			peak = t.Balance
		}
		if peak > 0 {
			dd := (peak - t.Balance) / peak * 100
			if dd > s.MaxDrawdown {
				s.MaxDrawdown = dd
			}
		}
	}

	s.TotalPips = pips
	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	s.AvgProfit = s.TotalProfit / float64(s.TotalTrades)
	if grossLoss > 0 {
		s.ProfitFactor = grossWin / grossLoss
	} else {
		s.ProfitFactor = math.Inf(1)
	}
	s.SharpeRatio = sharpe(trades)
	if initial.Balance > 0 {
		s.TotalReturn = (s.FinalBalance - initial.Balance) / initial.Balance * 100
	}
	return s, nil
}

// sharpe annualizes the mean/stddev of per-trade balance returns with the
// usual sqrt(252) factor. Fewer than two trades yields zero.
func sharpe(trades []TradeRecord) float64 {
	if len(trades) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(trades)-1)
	for i := 1; i < len(trades); i++ {
		prev := trades[i-1].Balance
		if prev == 0 {
			return 0
		}
		returns = append(returns, (trades[i].Balance-prev)/prev)
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(252)
}

// LogSummary writes the statistics through the structured logger, one entry
// for the whole run.
func (j *Journal) LogSummary(ctx context.Context, log logger.Logger) {
	s, err := j.Stats(ctx)
	if err != nil {
		log.Error("journal_stats_failed", logger.Err(err))
		return
	}
	if s.TotalTrades == 0 {
		log.Info("no_trades_recorded")
		return
	}
	log.Info("performance_summary",
		logger.Int("total_trades", s.TotalTrades),
		logger.Int("winning_trades", s.WinningTrades),
		logger.Int("losing_trades", s.LosingTrades),
		logger.Float64("win_rate_pct", s.WinRate),
		logger.Float64("total_profit", s.TotalProfit),
		logger.Float64("total_pips", s.TotalPips),
		logger.Float64("profit_factor", s.ProfitFactor),
		logger.Float64("max_drawdown_pct", s.MaxDrawdown),
		logger.Float64("sharpe_ratio", s.SharpeRatio),
		logger.Int("max_consecutive_wins", s.MaxConsecutiveWins),
		logger.Int("max_consecutive_losses", s.MaxConsecutiveLosses),
		logger.Float64("final_balance", s.FinalBalance),
		logger.Float64("total_return_pct", s.TotalReturn),
	)
}
