package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rewired-gh/mvrvdca/internal/models"
	"github.com/rewired-gh/mvrvdca/internal/momentum"
)

// Config represents the complete application configuration
type Config struct {
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AnalyzerConfig holds the momentum analyzer periods, thresholds and sizing table
type AnalyzerConfig struct {
	EMAPeriod    int                   `mapstructure:"ema_period"`
	SlopePeriod  int                   `mapstructure:"slope_period"`
	ThresholdLow float64               `mapstructure:"threshold_low"`
	ThresholdHi  float64               `mapstructure:"threshold_high"`
	SlopeBull    float64               `mapstructure:"slope_bull"`
	SlopeFlatNeg float64               `mapstructure:"slope_flat_neg"`
	SlopeFlatPos float64               `mapstructure:"slope_flat_pos"`
	SlopeBear    float64               `mapstructure:"slope_bear"`
	ZNorm        float64               `mapstructure:"z_norm"`
	MaxSellRate  float64               `mapstructure:"max_sell_rate"`
	Rates        map[string]RateConfig `mapstructure:"rates"` // keyed by phase name
}

// RateConfig is the base rate and momentum multiplier of one priced phase
type RateConfig struct {
	Base       float64 `mapstructure:"base"`
	Multiplier float64 `mapstructure:"multiplier"`
}

// FeedConfig holds the input feed location
type FeedConfig struct {
	Path         string        `mapstructure:"path"`
	PollInterval time.Duration `mapstructure:"poll_interval"` // 0 processes the file once
}

// MonitorConfig holds phase-change signalling behaviour
type MonitorConfig struct {
	Advisory        bool     `mapstructure:"advisory"`
	NotifyPhases    []string `mapstructure:"notify_phases"`
	CooldownSamples int      `mapstructure:"cooldown_samples"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	Enabled  bool   `mapstructure:"enabled"`
}

// JournalConfig holds result journal configuration
type JournalConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	DBPath   string `mapstructure:"db_path"`
	KeepRuns int    `mapstructure:"keep_runs"`
}

// MetricsConfig holds Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// BacktestConfig holds DCA-out replay parameters
type BacktestConfig struct {
	InitialCapital  float64 `mapstructure:"initial_capital"`
	PeriodicInvest  float64 `mapstructure:"periodic_investment"`
	InvestEvery     int     `mapstructure:"invest_every"`
	CoreRatio       float64 `mapstructure:"core_ratio"`
	FeeRate         float64 `mapstructure:"fee_rate"`
	MinSellFraction float64 `mapstructure:"min_sell_fraction"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("MVRVDCA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	d := momentum.DefaultConfig()

	// Analyzer defaults
	v.SetDefault("analyzer.ema_period", d.EMAPeriod)
	v.SetDefault("analyzer.slope_period", d.SlopePeriod)
	v.SetDefault("analyzer.threshold_low", d.Thresholds.Low)
	v.SetDefault("analyzer.threshold_high", d.Thresholds.High)
	v.SetDefault("analyzer.slope_bull", d.Thresholds.SlopeBull)
	v.SetDefault("analyzer.slope_flat_neg", d.Thresholds.SlopeFlatNeg)
	v.SetDefault("analyzer.slope_flat_pos", d.Thresholds.SlopeFlatPos)
	v.SetDefault("analyzer.slope_bear", d.Thresholds.SlopeBear)
	v.SetDefault("analyzer.z_norm", d.ZNorm)
	v.SetDefault("analyzer.max_sell_rate", d.MaxSellRate)
	rates := make(map[string]interface{}, len(d.Rates))
	for phase, r := range d.Rates {
		rates[string(phase)] = map[string]interface{}{"base": r.Base, "multiplier": r.Multiplier}
	}
	v.SetDefault("analyzer.rates", rates)

	// Feed defaults
	v.SetDefault("feed.path", "")
	v.SetDefault("feed.poll_interval", "0s")

	// Monitor defaults
	v.SetDefault("monitor.advisory", true)
	v.SetDefault("monitor.notify_phases", []string{
		string(models.PhaseRapidAscent),
		string(models.PhasePlateau),
		string(models.PhaseDecline),
	})
	v.SetDefault("monitor.cooldown_samples", 7)

	// Journal defaults
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.db_path", "")
	v.SetDefault("journal.keep_runs", 50)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9108")

	// Backtest defaults
	v.SetDefault("backtest.initial_capital", 10000.0)
	v.SetDefault("backtest.periodic_investment", 250.0)
	v.SetDefault("backtest.invest_every", 7)
	v.SetDefault("backtest.core_ratio", 0.4)
	v.SetDefault("backtest.fee_rate", 0.001)
	v.SetDefault("backtest.min_sell_fraction", 0.0)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Analyzer config
	if err := c.AnalyzerConfig().Validate(); err != nil {
		return fmt.Errorf("analyzer: %w", err)
	}
	for name := range c.Analyzer.Rates {
		if _, ok := parsePhase(name); !ok {
			return fmt.Errorf("analyzer.rates: unknown phase %q", name)
		}
	}

	// Validate Feed config
	if c.Feed.PollInterval < 0 {
		return fmt.Errorf("feed.poll_interval must not be negative")
	}

	// Validate Monitor config
	for _, name := range c.Monitor.NotifyPhases {
		if _, ok := parsePhase(name); !ok {
			return fmt.Errorf("monitor.notify_phases: unknown phase %q", name)
		}
	}
	if c.Monitor.CooldownSamples < 0 {
		return fmt.Errorf("monitor.cooldown_samples must not be negative")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Journal config
	if c.Journal.Enabled && c.Journal.KeepRuns < 1 {
		return fmt.Errorf("journal.keep_runs must be at least 1")
	}

	// Validate Metrics config
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics are enabled")
	}

	// Validate Backtest config
	if c.Backtest.InitialCapital < 0 {
		return fmt.Errorf("backtest.initial_capital must not be negative")
	}
	if c.Backtest.PeriodicInvest < 0 {
		return fmt.Errorf("backtest.periodic_investment must not be negative")
	}
	if c.Backtest.InvestEvery < 1 {
		return fmt.Errorf("backtest.invest_every must be at least 1")
	}
	if c.Backtest.CoreRatio < 0 || c.Backtest.CoreRatio > 1 {
		return fmt.Errorf("backtest.core_ratio must be between 0.0 and 1.0")
	}
	if c.Backtest.FeeRate < 0 || c.Backtest.FeeRate >= 1 {
		return fmt.Errorf("backtest.fee_rate must be in [0.0, 1.0)")
	}
	if c.Backtest.MinSellFraction < 0 || c.Backtest.MinSellFraction > 1 {
		return fmt.Errorf("backtest.min_sell_fraction must be between 0.0 and 1.0")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// AnalyzerConfig converts the analyzer section into a momentum.Config.
// Rate entries with unknown phase names are skipped; Validate reports them.
func (c *Config) AnalyzerConfig() momentum.Config {
	a := c.Analyzer
	rates := make(map[models.Phase]momentum.Rate, len(a.Rates))
	for name, r := range a.Rates {
		phase, ok := parsePhase(name)
		if !ok {
			continue
		}
		rates[phase] = momentum.Rate{Base: r.Base, Multiplier: r.Multiplier}
	}

	return momentum.Config{
		EMAPeriod:   a.EMAPeriod,
		SlopePeriod: a.SlopePeriod,
		Thresholds: momentum.Thresholds{
			Low:          a.ThresholdLow,
			High:         a.ThresholdHi,
			SlopeBull:    a.SlopeBull,
			SlopeFlatNeg: a.SlopeFlatNeg,
			SlopeFlatPos: a.SlopeFlatPos,
			SlopeBear:    a.SlopeBear,
		},
		ZNorm:       a.ZNorm,
		MaxSellRate: a.MaxSellRate,
		Rates:       rates,
	}
}

// NotifyPhases returns the configured notify set as phases.
func (c *Config) NotifyPhases() []models.Phase {
	out := make([]models.Phase, 0, len(c.Monitor.NotifyPhases))
	for _, name := range c.Monitor.NotifyPhases {
		if p, ok := parsePhase(name); ok {
			out = append(out, p)
		}
	}
	return out
}

// parsePhase accepts phase names in any case; viper lowercases map keys.
func parsePhase(name string) (models.Phase, bool) {
	return models.ParsePhase(strings.ToUpper(strings.TrimSpace(name)))
}
