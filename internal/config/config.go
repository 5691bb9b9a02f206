package config

import (
	"os"

	"github.com/skalibog/ofta/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	OKX      OKXConfig      `yaml:"okx"`
	Trading  TradingConfig  `yaml:"trading"`
	Strategy StrategyConfig `yaml:"strategy"`
	Risk     RiskConfig     `yaml:"risk"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Storage  StorageConfig  `yaml:"storage"`
	UI       UIConfig       `yaml:"ui"`
}

// OKXConfig содержит настройки подключения к OKX
type OKXConfig struct {
	APIKey     string `yaml:"api_key"`
	SecretKey  string `yaml:"secret_key"`
	Passphrase string `yaml:"passphrase"`
	BaseURL    string `yaml:"base_url"`
	// Режим работы: real - боевой, demo - демо-торговля, sim - симуляция без сети
	Mode string `yaml:"mode"`
}

// TradingConfig содержит настройки торговли
type TradingConfig struct {
	InstID     string  `yaml:"inst_id"`
	MarginMode string  `yaml:"margin_mode"` // cross или isolated
	Leverage   int     `yaml:"leverage"`
	CtVal      float64 `yaml:"ct_val"` // стоимость контракта в базовой валюте
	Currency   string  `yaml:"currency"`
}

// StrategyConfig настройки трендовой стратегии
type StrategyConfig struct {
	TrendBar   string `yaml:"trend_bar"`   // таймфрейм трендового фильтра
	EntryBar   string `yaml:"entry_bar"`   // таймфрейм входов
	FastPeriod int    `yaml:"fast_period"` // период быстрой EMA
	SlowPeriod int    `yaml:"slow_period"` // период медленной EMA
	ScanWindow int    `yaml:"scan_window"` // окно поиска пересечений
	Freshness  int    `yaml:"freshness"`   // максимальная давность сигнала в свечах
	MinCandles int    `yaml:"min_candles"` // минимум свечей для расчета
}

// RiskConfig настройки управления риском и позицией
type RiskConfig struct {
	RiskPerTrade       float64 `yaml:"risk_per_trade"`      // доля доступных средств на сделку
	MaxLeverage        float64 `yaml:"max_leverage"`        // ограничение номинала позиции
	BreakevenThreshold float64 `yaml:"breakeven_threshold"` // порог переноса стопа в безубыток
	StopNudge          float64 `yaml:"stop_nudge"`          // отступ стопа от экстремума
	MinStopDelta       float64 `yaml:"min_stop_delta"`      // минимальный сдвиг стопа для обновления
	TrailingCandles    int     `yaml:"trailing_candles"`    // количество свечей для трейлинга
}

// AnalysisConfig настройки цикла анализа
type AnalysisConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	CandleLimit     int `yaml:"candle_limit"` // размер скользящего окна свечей
}

// StorageConfig настройки хранения данных
type StorageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// UIConfig настройки пользовательского интерфейса
type UIConfig struct {
	RefreshRate int `yaml:"refresh_rate_ms"`
}

// Load загружает конфигурацию из файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("Ошибка чтения файла конфигурации", zap.Error(err))
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		logger.Fatal("Ошибка разбора файла конфигурации", zap.Error(err))
	}

	config.applyDefaults()

	logger.Info("Загружена конфигурация",
		zap.String("path", path),
		zap.String("instId", config.Trading.InstID),
		zap.String("mode", config.OKX.Mode))
	return &config, nil
}

// applyDefaults заполняет незаданные параметры значениями по умолчанию
func (c *Config) applyDefaults() {
	if c.OKX.BaseURL == "" {
		c.OKX.BaseURL = "https://www.okx.com"
	}
	if c.OKX.Mode == "" {
		c.OKX.Mode = "sim"
	}
	if c.Trading.MarginMode == "" {
		c.Trading.MarginMode = "cross"
	}
	if c.Trading.Leverage == 0 {
		c.Trading.Leverage = 10
	}
	if c.Trading.CtVal == 0 {
		c.Trading.CtVal = 0.1
	}
	if c.Trading.Currency == "" {
		c.Trading.Currency = "USDT"
	}
	if c.Strategy.TrendBar == "" {
		c.Strategy.TrendBar = "1H"
	}
	if c.Strategy.EntryBar == "" {
		c.Strategy.EntryBar = "15m"
	}
	if c.Strategy.FastPeriod == 0 {
		c.Strategy.FastPeriod = 15
	}
	if c.Strategy.SlowPeriod == 0 {
		c.Strategy.SlowPeriod = 60
	}
	if c.Strategy.ScanWindow == 0 {
		c.Strategy.ScanWindow = 50
	}
	if c.Strategy.Freshness == 0 {
		c.Strategy.Freshness = 2
	}
	if c.Strategy.MinCandles == 0 {
		c.Strategy.MinCandles = 60
	}
	if c.Risk.RiskPerTrade == 0 {
		c.Risk.RiskPerTrade = 0.05
	}
	if c.Risk.MaxLeverage == 0 {
		c.Risk.MaxLeverage = 20
	}
	if c.Risk.BreakevenThreshold == 0 {
		c.Risk.BreakevenThreshold = 0.005
	}
	if c.Risk.StopNudge == 0 {
		c.Risk.StopNudge = 0.0005
	}
	if c.Risk.MinStopDelta == 0 {
		c.Risk.MinStopDelta = 0.0005
	}
	if c.Risk.TrailingCandles == 0 {
		c.Risk.TrailingCandles = 5
	}
	if c.Analysis.IntervalSeconds == 0 {
		c.Analysis.IntervalSeconds = 30
	}
	if c.Analysis.CandleLimit == 0 {
		c.Analysis.CandleLimit = 300
	}
	if c.UI.RefreshRate == 0 {
		c.UI.RefreshRate = 1000
	}
}
