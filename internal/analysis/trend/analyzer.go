package trend

import (
	"fmt"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/ofta/internal/config"
	"github.com/skalibog/ofta/internal/indicator"
	"github.com/skalibog/ofta/pkg/models"
)

// Analyzer реализует трендовую стратегию входов.
// Старший таймфрейм задает направление, младший дает точку входа:
// откат против тренда (крест против направления) и затем возврат
// в сторону тренда (крест по направлению). Это вход на продолжение
// тренда, а не слепое следование за пересечением.
type Analyzer struct {
	config config.StrategyConfig
}

// NewAnalyzer создает новый анализатор трендовой стратегии
func NewAnalyzer(cfg config.StrategyConfig) *Analyzer {
	return &Analyzer{
		config: cfg,
	}
}

// Analyze вычисляет торговую инструкцию по текущему снимку рынка и позиции.
// Состояние между циклами не хранится: свежесть сигнала выводится из данных.
func (a *Analyzer) Analyze(market *models.MarketSnapshot, position *models.Position) *models.Instruction {
	now := time.Now()

	// Недостаточно данных - принудительный Hold
	if len(market.TrendCandles) < a.config.MinCandles || len(market.EntryCandles) < a.config.MinCandles {
		return &models.Instruction{
			Action: models.ActionHold,
			Size:   "0",
			Rationale: fmt.Sprintf("накопление данных: тренд %d/%d, вход %d/%d свечей",
				len(market.TrendCandles), a.config.MinCandles,
				len(market.EntryCandles), a.config.MinCandles),
			Timestamp: now,
		}
	}

	// Трендовый фильтр на старшем таймфрейме
	trendCloses := closes(market.TrendCandles)
	trendFast := indicator.EMA(trendCloses, a.config.FastPeriod)
	trendSlow := indicator.EMA(trendCloses, a.config.SlowPeriod)
	isUpTrend := trendFast[len(trendFast)-1] > trendSlow[len(trendSlow)-1]

	// Пересечения на младшем таймфрейме
	entryCloses := closes(market.EntryCandles)
	entryFast := indicator.EMA(entryCloses, a.config.FastPeriod)
	entrySlow := indicator.EMA(entryCloses, a.config.SlowPeriod)
	events := indicator.Crossovers(entryFast, entrySlow, market.EntryCandles, a.config.ScanWindow)

	// Разворот тренда против открытой позиции закрывает ее немедленно,
	// до любой логики входов
	if position != nil {
		if (position.Side == models.PositionLong && !isUpTrend) ||
			(position.Side == models.PositionShort && isUpTrend) {
			return &models.Instruction{
				Action: models.ActionClose,
				Size:   "0",
				Rationale: fmt.Sprintf("разворот тренда против позиции %s: тренд %s",
					position.Side, trendLabel(isUpTrend)),
				Timestamp: now,
			}
		}
	}

	// Вход только без открытой позиции и при наличии двух последних крестов
	if position == nil && len(events) >= 2 {
		last := events[len(events)-1]
		prev := events[len(events)-2]

		// Сигнал должен быть свежим: не старше Freshness свечей от конца серии
		fresh := len(market.EntryCandles)-1-last.Index <= a.config.Freshness

		if fresh && isUpTrend && prev.Kind == models.CrossDead && last.Kind == models.CrossGolden {
			stop := lowestLow(market.EntryCandles, prev.Index, last.Index) * (1 - stopNudge)
			return &models.Instruction{
				Action:        models.ActionBuy,
				StopLossPrice: stop,
				Rationale: fmt.Sprintf("восходящий тренд, откат (мертвый крест) и возврат (золотой крест) на %s, стоп %.4f",
					a.config.EntryBar, stop),
				Timestamp: now,
			}
		}

		if fresh && !isUpTrend && prev.Kind == models.CrossGolden && last.Kind == models.CrossDead {
			stop := highestHigh(market.EntryCandles, prev.Index, last.Index) * (1 + stopNudge)
			return &models.Instruction{
				Action:        models.ActionSell,
				StopLossPrice: stop,
				Rationale: fmt.Sprintf("нисходящий тренд, откат (золотой крест) и возврат (мертвый крест) на %s, стоп %.4f",
					a.config.EntryBar, stop),
				Timestamp: now,
			}
		}
	}

	return &models.Instruction{
		Action:    models.ActionHold,
		Size:      "0",
		Rationale: a.holdRationale(market, events, isUpTrend),
		Timestamp: now,
	}
}

// holdRationale собирает диагностическое описание текущего состояния рынка
func (a *Analyzer) holdRationale(market *models.MarketSnapshot, events []models.CrossEvent, isUpTrend bool) string {
	crossInfo := "пересечений в окне нет"
	if len(events) > 0 {
		last := events[len(events)-1]
		crossInfo = fmt.Sprintf("последний крест %s, %d свечей назад",
			last.Kind, len(market.EntryCandles)-1-last.Index)
	}

	// Волатильность по ATR как дополнительный ориентир
	atrInfo := ""
	if len(market.EntryCandles) > 15 {
		atr := talib.Atr(highs(market.EntryCandles), lows(market.EntryCandles), closes(market.EntryCandles), 14)
		lastATR := atr[len(atr)-1]
		lastClose := market.EntryCandles[len(market.EntryCandles)-1].Close
		if lastClose > 0 {
			atrInfo = fmt.Sprintf(", ATR %.2f%%", lastATR/lastClose*100)
		}
	}

	return fmt.Sprintf("ожидание: тренд %s, %s%s", trendLabel(isUpTrend), crossInfo, atrInfo)
}

// stopNudge отступ стопа от экстремума отката, 0.05%
const stopNudge = 0.0005

func trendLabel(isUpTrend bool) string {
	if isUpTrend {
		return "восходящий"
	}
	return "нисходящий"
}

// lowestLow возвращает минимальный low на отрезке [from..to] включительно
func lowestLow(candles []*models.Candle, from, to int) float64 {
	low := candles[from].Low
	for i := from + 1; i <= to && i < len(candles); i++ {
		if candles[i].Low < low {
			low = candles[i].Low
		}
	}
	return low
}

// highestHigh возвращает максимальный high на отрезке [from..to] включительно
func highestHigh(candles []*models.Candle, from, to int) float64 {
	high := candles[from].High
	for i := from + 1; i <= to && i < len(candles); i++ {
		if candles[i].High > high {
			high = candles[i].High
		}
	}
	return high
}

func closes(candles []*models.Candle) []float64 {
	values := make([]float64, len(candles))
	for i, c := range candles {
		values[i] = c.Close
	}
	return values
}

func highs(candles []*models.Candle) []float64 {
	values := make([]float64, len(candles))
	for i, c := range candles {
		values[i] = c.High
	}
	return values
}

func lows(candles []*models.Candle) []float64 {
	values := make([]float64, len(candles))
	for i, c := range candles {
		values[i] = c.Low
	}
	return values
}
