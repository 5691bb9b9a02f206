package posmgr

import (
	"fmt"
	"math"

	"github.com/skalibog/ofta/internal/config"
	"github.com/skalibog/ofta/pkg/models"
)

// Manager сопровождает открытую позицию: перенос стопа в безубыток
// и трейлинг по экстремумам последних свечей. Запускается только в циклах,
// где стратегия вернула Hold - выходы по развороту тренда и входы имеют
// приоритет и подавляют сопровождение в этом цикле.
type Manager struct {
	config config.RiskConfig
}

// Proposal предложение нового стоп-лосса для открытой позиции
type Proposal struct {
	StopLossPrice float64
	Rationale     string
}

// NewManager создает новый менеджер позиции
func NewManager(cfg config.RiskConfig) *Manager {
	return &Manager{
		config: cfg,
	}
}

// Propose рассчитывает новый стоп для позиции по последним свечам младшего
// таймфрейма. Возвращает nil, если обновление не требуется.
// ctVal - стоимость контракта, нужна для оценки текущей цены по нереализованному PnL.
func (m *Manager) Propose(position *models.Position, candles []*models.Candle, ctVal float64) *Proposal {
	if position == nil || position.Size <= 0 || position.AvgPrice <= 0 {
		return nil
	}

	entry := position.AvgPrice
	mark := m.estimateMarkPrice(position, ctVal)
	currentStop := position.StopLossPrice

	recent := lastCandles(candles, m.config.TrailingCandles)
	if len(recent) == 0 {
		return nil
	}

	var proposal *Proposal
	switch position.Side {
	case models.PositionLong:
		proposal = m.proposeLong(entry, mark, currentStop, recent)
	case models.PositionShort:
		proposal = m.proposeShort(entry, mark, currentStop, recent)
	default:
		return nil
	}

	if proposal == nil {
		return nil
	}

	// Фильтр дребезга: обновляем ордер только при заметном сдвиге стопа
	if math.Abs(proposal.StopLossPrice-currentStop) <= m.config.MinStopDelta*entry {
		return nil
	}

	return proposal
}

// proposeLong рассчитывает стоп для длинной позиции
func (m *Manager) proposeLong(entry, mark, currentStop float64, recent []*models.Candle) *Proposal {
	// Безубыток: цена ушла в плюс больше порога, а стоп все еще хуже входа
	if mark > entry*(1+m.config.BreakevenThreshold) && currentStop < entry {
		return &Proposal{
			StopLossPrice: entry,
			Rationale:     fmt.Sprintf("безубыток: перенос стопа на цену входа %.4f", entry),
		}
	}

	// Трейлинг по минимуму последних свечей с отступом вниз
	trail := lowestLow(recent) * (1 - m.config.StopNudge)
	improves := currentStop == 0 || trail > currentStop
	if improves && trail > entry && trail < mark {
		return &Proposal{
			StopLossPrice: trail,
			Rationale:     fmt.Sprintf("трейлинг-стоп: подтяжка к %.4f по минимуму последних %d свечей", trail, len(recent)),
		}
	}

	return nil
}

// proposeShort рассчитывает стоп для короткой позиции (зеркально длинной)
func (m *Manager) proposeShort(entry, mark, currentStop float64, recent []*models.Candle) *Proposal {
	if mark < entry*(1-m.config.BreakevenThreshold) && (currentStop == 0 || currentStop > entry) {
		return &Proposal{
			StopLossPrice: entry,
			Rationale:     fmt.Sprintf("безубыток: перенос стопа на цену входа %.4f", entry),
		}
	}

	trail := highestHigh(recent) * (1 + m.config.StopNudge)
	improves := currentStop == 0 || trail < currentStop
	if improves && trail < entry && trail > mark {
		return &Proposal{
			StopLossPrice: trail,
			Rationale:     fmt.Sprintf("трейлинг-стоп: подтяжка к %.4f по максимуму последних %d свечей", trail, len(recent)),
		}
	}

	return nil
}

// estimateMarkPrice оценивает текущую цену через нереализованный PnL на единицу базовой валюты
func (m *Manager) estimateMarkPrice(position *models.Position, ctVal float64) float64 {
	if ctVal <= 0 || position.Size <= 0 {
		return position.AvgPrice
	}

	pnlPerUnit := position.UnrealizedPnL / (position.Size * ctVal)
	if position.Side == models.PositionShort {
		return position.AvgPrice - pnlPerUnit
	}
	return position.AvgPrice + pnlPerUnit
}

// lastCandles возвращает последние n свечей серии
func lastCandles(candles []*models.Candle, n int) []*models.Candle {
	if len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}

func lowestLow(candles []*models.Candle) float64 {
	low := candles[0].Low
	for _, c := range candles[1:] {
		if c.Low < low {
			low = c.Low
		}
	}
	return low
}

func highestHigh(candles []*models.Candle) float64 {
	high := candles[0].High
	for _, c := range candles[1:] {
		if c.High > high {
			high = c.High
		}
	}
	return high
}
