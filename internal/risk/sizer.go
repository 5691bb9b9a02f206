package risk

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/skalibog/ofta/internal/config"
)

// Sizer переводит рисковый бюджет и дистанцию до стопа в размер ордера
// в контрактах. Бюджет - доля доступных средств, номинал позиции ограничен
// плечом maxLeverage.
type Sizer struct {
	config config.RiskConfig
}

// NewSizer создает новый калькулятор размера позиции
func NewSizer(cfg config.RiskConfig) *Sizer {
	return &Sizer{
		config: cfg,
	}
}

// Size возвращает размер ордера в контрактах строкой.
// available - доступные средства, entry - цена входа, stop - цена стоп-лосса,
// ctVal - стоимость контракта в базовой валюте.
func (s *Sizer) Size(available, entry, stop, ctVal float64) string {
	budget := available * s.config.RiskPerTrade
	distance := math.Abs(entry - stop)

	// Без осмысленной дистанции до стопа торгуем минимальным размером
	if distance <= 0 || stop <= 0 || ctVal <= 0 || entry <= 0 {
		return "1"
	}

	// Количество базовой валюты под рисковый бюджет, далее в контракты
	quantity := budget / distance
	contracts := math.Floor(quantity / ctVal)
	if contracts < 1 {
		contracts = 1
	}

	// Ограничение номинала позиции плечом
	maxNotional := available * s.config.MaxLeverage
	if contracts*ctVal*entry > maxNotional {
		contracts = math.Floor(maxNotional / (ctVal * entry))
	}
	if contracts < 0 {
		contracts = 0
	}

	return decimal.NewFromFloat(contracts).String()
}
