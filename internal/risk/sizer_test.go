package risk

import (
	"testing"

	"github.com/skalibog/ofta/internal/config"
	"github.com/stretchr/testify/assert"
)

func testConfig() config.RiskConfig {
	return config.RiskConfig{
		RiskPerTrade: 0.05,
		MaxLeverage:  20,
	}
}

func TestSizeFromRiskBudget(t *testing.T) {
	s := NewSizer(testConfig())

	// Бюджет 50, дистанция до стопа 10: 5 единиц базовой валюты = 50 контрактов
	size := s.Size(1000, 100, 90, 0.1)

	assert.Equal(t, "50", size)
}

func TestSizeLeverageCap(t *testing.T) {
	s := NewSizer(testConfig())

	// Рисковый расчет дает 50 контрактов номиналом 500,
	// но плечо 20 на депозите 10 ограничивает номинал двумя сотнями
	size := s.Size(10, 100, 99.9, 0.1)

	assert.Equal(t, "20", size)
}

func TestSizeLeverageCapCanReachZero(t *testing.T) {
	s := NewSizer(testConfig())

	// Минимальный контракт дороже доступного номинала
	size := s.Size(1, 100, 50, 1)

	assert.Equal(t, "0", size)
}

func TestSizeMinimumOneContract(t *testing.T) {
	s := NewSizer(testConfig())

	// Рисковый расчет дает меньше одного контракта
	size := s.Size(1000, 10, 9, 100)

	assert.Equal(t, "1", size)
}

func TestSizeInvalidStopFallsBackToOne(t *testing.T) {
	s := NewSizer(testConfig())

	assert.Equal(t, "1", s.Size(1000, 100, 0, 0.1), "нулевой стоп")
	assert.Equal(t, "1", s.Size(1000, 100, 100, 0.1), "стоп равен входу")
	assert.Equal(t, "1", s.Size(1000, 0, 95, 0.1), "нулевая цена входа")
}
