package posmgr

import (
	"testing"
	"time"

	"github.com/skalibog/ofta/internal/config"
	"github.com/skalibog/ofta/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ctVal = 0.1

func testConfig() config.RiskConfig {
	return config.RiskConfig{
		BreakevenThreshold: 0.005,
		StopNudge:          0.0005,
		MinStopDelta:       0.0005,
		TrailingCandles:    5,
	}
}

func TestProposeNilPosition(t *testing.T) {
	m := NewManager(testConfig())
	assert.Nil(t, m.Propose(nil, candlesWithLows(100, 100, 100), ctVal))
}

func TestProposeBreakevenLong(t *testing.T) {
	m := NewManager(testConfig())
	// UPL 0.6 при размере 10 и ctVal 0.1 дает оценку цены 100.6:
	// выше порога безубытка 0.5%, стоп все еще ниже входа
	position := &models.Position{
		InstID:        "ETH-USDT-SWAP",
		Side:          models.PositionLong,
		Size:          10,
		AvgPrice:      100,
		UnrealizedPnL: 0.6,
		StopLossPrice: 90,
	}

	proposal := m.Propose(position, candlesWithLows(99, 99, 99, 99, 99), ctVal)

	require.NotNil(t, proposal)
	assert.InDelta(t, 100.0, proposal.StopLossPrice, 1e-9)
	assert.Contains(t, proposal.Rationale, "безубыток")
}

func TestProposeBreakevenShort(t *testing.T) {
	m := NewManager(testConfig())
	// UPL 0.6 для шорта дает оценку цены 99.4, порог пройден
	position := &models.Position{
		InstID:        "ETH-USDT-SWAP",
		Side:          models.PositionShort,
		Size:          10,
		AvgPrice:      100,
		UnrealizedPnL: 0.6,
		StopLossPrice: 110,
	}

	proposal := m.Propose(position, candlesWithHighs(101, 101, 101, 101, 101), ctVal)

	require.NotNil(t, proposal)
	assert.InDelta(t, 100.0, proposal.StopLossPrice, 1e-9)
}

func TestProposeTrailingLong(t *testing.T) {
	m := NewManager(testConfig())
	// Оценка цены 100.1: безубыток не достигнут, трейлинг по минимуму
	// последних пяти свечей с отступом вниз
	position := &models.Position{
		InstID:        "ETH-USDT-SWAP",
		Side:          models.PositionLong,
		Size:          10,
		AvgPrice:      100,
		UnrealizedPnL: 0.1,
		StopLossPrice: 0,
	}
	// Старые свечи с низкими минимумами не должны влиять на расчет
	candles := candlesWithLows(90, 90, 90, 100.14, 100.15, 100.16, 100.14, 100.15)

	proposal := m.Propose(position, candles, ctVal)

	require.NotNil(t, proposal)
	assert.InDelta(t, 100.14*0.9995, proposal.StopLossPrice, 1e-9)
	assert.Contains(t, proposal.Rationale, "трейлинг")
}

func TestProposeTrailingMustStayBetweenEntryAndMark(t *testing.T) {
	m := NewManager(testConfig())
	// Минимумы последних свечей ниже входа: подтяжка сделала бы стоп
	// хуже входа, предложение не формируется
	position := &models.Position{
		InstID:        "ETH-USDT-SWAP",
		Side:          models.PositionLong,
		Size:          10,
		AvgPrice:      100,
		UnrealizedPnL: 0.1,
		StopLossPrice: 0,
	}

	proposal := m.Propose(position, candlesWithLows(99, 99, 99, 99, 99), ctVal)

	assert.Nil(t, proposal)
}

func TestProposeSkipsInsignificantMove(t *testing.T) {
	m := NewManager(testConfig())
	// Новый стоп отличается от текущего меньше чем на 0.05% от входа
	position := &models.Position{
		InstID:        "ETH-USDT-SWAP",
		Side:          models.PositionLong,
		Size:          10,
		AvgPrice:      100,
		UnrealizedPnL: 0.1,
		StopLossPrice: 100.0897,
	}

	proposal := m.Propose(position, candlesWithLows(100.14, 100.15, 100.16, 100.14, 100.15), ctVal)

	assert.Nil(t, proposal)
}

func TestProposeTrailingShort(t *testing.T) {
	m := NewManager(testConfig())
	// Оценка цены 99.9: трейлинг по максимуму последних свечей с отступом вверх
	position := &models.Position{
		InstID:        "ETH-USDT-SWAP",
		Side:          models.PositionShort,
		Size:          10,
		AvgPrice:      100,
		UnrealizedPnL: 0.1,
		StopLossPrice: 0,
	}

	proposal := m.Propose(position, candlesWithHighs(99.85, 99.84, 99.86, 99.85, 99.84), ctVal)

	require.NotNil(t, proposal)
	assert.InDelta(t, 99.86*1.0005, proposal.StopLossPrice, 1e-9)
}

func candlesWithLows(lows ...float64) []*models.Candle {
	candles := make([]*models.Candle, len(lows))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, low := range lows {
		candles[i] = &models.Candle{
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
			High:      low + 1,
			Low:       low,
			Close:     low + 0.5,
		}
	}
	return candles
}

func candlesWithHighs(highs ...float64) []*models.Candle {
	candles := make([]*models.Candle, len(highs))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, high := range highs {
		candles[i] = &models.Candle{
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
			High:      high,
			Low:       high - 1,
			Close:     high - 0.5,
		}
	}
	return candles
}
