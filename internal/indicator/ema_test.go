package indicator

import (
	"testing"
	"time"

	"github.com/skalibog/ofta/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEMAEmptyInput(t *testing.T) {
	result := EMA(nil, 15)
	assert.Empty(t, result)
}

func TestEMAConstantSeries(t *testing.T) {
	values := []float64{5, 5, 5, 5, 5, 5, 5, 5}

	result := EMA(values, 3)

	require.Len(t, result, len(values))
	for i, v := range result {
		assert.InDelta(t, 5.0, v, 1e-9, "индекс %d", i)
	}
}

func TestEMASeedAndRecurrence(t *testing.T) {
	// period 3 -> k = 0.5
	result := EMA([]float64{10, 20, 30}, 3)

	require.Len(t, result, 3)
	assert.InDelta(t, 10.0, result[0], 1e-9)
	assert.InDelta(t, 15.0, result[1], 1e-9) // 20*0.5 + 10*0.5
	assert.InDelta(t, 22.5, result[2], 1e-9) // 30*0.5 + 15*0.5
}

func TestCrossoversNoCross(t *testing.T) {
	fast := []float64{11, 12, 13, 14}
	slow := []float64{10, 10, 10, 10}

	events := Crossovers(fast, slow, testCandles(4), 50)

	assert.Empty(t, events)
}

func TestCrossoversGoldenThenDead(t *testing.T) {
	fast := []float64{9, 11, 11, 9}
	slow := []float64{10, 10, 10, 10}
	candles := testCandles(4)

	events := Crossovers(fast, slow, candles, 50)

	require.Len(t, events, 2)
	assert.Equal(t, models.CrossGolden, events[0].Kind)
	assert.Equal(t, 1, events[0].Index)
	assert.Equal(t, candles[1].Close, events[0].Price)
	assert.Equal(t, models.CrossDead, events[1].Kind)
	assert.Equal(t, 3, events[1].Index)
}

func TestCrossoversWindowLimitsScan(t *testing.T) {
	// Крест на индексе 1 вне окна из двух последних позиций
	fast := []float64{9, 11, 11, 11}
	slow := []float64{10, 10, 10, 10}

	events := Crossovers(fast, slow, testCandles(4), 2)

	assert.Empty(t, events)
}

func TestCrossoversTooShortSeries(t *testing.T) {
	events := Crossovers([]float64{1}, []float64{2}, testCandles(1), 50)
	assert.Nil(t, events)
}

func testCandles(n int) []*models.Candle {
	candles := make([]*models.Candle, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		candles[i] = &models.Candle{
			InstID:    "ETH-USDT-SWAP",
			Bar:       "15m",
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
			Close:     float64(100 + i),
		}
	}
	return candles
}
