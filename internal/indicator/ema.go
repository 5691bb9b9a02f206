package indicator

import (
	"github.com/skalibog/ofta/pkg/models"
)

// EMA рассчитывает экспоненциальную скользящую среднюю.
// Первое значение серии служит затравкой: output[0] = input[0],
// далее output[i] = input[i]*k + output[i-1]*(1-k), k = 2/(period+1).
// Длина результата всегда равна длине входа.
func EMA(values []float64, period int) []float64 {
	if len(values) == 0 {
		return []float64{}
	}

	k := 2.0 / float64(period+1)
	result := make([]float64, len(values))
	result[0] = values[0]

	for i := 1; i < len(values); i++ {
		result[i] = values[i]*k + result[i-1]*(1-k)
	}

	return result
}

// Crossovers ищет пересечения быстрой и медленной серий в последних window
// позициях и возвращает события в хронологическом порядке.
// Золотой крест на индексе i: fast[i-1] <= slow[i-1] и fast[i] > slow[i].
// Мертвый крест на индексе i: fast[i-1] >= slow[i-1] и fast[i] < slow[i].
func Crossovers(fast, slow []float64, candles []*models.Candle, window int) []models.CrossEvent {
	n := len(fast)
	if len(slow) < n {
		n = len(slow)
	}
	if n < 2 {
		return nil
	}

	start := n - window
	if start < 1 {
		start = 1
	}

	var events []models.CrossEvent
	for i := start; i < n; i++ {
		var kind models.CrossKind
		switch {
		case fast[i-1] <= slow[i-1] && fast[i] > slow[i]:
			kind = models.CrossGolden
		case fast[i-1] >= slow[i-1] && fast[i] < slow[i]:
			kind = models.CrossDead
		default:
			continue
		}

		event := models.CrossEvent{
			Index: i,
			Kind:  kind,
		}
		if i < len(candles) {
			event.Price = candles[i].Close
			event.Timestamp = candles[i].Timestamp
		}
		events = append(events, event)
	}

	return events
}
