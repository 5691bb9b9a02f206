// internal/storage/influxdb.go
package storage

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/skalibog/ofta/internal/config"
	"github.com/skalibog/ofta/pkg/models"
)

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB.
// Хранятся рыночные данные и принятые решения. История сделок не ведется.
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	queryAPI := client.QueryAPI(cfg.Organization)
	writeAPI := client.WriteAPI(cfg.Organization, cfg.Bucket)

	return &InfluxDBStorage{
		client:   client,
		queryAPI: queryAPI,
		writeAPI: writeAPI,
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// SaveCandles сохраняет пакет свечей
func (s *InfluxDBStorage) SaveCandles(ctx context.Context, candles []*models.Candle) error {
	for _, candle := range candles {
		point := influxdb2.NewPoint(
			"candles",
			map[string]string{
				"instId": candle.InstID,
				"bar":    candle.Bar,
			},
			map[string]interface{}{
				"open":   candle.Open,
				"high":   candle.High,
				"low":    candle.Low,
				"close":  candle.Close,
				"volume": candle.Volume,
			},
			candle.Timestamp,
		)
		s.writeAPI.WritePoint(point)
	}

	s.writeAPI.Flush()
	return nil
}

// SaveFundingRate сохраняет ставку финансирования
func (s *InfluxDBStorage) SaveFundingRate(ctx context.Context, rate *models.FundingRate) error {
	point := influxdb2.NewPoint(
		"funding_rates",
		map[string]string{
			"instId": rate.InstID,
		},
		map[string]interface{}{
			"rate":         rate.Rate,
			"next_funding": rate.NextFundingTime,
		},
		rate.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// SaveOpenInterest сохраняет открытый интерес
func (s *InfluxDBStorage) SaveOpenInterest(ctx context.Context, oi *models.OpenInterest) error {
	point := influxdb2.NewPoint(
		"open_interest",
		map[string]string{
			"instId": oi.InstID,
		},
		map[string]interface{}{
			"value": oi.Value,
		},
		oi.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// SaveInstruction сохраняет принятое решение (включая Hold - для наблюдаемости)
func (s *InfluxDBStorage) SaveInstruction(ctx context.Context, instID string, ins *models.Instruction) error {
	point := influxdb2.NewPoint(
		"decisions",
		map[string]string{
			"instId": instID,
			"action": string(ins.Action),
		},
		map[string]interface{}{
			"size":        ins.Size,
			"leverage":    ins.Leverage,
			"stop_loss":   ins.StopLossPrice,
			"take_profit": ins.TakeProfitPrice,
			"rationale":   ins.Rationale,
		},
		ins.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// GetInstructionHistory получает историю решений по инструменту
func (s *InfluxDBStorage) GetInstructionHistory(ctx context.Context, instID string, limit int) ([]*models.Instruction, error) {
	// Формируем Flux-запрос
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "decisions")
			|> filter(fn: (r) => r.instId == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, s.bucket, instID, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса истории решений: %w", err)
	}

	var instructions []*models.Instruction
	for result.Next() {
		record := result.Record()

		action, _ := record.ValueByKey("action").(string)
		size, _ := record.ValueByKey("size").(string)
		stopLoss, _ := record.ValueByKey("stop_loss").(float64)
		takeProfit, _ := record.ValueByKey("take_profit").(float64)
		rationale, _ := record.ValueByKey("rationale").(string)

		instructions = append(instructions, &models.Instruction{
			Action:          models.Action(action),
			Size:            size,
			StopLossPrice:   stopLoss,
			TakeProfitPrice: takeProfit,
			Rationale:       rationale,
			Timestamp:       record.Time(),
		})
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return instructions, nil
}

// NoopStorage заглушка, когда хранилище выключено конфигурацией
type NoopStorage struct{}

func (NoopStorage) SaveCandles(context.Context, []*models.Candle) error                { return nil }
func (NoopStorage) SaveFundingRate(context.Context, *models.FundingRate) error         { return nil }
func (NoopStorage) SaveOpenInterest(context.Context, *models.OpenInterest) error       { return nil }
func (NoopStorage) SaveInstruction(context.Context, string, *models.Instruction) error { return nil }
func (NoopStorage) GetInstructionHistory(context.Context, string, int) ([]*models.Instruction, error) {
	return nil, nil
}
func (NoopStorage) Close() {}

// Storage интерфейс для работы с хранилищем данных
type Storage interface {
	SaveCandles(ctx context.Context, candles []*models.Candle) error
	SaveFundingRate(ctx context.Context, rate *models.FundingRate) error
	SaveOpenInterest(ctx context.Context, oi *models.OpenInterest) error
	SaveInstruction(ctx context.Context, instID string, ins *models.Instruction) error
	GetInstructionHistory(ctx context.Context, instID string, limit int) ([]*models.Instruction, error)
	Close()
}
