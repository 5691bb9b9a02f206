package collector

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/skalibog/ofta/internal/exchange"
	"github.com/skalibog/ofta/internal/storage"
	"github.com/skalibog/ofta/pkg/logger"
	"go.uber.org/zap"
)

// DataCollector фоновый сборщик данных для хранилища
type DataCollector interface {
	Start(ctx context.Context) error
	Stop()
}

// collectFn одна итерация сбора
type collectFn func(ctx context.Context) error

// base общий цикл сборщика: периодический опрос с экспоненциальной
// паузой после ошибок
type base struct {
	name     string
	interval time.Duration
	collect  collectFn
	cancel   context.CancelFunc
}

// Start запускает цикл сбора, блокируется до отмены контекста
func (b *base) Start(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)

	retry := &backoff.Backoff{
		Min:    time.Second,
		Max:    time.Minute,
		Factor: 2,
		Jitter: true,
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	// Первый сбор сразу, не дожидаясь тика
	if err := b.collect(ctx); err != nil {
		logger.Warn("Ошибка первого сбора", zap.String("collector", b.name), zap.Error(err))
	}

	for {
		select {
		case <-ticker.C:
			if err := b.collect(ctx); err != nil {
				pause := retry.Duration()
				logger.Warn("Ошибка сбора данных, пауза",
					zap.String("collector", b.name),
					zap.Duration("pause", pause),
					zap.Error(err))
				select {
				case <-time.After(pause):
				case <-ctx.Done():
					return ctx.Err()
				}
				continue
			}
			retry.Reset()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop останавливает сборщик
func (b *base) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
}

// NewCandleCollector собирает свечи обоих таймфреймов в хранилище
func NewCandleCollector(client exchange.Client, store storage.Storage, instID string, bars []string, interval time.Duration) DataCollector {
	return &base{
		name:     "candles",
		interval: interval,
		collect: func(ctx context.Context) error {
			for _, bar := range bars {
				candles, err := client.Candles(ctx, instID, bar, 100)
				if err != nil {
					return err
				}
				if err := store.SaveCandles(ctx, candles); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// NewFundingRateCollector собирает ставки финансирования в хранилище
func NewFundingRateCollector(client exchange.Client, store storage.Storage, instID string, interval time.Duration) DataCollector {
	return &base{
		name:     "funding",
		interval: interval,
		collect: func(ctx context.Context) error {
			rate, err := client.FundingRate(ctx, instID)
			if err != nil {
				return err
			}
			return store.SaveFundingRate(ctx, rate)
		},
	}
}

// NewOpenInterestCollector собирает открытый интерес в хранилище
func NewOpenInterestCollector(client exchange.Client, store storage.Storage, instID string, interval time.Duration) DataCollector {
	return &base{
		name:     "open_interest",
		interval: interval,
		collect: func(ctx context.Context) error {
			oi, err := client.OpenInterest(ctx, instID)
			if err != nil {
				return err
			}
			return store.SaveOpenInterest(ctx, oi)
		},
	}
}
