package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/skalibog/ofta/internal/analysis/aggregator"
	"github.com/skalibog/ofta/internal/config"
	"github.com/skalibog/ofta/internal/exchange"
	"github.com/skalibog/ofta/internal/executor"
	"github.com/skalibog/ofta/pkg/logger"
	"github.com/skalibog/ofta/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Engine один торговый цикл: сбор снимков рынка и аккаунта, решение,
// исполнение. Циклы не перекрываются: если предыдущий еще работает,
// очередной тик пропускается.
type Engine struct {
	config   config.Config
	client   exchange.Client
	analyzer *aggregator.Analyzer
	executor *executor.Executor
	running  atomic.Bool
}

// NewEngine создает новый торговый движок
func NewEngine(cfg config.Config, client exchange.Client, analyzer *aggregator.Analyzer, exec *executor.Executor) *Engine {
	return &Engine{
		config:   cfg,
		client:   client,
		analyzer: analyzer,
		executor: exec,
	}
}

// RunCycle выполняет один полный цикл и возвращает принятую инструкцию.
// Возвращает nil без ошибки, если предыдущий цикл еще не завершился.
func (e *Engine) RunCycle(ctx context.Context) (*models.Instruction, error) {
	if !e.running.CompareAndSwap(false, true) {
		logger.Warn("Пропуск цикла: предыдущий еще выполняется")
		return nil, nil
	}
	defer e.running.Store(false)

	market, account, err := e.collectSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("сбор данных цикла: %w", err)
	}

	// Решение считается строго последовательно по неизменяемым снимкам
	ins := e.analyzer.GenerateInstruction(ctx, market, account)

	if err := e.executor.Execute(ctx, ins); err != nil {
		// Ошибка исполнения фатальна для инструкции, но не для движка:
		// повтор - забота следующего цикла
		return ins, fmt.Errorf("исполнение инструкции %s: %w", ins.Action, err)
	}

	return ins, nil
}

// collectSnapshots параллельно собирает рыночный и аккаунтный снимки.
// Все чтения независимы и не имеют побочных эффектов.
func (e *Engine) collectSnapshots(ctx context.Context) (*models.MarketSnapshot, *models.AccountSnapshot, error) {
	instID := e.config.Trading.InstID
	limit := e.config.Analysis.CandleLimit

	market := &models.MarketSnapshot{
		InstID:      instID,
		CollectedAt: time.Now(),
	}
	account := &models.AccountSnapshot{
		UpdatedAt: time.Now(),
	}
	var pending []*models.PendingAlgoOrder

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		candles, err := e.client.Candles(gctx, instID, e.config.Strategy.TrendBar, limit)
		if err != nil {
			return err
		}
		market.TrendCandles = candles
		return nil
	})

	g.Go(func() error {
		candles, err := e.client.Candles(gctx, instID, e.config.Strategy.EntryBar, limit)
		if err != nil {
			return err
		}
		market.EntryCandles = candles
		return nil
	})

	g.Go(func() error {
		price, err := e.client.LastPrice(gctx, instID)
		if err != nil {
			return err
		}
		market.LastPrice = price
		return nil
	})

	g.Go(func() error {
		total, available, err := e.client.Balance(gctx, e.config.Trading.Currency)
		if err != nil {
			return err
		}
		account.TotalEquity = total
		account.AvailableEquity = available
		return nil
	})

	g.Go(func() error {
		positions, err := e.client.Positions(gctx, instID)
		if err != nil {
			return err
		}
		account.Positions = positions
		return nil
	})

	g.Go(func() error {
		orders, err := e.client.PendingAlgoOrders(gctx, instID)
		if err != nil {
			// Некритичное чтение: без списка алго-ордеров позиция
			// просто считается позицией без активного стопа
			logger.Warn("Не удалось получить алго-ордера", zap.Error(err))
			return nil
		}
		pending = orders
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	attachStops(account.Positions, pending)
	return market, account, nil
}

// attachStops проставляет позициям триггерные цены их отложенных стоп/тейк ордеров
func attachStops(positions []*models.Position, pending []*models.PendingAlgoOrder) {
	for _, p := range positions {
		for _, o := range pending {
			if o.InstID != p.InstID || o.PosSide != string(p.Side) {
				continue
			}
			if o.SlTriggerPx != "" {
				p.StopLossPrice = parseFloat(o.SlTriggerPx)
			}
			if o.TpTriggerPx != "" {
				p.TakeProfitPrice = parseFloat(o.TpTriggerPx)
			}
		}
	}
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
