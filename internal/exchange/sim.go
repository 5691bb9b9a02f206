package exchange

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/skalibog/ofta/internal/config"
	"github.com/skalibog/ofta/pkg/logger"
	"github.com/skalibog/ofta/pkg/models"
	"go.uber.org/zap"
)

// SimClient симулятор биржи: генерирует синтетические рыночные данные
// и отвечает на торговые вызовы успешными конвертами без сети.
// Позиция отслеживается локально, чтобы цикл сопровождения имел что сопровождать.
type SimClient struct {
	mu       sync.Mutex
	rand     *rand.Rand
	trading  config.TradingConfig
	price    float64
	position *models.Position
	algos    []*models.PendingAlgoOrder
	nextAlgo int
}

// NewSimClient создает симулятор с затравкой от текущего времени
func NewSimClient(trading config.TradingConfig) *SimClient {
	return NewSimClientWithSeed(trading, time.Now().UnixNano())
}

// NewSimClientWithSeed создает симулятор с фиксированной затравкой
func NewSimClientWithSeed(trading config.TradingConfig, seed int64) *SimClient {
	return &SimClient{
		rand:    rand.New(rand.NewSource(seed)),
		trading: trading,
		price:   2000,
	}
}

// Candles генерирует случайное блуждание вокруг текущей цены симулятора
func (c *SimClient) Candles(_ context.Context, instID, bar string, limit int) ([]*models.Candle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	step := barDuration(bar)
	now := time.Now().Truncate(step)
	price := c.price

	// Блуждание от старых свечей к новым: open каждой свечи равен close
	// предыдущей, серия непрерывна при хронологическом чтении
	candles := make([]*models.Candle, limit)
	for i := 0; i < limit; i++ {
		open := price
		move := price * (c.rand.Float64() - 0.5) * 0.004
		closePx := open + move
		high := maxFloat(open, closePx) * (1 + c.rand.Float64()*0.001)
		low := minFloat(open, closePx) * (1 - c.rand.Float64()*0.001)

		candles[i] = &models.Candle{
			InstID:    instID,
			Bar:       bar,
			Timestamp: now.Add(-time.Duration(limit-1-i) * step),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    100 + c.rand.Float64()*900,
		}
		price = closePx
	}

	// Текущая цена симулятора - close новейшей свечи
	c.price = candles[len(candles)-1].Close
	return candles, nil
}

// LastPrice возвращает текущую цену симулятора
func (c *SimClient) LastPrice(context.Context, string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.price, nil
}

// FundingRate возвращает синтетическую ставку финансирования
func (c *SimClient) FundingRate(_ context.Context, instID string) (*models.FundingRate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return &models.FundingRate{
		InstID:          instID,
		Rate:            strconv.FormatFloat((c.rand.Float64()-0.5)*0.001, 'f', 8, 64),
		Timestamp:       time.Now(),
		NextFundingTime: time.Now().Add(8 * time.Hour),
	}, nil
}

// OpenInterest возвращает синтетический открытый интерес
func (c *SimClient) OpenInterest(_ context.Context, instID string) (*models.OpenInterest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return &models.OpenInterest{
		InstID:    instID,
		Value:     strconv.FormatFloat(1e6+c.rand.Float64()*1e5, 'f', 0, 64),
		Timestamp: time.Now(),
	}, nil
}

// Instrument возвращает параметры инструмента из конфигурации
func (c *SimClient) Instrument(_ context.Context, instID string) (*models.Instrument, error) {
	return &models.Instrument{
		InstID: instID,
		TickSz: "0.01",
		LotSz:  "1",
		MinSz:  "1",
		CtVal:  strconv.FormatFloat(c.trading.CtVal, 'f', -1, 64),
		CtMult: "1",
		State:  "live",
	}, nil
}

// Balance возвращает синтетический баланс
func (c *SimClient) Balance(context.Context, string) (float64, float64, error) {
	return 10000, 8000, nil
}

// Positions возвращает локально отслеживаемую позицию
func (c *SimClient) Positions(context.Context, string) ([]*models.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.position == nil {
		return nil, nil
	}

	// Нереализованный PnL пересчитывается по текущей цене симулятора
	p := *c.position
	diff := c.price - p.AvgPrice
	if p.Side == models.PositionShort {
		diff = -diff
	}
	p.UnrealizedPnL = diff * p.Size * c.trading.CtVal
	if p.AvgPrice > 0 {
		p.UnrealizedPnLRatio = diff / p.AvgPrice
	}
	return []*models.Position{&p}, nil
}

// PendingAlgoOrders возвращает локально отслеживаемые условные ордера
func (c *SimClient) PendingAlgoOrders(context.Context, string) ([]*models.PendingAlgoOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	orders := make([]*models.PendingAlgoOrder, len(c.algos))
	copy(orders, c.algos)
	return orders, nil
}

// AccountPositionMode симулятор всегда в двунаправленном режиме
func (c *SimClient) AccountPositionMode(context.Context) (string, error) {
	return "long_short_mode", nil
}

// SetPositionMode симулятор принимает любой режим
func (c *SimClient) SetPositionMode(_ context.Context, posMode string) error {
	logger.Debug("SIM: установлен режим позиций", zap.String("posMode", posMode))
	return nil
}

// SetLeverage симулятор принимает любое плечо
func (c *SimClient) SetLeverage(_ context.Context, instID string, leverage int, _, posSide string) error {
	logger.Debug("SIM: установлено плечо",
		zap.String("instId", instID), zap.Int("lever", leverage), zap.String("posSide", posSide))
	return nil
}

// PlaceOrder открывает синтетическую позицию по текущей цене
func (c *SimClient) PlaceOrder(_ context.Context, req *OrderRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	size, err := strconv.ParseFloat(req.Sz, 64)
	if err != nil {
		return fmt.Errorf("некорректный размер ордера: %q", req.Sz)
	}

	c.position = &models.Position{
		InstID:        req.InstID,
		Side:          models.PositionSide(req.PosSide),
		Size:          size,
		AvgPrice:      c.price,
		MarginMode:    req.TdMode,
		CreatedAt:     time.Now(),
		StopLossPrice: parseFloat(req.SlTriggerPx),
	}

	if req.SlTriggerPx != "" {
		c.addAlgoLocked(req.InstID, req.PosSide, req.SlTriggerPx, "")
	}

	logger.Info("SIM: ордер исполнен",
		zap.String("side", req.Side), zap.String("posSide", req.PosSide),
		zap.String("sz", req.Sz), zap.Float64("price", c.price))
	return nil
}

// ClosePosition закрывает синтетическую позицию указанной стороны.
// Отсутствие позиции - прикладная ошибка, как на живой бирже.
func (c *SimClient) ClosePosition(_ context.Context, instID, _, posSide string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.position == nil || string(c.position.Side) != posSide {
		return fmt.Errorf("биржа отклонила запрос close-position: код 51023: Position does not exist")
	}

	c.position = nil
	c.algos = nil
	logger.Info("SIM: позиция закрыта", zap.String("instId", instID), zap.String("posSide", posSide))
	return nil
}

// CancelAlgoOrders отменяет локальные условные ордера
func (c *SimClient) CancelAlgoOrders(_ context.Context, orders []*models.PendingAlgoOrder) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cancel := range orders {
		for i, o := range c.algos {
			if o.AlgoID == cancel.AlgoID {
				c.algos = append(c.algos[:i], c.algos[i+1:]...)
				break
			}
		}
	}
	return nil
}

// PlaceAlgoOrder добавляет локальный условный ордер
func (c *SimClient) PlaceAlgoOrder(_ context.Context, req *AlgoOrderRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.addAlgoLocked(req.InstID, req.PosSide, req.SlTriggerPx, req.TpTriggerPx)
	if c.position != nil && string(c.position.Side) == req.PosSide {
		c.position.StopLossPrice = parseFloat(req.SlTriggerPx)
		c.position.TakeProfitPrice = parseFloat(req.TpTriggerPx)
	}

	logger.Info("SIM: алго-ордер выставлен",
		zap.String("posSide", req.PosSide),
		zap.String("slTriggerPx", req.SlTriggerPx),
		zap.String("tpTriggerPx", req.TpTriggerPx))
	return nil
}

// AddMargin симулятор принимает добавление маржи
func (c *SimClient) AddMargin(_ context.Context, instID, posSide string, amount float64) error {
	logger.Debug("SIM: добавлена маржа",
		zap.String("instId", instID), zap.String("posSide", posSide), zap.Float64("amt", amount))
	return nil
}

func (c *SimClient) addAlgoLocked(instID, posSide, slTriggerPx, tpTriggerPx string) {
	c.nextAlgo++
	c.algos = append(c.algos, &models.PendingAlgoOrder{
		AlgoID:      strconv.Itoa(c.nextAlgo),
		InstID:      instID,
		PosSide:     posSide,
		OrdType:     "conditional",
		SlTriggerPx: slTriggerPx,
		TpTriggerPx: tpTriggerPx,
	})
}

// barDuration переводит строковый таймфрейм в duration
func barDuration(bar string) time.Duration {
	switch bar {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1H":
		return time.Hour
	case "2H":
		return 2 * time.Hour
	case "4H":
		return 4 * time.Hour
	case "12H":
		return 12 * time.Hour
	case "1D":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
