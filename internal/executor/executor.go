package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/skalibog/ofta/internal/config"
	"github.com/skalibog/ofta/internal/exchange"
	"github.com/skalibog/ofta/pkg/logger"
	"github.com/skalibog/ofta/pkg/models"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// minOrderSize минимальный размер ордера в контрактах
var minOrderSize = decimal.RequireFromString("0.01")

// Executor переводит торговую инструкцию в последовательность подписанных
// вызовов биржи. Состояние между вызовами не хранится: все, что нужно знать
// о позициях и ордерах, каждый раз читается с биржи.
type Executor struct {
	client exchange.Client
	cfg    config.TradingConfig
}

// NewExecutor создает новый исполнитель инструкций
func NewExecutor(client exchange.Client, cfg config.TradingConfig) *Executor {
	return &Executor{
		client: client,
		cfg:    cfg,
	}
}

// Execute исполняет одну инструкцию. Hold не порождает вызовов.
func (e *Executor) Execute(ctx context.Context, ins *models.Instruction) error {
	if ins == nil || ins.Action == models.ActionHold {
		return nil
	}

	// Двунаправленный режим позиций: отказ не фатален, логируем и продолжаем
	e.ensureDualMode(ctx)

	switch ins.Action {
	case models.ActionBuy:
		return e.enter(ctx, ins, "buy", "long")
	case models.ActionSell:
		return e.enter(ctx, ins, "sell", "short")
	case models.ActionClose:
		return e.closeBothSides(ctx)
	case models.ActionUpdateSLTP:
		return e.updateStopTakeProfit(ctx, ins)
	default:
		return fmt.Errorf("неизвестное действие инструкции: %s", ins.Action)
	}
}

// ensureDualMode приводит аккаунт в режим одновременных long и short позиций
func (e *Executor) ensureDualMode(ctx context.Context) {
	mode, err := e.client.AccountPositionMode(ctx)
	if err != nil {
		logger.Warn("Не удалось прочитать режим позиций", zap.Error(err))
		return
	}
	if mode == "long_short_mode" {
		return
	}

	if err := e.client.SetPositionMode(ctx, "long_short_mode"); err != nil {
		logger.Warn("Не удалось включить двунаправленный режим позиций", zap.Error(err))
	}
}

// enter открывает позицию рыночным ордером с прикрепленным стопом.
// Плечо выставляется до ордера, его отказ фатален для инструкции.
func (e *Executor) enter(ctx context.Context, ins *models.Instruction, side, posSide string) error {
	leverage := ins.Leverage
	if leverage <= 0 {
		leverage = e.cfg.Leverage
	}

	if err := e.client.SetLeverage(ctx, e.cfg.InstID, leverage, e.cfg.MarginMode, posSide); err != nil {
		return fmt.Errorf("установка плеча перед входом: %w", err)
	}

	size, err := decimal.NewFromString(ins.Size)
	if err != nil {
		return fmt.Errorf("некорректный размер ордера %q: %w", ins.Size, err)
	}
	size = size.Round(2)
	if size.LessThan(minOrderSize) {
		return fmt.Errorf("размер ордера %s меньше минимального 0.01", size)
	}

	req := &exchange.OrderRequest{
		InstID:  e.cfg.InstID,
		TdMode:  e.cfg.MarginMode,
		ClOrdID: newClientOrderID(),
		Side:    side,
		PosSide: posSide,
		OrdType: "market",
		Sz:      size.String(),
	}
	if ins.StopLossPrice > 0 {
		req.SlTriggerPx = formatPrice(ins.StopLossPrice)
		req.SlOrdPx = "-1" // исполнение стопа по рынку
	}

	logger.Info("Вход в позицию",
		zap.String("posSide", posSide),
		zap.String("sz", req.Sz),
		zap.Int("lever", leverage),
		zap.String("rationale", ins.Rationale))

	return e.client.PlaceOrder(ctx, req)
}

// closeBothSides закрывает позицию, пробуя обе стороны по очереди.
// Бот не ведет собственного учета стороны позиции, поэтому закрытие -
// это упорядоченная цепочка попыток, а не ветвление по предполагаемому
// состоянию. Успех любой попытки - успех инструкции.
func (e *Executor) closeBothSides(ctx context.Context) error {
	longErr := e.client.ClosePosition(ctx, e.cfg.InstID, e.cfg.MarginMode, "long")
	shortErr := e.client.ClosePosition(ctx, e.cfg.InstID, e.cfg.MarginMode, "short")

	if longErr == nil || shortErr == nil {
		return nil
	}

	return fmt.Errorf("не удалось закрыть позицию ни по одной стороне: %w",
		multierr.Append(longErr, shortErr))
}

// updateStopTakeProfit заменяет условные ордера позиции: отменяет отложенные
// стоп/тейк по инструменту и стороне, затем выставляет один новый reduce-only
// условный ордер. Отмена без новых цен - допустимый терминальный исход.
func (e *Executor) updateStopTakeProfit(ctx context.Context, ins *models.Instruction) error {
	posSide := string(ins.PosSide)
	if posSide == "" {
		return fmt.Errorf("инструкция update_sltp без стороны позиции")
	}

	// Без актуального списка нельзя гарантировать отмену старого стопа,
	// а новый поверх старого удваивает закрывающий объем
	pending, err := e.client.PendingAlgoOrders(ctx, e.cfg.InstID)
	if err != nil {
		return fmt.Errorf("чтение отложенных алго-ордеров перед заменой: %w", err)
	}

	var toCancel []*models.PendingAlgoOrder
	for _, o := range pending {
		if o.InstID == e.cfg.InstID && o.PosSide == posSide &&
			(o.OrdType == "conditional" || o.OrdType == "oco") {
			toCancel = append(toCancel, o)
		}
	}
	if len(toCancel) > 0 {
		if err := e.client.CancelAlgoOrders(ctx, toCancel); err != nil {
			return fmt.Errorf("отмена алго-ордеров перед заменой: %w", err)
		}
	}

	if ins.StopLossPrice <= 0 && ins.TakeProfitPrice <= 0 {
		return nil
	}

	// Закрывающая сторона противоположна стороне позиции
	side := "sell"
	if ins.PosSide == models.PositionShort {
		side = "buy"
	}

	req := &exchange.AlgoOrderRequest{
		InstID:     e.cfg.InstID,
		TdMode:     e.cfg.MarginMode,
		Side:       side,
		PosSide:    posSide,
		OrdType:    "conditional",
		Sz:         ins.Size,
		ReduceOnly: true,
	}
	if ins.StopLossPrice > 0 {
		req.SlTriggerPx = formatPrice(ins.StopLossPrice)
		req.SlOrdPx = "-1"
	}
	if ins.TakeProfitPrice > 0 {
		req.TpTriggerPx = formatPrice(ins.TakeProfitPrice)
		req.TpOrdPx = "-1"
	}

	logger.Info("Замена стоп/тейк ордера",
		zap.String("posSide", posSide),
		zap.String("slTriggerPx", req.SlTriggerPx),
		zap.String("rationale", ins.Rationale))

	return e.client.PlaceAlgoOrder(ctx, req)
}

// newClientOrderID генерирует клиентский идентификатор ордера (OKX: до 32
// буквенно-цифровых символов)
func newClientOrderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// formatPrice форматирует цену без экспоненциальной записи и хвостовых нулей
func formatPrice(price float64) string {
	return decimal.NewFromFloat(price).String()
}
