package aggregator

import (
	"context"
	"strconv"

	"github.com/skalibog/ofta/internal/analysis/posmgr"
	"github.com/skalibog/ofta/internal/analysis/trend"
	"github.com/skalibog/ofta/internal/config"
	"github.com/skalibog/ofta/internal/risk"
	"github.com/skalibog/ofta/internal/storage"
	"github.com/skalibog/ofta/pkg/logger"
	"github.com/skalibog/ofta/pkg/models"
	"go.uber.org/zap"
)

// Analyzer объединяет стратегию и сопровождение позиции в одну инструкцию
// на цикл. Приоритет: выход по развороту тренда > вход > сопровождение.
// Сопровождение рассматривается только когда стратегия вернула Hold.
type Analyzer struct {
	config  config.Config
	storage storage.Storage
	trend   *trend.Analyzer
	posmgr  *posmgr.Manager
	sizer   *risk.Sizer
}

// NewAnalyzer создает новый агрегатор решений
func NewAnalyzer(cfg config.Config, store storage.Storage) *Analyzer {
	return &Analyzer{
		config:  cfg,
		storage: store,
		trend:   trend.NewAnalyzer(cfg.Strategy),
		posmgr:  posmgr.NewManager(cfg.Risk),
		sizer:   risk.NewSizer(cfg.Risk),
	}
}

// GenerateInstruction формирует ровно одну инструкцию по снимкам рынка
// и аккаунта. Hold тоже возвращается и сохраняется - для наблюдаемости.
func (a *Analyzer) GenerateInstruction(ctx context.Context, market *models.MarketSnapshot, account *models.AccountSnapshot) *models.Instruction {
	position := account.PositionFor(a.config.Trading.InstID)

	ins := a.trend.Analyze(market, position)

	// Сопровождение позиции только в циклах без выхода и входа
	if ins.Action == models.ActionHold && position != nil {
		if proposal := a.posmgr.Propose(position, market.EntryCandles, a.config.Trading.CtVal); proposal != nil {
			ins.Action = models.ActionUpdateSLTP
			ins.PosSide = position.Side
			ins.Size = strconv.FormatFloat(position.Size, 'f', -1, 64)
			ins.StopLossPrice = proposal.StopLossPrice
			ins.Rationale = proposal.Rationale
		}
	}

	// Размер рассчитывается только для входов
	if ins.Action == models.ActionBuy || ins.Action == models.ActionSell {
		ins.Size = a.sizer.Size(account.AvailableEquity, market.LastPrice, ins.StopLossPrice, a.config.Trading.CtVal)
		ins.Leverage = a.config.Trading.Leverage
	}

	logger.Debug("AGGREGATOR: сформирована инструкция",
		zap.String("action", string(ins.Action)),
		zap.String("size", ins.Size),
		zap.Float64("stopLoss", ins.StopLossPrice),
		zap.String("rationale", ins.Rationale))

	// Сохраняем решение в хранилище
	if err := a.storage.SaveInstruction(ctx, a.config.Trading.InstID, ins); err != nil {
		logger.Warn("Не удалось сохранить решение", zap.Error(err))
	}

	return ins
}
