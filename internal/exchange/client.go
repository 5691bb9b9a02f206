package exchange

import (
	"context"

	"github.com/skalibog/ofta/internal/config"
	"github.com/skalibog/ofta/pkg/models"
)

// OrderRequest параметры рыночного ордера.
// Стоп-лосс прикрепляется к ордеру при выставлении, если указан SlTriggerPx.
type OrderRequest struct {
	InstID      string `json:"instId"`
	TdMode      string `json:"tdMode"`
	ClOrdID     string `json:"clOrdId,omitempty"`
	Side        string `json:"side"`
	PosSide     string `json:"posSide"`
	OrdType     string `json:"ordType"`
	Sz          string `json:"sz"`
	SlTriggerPx string `json:"slTriggerPx,omitempty"`
	SlOrdPx     string `json:"slOrdPx,omitempty"` // "-1" = исполнение по рынку
}

// AlgoOrderRequest параметры условного (алго) ордера стоп/тейк
type AlgoOrderRequest struct {
	InstID      string `json:"instId"`
	TdMode      string `json:"tdMode"`
	Side        string `json:"side"`
	PosSide     string `json:"posSide"`
	OrdType     string `json:"ordType"` // conditional
	Sz          string `json:"sz"`
	ReduceOnly  bool   `json:"reduceOnly"`
	SlTriggerPx string `json:"slTriggerPx,omitempty"`
	SlOrdPx     string `json:"slOrdPx,omitempty"`
	TpTriggerPx string `json:"tpTriggerPx,omitempty"`
	TpOrdPx     string `json:"tpOrdPx,omitempty"`
}

// Client интерфейс биржевого клиента. Две реализации: живой OKX-клиент
// и симулятор без сетевых вызовов. Выбор - конфигурацией на границе,
// решающий контур о симуляции не знает.
type Client interface {
	// Рыночные данные
	Candles(ctx context.Context, instID, bar string, limit int) ([]*models.Candle, error)
	LastPrice(ctx context.Context, instID string) (float64, error)
	FundingRate(ctx context.Context, instID string) (*models.FundingRate, error)
	OpenInterest(ctx context.Context, instID string) (*models.OpenInterest, error)
	Instrument(ctx context.Context, instID string) (*models.Instrument, error)

	// Аккаунт
	Balance(ctx context.Context, ccy string) (total, available float64, err error)
	Positions(ctx context.Context, instID string) ([]*models.Position, error)
	PendingAlgoOrders(ctx context.Context, instID string) ([]*models.PendingAlgoOrder, error)
	AccountPositionMode(ctx context.Context) (string, error)

	// Торговые операции
	SetPositionMode(ctx context.Context, posMode string) error
	SetLeverage(ctx context.Context, instID string, leverage int, mgnMode, posSide string) error
	PlaceOrder(ctx context.Context, req *OrderRequest) error
	ClosePosition(ctx context.Context, instID, mgnMode, posSide string) error
	CancelAlgoOrders(ctx context.Context, orders []*models.PendingAlgoOrder) error
	PlaceAlgoOrder(ctx context.Context, req *AlgoOrderRequest) error
	AddMargin(ctx context.Context, instID, posSide string, amount float64) error
}

// NewClient создает биржевой клиент по конфигурации:
// sim - симулятор, иначе живой клиент OKX
func NewClient(cfg config.OKXConfig, trading config.TradingConfig) Client {
	if cfg.Mode == "sim" {
		return NewSimClient(trading)
	}
	return NewOKXClient(cfg)
}
