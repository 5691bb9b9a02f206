package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/skalibog/ofta/internal/config"
	"github.com/skalibog/ofta/internal/exchange"
	"github.com/skalibog/ofta/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient управляемый клиент биржи для проверки последовательности вызовов
type fakeClient struct {
	posMode       string
	leverageErr   error
	closeErrs     map[string]error
	pending       []*models.PendingAlgoOrder
	pendingErr    error
	placedOrders  []*exchange.OrderRequest
	placedAlgos   []*exchange.AlgoOrderRequest
	cancelled     []*models.PendingAlgoOrder
	leverageCalls int
	closedSides   []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		posMode:   "long_short_mode",
		closeErrs: map[string]error{},
	}
}

func (f *fakeClient) Candles(context.Context, string, string, int) ([]*models.Candle, error) {
	return nil, nil
}
func (f *fakeClient) LastPrice(context.Context, string) (float64, error) { return 0, nil }
func (f *fakeClient) FundingRate(context.Context, string) (*models.FundingRate, error) {
	return nil, nil
}
func (f *fakeClient) OpenInterest(context.Context, string) (*models.OpenInterest, error) {
	return nil, nil
}
func (f *fakeClient) Instrument(context.Context, string) (*models.Instrument, error) {
	return nil, nil
}
func (f *fakeClient) Balance(context.Context, string) (float64, float64, error) { return 0, 0, nil }
func (f *fakeClient) Positions(context.Context, string) ([]*models.Position, error) {
	return nil, nil
}
func (f *fakeClient) PendingAlgoOrders(context.Context, string) ([]*models.PendingAlgoOrder, error) {
	return f.pending, f.pendingErr
}
func (f *fakeClient) AccountPositionMode(context.Context) (string, error) { return f.posMode, nil }
func (f *fakeClient) SetPositionMode(context.Context, string) error       { return nil }

func (f *fakeClient) SetLeverage(context.Context, string, int, string, string) error {
	f.leverageCalls++
	return f.leverageErr
}

func (f *fakeClient) PlaceOrder(_ context.Context, req *exchange.OrderRequest) error {
	f.placedOrders = append(f.placedOrders, req)
	return nil
}

func (f *fakeClient) ClosePosition(_ context.Context, _, _, posSide string) error {
	f.closedSides = append(f.closedSides, posSide)
	return f.closeErrs[posSide]
}

func (f *fakeClient) CancelAlgoOrders(_ context.Context, orders []*models.PendingAlgoOrder) error {
	f.cancelled = append(f.cancelled, orders...)
	return nil
}

func (f *fakeClient) PlaceAlgoOrder(_ context.Context, req *exchange.AlgoOrderRequest) error {
	f.placedAlgos = append(f.placedAlgos, req)
	return nil
}

func (f *fakeClient) AddMargin(context.Context, string, string, float64) error { return nil }

func testTrading() config.TradingConfig {
	return config.TradingConfig{
		InstID:     "ETH-USDT-SWAP",
		MarginMode: "cross",
		Leverage:   10,
		CtVal:      0.1,
		Currency:   "USDT",
	}
}

func TestExecuteHoldDoesNothing(t *testing.T) {
	client := newFakeClient()
	e := NewExecutor(client, testTrading())

	err := e.Execute(context.Background(), &models.Instruction{Action: models.ActionHold, Size: "0"})

	require.NoError(t, err)
	assert.Empty(t, client.placedOrders)
	assert.Zero(t, client.leverageCalls)
}

func TestExecuteBuyPlacesMarketOrderWithStop(t *testing.T) {
	client := newFakeClient()
	e := NewExecutor(client, testTrading())
	ins := &models.Instruction{
		Action:        models.ActionBuy,
		Size:          "12.345",
		Leverage:      10,
		StopLossPrice: 1950.5,
	}

	err := e.Execute(context.Background(), ins)

	require.NoError(t, err)
	assert.Equal(t, 1, client.leverageCalls)
	require.Len(t, client.placedOrders, 1)

	order := client.placedOrders[0]
	assert.Equal(t, "buy", order.Side)
	assert.Equal(t, "long", order.PosSide)
	assert.Equal(t, "market", order.OrdType)
	assert.Equal(t, "12.35", order.Sz, "размер округляется до двух знаков")
	assert.Equal(t, "1950.5", order.SlTriggerPx)
	assert.Equal(t, "-1", order.SlOrdPx)
	assert.NotEmpty(t, order.ClOrdID)
	assert.LessOrEqual(t, len(order.ClOrdID), 32)
	assert.NotContains(t, order.ClOrdID, "-")
}

func TestExecuteSellBelowMinimumSize(t *testing.T) {
	client := newFakeClient()
	e := NewExecutor(client, testTrading())
	ins := &models.Instruction{Action: models.ActionSell, Size: "0.004"}

	err := e.Execute(context.Background(), ins)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "меньше минимального")
	assert.Empty(t, client.placedOrders)
}

func TestExecuteEnterLeverageFailureIsFatal(t *testing.T) {
	client := newFakeClient()
	client.leverageErr = errors.New("lever error")
	e := NewExecutor(client, testTrading())
	ins := &models.Instruction{Action: models.ActionBuy, Size: "1", Leverage: 10}

	err := e.Execute(context.Background(), ins)

	require.Error(t, err)
	assert.Empty(t, client.placedOrders)
}

func TestExecuteCloseSucceedsIfEitherSideCloses(t *testing.T) {
	client := newFakeClient()
	client.closeErrs["long"] = errors.New("код 51023: Position does not exist")
	e := NewExecutor(client, testTrading())

	err := e.Execute(context.Background(), &models.Instruction{Action: models.ActionClose, Size: "0"})

	require.NoError(t, err)
	assert.Equal(t, []string{"long", "short"}, client.closedSides)
}

func TestExecuteCloseBothSidesFail(t *testing.T) {
	client := newFakeClient()
	client.closeErrs["long"] = errors.New("ошибка long")
	client.closeErrs["short"] = errors.New("ошибка short")
	e := NewExecutor(client, testTrading())

	err := e.Execute(context.Background(), &models.Instruction{Action: models.ActionClose, Size: "0"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ошибка long")
	assert.Contains(t, err.Error(), "ошибка short")
}

func TestExecuteUpdateSLTPReplacesMatchingAlgos(t *testing.T) {
	client := newFakeClient()
	client.pending = []*models.PendingAlgoOrder{
		{AlgoID: "1", InstID: "ETH-USDT-SWAP", PosSide: "long", OrdType: "conditional"},
		{AlgoID: "2", InstID: "ETH-USDT-SWAP", PosSide: "short", OrdType: "conditional"},
		{AlgoID: "3", InstID: "BTC-USDT-SWAP", PosSide: "long", OrdType: "conditional"},
		{AlgoID: "4", InstID: "ETH-USDT-SWAP", PosSide: "long", OrdType: "trigger"},
	}
	e := NewExecutor(client, testTrading())
	ins := &models.Instruction{
		Action:        models.ActionUpdateSLTP,
		PosSide:       models.PositionLong,
		Size:          "10",
		StopLossPrice: 2000,
	}

	err := e.Execute(context.Background(), ins)

	require.NoError(t, err)
	// Отменяется только условный ордер своего инструмента и стороны
	require.Len(t, client.cancelled, 1)
	assert.Equal(t, "1", client.cancelled[0].AlgoID)

	require.Len(t, client.placedAlgos, 1)
	algo := client.placedAlgos[0]
	assert.Equal(t, "sell", algo.Side, "закрывающая сторона противоположна позиции")
	assert.Equal(t, "long", algo.PosSide)
	assert.Equal(t, "conditional", algo.OrdType)
	assert.True(t, algo.ReduceOnly)
	assert.Equal(t, "2000", algo.SlTriggerPx)
	assert.Equal(t, "-1", algo.SlOrdPx)
}

func TestExecuteUpdateSLTPCancelOnlyIsTerminal(t *testing.T) {
	client := newFakeClient()
	client.pending = []*models.PendingAlgoOrder{
		{AlgoID: "1", InstID: "ETH-USDT-SWAP", PosSide: "short", OrdType: "oco"},
	}
	e := NewExecutor(client, testTrading())
	ins := &models.Instruction{
		Action:  models.ActionUpdateSLTP,
		PosSide: models.PositionShort,
		Size:    "10",
	}

	err := e.Execute(context.Background(), ins)

	require.NoError(t, err)
	assert.Len(t, client.cancelled, 1)
	assert.Empty(t, client.placedAlgos)
}

func TestExecuteUpdateSLTPFetchFailureIsFatal(t *testing.T) {
	client := newFakeClient()
	client.pendingErr = errors.New("timeout")
	e := NewExecutor(client, testTrading())
	ins := &models.Instruction{
		Action:        models.ActionUpdateSLTP,
		PosSide:       models.PositionLong,
		Size:          "10",
		StopLossPrice: 2000,
	}

	err := e.Execute(context.Background(), ins)

	// Без списка отложенных ордеров замена стопа не выполняется:
	// новый ордер поверх неотмененного старого удвоил бы закрывающий объем
	require.Error(t, err)
	assert.Empty(t, client.cancelled)
	assert.Empty(t, client.placedAlgos)
}

func TestExecuteUpdateSLTPWithoutPosSide(t *testing.T) {
	client := newFakeClient()
	e := NewExecutor(client, testTrading())

	err := e.Execute(context.Background(), &models.Instruction{
		Action:        models.ActionUpdateSLTP,
		Size:          "10",
		StopLossPrice: 2000,
	})

	require.Error(t, err)
}
