package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/skalibog/ofta/internal/config"
	"github.com/skalibog/ofta/pkg/logger"
	"github.com/skalibog/ofta/pkg/models"
	"go.uber.org/zap"
)

// OKXClient клиент REST API OKX v5.
// Все приватные запросы подписываются: Base64(HMAC-SHA256(secret,
// timestamp + method + requestPath + body)), timestamp - ISO-8601 UTC.
type OKXClient struct {
	apiKey     string
	secretKey  string
	passphrase string
	baseURL    string
	simulated  bool
	httpClient *http.Client
}

// envelope стандартный конверт ответа OKX: code "0" - успех,
// любой другой код - прикладная ошибка с текстом в msg
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// NewOKXClient создает новый клиент OKX
func NewOKXClient(cfg config.OKXConfig) *OKXClient {
	return &OKXClient{
		apiKey:     cfg.APIKey,
		secretKey:  cfg.SecretKey,
		passphrase: cfg.Passphrase,
		baseURL:    cfg.BaseURL,
		simulated:  cfg.Mode != "real",
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// sign подписывает каноническую строку запроса
func (c *OKXClient) sign(timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(timestamp + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// request выполняет запрос к API и разбирает конверт ответа.
// private добавляет подпись и учетные заголовки.
func (c *OKXClient) request(ctx context.Context, method, requestPath string, body any, private bool, out any) error {
	bodyStr := ""
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ошибка сериализации тела запроса: %w", err)
		}
		bodyStr = string(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bytes.NewBufferString(bodyStr))
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if private {
		timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
		req.Header.Set("OK-ACCESS-KEY", c.apiKey)
		req.Header.Set("OK-ACCESS-SIGN", c.sign(timestamp, method, requestPath, bodyStr))
		req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
		req.Header.Set("OK-ACCESS-PASSPHRASE", c.passphrase)
		if c.simulated {
			req.Header.Set("x-simulated-trading", "1")
		} else {
			req.Header.Set("x-simulated-trading", "0")
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка сетевого вызова %s %s: %w", method, requestPath, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("ошибка разбора ответа %s: %w", requestPath, err)
	}

	if env.Code != "0" {
		return fmt.Errorf("биржа отклонила запрос %s: код %s: %s", requestPath, env.Code, env.Msg)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("ошибка разбора данных ответа %s: %w", requestPath, err)
		}
	}

	return nil
}

// Candles получает исторические свечи, от старых к новым
func (c *OKXClient) Candles(ctx context.Context, instID, bar string, limit int) ([]*models.Candle, error) {
	path := fmt.Sprintf("/api/v5/market/candles?instId=%s&bar=%s&limit=%d", instID, bar, limit)

	var rows [][]string
	if err := c.request(ctx, http.MethodGet, path, nil, false, &rows); err != nil {
		return nil, fmt.Errorf("ошибка получения свечей: %w", err)
	}

	// OKX отдает свечи от новых к старым
	candles := make([]*models.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) < 6 {
			continue
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		candles = append(candles, &models.Candle{
			InstID:    instID,
			Bar:       bar,
			Timestamp: time.UnixMilli(ms),
			Open:      parseFloat(row[1]),
			High:      parseFloat(row[2]),
			Low:       parseFloat(row[3]),
			Close:     parseFloat(row[4]),
			Volume:    parseFloat(row[5]),
		})
	}

	return candles, nil
}

// LastPrice получает последнюю цену сделки
func (c *OKXClient) LastPrice(ctx context.Context, instID string) (float64, error) {
	path := "/api/v5/market/ticker?instId=" + instID

	var data []struct {
		Last string `json:"last"`
	}
	if err := c.request(ctx, http.MethodGet, path, nil, false, &data); err != nil {
		return 0, fmt.Errorf("ошибка получения тикера: %w", err)
	}
	if len(data) == 0 {
		return 0, fmt.Errorf("нет данных тикера для %s", instID)
	}

	return parseFloat(data[0].Last), nil
}

// FundingRate получает текущую ставку финансирования
func (c *OKXClient) FundingRate(ctx context.Context, instID string) (*models.FundingRate, error) {
	path := "/api/v5/public/funding-rate?instId=" + instID

	var data []struct {
		FundingRate     string `json:"fundingRate"`
		NextFundingTime string `json:"nextFundingTime"`
	}
	if err := c.request(ctx, http.MethodGet, path, nil, false, &data); err != nil {
		return nil, fmt.Errorf("ошибка получения ставки финансирования: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("нет данных о ставке финансирования для %s", instID)
	}

	next := time.Time{}
	if ms, err := strconv.ParseInt(data[0].NextFundingTime, 10, 64); err == nil {
		next = time.UnixMilli(ms)
	}

	return &models.FundingRate{
		InstID:          instID,
		Rate:            data[0].FundingRate,
		Timestamp:       time.Now(),
		NextFundingTime: next,
	}, nil
}

// OpenInterest получает текущий открытый интерес
func (c *OKXClient) OpenInterest(ctx context.Context, instID string) (*models.OpenInterest, error) {
	path := "/api/v5/public/open-interest?instId=" + instID

	var data []struct {
		Oi string `json:"oi"`
	}
	if err := c.request(ctx, http.MethodGet, path, nil, false, &data); err != nil {
		return nil, fmt.Errorf("ошибка получения открытого интереса: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("нет данных об открытом интересе для %s", instID)
	}

	return &models.OpenInterest{
		InstID:    instID,
		Value:     data[0].Oi,
		Timestamp: time.Now(),
	}, nil
}

// Instrument получает параметры инструмента (стоимость контракта, шаги цены и лота)
func (c *OKXClient) Instrument(ctx context.Context, instID string) (*models.Instrument, error) {
	path := "/api/v5/public/instruments?instType=SWAP&instId=" + instID

	var data []models.Instrument
	if err := c.request(ctx, http.MethodGet, path, nil, false, &data); err != nil {
		return nil, fmt.Errorf("ошибка получения инструмента: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("инструмент %s не найден", instID)
	}

	return &data[0], nil
}

// Balance получает общий и доступный капитал аккаунта
func (c *OKXClient) Balance(ctx context.Context, ccy string) (float64, float64, error) {
	path := "/api/v5/account/balance?ccy=" + ccy

	var data []struct {
		TotalEq string `json:"totalEq"`
		Details []struct {
			Ccy     string `json:"ccy"`
			AvailEq string `json:"availEq"`
		} `json:"details"`
	}
	if err := c.request(ctx, http.MethodGet, path, nil, true, &data); err != nil {
		return 0, 0, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("нет данных баланса")
	}

	total := parseFloat(data[0].TotalEq)
	available := 0.0
	for _, d := range data[0].Details {
		if d.Ccy == ccy {
			available = parseFloat(d.AvailEq)
		}
	}

	return total, available, nil
}

// Positions получает открытые позиции по инструменту
func (c *OKXClient) Positions(ctx context.Context, instID string) ([]*models.Position, error) {
	path := "/api/v5/account/positions?instId=" + instID

	var data []struct {
		InstID   string `json:"instId"`
		PosSide  string `json:"posSide"`
		Pos      string `json:"pos"`
		AvgPx    string `json:"avgPx"`
		Upl      string `json:"upl"`
		UplRatio string `json:"uplRatio"`
		MgnMode  string `json:"mgnMode"`
		LiqPx    string `json:"liqPx"`
		CTime    string `json:"cTime"`
	}
	if err := c.request(ctx, http.MethodGet, path, nil, true, &data); err != nil {
		return nil, fmt.Errorf("ошибка получения позиций: %w", err)
	}

	positions := make([]*models.Position, 0, len(data))
	for _, p := range data {
		size := parseFloat(p.Pos)
		if size == 0 {
			continue
		}

		created := time.Time{}
		if ms, err := strconv.ParseInt(p.CTime, 10, 64); err == nil {
			created = time.UnixMilli(ms)
		}

		positions = append(positions, &models.Position{
			InstID:             p.InstID,
			Side:               models.PositionSide(p.PosSide),
			Size:               size,
			AvgPrice:           parseFloat(p.AvgPx),
			UnrealizedPnL:      parseFloat(p.Upl),
			UnrealizedPnLRatio: parseFloat(p.UplRatio),
			MarginMode:         p.MgnMode,
			LiquidationPrice:   parseFloat(p.LiqPx),
			CreatedAt:          created,
		})
	}

	return positions, nil
}

// PendingAlgoOrders получает отложенные условные ордера (conditional и oco)
func (c *OKXClient) PendingAlgoOrders(ctx context.Context, instID string) ([]*models.PendingAlgoOrder, error) {
	var orders []*models.PendingAlgoOrder

	for _, ordType := range []string{"conditional", "oco"} {
		path := fmt.Sprintf("/api/v5/trade/orders-algo-pending?ordType=%s&instId=%s", ordType, instID)

		var data []struct {
			AlgoID      string `json:"algoId"`
			InstID      string `json:"instId"`
			PosSide     string `json:"posSide"`
			OrdType     string `json:"ordType"`
			SlTriggerPx string `json:"slTriggerPx"`
			TpTriggerPx string `json:"tpTriggerPx"`
		}
		if err := c.request(ctx, http.MethodGet, path, nil, true, &data); err != nil {
			return nil, fmt.Errorf("ошибка получения алго-ордеров: %w", err)
		}

		for _, o := range data {
			orders = append(orders, &models.PendingAlgoOrder{
				AlgoID:      o.AlgoID,
				InstID:      o.InstID,
				PosSide:     o.PosSide,
				OrdType:     o.OrdType,
				SlTriggerPx: o.SlTriggerPx,
				TpTriggerPx: o.TpTriggerPx,
			})
		}
	}

	return orders, nil
}

// AccountPositionMode читает режим позиций аккаунта
func (c *OKXClient) AccountPositionMode(ctx context.Context) (string, error) {
	var data []struct {
		PosMode string `json:"posMode"`
	}
	if err := c.request(ctx, http.MethodGet, "/api/v5/account/config", nil, true, &data); err != nil {
		return "", fmt.Errorf("ошибка чтения конфигурации аккаунта: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("нет данных конфигурации аккаунта")
	}

	return data[0].PosMode, nil
}

// SetPositionMode устанавливает режим позиций (long_short_mode - двунаправленный)
func (c *OKXClient) SetPositionMode(ctx context.Context, posMode string) error {
	body := map[string]string{"posMode": posMode}
	if err := c.request(ctx, http.MethodPost, "/api/v5/account/set-position-mode", body, true, nil); err != nil {
		return fmt.Errorf("ошибка установки режима позиций: %w", err)
	}
	return nil
}

// SetLeverage устанавливает плечо для стороны позиции
func (c *OKXClient) SetLeverage(ctx context.Context, instID string, leverage int, mgnMode, posSide string) error {
	body := map[string]string{
		"instId":  instID,
		"lever":   strconv.Itoa(leverage),
		"mgnMode": mgnMode,
		"posSide": posSide,
	}
	if err := c.request(ctx, http.MethodPost, "/api/v5/account/set-leverage", body, true, nil); err != nil {
		return fmt.Errorf("ошибка установки плеча: %w", err)
	}
	return nil
}

// PlaceOrder выставляет рыночный ордер, при наличии SlTriggerPx - со стопом
func (c *OKXClient) PlaceOrder(ctx context.Context, req *OrderRequest) error {
	if err := c.request(ctx, http.MethodPost, "/api/v5/trade/order", req, true, nil); err != nil {
		return fmt.Errorf("ошибка выставления ордера: %w", err)
	}

	logger.Info("Ордер выставлен",
		zap.String("instId", req.InstID),
		zap.String("side", req.Side),
		zap.String("posSide", req.PosSide),
		zap.String("sz", req.Sz),
		zap.String("slTriggerPx", req.SlTriggerPx))
	return nil
}

// ClosePosition закрывает позицию по рынку
func (c *OKXClient) ClosePosition(ctx context.Context, instID, mgnMode, posSide string) error {
	body := map[string]string{
		"instId":  instID,
		"mgnMode": mgnMode,
		"posSide": posSide,
	}
	if err := c.request(ctx, http.MethodPost, "/api/v5/trade/close-position", body, true, nil); err != nil {
		return fmt.Errorf("ошибка закрытия позиции %s: %w", posSide, err)
	}

	logger.Info("Позиция закрыта", zap.String("instId", instID), zap.String("posSide", posSide))
	return nil
}

// CancelAlgoOrders отменяет условные ордера
func (c *OKXClient) CancelAlgoOrders(ctx context.Context, orders []*models.PendingAlgoOrder) error {
	if len(orders) == 0 {
		return nil
	}

	body := make([]map[string]string, 0, len(orders))
	for _, o := range orders {
		body = append(body, map[string]string{
			"algoId": o.AlgoID,
			"instId": o.InstID,
		})
	}

	if err := c.request(ctx, http.MethodPost, "/api/v5/trade/cancel-algos", body, true, nil); err != nil {
		return fmt.Errorf("ошибка отмены алго-ордеров: %w", err)
	}
	return nil
}

// PlaceAlgoOrder выставляет условный ордер (стоп/тейк)
func (c *OKXClient) PlaceAlgoOrder(ctx context.Context, req *AlgoOrderRequest) error {
	if err := c.request(ctx, http.MethodPost, "/api/v5/trade/order-algo", req, true, nil); err != nil {
		return fmt.Errorf("ошибка выставления алго-ордера: %w", err)
	}

	logger.Info("Алго-ордер выставлен",
		zap.String("instId", req.InstID),
		zap.String("posSide", req.PosSide),
		zap.String("slTriggerPx", req.SlTriggerPx),
		zap.String("tpTriggerPx", req.TpTriggerPx))
	return nil
}

// AddMargin добавляет маржу к изолированной позиции
func (c *OKXClient) AddMargin(ctx context.Context, instID, posSide string, amount float64) error {
	body := map[string]string{
		"instId":  instID,
		"posSide": posSide,
		"type":    "add",
		"amt":     strconv.FormatFloat(amount, 'f', -1, 64),
	}
	if err := c.request(ctx, http.MethodPost, "/api/v5/account/position/margin-balance", body, true, nil); err != nil {
		return fmt.Errorf("ошибка добавления маржи: %w", err)
	}
	return nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
