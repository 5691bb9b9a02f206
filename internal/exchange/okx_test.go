package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skalibog/ofta/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignCanonicalString(t *testing.T) {
	c := NewOKXClient(config.OKXConfig{SecretKey: "SECRET"})

	// Эталонные подписи: Base64(HMAC-SHA256(secret, ts+method+path+body))
	sig := c.sign("2020-01-01T00:00:00.000Z", "GET", "/api/v5/account/balance?ccy=USDT", "")
	assert.Equal(t, "77qr47XpK1gnWL8MiP7OFQUaQW4YjUJlh+YSnbKq5m8=", sig)

	body := `{"instId":"ETH-USDT-SWAP","tdMode":"cross","side":"buy","posSide":"long","ordType":"market","sz":"1"}`
	sig = c.sign("2020-01-01T00:00:00.000Z", "POST", "/api/v5/trade/order", body)
	assert.Equal(t, "ME1VjfM2+7fxdiGrUST90sAaQFbCGSthzw9z1HoXWf0=", sig)
}

func TestRequestPrivateHeaders(t *testing.T) {
	var captured http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Clone()
		w.Write([]byte(`{"code":"0","msg":"","data":[{"posMode":"long_short_mode"}]}`))
	}))
	defer server.Close()

	c := NewOKXClient(config.OKXConfig{
		APIKey:     "key",
		SecretKey:  "SECRET",
		Passphrase: "phrase",
		BaseURL:    server.URL,
		Mode:       "demo",
	})

	mode, err := c.AccountPositionMode(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "long_short_mode", mode)
	assert.Equal(t, "key", captured.Get("OK-ACCESS-KEY"))
	assert.Equal(t, "phrase", captured.Get("OK-ACCESS-PASSPHRASE"))
	assert.NotEmpty(t, captured.Get("OK-ACCESS-SIGN"))
	assert.NotEmpty(t, captured.Get("OK-ACCESS-TIMESTAMP"))
	assert.Equal(t, "1", captured.Get("x-simulated-trading"), "демо-режим помечается заголовком")
}

func TestRequestRealModeHeader(t *testing.T) {
	var captured http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Clone()
		w.Write([]byte(`{"code":"0","msg":"","data":[{"posMode":"long_short_mode"}]}`))
	}))
	defer server.Close()

	c := NewOKXClient(config.OKXConfig{BaseURL: server.URL, Mode: "real"})

	_, err := c.AccountPositionMode(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "0", captured.Get("x-simulated-trading"))
}

func TestRequestNonZeroCodeIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"51023","msg":"Position does not exist","data":[]}`))
	}))
	defer server.Close()

	c := NewOKXClient(config.OKXConfig{BaseURL: server.URL})

	err := c.ClosePosition(context.Background(), "ETH-USDT-SWAP", "cross", "long")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "51023")
	assert.Contains(t, err.Error(), "Position does not exist")
}

func TestCandlesReversedToChronologicalOrder(t *testing.T) {
	// OKX отдает свечи от новых к старым
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","msg":"","data":[
			["1700003600000","2010","2015","2005","2012","150"],
			["1700000000000","2000","2005","1995","2002","100"]
		]}`))
	}))
	defer server.Close()

	c := NewOKXClient(config.OKXConfig{BaseURL: server.URL})

	candles, err := c.Candles(context.Background(), "ETH-USDT-SWAP", "1H", 2)

	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.True(t, candles[0].Timestamp.Before(candles[1].Timestamp), "свечи от старых к новым")
	assert.Equal(t, 2002.0, candles[0].Close)
	assert.Equal(t, 2012.0, candles[1].Close)
	assert.Equal(t, "1H", candles[0].Bar)
}
