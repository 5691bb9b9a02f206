package models

import (
	"time"
)

// Candle представляет свечу
type Candle struct {
	InstID    string
	Bar       string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// CrossKind вид пересечения скользящих средних
type CrossKind string

const (
	CrossGolden CrossKind = "golden" // быстрая пересекла медленную снизу вверх
	CrossDead   CrossKind = "dead"   // быстрая пересекла медленную сверху вниз
)

// CrossEvent представляет событие пересечения на серии младшего таймфрейма
type CrossEvent struct {
	Index     int
	Kind      CrossKind
	Price     float64
	Timestamp time.Time
}

// PositionSide направление позиции
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// Position представляет открытую позицию на бирже.
// Источник истины - биржевой аккаунт, локально позиция только читается.
type Position struct {
	InstID             string
	Side               PositionSide
	Size               float64 // в контрактах
	AvgPrice           float64
	UnrealizedPnL      float64
	UnrealizedPnLRatio float64
	MarginMode         string
	LiquidationPrice   float64
	CreatedAt          time.Time
	StopLossPrice      float64 // 0, если стоп не выставлен
	TakeProfitPrice    float64 // 0, если тейк не выставлен
}

// AccountSnapshot снимок состояния аккаунта, обновляется каждый цикл
type AccountSnapshot struct {
	TotalEquity     float64
	AvailableEquity float64
	UpdatedAt       time.Time
	Positions       []*Position
}

// PositionFor возвращает открытую позицию по инструменту, если она есть
func (s *AccountSnapshot) PositionFor(instID string) *Position {
	for _, p := range s.Positions {
		if p.InstID == instID && p.Size > 0 {
			return p
		}
	}
	return nil
}

// MarketSnapshot снимок рыночных данных для одного цикла.
// Две серии свечей: старший таймфрейм для тренда, младший для входов.
type MarketSnapshot struct {
	InstID       string
	TrendCandles []*Candle
	EntryCandles []*Candle
	LastPrice    float64
	CollectedAt  time.Time
}

// FundingRate представляет ставку финансирования
type FundingRate struct {
	InstID          string
	Rate            string
	Timestamp       time.Time
	NextFundingTime time.Time
}

// OpenInterest представляет открытый интерес
type OpenInterest struct {
	InstID    string
	Value     string
	Timestamp time.Time
}

// Instrument параметры торгового инструмента
type Instrument struct {
	InstID string `json:"instId"`
	TickSz string `json:"tickSz"`
	LotSz  string `json:"lotSz"`
	MinSz  string `json:"minSz"`
	CtVal  string `json:"ctVal"` // стоимость контракта в базовой валюте
	CtMult string `json:"ctMult"`
	State  string `json:"state"`
}

// PendingAlgoOrder отложенный условный ордер (стоп/тейк) на бирже
type PendingAlgoOrder struct {
	AlgoID      string
	InstID      string
	PosSide     string
	OrdType     string
	SlTriggerPx string
	TpTriggerPx string
}

// Action действие торговой инструкции
type Action string

const (
	ActionBuy        Action = "buy"
	ActionSell       Action = "sell"
	ActionClose      Action = "close"
	ActionUpdateSLTP Action = "update_sltp"
	ActionHold       Action = "hold"
)

// Instruction торговая инструкция - единственный выход решающего контура
// и единственный вход исполнителя. Ровно одна инструкция на цикл.
type Instruction struct {
	Action          Action
	Size            string // в контрактах, "0" для Hold/Close
	Leverage        int
	PosSide         PositionSide // для update_sltp: сторона управляемой позиции
	StopLossPrice   float64
	TakeProfitPrice float64 // сейчас всегда 0: фиксация прибыли идет через трейлинг-стоп
	Rationale       string
	Timestamp       time.Time
}
