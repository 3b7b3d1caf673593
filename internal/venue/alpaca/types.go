package alpaca

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is the trading API account object. Money fields arrive as JSON
// strings and are decoded exactly before conversion to float64.
type Account struct {
	ID                string          `json:"id"`
	AccountNumber     string          `json:"account_number"`
	Status            string          `json:"status"`
	Currency          string          `json:"currency"`
	Cash              decimal.Decimal `json:"cash"`
	Equity            decimal.Decimal `json:"equity"`
	LastEquity        decimal.Decimal `json:"last_equity"`
	BuyingPower       decimal.Decimal `json:"buying_power"`
	InitialMargin     decimal.Decimal `json:"initial_margin"`
	MaintenanceMargin decimal.Decimal `json:"maintenance_margin"`
	Multiplier        decimal.Decimal `json:"multiplier"`
	TradingBlocked    bool            `json:"trading_blocked"`
}

// Position is one open position as reported by the trading API.
type Position struct {
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Qty           decimal.Decimal `json:"qty"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPL  decimal.Decimal `json:"unrealized_pl"`
}

// Order is the trading API order object.
type Order struct {
	ID             string              `json:"id"`
	ClientOrderID  string              `json:"client_order_id"`
	Symbol         string              `json:"symbol"`
	Side           string              `json:"side"`
	Type           string              `json:"type"`
	TimeInForce    string              `json:"time_in_force"`
	Qty            decimal.Decimal     `json:"qty"`
	FilledQty      decimal.Decimal     `json:"filled_qty"`
	FilledAvgPrice decimal.NullDecimal `json:"filled_avg_price"`
	LimitPrice     decimal.NullDecimal `json:"limit_price"`
	StopPrice      decimal.NullDecimal `json:"stop_price"`
	Status         string              `json:"status"`
	SubmittedAt    time.Time           `json:"submitted_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	FilledAt       *time.Time          `json:"filled_at"`
}

// OrderRequest is the POST /v2/orders body.
type OrderRequest struct {
	Symbol        string           `json:"symbol"`
	Qty           decimal.Decimal  `json:"qty"`
	Side          string           `json:"side"`
	Type          string           `json:"type"`
	TimeInForce   string           `json:"time_in_force"`
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice     *decimal.Decimal `json:"stop_price,omitempty"`
	ClientOrderID string           `json:"client_order_id,omitempty"`
}

// Clock is the market clock.
type Clock struct {
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

// Bar is one data API candle.
type Bar struct {
	T time.Time       `json:"t"`
	O decimal.Decimal `json:"o"`
	H decimal.Decimal `json:"h"`
	L decimal.Decimal `json:"l"`
	C decimal.Decimal `json:"c"`
	V decimal.Decimal `json:"v"`
}

type barsResponse struct {
	Symbol        string `json:"symbol"`
	Bars          []Bar  `json:"bars"`
	NextPageToken string `json:"next_page_token"`
}

type latestTradeResponse struct {
	Symbol string `json:"symbol"`
	Trade  struct {
		T time.Time       `json:"t"`
		P decimal.Decimal `json:"p"`
		S decimal.Decimal `json:"s"`
	} `json:"trade"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
