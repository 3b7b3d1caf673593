package mtbridge

import "github.com/shopspring/decimal"

// MetaTrader order type codes.
const (
	opBuy       = 0
	opSell      = 1
	opBuyLimit  = 2
	opSellLimit = 3
	opBuyStop   = 4
	opSellStop  = 5
)

// Every bridge response may carry an error string even with a 200 status.
type envelope struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type connectResponse struct {
	envelope
	Connected bool `json:"connected"`
}

// Account is the bridge account object.
type Account struct {
	envelope
	Equity      decimal.Decimal `json:"equity"`
	Balance     decimal.Decimal `json:"balance"`
	Margin      decimal.Decimal `json:"margin"`
	FreeMargin  decimal.Decimal `json:"free_margin"`
	MarginLevel decimal.Decimal `json:"margin_level"`
	Leverage    decimal.Decimal `json:"leverage"`
	Currency    string          `json:"currency"`
}

// Position is one open MetaTrader position.
type Position struct {
	Ticket       int64           `json:"ticket"`
	Symbol       string          `json:"symbol"`
	Type         int             `json:"type"`
	Volume       decimal.Decimal `json:"volume"`
	OpenPrice    decimal.Decimal `json:"open_price"`
	PriceCurrent decimal.Decimal `json:"price_current"`
	OpenTime     int64           `json:"open_time"`
	SL           decimal.Decimal `json:"sl"`
	TP           decimal.Decimal `json:"tp"`
	Profit       decimal.Decimal `json:"profit"`
	Swap         decimal.Decimal `json:"swap"`
	Comment      string          `json:"comment"`
}

type positionsResponse struct {
	envelope
	Positions []Position `json:"positions"`
}

// Order is a pending or historical MetaTrader order.
type Order struct {
	Ticket     int64           `json:"ticket"`
	Symbol     string          `json:"symbol"`
	Type       int             `json:"type"`
	Volume     decimal.Decimal `json:"volume"`
	OpenPrice  decimal.Decimal `json:"open_price"`
	StopLoss   decimal.Decimal `json:"stoploss"`
	TakeProfit decimal.Decimal `json:"takeprofit"`
	ClosePrice decimal.Decimal `json:"close_price"`
	Profit     decimal.Decimal `json:"profit"`
	Status     string          `json:"status"`
	OpenTime   int64           `json:"open_time"`
	CloseTime  int64           `json:"close_time"`
	Comment    string          `json:"comment"`
}

type orderResponse struct {
	envelope
	Order Order `json:"order"`
}

type ordersResponse struct {
	envelope
	Orders []Order `json:"orders"`
}

// OrderRequest is the POST /order body. The bridge expects plain JSON
// numbers here.
type OrderRequest struct {
	Account    string  `json:"account"`
	Symbol     string  `json:"symbol"`
	Volume     float64 `json:"volume"`
	Type       int     `json:"type"`
	Price      float64 `json:"price"`
	Slippage   int     `json:"slippage"`
	StopLoss   float64 `json:"stoploss"`
	TakeProfit float64 `json:"takeprofit"`
	Comment    string  `json:"comment"`
}

type placeResponse struct {
	envelope
	Ticket int64 `json:"ticket"`
}

type cancelRequest struct {
	Account string `json:"account"`
	Ticket  int64  `json:"ticket"`
}

// Rate is one MetaTrader candle; Time is a unix timestamp.
type Rate struct {
	Time       int64           `json:"time"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	TickVolume decimal.Decimal `json:"tick_volume"`
}

type ratesResponse struct {
	envelope
	Rates []Rate `json:"rates"`
}

type tickResponse struct {
	envelope
	Tick struct {
		Bid decimal.Decimal `json:"bid"`
		Ask decimal.Decimal `json:"ask"`
	} `json:"tick"`
}
