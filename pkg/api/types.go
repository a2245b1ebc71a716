package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/exsim/pkg/exchange/book"
)

// ==============================
// Request Types
// ==============================

// CreateAssetRequest lists a new pair and optionally seeds its market.
type CreateAssetRequest struct {
	Base          string          `json:"base"`
	Quote         string          `json:"quote"`
	BaseDecimals  int32           `json:"base_decimals,omitempty"`
	QuoteDecimals int32           `json:"quote_decimals,omitempty"`
	MinQty        decimal.Decimal `json:"min_qty,omitempty"`
	MinPrice      decimal.Decimal `json:"min_price,omitempty"`
	MinQtyPercent decimal.Decimal `json:"min_qty_percent,omitempty"`
	SeedPrice     decimal.Decimal `json:"seed_price,omitempty"`
	SeedBid       decimal.Decimal `json:"seed_bid,omitempty"`
	SeedAsk       decimal.Decimal `json:"seed_ask,omitempty"`
	MarketQty     decimal.Decimal `json:"market_qty,omitempty"`
}

// SubmitOrderRequest places a limit or market order for an agent.
type SubmitOrderRequest struct {
	Ticker string          `json:"ticker"`
	Side   string          `json:"side"` // "buy" | "sell"
	Type   string          `json:"type"` // "limit" | "market"
	Price  decimal.Decimal `json:"price,omitempty"`
	Qty    decimal.Decimal `json:"qty"`
	Agent  string          `json:"agent"`
}

// CancelOrderRequest cancels one resting order.
type CancelOrderRequest struct {
	Ticker  string `json:"ticker"`
	OrderID string `json:"order_id"`
}

// CancelAllRequest cancels every resting order an agent has on a ticker.
type CancelAllRequest struct {
	Ticker string `json:"ticker"`
	Agent  string `json:"agent"`
}

// RegisterAgentRequest creates an agent; the generated name comes back in
// the response and is the handle for every later call.
type RegisterAgentRequest struct {
	Name          string                     `json:"name"`
	InitialAssets map[string]decimal.Decimal `json:"initial_assets,omitempty"`
}

// BalanceRequest credits or debits an agent outside the order book.
type BalanceRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Asset  string          `json:"asset,omitempty"` // cash endpoints ignore this
	Reason string          `json:"reason,omitempty"`
}

// ==============================
// Response Types
// ==============================

// OrderInfo is the wire form of an order; the enum fields serialize as
// their string names.
type OrderInfo struct {
	ID          string          `json:"id"`
	Ticker      string          `json:"ticker"`
	Side        string          `json:"side"`
	Type        string          `json:"type"`
	Price       decimal.Decimal `json:"price"`
	Qty         decimal.Decimal `json:"qty"`
	InitialQty  decimal.Decimal `json:"initial_qty"`
	Creator     string          `json:"creator"`
	Fee         decimal.Decimal `json:"fee"`
	Status      string          `json:"status"`
	Accounting  string          `json:"accounting"`
	TimeInForce string          `json:"time_in_force"`
	CreatedAt   time.Time       `json:"created_at"`
}

func orderInfo(o *book.Order) OrderInfo {
	return OrderInfo{
		ID:          o.ID,
		Ticker:      o.Ticker,
		Side:        o.Side.String(),
		Type:        o.Type.String(),
		Price:       o.Price,
		Qty:         o.Qty,
		InitialQty:  o.InitialQty,
		Creator:     o.Creator,
		Fee:         o.Fee,
		Status:      o.Status.String(),
		Accounting:  o.Accounting.String(),
		TimeInForce: o.TimeInForce,
		CreatedAt:   o.CreatedAt,
	}
}

func orderInfos(orders []*book.Order) []OrderInfo {
	out := make([]OrderInfo, len(orders))
	for i, o := range orders {
		out[i] = orderInfo(o)
	}
	return out
}

// PairInfo describes a listed pair.
type PairInfo struct {
	Ticker        string          `json:"ticker"`
	Base          string          `json:"base"`
	Quote         string          `json:"quote"`
	BaseDecimals  int32           `json:"base_decimals"`
	QuoteDecimals int32           `json:"quote_decimals"`
	MinQty        decimal.Decimal `json:"min_qty"`
	MinPrice      decimal.Decimal `json:"min_price"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
}

// BookSnapshot is the aggregated depth of one side pair.
type BookSnapshot struct {
	Ticker    string       `json:"ticker"`
	Bids      []book.Level `json:"bids"`
	Asks      []book.Level `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// QuoteInfo pairs best bid and ask in wire form.
type QuoteInfo struct {
	BestBid OrderInfo `json:"best_bid"`
	BestAsk OrderInfo `json:"best_ask"`
}

// ChainStatus summarizes the settlement layer.
type ChainStatus struct {
	MempoolSize  int `json:"mempool_size"`
	PendingLegs  int `json:"pending_legs"`
	ConfirmDelay int `json:"confirm_delay_ticks"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Types
// ==============================

// WSSubscribeRequest is the client-side subscribe/unsubscribe frame.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// ClockUpdate announces simulation time on the "clock" channel.
type ClockUpdate struct {
	Type string    `json:"type"`
	Now  time.Time `json:"now"`
}

// BookUpdate carries a depth snapshot on "orderbook:<ticker>".
type BookUpdate struct {
	Type      string       `json:"type"`
	Ticker    string       `json:"ticker"`
	Bids      []book.Level `json:"bids"`
	Asks      []book.Level `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}
