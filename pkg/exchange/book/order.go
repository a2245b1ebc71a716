package book

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side of an order.
type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Type distinguishes limit orders (price-constrained, may rest) from market
// orders (take whatever liquidity exists, remainder is dropped).
type Type int8

const (
	Limit Type = iota
	Market
)

func (t Type) String() string {
	if t == Market {
		return "market"
	}
	return "limit"
}

// Status represents the lifecycle state of an order.
type Status int8

const (
	StatusOpen Status = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Accounting reports the funds/assets check outcome for an order.
// Insufficiency is a result value, not an error: callers branch on it
// without exception-style handling.
type Accounting int8

const (
	AccountingOK Accounting = iota
	InsufficientFunds
	InsufficientAssets
)

func (a Accounting) String() string {
	switch a {
	case AccountingOK:
		return "ok"
	case InsufficientFunds:
		return "insufficient_funds"
	case InsufficientAssets:
		return "insufficient_assets"
	default:
		return "unknown"
	}
}

// NullQuoteCreator marks the sentinel order returned by BestBid/BestAsk when
// a side is empty. Callers stay branch-free: price and qty are zero.
const NullQuoteCreator = "null_quote"

// Order is a limit or market order submitted against a pair's book.
// Qty is the remaining (unfilled) quantity; InitialQty never changes.
type Order struct {
	ID          string          `json:"id"`
	Ticker      string          `json:"ticker"`
	Side        Side            `json:"-"`
	Type        Type            `json:"-"`
	Price       decimal.Decimal `json:"price"`
	Qty         decimal.Decimal `json:"qty"`
	InitialQty  decimal.Decimal `json:"initial_qty"`
	Creator     string          `json:"creator"`
	Fee         decimal.Decimal `json:"fee"`
	Status      Status          `json:"-"`
	Accounting  Accounting      `json:"-"`
	TimeInForce string          `json:"time_in_force"`
	CreatedAt   time.Time       `json:"created_at"`

	// seq is the book-assigned insertion sequence used for time priority.
	seq uint64
}

// NewOrder builds an open order with a fresh ID.
func NewOrder(ticker string, side Side, typ Type, price, qty decimal.Decimal, creator string, now time.Time) *Order {
	return &Order{
		ID:          uuid.NewString(),
		Ticker:      ticker,
		Side:        side,
		Type:        typ,
		Price:       price,
		Qty:         qty,
		InitialQty:  qty,
		Creator:     creator,
		Status:      StatusOpen,
		Accounting:  AccountingOK,
		TimeInForce: "GTC",
		CreatedAt:   now,
	}
}

// NullQuote returns the empty-side sentinel for a ticker.
func NullQuote(ticker string, side Side) *Order {
	return &Order{
		ID:      "null_quote",
		Ticker:  ticker,
		Side:    side,
		Creator: NullQuoteCreator,
		Price:   decimal.Zero,
		Qty:     decimal.Zero,
	}
}

// IsNull reports whether o is the empty-side sentinel.
func (o *Order) IsNull() bool { return o.Creator == NullQuoteCreator }

// Filled returns the quantity filled so far.
func (o *Order) Filled() decimal.Decimal { return o.InitialQty.Sub(o.Qty) }
