package asset

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Pair defines a tradable market between a base and a quote asset
// (e.g. BTC quoted in USD -> ticker "BTCUSD").
//
// A Pair is immutable once registered except for its Active flag, which can
// be flipped to halt and resume trading.
type Pair struct {
	Base   string `json:"base"`
	Quote  string `json:"quote"`
	Ticker string `json:"ticker"` // Base + Quote, e.g. "BTCUSD"

	// Precision: all prices are quoted to QuoteDecimals fractional places,
	// all quantities to BaseDecimals.
	BaseDecimals  int32 `json:"base_decimals"`
	QuoteDecimals int32 `json:"quote_decimals"`

	// Order limits. MinQtyPercent applies to partial fills: a remainder
	// smaller than MinQtyPercent * MinQty is treated as dust and dropped.
	MinQty        decimal.Decimal `json:"min_qty"`
	MinPrice      decimal.Decimal `json:"min_price"`
	MinQtyPercent decimal.Decimal `json:"min_qty_percent"`

	IsActive bool `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
}

// NewPair builds a pair with the given precision and limits.
func NewPair(base, quote string, baseDecimals, quoteDecimals int32, minQty, minPrice, minQtyPercent decimal.Decimal, now time.Time) (*Pair, error) {
	if base == "" || quote == "" {
		return nil, fmt.Errorf("pair requires base and quote symbols")
	}
	if base == quote {
		return nil, fmt.Errorf("pair base and quote must differ: %s", base)
	}
	if baseDecimals < 0 || quoteDecimals < 0 {
		return nil, fmt.Errorf("pair decimals cannot be negative")
	}
	if minQty.Sign() <= 0 {
		return nil, fmt.Errorf("min qty must be positive: %s", minQty)
	}
	if minPrice.Sign() <= 0 {
		return nil, fmt.Errorf("min price must be positive: %s", minPrice)
	}
	return &Pair{
		Base:          base,
		Quote:         quote,
		Ticker:        base + quote,
		BaseDecimals:  baseDecimals,
		QuoteDecimals: quoteDecimals,
		MinQty:        minQty,
		MinPrice:      minPrice,
		MinQtyPercent: minQtyPercent,
		IsActive:      true,
		CreatedAt:     now,
	}, nil
}

// ValidateOrder checks an order's price and qty against the pair's limits.
// A zero price is allowed: market orders carry no limit price.
func (p *Pair) ValidateOrder(price, qty decimal.Decimal) error {
	if !p.IsActive {
		return fmt.Errorf("pair %s is not active", p.Ticker)
	}
	if qty.Cmp(p.MinQty) < 0 {
		return fmt.Errorf("qty %s below min qty %s for %s", qty, p.MinQty, p.Ticker)
	}
	if dust := p.DustQty(); dust.Sign() > 0 && qty.Cmp(dust) < 0 {
		return fmt.Errorf("qty %s below dust threshold %s for %s", qty, dust, p.Ticker)
	}
	if !qty.Equal(qty.Truncate(p.BaseDecimals)) {
		return fmt.Errorf("qty %s exceeds %d decimal places for %s", qty, p.BaseDecimals, p.Ticker)
	}
	if price.Sign() != 0 {
		if price.Cmp(p.MinPrice) < 0 {
			return fmt.Errorf("price %s below min price %s for %s", price, p.MinPrice, p.Ticker)
		}
		if !price.Equal(price.Truncate(p.QuoteDecimals)) {
			return fmt.Errorf("price %s exceeds %d decimal places for %s", price, p.QuoteDecimals, p.Ticker)
		}
	}
	return nil
}

// DustQty returns the quantity below which a fill remainder is dropped.
func (p *Pair) DustQty() decimal.Decimal {
	if p.MinQtyPercent.Sign() <= 0 {
		return decimal.Zero
	}
	return p.MinQty.Mul(p.MinQtyPercent)
}
