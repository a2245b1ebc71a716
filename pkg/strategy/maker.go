package strategy

import (
	"github.com/shopspring/decimal"
)

// NaiveMarketMaker re-quotes a fixed-width two-sided market around the mid
// every decision. It cancels its stale quotes first, then posts a bid and an
// ask of QuoteQty at Spread around the mid.
type NaiveMarketMaker struct {
	Spread   decimal.Decimal // half-spread as a fraction of mid, e.g. 0.01
	QuoteQty decimal.Decimal
}

// NewNaiveMarketMaker quotes qty per side at +/- spread around mid.
func NewNaiveMarketMaker(spread, qty decimal.Decimal) *NaiveMarketMaker {
	return &NaiveMarketMaker{Spread: spread, QuoteQty: qty}
}

func (m *NaiveMarketMaker) Decide(view MarketView) []Action {
	mid := view.Midprice
	if mid.Sign() <= 0 {
		mid = view.Last
	}
	if mid.Sign() <= 0 {
		return nil
	}

	delta := mid.Mul(m.Spread)
	bid := mid.Sub(delta).Truncate(2)
	ask := mid.Add(delta).Truncate(2)

	actions := []Action{{Type: ActionCancelAll}}
	if view.Cash.Cmp(bid.Mul(m.QuoteQty)) >= 0 {
		actions = append(actions, Action{Type: ActionLimitBuy, Price: bid, Qty: m.QuoteQty})
	}
	if view.Holding.Cmp(m.QuoteQty) >= 0 {
		actions = append(actions, Action{Type: ActionLimitSell, Price: ask, Qty: m.QuoteQty})
	}
	return actions
}
