package strategy

import (
	"math/rand"

	"github.com/shopspring/decimal"
)

// RandomMarketTaker flips a weighted coin each decision and crosses the
// spread with a market order. The generator is injected at construction;
// runs are reproducible under a fixed seed.
type RandomMarketTaker struct {
	rng     *rand.Rand
	buyProb float64
	qty     decimal.Decimal
}

// NewRandomMarketTaker trades qty with probability buyProb of buying.
func NewRandomMarketTaker(rng *rand.Rand, buyProb float64, qty decimal.Decimal) *RandomMarketTaker {
	return &RandomMarketTaker{rng: rng, buyProb: buyProb, qty: qty}
}

func (t *RandomMarketTaker) Decide(view MarketView) []Action {
	if t.rng.Float64() < t.buyProb {
		cost := view.BestAsk.Mul(t.qty)
		if view.BestAsk.Sign() > 0 && view.Cash.Cmp(cost) >= 0 {
			return []Action{{Type: ActionMarketBuy, Qty: t.qty}}
		}
		return nil
	}
	if view.Holding.Cmp(t.qty) >= 0 && view.BestBid.Sign() > 0 {
		return []Action{{Type: ActionMarketSell, Qty: t.qty}}
	}
	return nil
}
